package ports

import (
	"context"
	"io"
	"iter"

	"go.trai.ch/oxbridge/internal/core/domain"
)

// Driver runs the external build driver for a plan.
//
//go:generate mockgen -source=driver.go -destination=mocks/mock_driver.go -package=mocks
type Driver interface {
	// Run executes plan, forwarding each event to sink as it is decoded.
	// It returns the full report once the driver has exited.
	Run(ctx context.Context, plan *domain.InvocationPlan, sink domain.EventSink) (*domain.BuildReport, error)
}

// EventDecoder turns the driver's machine-readable output into typed events.
type EventDecoder interface {
	// Decode yields events as lines arrive on r. Malformed lines yield an error and decoding continues.
	Decode(r io.Reader) iter.Seq2[domain.Event, error]
}
