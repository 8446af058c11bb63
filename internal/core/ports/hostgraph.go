package ports

import "go.trai.ch/oxbridge/internal/core/domain"

// HostGraph is the native build graph the imported artifacts are registered in.
//
//go:generate mockgen -source=hostgraph.go -destination=mocks/mock_hostgraph.go -package=mocks
type HostGraph interface {
	// DeclareNode registers a node whose staleness depends on inputs.
	DeclareNode(id string, inputs []string) (domain.NodeHandle, error)
	// MarkStale tells the host that a node must be rebuilt.
	MarkStale(handle domain.NodeHandle)
	// IsCancelled reports whether the host wants in-flight work to stop.
	IsCancelled() bool
}
