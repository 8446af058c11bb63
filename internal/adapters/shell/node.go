package shell

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/oxbridge/internal/adapters/cargo"
	"go.trai.ch/oxbridge/internal/adapters/logger"
	"go.trai.ch/oxbridge/internal/core/ports"
)

// NodeID is the unique identifier for the build driver Graft node.
const NodeID graft.ID = "adapter.driver"

func init() {
	graft.Register(graft.Node[ports.Driver]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID, cargo.DecoderNodeID},
		Run: func(ctx context.Context) (ports.Driver, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			decoder, err := graft.Dep[ports.EventDecoder](ctx)
			if err != nil {
				return nil, err
			}
			return NewDriver(log, decoder), nil
		},
	})
}
