package hostgraph

import (
	"context"

	"github.com/grindlemire/graft"
)

// NodeID is the unique identifier for the host graph Graft node.
const NodeID graft.ID = "adapter.hostgraph"

func init() {
	graft.Register(graft.Node[*Memory]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Memory, error) {
			return NewMemory(), nil
		},
	})
}
