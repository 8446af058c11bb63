package cargo

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/oxbridge/internal/adapters/logger"
	"go.trai.ch/oxbridge/internal/core/ports"
)

const (
	// ReaderNodeID is the unique identifier for the manifest reader Graft node.
	ReaderNodeID graft.ID = "adapter.cargo.reader"
	// DecoderNodeID is the unique identifier for the event decoder Graft node.
	DecoderNodeID graft.ID = "adapter.cargo.decoder"
	// ToolchainNodeID is the unique identifier for the toolchain provider Graft node.
	ToolchainNodeID graft.ID = "adapter.cargo.toolchain"
)

// DefaultCompiler is the compiler queried for platform information.
const DefaultCompiler = "rustc"

func init() {
	graft.Register(graft.Node[ports.ManifestReader]{
		ID:        ReaderNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ManifestReader, error) {
			return NewReader(), nil
		},
	})

	graft.Register(graft.Node[ports.EventDecoder]{
		ID:        DecoderNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.EventDecoder, error) {
			return NewDecoder(), nil
		},
	})

	graft.Register(graft.Node[ports.ToolchainProvider]{
		ID:        ToolchainNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.ToolchainProvider, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewToolchain(DefaultCompiler, log), nil
		},
	})
}
