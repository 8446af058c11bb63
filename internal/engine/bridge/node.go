package bridge

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/oxbridge/internal/adapters/cargo"     //nolint:depguard // Wired in engine layer
	"go.trai.ch/oxbridge/internal/adapters/cas"       //nolint:depguard // Wired in engine layer
	"go.trai.ch/oxbridge/internal/adapters/fs"        //nolint:depguard // Wired in engine layer
	"go.trai.ch/oxbridge/internal/adapters/hostgraph" //nolint:depguard // Wired in engine layer
	"go.trai.ch/oxbridge/internal/adapters/logger"    //nolint:depguard // Wired in engine layer
	"go.trai.ch/oxbridge/internal/adapters/shell"     //nolint:depguard // Wired in engine layer
	"go.trai.ch/oxbridge/internal/adapters/telemetry/progrock"
	"go.trai.ch/oxbridge/internal/core/ports"
)

// NodeID is the unique identifier for the bridge Graft node.
const NodeID graft.ID = "engine.bridge"

func init() {
	graft.Register(graft.Node[*Bridge]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			cargo.ReaderNodeID,
			cargo.ToolchainNodeID,
			fs.HasherNodeID,
			fs.VerifierNodeID,
			shell.NodeID,
			cas.NodeID,
			progrock.NodeID,
			hostgraph.NodeID,
			logger.NodeID,
		},
		Run: runNode,
	})
}

func runNode(ctx context.Context) (*Bridge, error) {
	reader, err := graft.Dep[ports.ManifestReader](ctx)
	if err != nil {
		return nil, err
	}

	toolchain, err := graft.Dep[ports.ToolchainProvider](ctx)
	if err != nil {
		return nil, err
	}

	fingerprinter, err := graft.Dep[ports.Fingerprinter](ctx)
	if err != nil {
		return nil, err
	}

	verifier, err := graft.Dep[ports.Verifier](ctx)
	if err != nil {
		return nil, err
	}

	driver, err := graft.Dep[ports.Driver](ctx)
	if err != nil {
		return nil, err
	}

	store, err := graft.Dep[ports.BuildRecordStore](ctx)
	if err != nil {
		return nil, err
	}

	telemetry, err := graft.Dep[ports.Telemetry](ctx)
	if err != nil {
		return nil, err
	}

	host, err := graft.Dep[*hostgraph.Memory](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return New(reader, toolchain, fingerprinter, verifier, driver, store, telemetry, host, log), nil
}
