// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/oxbridge/internal/adapters/cargo"
	_ "go.trai.ch/oxbridge/internal/adapters/cas"
	_ "go.trai.ch/oxbridge/internal/adapters/config"
	_ "go.trai.ch/oxbridge/internal/adapters/fs"
	_ "go.trai.ch/oxbridge/internal/adapters/hostgraph"
	_ "go.trai.ch/oxbridge/internal/adapters/logger"
	_ "go.trai.ch/oxbridge/internal/adapters/shell"
	_ "go.trai.ch/oxbridge/internal/adapters/telemetry/progrock"
	_ "go.trai.ch/oxbridge/internal/adapters/watcher"
	// Register app and engine nodes.
	_ "go.trai.ch/oxbridge/internal/app"
	_ "go.trai.ch/oxbridge/internal/engine/bridge"
)
