package ports

import "go.trai.ch/oxbridge/internal/core/domain"

// ManifestReader discovers and parses package manifests.
//
//go:generate mockgen -source=manifest.go -destination=mocks/mock_manifest.go -package=mocks
type ManifestReader interface {
	// Read parses the manifest in dir and every workspace member it reaches.
	// dir must be absolute.
	Read(dir string) (*domain.Workspace, error)
}

// ToolchainProvider reports the platforms the installed driver can build for.
type ToolchainProvider interface {
	Toolchain() (domain.Toolchain, error)
}
