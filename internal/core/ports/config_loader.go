package ports

import "go.trai.ch/oxbridge/internal/core/domain"

// ConfigLoader defines the interface for loading the project configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load discovers the configuration file from the given working directory upwards
	// and returns the project with every path made absolute.
	Load(cwd string) (*domain.Project, error)
}
