package ports

import "go.trai.ch/oxbridge/internal/core/domain"

// Fingerprinter computes content digests of build inputs.
//
//go:generate mockgen -source=fingerprinter.go -destination=mocks/mock_fingerprinter.go -package=mocks
type Fingerprinter interface {
	// Fingerprint digests every file below the given paths, skipping ignored
	// directory names and absolute directories. Missing paths are skipped.
	// The result is sorted by path.
	Fingerprint(paths []string, ignores []string) ([]domain.Fingerprint, error)
}

// Verifier checks that produced artifacts exist on disk.
type Verifier interface {
	// Missing returns the paths that do not exist.
	Missing(paths []string) ([]string, error)
}
