package ports

import "go.trai.ch/oxbridge/internal/core/domain"

// BuildRecordStore persists the outcome of successful driver runs across sessions.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type BuildRecordStore interface {
	// Get retrieves the record for a cache key below the project root dir.
	// Returns nil, nil if not found.
	Get(dir, cacheKey string) (*domain.BuildRecord, error)

	// Put stores the record below the project root dir.
	Put(dir string, record domain.BuildRecord) error
}
