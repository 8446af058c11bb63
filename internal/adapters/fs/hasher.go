package fs

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/oxbridge/internal/core/domain"
	"go.trai.ch/oxbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Fingerprinter = (*Hasher)(nil)

// Hasher fingerprints build inputs by content.
type Hasher struct {
	walker *Walker
}

// NewHasher creates a new Hasher.
func NewHasher(walker *Walker) *Hasher {
	return &Hasher{walker: walker}
}

// ComputeFileHash computes the XXHash of a file's content.
func (h *Hasher) ComputeFileHash(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrFileHashFailed.Error()), "path", path)
	}

	return hasher.Sum64(), nil
}

// Fingerprint digests every file below paths. A path that is a file is digested directly;
// a path that does not exist is skipped. The result is sorted by path and free of duplicates.
func (h *Hasher) Fingerprint(paths, ignores []string) ([]domain.Fingerprint, error) {
	seen := make(map[string]struct{})
	var out []domain.Fingerprint

	add := func(path string) error {
		if _, ok := seen[path]; ok {
			return nil
		}
		seen[path] = struct{}{}

		sum, err := h.ComputeFileHash(path)
		if err != nil {
			return err
		}
		out = append(out, domain.Fingerprint{Path: path, Digest: fmt.Sprintf("%016x", sum)})
		return nil
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, zerr.With(zerr.Wrap(err, "failed to stat input"), "path", path)
		}

		if !info.IsDir() {
			if err := add(path); err != nil {
				return nil, err
			}
			continue
		}

		for file := range h.walker.WalkFiles(path, ignores) {
			if err := add(file); err != nil {
				return nil, err
			}
		}
	}

	slices.SortFunc(out, func(a, b domain.Fingerprint) int {
		return strings.Compare(a.Path, b.Path)
	})
	return out, nil
}
