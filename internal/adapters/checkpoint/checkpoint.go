// Package checkpoint persists screening results so runs can resume.
package checkpoint

import (
	"context"
	"fmt"

	"github.com/okian/sieve/internal/config"
	"github.com/okian/sieve/internal/domain/model"
)

// Store loads and replaces the full set of results.
type Store interface {
	// Load returns every stored result in stored order. A missing
	// checkpoint is not an error and yields no results.
	Load(ctx context.Context) ([]model.Result, error)

	// Save persists results as the new checkpoint contents.
	Save(ctx context.Context, results []model.Result) error

	Close() error
}

// Open returns the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case config.BackendCSV, "":
		return NewCSV(path), nil
	case config.BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
	}
}

// validateIDs enforces the resume precondition: ids are present and unique.
func validateIDs(results []model.Result) error {
	seen := make(map[string]int, len(results))
	for i, r := range results {
		if r.ID == "" {
			return fmt.Errorf("%w: row %d has a blank id", ErrMalformed, i+1)
		}
		if prev, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q in rows %d and %d", ErrMalformed, r.ID, prev+1, i+1)
		}
		seen[r.ID] = i
	}
	return nil
}
