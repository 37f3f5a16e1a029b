package progress

import (
	"context"
	"fmt"
	"path/filepath"

	"featureflow/internal/config"
)

// Store is the durable home of feature states and run reports. Every save is
// atomic: either the whole record lands or the stored record is unchanged.
// Saves for the same key are serialized by the store.
type Store interface {
	// SaveFeatureState persists state. state.Revision must match the stored
	// revision (zero for a new feature), otherwise ErrConflict is returned.
	// On success state.Revision is incremented. History is append-only: stored
	// records are never rewritten.
	SaveFeatureState(ctx context.Context, state *FeatureState) error
	// LoadFeatureState returns ErrNotFound for unknown names.
	LoadFeatureState(ctx context.Context, name string) (*FeatureState, error)
	// ListFeatures returns every feature ordered by name.
	ListFeatures(ctx context.Context) ([]*FeatureState, error)
	// SaveRunReport inserts or replaces the report keyed by its ID.
	SaveRunReport(ctx context.Context, report *RunReport) error
	// LoadRunReport returns ErrNotFound for unknown ids.
	LoadRunReport(ctx context.Context, id string) (*RunReport, error)
	// ListRuns returns every run, newest first.
	ListRuns(ctx context.Context) ([]*RunReport, error)
	Close() error
}

// Open connects to the backend selected by cfg.Store.Backend.
func Open(cfg *config.Config) (Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	switch cfg.Store.Backend {
	case config.StoreSQLite, "":
		return OpenSQLite(cfg.DatabasePath())
	case config.StoreJSON:
		return OpenFileStore(filepath.Join(cfg.Paths.StateDir, "records"))
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
