package testsupport

import (
	"context"
	"testing"

	"featureflow/internal/config"
	"featureflow/internal/progress"
)

// MustOpenStore opens the configured progress.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) progress.Store {
	t.Helper()

	store, err := progress.Open(cfg)
	if err != nil {
		t.Fatalf("progress.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustLoadFeature loads a feature or fails the test.
func MustLoadFeature(t testing.TB, store progress.Store, name string) *progress.FeatureState {
	t.Helper()

	state, err := store.LoadFeatureState(context.Background(), name)
	if err != nil {
		t.Fatalf("LoadFeatureState(%q): %v", name, err)
	}
	return state
}

// Backends lists the store backends tests should cover.
func Backends() []string {
	return []string{config.StoreSQLite, config.StoreJSON}
}
