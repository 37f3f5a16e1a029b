package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"featureflow/internal/config"
)

// ConfigOption adjusts a config produced by NewConfig.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns defaults rooted in a fresh temp directory:
// <tmp>/state, <tmp>/artifacts and <tmp>/logs.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		StateDir:     filepath.Join(base, "state"),
		ArtifactsDir: filepath.Join(base, "artifacts"),
		LogDir:       filepath.Join(base, "logs"),
	}
	cfg.Orchestrator.FeatureTimeout = 30
	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp root behind a NewConfig config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

func WithStoreBackend(backend string) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) { cfg.Store.Backend = backend }
}

func WithConcurrency(limit int) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) { cfg.Orchestrator.ConcurrencyLimit = limit }
}

// WithFeatureTimeout sets the per-feature budget in seconds.
func WithFeatureTimeout(seconds int) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) { cfg.Orchestrator.FeatureTimeout = seconds }
}

// WithGeneratorScript installs script as <base>/bin/generate (a /bin/sh
// script) and points the command generator at it.
func WithGeneratorScript(script string) ConfigOption {
	return func(t testing.TB, base string, cfg *config.Config) {
		t.Helper()
		target := filepath.Join(base, "bin", "generate")
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatalf("mkdir bin dir: %v", err)
		}
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
			t.Fatalf("write generator script: %v", err)
		}
		cfg.Generator.Kind = config.GeneratorCommand
		cfg.Generator.Command = target
	}
}
