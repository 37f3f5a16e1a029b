package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"featureflow/internal/config"
	"featureflow/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckGenerator(t *testing.T) {
	scaffold := testsupport.NewConfig(t)
	if r := CheckGenerator(context.Background(), scaffold); !r.Passed {
		t.Fatalf("scaffold should pass: %s", r.Detail)
	}

	script := testsupport.NewConfig(t, testsupport.WithGeneratorScript("exit 0"))
	if r := CheckGenerator(context.Background(), script); !r.Passed {
		t.Fatalf("script should pass: %s", r.Detail)
	}

	missing := testsupport.NewConfig(t)
	missing.Generator.Kind = config.GeneratorCommand
	missing.Generator.Command = "clearly-not-present-generator"
	r := CheckGenerator(context.Background(), missing)
	if r.Passed {
		t.Fatal("expected missing binary to fail")
	}
	if !strings.Contains(r.Detail, "not found") {
		t.Fatalf("unexpected detail: %s", r.Detail)
	}
}

func TestRunAllAndError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(context.Background(), cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if err := Error(results); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}

	if err := os.RemoveAll(cfg.Paths.ArtifactsDir); err != nil {
		t.Fatal(err)
	}
	err := Error(RunAll(context.Background(), cfg))
	if err == nil || !strings.Contains(err.Error(), "Artifacts directory") {
		t.Fatalf("expected artifacts failure, got %v", err)
	}
}

func TestCheckStore(t *testing.T) {
	for _, backend := range testsupport.Backends() {
		t.Run(backend, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithStoreBackend(backend))
			r := CheckStore(context.Background(), cfg)
			if !r.Passed {
				t.Fatalf("expected store check to pass: %s", r.Detail)
			}
			if !strings.Contains(r.Detail, "0 features") {
				t.Fatalf("unexpected detail: %s", r.Detail)
			}
		})
	}
}
