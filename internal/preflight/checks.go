package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"featureflow/internal/config"
	"featureflow/internal/deps"
	"featureflow/internal/progress"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckGenerator verifies the configured content generator can be invoked.
// The scaffold backend only needs the artifacts directory.
func CheckGenerator(_ context.Context, cfg *config.Config) Result {
	const name = "Generator"

	switch cfg.Generator.Kind {
	case config.GeneratorScaffold, "":
		return Result{Name: name, Passed: true, Detail: "scaffold (built in)"}
	case config.GeneratorCommand:
		status := deps.CheckBinaries([]deps.Requirement{{
			Name:        name,
			Command:     cfg.Generator.Command,
			Description: "Produces stage artifacts",
		}})[0]
		if !status.Available {
			return Result{Name: name, Detail: status.Detail}
		}
		return Result{Name: name, Passed: true, Detail: status.Command}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unsupported kind %q", cfg.Generator.Kind)}
	}
}

// CheckStore opens the configured progress store and lists features.
func CheckStore(ctx context.Context, cfg *config.Config) Result {
	name := "Progress store (" + cfg.Store.Backend + ")"

	store, err := progress.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer store.Close()

	features, err := store.ListFeatures(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("list features: %v", err)}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("list runs: %v", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d features, %d runs", len(features), len(runs))}
}
