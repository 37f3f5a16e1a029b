package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"featureflow/internal/config"
	"featureflow/internal/progress"
	"featureflow/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\nstate_dir = %q\nartifacts_dir = %q\nlog_dir = %q\n\n",
		cfg.Paths.StateDir, cfg.Paths.ArtifactsDir, cfg.Paths.LogDir)
	fmt.Fprintf(&b, "[store]\nbackend = %q\n\n", cfg.Store.Backend)
	fmt.Fprintf(&b, "[orchestrator]\nconcurrency_limit = %d\nfeature_timeout = %d\n\n",
		cfg.Orchestrator.ConcurrencyLimit, cfg.Orchestrator.FeatureTimeout)
	fmt.Fprintf(&b, "[generator]\nkind = %q\n", cfg.Generator.Kind)
	if cfg.Generator.Command != "" {
		fmt.Fprintf(&b, "command = %q\n", cfg.Generator.Command)
	}
	fmt.Fprintf(&b, "timeout = %d\n\n", cfg.Generator.Timeout)
	fmt.Fprintf(&b, "[logging]\nformat = \"json\"\nlevel = \"error\"\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func decodeRuns(t *testing.T, output string) []*progress.RunReport {
	t.Helper()
	var runs []*progress.RunReport
	if err := json.Unmarshal([]byte(output), &runs); err != nil {
		t.Fatalf("decode runs %q: %v", output, err)
	}
	return runs
}
