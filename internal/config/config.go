package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"featureflow/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir     string `toml:"state_dir"`
	ArtifactsDir string `toml:"artifacts_dir"`
	LogDir       string `toml:"log_dir"`
}

// Store selects the progress store backend.
type Store struct {
	Backend string `toml:"backend"`
}

// Orchestrator contains fan-out defaults for runs.
type Orchestrator struct {
	ConcurrencyLimit int `toml:"concurrency_limit"`
	// FeatureTimeout is the per-feature budget in seconds.
	FeatureTimeout int `toml:"feature_timeout"`
}

// Generator configures the content generator backend.
type Generator struct {
	Kind    string   `toml:"kind"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Timeout int      `toml:"timeout"`
}

// Gate tunes the built-in validation checks.
type Gate struct {
	RequireStageKind bool `toml:"require_stage_kind"`
	MaxArtifacts     int  `toml:"max_artifacts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for featureflow.
//
// Configuration sections by subsystem:
//   - Paths: state, artifact, and log directories
//   - Store: progress store backend (sqlite or json)
//   - Orchestrator: default concurrency limit and per-feature timeout
//   - Generator: content generator backend and its command
//   - Gate: validation check tuning
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Store        Store        `toml:"store"`
	Orchestrator Orchestrator `toml:"orchestrator"`
	Generator    Generator    `toml:"generator"`
	Gate         Gate         `toml:"gate"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the expanded ~/.config/featureflow/config.toml.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads the configuration at path, or searches the default locations
// when path is empty: ~/.config/featureflow/config.toml, then
// ./featureflow.toml. A missing file is not an error; defaults are used and
// exists is false. The returned config is normalized and validated.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	resolved, exists, err = locate(path)
	if err != nil {
		return nil, "", false, err
	}

	loaded := Default()
	if exists {
		if err := decodeFile(resolved, &loaded); err != nil {
			return nil, "", false, err
		}
	}
	if err := loaded.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, "", false, err
	}
	return &loaded, resolved, exists, nil
}

// decodeFile strictly decodes a TOML file over cfg; unknown keys are errors.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config %s: %s", path, strict.String())
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// locate resolves the config file to read. An explicit path is reported as
// missing rather than falling back to the search locations.
func locate(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		found, err := isFile(expanded)
		return expanded, found, err
	}

	home, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	local, err := filepath.Abs("featureflow.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{home, local} {
		found, err := isFile(candidate)
		if err != nil {
			return "", false, err
		}
		if found {
			return candidate, true, nil
		}
	}
	return home, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	}
	return !info.IsDir(), nil
}

// EnsureDirectories creates the state, artifact, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.ArtifactsDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite progress database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "featureflow.db")
}

// FeatureTimeout returns the per-feature run budget.
func (c *Config) FeatureTimeout() time.Duration {
	return time.Duration(c.Orchestrator.FeatureTimeout) * time.Second
}

// GeneratorTimeout returns the budget for one generator invocation.
func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.Timeout) * time.Second
}

// ExpandPath resolves a leading ~ to the home directory and returns an
// absolute, cleaned path. Empty input stays empty.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimLeft(p[1:], `/\`))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}

// CreateSample writes the sample configuration to path, creating parent
// directories.
func CreateSample(path string) error {
	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
