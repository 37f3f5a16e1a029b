package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeOrchestrator()
	c.normalizeGenerator()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		if value, ok := os.LookupEnv("FEATUREFLOW_STATE_DIR"); ok && strings.TrimSpace(value) != "" {
			c.Paths.StateDir = strings.TrimSpace(value)
		} else {
			c.Paths.StateDir = defaultStateDir
		}
	}
	if strings.TrimSpace(c.Paths.ArtifactsDir) == "" {
		c.Paths.ArtifactsDir = defaultArtifactsDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}

	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.ArtifactsDir, err = expandPath(c.Paths.ArtifactsDir); err != nil {
		return fmt.Errorf("paths.artifacts_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
}

func (c *Config) normalizeOrchestrator() {
	if c.Orchestrator.ConcurrencyLimit == 0 {
		c.Orchestrator.ConcurrencyLimit = defaultConcurrency
	}
	if c.Orchestrator.FeatureTimeout == 0 {
		c.Orchestrator.FeatureTimeout = defaultFeatureTimeout
	}
}

func (c *Config) normalizeGenerator() {
	c.Generator.Kind = strings.ToLower(strings.TrimSpace(c.Generator.Kind))
	c.Generator.Command = strings.TrimSpace(c.Generator.Command)
	if c.Generator.Command == "" {
		if value, ok := os.LookupEnv("FEATUREFLOW_GENERATOR_COMMAND"); ok {
			c.Generator.Command = strings.TrimSpace(value)
		}
	}
	if c.Generator.Kind == "" {
		if c.Generator.Command != "" {
			c.Generator.Kind = GeneratorCommand
		} else {
			c.Generator.Kind = defaultGeneratorKind
		}
	}
	if c.Generator.Timeout == 0 {
		c.Generator.Timeout = defaultGeneratorTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
