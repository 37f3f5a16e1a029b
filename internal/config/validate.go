package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateOrchestrator(); err != nil {
		return err
	}
	if err := c.validateGenerator(); err != nil {
		return err
	}
	if err := c.validateGate(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreSQLite, StoreJSON:
		return nil
	default:
		return fmt.Errorf("store.backend: unsupported value %q (want %q or %q)", c.Store.Backend, StoreSQLite, StoreJSON)
	}
}

func (c *Config) validateOrchestrator() error {
	if c.Orchestrator.ConcurrencyLimit < 1 {
		return errors.New("orchestrator.concurrency_limit must be positive")
	}
	if c.Orchestrator.FeatureTimeout < 1 {
		return errors.New("orchestrator.feature_timeout must be positive")
	}
	return nil
}

func (c *Config) validateGenerator() error {
	switch c.Generator.Kind {
	case GeneratorScaffold:
	case GeneratorCommand:
		if c.Generator.Command == "" {
			return errors.New("generator.command must be set when generator.kind is \"command\" (or set FEATUREFLOW_GENERATOR_COMMAND)")
		}
	default:
		return fmt.Errorf("generator.kind: unsupported value %q", c.Generator.Kind)
	}
	if c.Generator.Timeout < 1 {
		return errors.New("generator.timeout must be positive")
	}
	return nil
}

func (c *Config) validateGate() error {
	if c.Gate.MaxArtifacts < 0 {
		return errors.New("gate.max_artifacts must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
