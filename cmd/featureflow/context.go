package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"featureflow/internal/config"
	"featureflow/internal/feature"
	"featureflow/internal/gate"
	"featureflow/internal/generator"
	"featureflow/internal/logging"
	"featureflow/internal/orchestrator"
	"featureflow/internal/progress"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// app bundles the components one command invocation needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   progress.Store
	machine *feature.Machine
	orch    *orchestrator.Orchestrator
}

func (c *commandContext) withApp(fn func(*app) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	store, err := progress.Open(cfg)
	if err != nil {
		return fmt.Errorf("open progress store: %w", err)
	}
	defer store.Close()

	gen, err := generator.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	validator := gate.New(gate.Options{
		RequireStageKind: cfg.Gate.RequireStageKind,
		MaxArtifacts:     cfg.Gate.MaxArtifacts,
	})

	return fn(&app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		machine: feature.NewMachine(store, gen, validator, feature.WithLogger(logger)),
		orch:    orchestrator.New(store, cfg, orchestrator.WithLogger(logger)),
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
