package generator

import (
	"context"
	"fmt"
	"log/slog"

	"featureflow/internal/config"
	"featureflow/internal/stage"
)

// Request describes one generation call.
type Request struct {
	Feature        string
	Stage          stage.Stage
	PriorArtifacts []string
}

// Generator produces the artifact references for a feature entering a stage.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]string, error)
}

// New builds the backend selected by cfg.Generator.Kind.
func New(cfg *config.Config, logger *slog.Logger) (Generator, error) {
	switch cfg.Generator.Kind {
	case config.GeneratorScaffold, "":
		return NewScaffold(cfg.Paths.ArtifactsDir), nil
	case config.GeneratorCommand:
		cmd, err := NewCommand(cfg.Generator.Command, cfg.Generator.Args,
			WithTimeout(cfg.GeneratorTimeout()),
			WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("unsupported generator kind %q", cfg.Generator.Kind)
	}
}
