package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"featureflow/internal/config"
)

// LogFileName is the JSON log written under the configured log directory.
const LogFileName = "featureflow.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // "console" (default) or "json"
	// OutputPaths lists sinks for the primary handler: "stdout", "stderr",
	// or file paths. Defaults to stdout.
	OutputPaths []string
	// FilePath, when set, also receives every record as JSON.
	FilePath    string
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	addSource := opts.Development || level.Level() <= slog.LevelDebug

	sinks := opts.OutputPaths
	if len(sinks) == 0 {
		sinks = []string{"stdout"}
	}
	primary, err := openSinks(sinks)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		handler = newConsoleHandler(primary, level, addSource)
	case "json":
		handler = newJSONHandler(primary, level, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	if path := strings.TrimSpace(opts.FilePath); path != "" {
		file, err := openFile(path)
		if err != nil {
			return nil, err
		}
		handler = TeeHandler(handler, newJSONHandler(file, level, addSource))
	}
	return slog.New(handler), nil
}

// NewFromConfig logs to stderr in the configured format and, when a log
// directory is set, to a JSON file inside it. Stdout stays free for command
// output.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	opts := Options{Level: "info", OutputPaths: []string{"stderr"}}
	if cfg == nil {
		return New(opts)
	}
	opts.Level = cfg.Logging.Level
	opts.Format = cfg.Logging.Format
	if dir := cfg.Paths.LogDir; dir != "" {
		opts.FilePath = filepath.Join(dir, LogFileName)
	}
	return New(opts)
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return parsed
}

func openSinks(paths []string) (io.Writer, error) {
	var (
		names   []string
		writers []io.Writer
	)
	for _, raw := range paths {
		name := strings.TrimSpace(raw)
		if name == "" || slices.Contains(names, name) {
			continue
		}
		names = append(names, name)

		var w io.Writer
		switch name {
		case "stdout":
			w = os.Stdout
		case "stderr":
			w = os.Stderr
		default:
			file, err := openFile(name)
			if err != nil {
				return nil, err
			}
			w = file
		}
		writers = append(writers, w)
	}
	if len(writers) == 0 {
		return os.Stdout, nil
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
