package generator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"featureflow/internal/logging"
	"featureflow/internal/services"
)

// ExitTempFail is the exit status a command uses to report a retryable failure.
const ExitTempFail = 75

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args, env []string, onStdout func(string)) error
}

// Option configures a Command.
type Option func(*Command)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Command) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithTimeout bounds each invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Command) {
		c.timeout = d
	}
}

// WithLogger attaches a logger for command stderr and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Command) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Command delegates generation to an external program. The program receives
// the request through FEATUREFLOW_* environment variables and prints one
// artifact reference per stdout line.
type Command struct {
	binary  string
	args    []string
	timeout time.Duration
	exec    Executor
	logger  *slog.Logger
}

// NewCommand constructs a Command generator.
func NewCommand(binary string, args []string, opts ...Option) (*Command, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "generator", "command required", nil)
	}
	c := &Command{
		binary: binary,
		args:   append([]string(nil), args...),
		exec:   commandExecutor{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "generator")
	return c, nil
}

// Generate runs the command and collects its references.
func (c *Command) Generate(ctx context.Context, req Request) ([]string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	env := []string{
		"FEATUREFLOW_FEATURE=" + req.Feature,
		"FEATUREFLOW_STAGE=" + req.Stage.String(),
		"FEATUREFLOW_PRIOR_ARTIFACTS=" + strings.Join(req.PriorArtifacts, "\n"),
	}

	var refs []string
	err := c.exec.Run(ctx, c.binary, c.args, env, func(line string) {
		if ref := strings.TrimSpace(line); ref != "" {
			refs = append(refs, ref)
		}
	})
	if err != nil {
		return nil, c.classify(ctx, req, err)
	}
	return refs, nil
}

func (c *Command) classify(ctx context.Context, req Request, err error) error {
	stageName := req.Stage.String()
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stageName, "generate", "generator timed out", err)
	} else if ctxErr != nil {
		return services.Wrap(services.ErrExecution, stageName, "generate", "generator cancelled", ctxErr)
	}

	var coder interface{ ExitCode() int }
	if !errors.As(err, &coder) {
		return services.Wrap(services.ErrExecution, stageName, "generate", "run generator", err)
	}
	code := coder.ExitCode()
	logging.WarnWithContext(c.logger, "generator command failed", "generator_failed",
		logging.String(logging.FieldFeature, req.Feature),
		logging.String(logging.FieldStage, stageName),
		logging.Int("exit_code", code),
		logging.Error(err),
	)
	if code == ExitTempFail {
		return services.Wrap(services.ErrExecution, stageName, "generate", "generator reported a temporary failure", err)
	}
	return services.Wrap(services.ErrUnrecoverable, stageName, "generate", fmt.Sprintf("generator exited with status %d", code), err)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args, env []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), env...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, func(line string) {
		fmt.Fprintln(os.Stderr, line)
	})

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
