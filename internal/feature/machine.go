package feature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"featureflow/internal/gate"
	"featureflow/internal/generator"
	"featureflow/internal/logging"
	"featureflow/internal/progress"
	"featureflow/internal/services"
	"featureflow/internal/stage"
)

const maxNameLength = 128

// Machine moves features through their stages. It is safe for concurrent use;
// operations on the same feature are serialized and a second caller is
// rejected with ErrFeatureBusy instead of waiting.
type Machine struct {
	store     progress.Store
	generator generator.Generator
	gate      *gate.Gate
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	busy map[string]struct{} // features with an operation in flight
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMachine wires a state machine. A nil gate uses gate.Default.
func NewMachine(store progress.Store, gen generator.Generator, g *gate.Gate, opts ...Option) *Machine {
	if g == nil {
		g = gate.Default()
	}
	m := &Machine{
		store:     store,
		generator: gen,
		gate:      g,
		logger:    logging.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
		busy:      map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "feature")
	return m
}

// Transition describes the result of an advance or refine.
type Transition struct {
	Feature  string
	From     stage.Stage
	To       stage.Stage
	Advanced bool
	// Validation is the gate result that decided the transition: the departing
	// stage's for Advance, the regenerated artifacts' for Refine.
	Validation   gate.Result
	ArtifactRefs []string
	State        *progress.FeatureState
}

// ValidName reports whether name can identify a feature.
func ValidName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return fmt.Errorf("%w: name is blank", ErrInvalidName)
	case trimmed != name:
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidName, name)
	case len(name) > maxNameLength:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidName, maxNameLength)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\,`):
		return fmt.Errorf("%w: %q contains a separator", ErrInvalidName, name)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: %q contains control characters", ErrInvalidName, name)
	}
	return nil
}

// Get returns the stored state of name.
func (m *Machine) Get(ctx context.Context, name string) (*progress.FeatureState, error) {
	return m.load(ctx, name)
}

// List returns every feature ordered by name.
func (m *Machine) List(ctx context.Context) ([]*progress.FeatureState, error) {
	states, err := m.store.ListFeatures(ctx)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	return states, nil
}

// acquire marks name busy without waiting. The returned release removes the
// mark, so the set only holds features with an operation in flight. An
// operation abandoned by a caller's timeout keeps its mark until it returns.
func (m *Machine) acquire(name string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.busy[name]; taken {
		return nil, fmt.Errorf("%w: %s has an operation in flight", ErrFeatureBusy, name)
	}
	m.busy[name] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.busy, name)
		m.mu.Unlock()
	}, nil
}

func (m *Machine) inFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.busy)
}

// begin tags ctx with the feature and a correlation id and returns a logger
// carrying them.
func (m *Machine) begin(ctx context.Context, name, op string) (context.Context, *slog.Logger) {
	ctx = services.WithFeature(ctx, name)
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	return ctx, logging.WithContext(ctx, m.logger).With(logging.String("operation", op))
}

func (m *Machine) load(ctx context.Context, name string) (*progress.FeatureState, error) {
	state, err := m.store.LoadFeatureState(ctx, name)
	if errors.Is(err, progress.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load feature %s: %w", name, err)
	}
	return state, nil
}

// save persists state unless ctx has already ended: a caller that gave up on
// the operation (timeout, cancellation) must not see it committed afterwards.
func (m *Machine) save(ctx context.Context, state *progress.FeatureState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save feature %s: %w", state.Name, err)
	}
	state.UpdatedAt = m.now()
	if err := m.store.SaveFeatureState(ctx, state); err != nil {
		return fmt.Errorf("save feature %s: %w", state.Name, err)
	}
	return nil
}

func (m *Machine) generate(ctx context.Context, state *progress.FeatureState, target stage.Stage, prior []string) ([]string, error) {
	refs, err := m.generator.Generate(services.WithStage(ctx, target.String()), generator.Request{
		Feature:        state.Name,
		Stage:          target,
		PriorArtifacts: prior,
	})
	if err == nil {
		return refs, nil
	}
	switch services.Kind(err) {
	case "transient":
		return nil, services.Wrap(services.ErrExecution, target.String(), "generate", state.Name, err)
	default:
		return nil, fmt.Errorf("generate %s artifacts for %s: %w", target, state.Name, err)
	}
}

// block moves state to Blocked, remembering where it was.
func (m *Machine) block(state *progress.FeatureState, reason string) {
	from := state.Stage
	state.BlockedFrom = from
	state.BlockReason = reason
	state.Stage = stage.Blocked
	state.Append(progress.StageRecord{
		Stage:     stage.Blocked,
		Kind:      progress.KindBlock,
		EnteredAt: m.now(),
		Note:      reason,
	})
}
