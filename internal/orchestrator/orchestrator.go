package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"featureflow/internal/config"
	"featureflow/internal/logging"
	"featureflow/internal/progress"
)

// ErrRunActive rejects a resume of a run this process is still executing.
var ErrRunActive = errors.New("run is still executing")

const runIDLayout = "20060102T150405Z"

// Orchestrator fans one Operation out across a set of features with bounded
// concurrency and keeps the run's report durable as results arrive.
type Orchestrator struct {
	store          progress.Store
	logger         *slog.Logger
	defaultLimit   int
	defaultTimeout time.Duration
	now            func() time.Time
	newID          func(time.Time) string

	mu     sync.Mutex
	active map[string]*runState
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator replaces run id generation (tests).
func WithIDGenerator(fn func(time.Time) string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New builds an orchestrator whose defaults come from cfg.Orchestrator.
func New(store progress.Store, cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		logger: logging.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  NewRunID,
		active: make(map[string]*runState),
	}
	if cfg != nil {
		o.defaultLimit = cfg.Orchestrator.ConcurrencyLimit
		o.defaultTimeout = cfg.FeatureTimeout()
	}
	if o.defaultLimit <= 0 {
		o.defaultLimit = 1
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "orchestrator")
	return o
}

// NewRunID returns "<UTC timestamp>-<8 hex chars>".
func NewRunID(now time.Time) string {
	return now.UTC().Format(runIDLayout) + "-" + uuid.NewString()[:8]
}

// Report returns the live snapshot of an executing run, or the stored report.
func (o *Orchestrator) Report(ctx context.Context, id string) (*progress.RunReport, error) {
	if rs := o.lookup(id); rs != nil {
		return rs.snapshot(), nil
	}
	report, err := o.store.LoadRunReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return report, nil
}

// Runs lists stored runs, newest first.
func (o *Orchestrator) Runs(ctx context.Context) ([]*progress.RunReport, error) {
	runs, err := o.store.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	for i, run := range runs {
		if rs := o.lookup(run.ID); rs != nil {
			runs[i] = rs.snapshot()
		}
	}
	return runs, nil
}

func (o *Orchestrator) lookup(id string) *runState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active[id]
}

func (o *Orchestrator) register(rs *runState) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[rs.report.ID]; ok {
		return false
	}
	o.active[rs.report.ID] = rs
	return true
}

func (o *Orchestrator) unregister(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, id)
}

// runState is the in-memory copy of an executing run. mu guards report and
// is held only for map writes and snapshots; saveMu serializes store writes.
type runState struct {
	mu      sync.Mutex
	report  *progress.RunReport
	version int

	saveMu sync.Mutex
	saved  int
}

func (rs *runState) snapshot() *progress.RunReport {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.report.Clone()
}

// update applies fn under the lock and returns a versioned snapshot.
func (rs *runState) update(fn func(r *progress.RunReport)) (*progress.RunReport, int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	fn(rs.report)
	rs.version++
	return rs.report.Clone(), rs.version
}

// persist writes snap unless a newer snapshot already landed.
func (rs *runState) persist(ctx context.Context, store progress.Store, snap *progress.RunReport, version int) error {
	rs.saveMu.Lock()
	defer rs.saveMu.Unlock()
	if version <= rs.saved {
		return nil
	}
	if err := store.SaveRunReport(ctx, snap); err != nil {
		return err
	}
	rs.saved = version
	return nil
}
