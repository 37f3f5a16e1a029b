package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"featureflow/internal/logging"
	"featureflow/internal/progress"
	"featureflow/internal/services"
)

// ResumeOptions selects which entries a resume re-executes.
type ResumeOptions struct {
	// IncludeFailed re-executes failed entries as well as in-progress ones.
	IncludeFailed bool
}

// Run applies op to every feature in req. Per-feature failures are recorded
// in the report and never stop sibling features; the returned error is
// reserved for invalid requests and store failures. Cancelling ctx stops
// dispatch: features not yet started are marked skipped and features in
// flight run to completion with a stop signal they may honour.
func (o *Orchestrator) Run(ctx context.Context, req progress.RunRequest, op Operation) (*progress.RunReport, error) {
	if err := validateRequest(req, op); err != nil {
		return nil, err
	}
	req.Features = append([]string(nil), req.Features...)
	if req.ConcurrencyLimit <= 0 {
		req.ConcurrencyLimit = o.defaultLimit
	}
	if req.FeatureTimeout <= 0 {
		req.FeatureTimeout = o.defaultTimeout
	}
	now := o.now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}

	report := progress.NewRunReport(o.newID(now), req, now)
	if err := o.store.SaveRunReport(ctx, report); err != nil {
		return nil, fmt.Errorf("persist run %s: %w", report.ID, err)
	}
	return o.execute(ctx, report, req.Features, op)
}

// Resume re-executes the unfinished entries of a stored run. Successful
// entries are never re-run.
func (o *Orchestrator) Resume(ctx context.Context, id string, op Operation, opts ResumeOptions) (*progress.RunReport, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: operation is required", ErrInvalidRequest)
	}
	if o.lookup(id) != nil {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, id)
	}
	report, err := o.store.LoadRunReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}

	pending := report.Pending(opts.IncludeFailed)
	if len(pending) == 0 {
		report.Overall = report.ComputeOverall()
		return report, nil
	}
	for _, name := range pending {
		report.Results[name] = progress.FeatureResult{Feature: name, Status: progress.StatusInProgress}
	}
	report.Overall = progress.OverallInProgress
	report.FinishedAt = time.Time{}
	report.UpdatedAt = o.now()
	if err := o.store.SaveRunReport(ctx, report); err != nil {
		return nil, fmt.Errorf("persist run %s: %w", report.ID, err)
	}
	o.logger.Info("resuming run",
		logging.String(logging.FieldRunID, id),
		logging.String(logging.FieldEventType, "run_resumed"),
		logging.Int("pending", len(pending)),
	)
	return o.execute(ctx, report, pending, op)
}

func validateRequest(req progress.RunRequest, op Operation) error {
	if op == nil {
		return fmt.Errorf("%w: operation is required", ErrInvalidRequest)
	}
	if len(req.Features) == 0 {
		return fmt.Errorf("%w: no features", ErrInvalidRequest)
	}
	seen := make(map[string]struct{}, len(req.Features))
	for _, name := range req.Features {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: blank feature name", ErrInvalidRequest)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate feature %q", ErrInvalidRequest, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, report *progress.RunReport, names []string, op Operation) (*progress.RunReport, error) {
	rs := &runState{report: report}
	if !o.register(rs) {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, report.ID)
	}
	defer o.unregister(report.ID)

	limit := report.Request.ConcurrencyLimit
	if limit <= 0 {
		limit = o.defaultLimit
	}
	limit = min(limit, len(names))
	timeout := report.Request.FeatureTimeout
	logger := o.logger.With(logging.String(logging.FieldRunID, report.ID))
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.String("operation", report.Request.OperationID),
		logging.Int("features", len(names)),
		logging.Int("concurrency", limit),
		logging.Duration("feature_timeout", timeout),
	)

	// Saves outlive run cancellation so skipped entries still land.
	saveCtx := context.WithoutCancel(ctx)
	record := func(res progress.FeatureResult) {
		snap, version := rs.update(func(r *progress.RunReport) {
			r.Results[res.Feature] = res
			r.UpdatedAt = o.now()
		})
		if err := rs.persist(saveCtx, o.store, snap, version); err != nil {
			logging.WarnWithContext(logger, "run snapshot not saved", "run_save_failed",
				logging.String(logging.FieldFeature, res.Feature),
				logging.String(logging.FieldErrorHint, "the next save will retry with the full report"),
				logging.Error(err),
			)
		}
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for range limit {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				res := o.runUnit(ctx, report.ID, name, timeout, op)
				if res.Status == progress.StatusFailure {
					logging.WarnWithContext(logger, "feature failed", "feature_failed",
						logging.String(logging.FieldFeature, name),
						logging.String(logging.FieldErrorKind, res.ErrorKind),
						logging.String("error", res.Error),
					)
				}
				record(res)
			}
		}()
	}

dispatch:
	for i, name := range names {
		if ctx.Err() != nil {
			o.skip(logger, names[i:], record)
			break
		}
		select {
		case jobs <- name:
		case <-ctx.Done():
			o.skip(logger, names[i:], record)
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	snap, version := rs.update(func(r *progress.RunReport) {
		now := o.now()
		r.Overall = r.ComputeOverall()
		r.FinishedAt = now
		r.UpdatedAt = now
	})
	if err := rs.persist(saveCtx, o.store, snap, version); err != nil {
		return snap, fmt.Errorf("persist final report for run %s: %w", report.ID, err)
	}

	counts := make(map[progress.FeatureStatus]int)
	for _, res := range snap.Results {
		counts[res.Status]++
	}
	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.String("overall", string(snap.Overall)),
		logging.Int("succeeded", counts[progress.StatusSuccess]),
		logging.Int("failed", counts[progress.StatusFailure]),
		logging.Int("skipped", counts[progress.StatusSkipped]),
		logging.Duration("elapsed", snap.FinishedAt.Sub(snap.StartedAt)),
	)
	return snap, nil
}

func (o *Orchestrator) skip(logger *slog.Logger, names []string, record func(progress.FeatureResult)) {
	logger.Info("run cancelled before dispatch",
		logging.String(logging.FieldEventType, "run_cancelled"),
		logging.Int("skipped", len(names)),
	)
	now := o.now()
	for _, name := range names {
		record(progress.FeatureResult{Feature: name, Status: progress.StatusSkipped, FinishedAt: now})
	}
}

// runUnit executes op for one feature. The operation runs on a context that
// ignores run cancellation but carries it as a stop signal, and is abandoned
// with a timeout failure once its budget is spent.
func (o *Orchestrator) runUnit(ctx context.Context, runID, name string, timeout time.Duration, op Operation) progress.FeatureResult {
	started := o.now()
	unitCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if timeout > 0 {
		unitCtx, cancel = context.WithTimeout(unitCtx, timeout)
	} else {
		unitCtx, cancel = context.WithCancel(unitCtx)
	}
	defer cancel()
	unitCtx = services.WithStopSignal(unitCtx, ctx.Done())
	unitCtx = services.WithRunID(unitCtx, runID)
	unitCtx = services.WithFeature(unitCtx, name)

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("operation panicked",
					logging.String(logging.FieldRunID, runID),
					logging.String(logging.FieldFeature, name),
					logging.String(logging.FieldEventType, "operation_panic"),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())),
				)
				done <- Outcome{Err: services.Wrap(services.ErrExecution, "", "run", fmt.Sprintf("operation panicked: %v", r), nil)}
			}
		}()
		done <- op(unitCtx, name)
	}()

	var out Outcome
	select {
	case out = <-done:
	case <-unitCtx.Done():
		// The abandoned op keeps running until it notices ctx; a generator
		// that ignores ctx holds the feature busy until it returns. The
		// machine refuses to save once ctx has ended.
		out = Outcome{
			Err:       fmt.Errorf("%w: %s exceeded %s", ErrTimeout, name, timeout),
			ErrorKind: progress.ErrorKindTimeout,
		}
	}
	res := out.result(name)
	res.StartedAt = started
	res.FinishedAt = o.now()
	return res
}
