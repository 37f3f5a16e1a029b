package feature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"featureflow/internal/gate"
	"featureflow/internal/logging"
	"featureflow/internal/progress"
	"featureflow/internal/services"
	"featureflow/internal/stage"
)

// Create registers a new feature and generates its requirements. The
// requirements are validated and the result recorded, but a failing gate
// does not prevent creation.
func (m *Machine) Create(ctx context.Context, name string) (*progress.FeatureState, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	unlock, err := m.acquire(name)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ctx, logger := m.begin(ctx, name, "create")

	switch _, err := m.store.LoadFeatureState(ctx, name); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFeature, name)
	case !errors.Is(err, progress.ErrNotFound):
		return nil, fmt.Errorf("check feature %s: %w", name, err)
	}

	state := progress.NewFeatureState(name, m.now())
	refs, err := m.generate(ctx, state, stage.Requirements, nil)
	if err != nil {
		logging.WarnWithContext(logger, "requirements generation failed", "feature_create_failed",
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
		return nil, err
	}
	result := m.gate.Validate(stage.Requirements, refs)
	m.enter(state, stage.Requirements, progress.KindEnter, refs, &result, nil)

	if err := m.save(ctx, state); err != nil {
		if errors.Is(err, progress.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFeature, name)
		}
		return nil, err
	}
	logger.Info("feature created",
		logging.String(logging.FieldEventType, "feature_created"),
		logging.String(logging.FieldStage, stage.Requirements.String()),
		logging.Int("artifacts", len(refs)),
		logging.Bool("gate_pass", result.Pass),
	)
	return state, nil
}

// Advance validates the current stage and, on a pass, generates the next
// stage and moves the feature into it. A failing gate is not an error: the
// returned Transition has Advanced false and carries the issues.
func (m *Machine) Advance(ctx context.Context, name string) (Transition, error) {
	unlock, err := m.acquire(name)
	if err != nil {
		return Transition{}, err
	}
	defer unlock()
	ctx, logger := m.begin(ctx, name, "advance")
	return m.advance(ctx, logger, name)
}

func (m *Machine) advance(ctx context.Context, logger *slog.Logger, name string) (Transition, error) {
	state, err := m.load(ctx, name)
	if err != nil {
		return Transition{}, err
	}
	if err := checkMovable(state); err != nil {
		return Transition{}, err
	}

	current := state.Stage
	result := m.gate.Validate(current, state.ActiveArtifacts(current))
	state.LastValidation = &result
	if !result.Pass {
		if err := m.save(ctx, state); err != nil {
			return Transition{}, err
		}
		logger.Warn("stage gate failed",
			logging.String(logging.FieldEventType, "validation_failed"),
			logging.String(logging.FieldStage, current.String()),
			logging.Strings("issues", result.Messages()),
		)
		return Transition{Feature: name, From: current, To: current, Validation: result, State: state}, nil
	}

	next, _ := current.Next()
	var refs []string
	var entry *gate.Result
	if next != stage.Complete {
		refs, err = m.generate(ctx, state, next, state.PriorArtifacts(next))
		if err != nil {
			return m.generationFailed(ctx, logger, state, result, err)
		}
		entryResult := m.gate.Validate(next, refs)
		entry = &entryResult
	}
	m.enter(state, next, progress.KindEnter, refs, entry, nil)
	if err := m.save(ctx, state); err != nil {
		return Transition{}, err
	}
	logger.Info("stage transition",
		logging.String(logging.FieldEventType, "stage_transition"),
		logging.String("from", current.String()),
		logging.String(logging.FieldStage, next.String()),
		logging.Int("artifacts", len(refs)),
	)
	return Transition{
		Feature:      name,
		From:         current,
		To:           next,
		Advanced:     true,
		Validation:   result,
		ArtifactRefs: slices.Clone(refs),
		State:        state,
	}, nil
}

// Refine regenerates the current stage's artifacts, superseding the previous
// ones. The returned Transition carries the gate result of the new artifacts.
func (m *Machine) Refine(ctx context.Context, name string) (Transition, error) {
	unlock, err := m.acquire(name)
	if err != nil {
		return Transition{}, err
	}
	defer unlock()
	ctx, logger := m.begin(ctx, name, "refine")

	state, err := m.load(ctx, name)
	if err != nil {
		return Transition{}, err
	}
	if err := checkMovable(state); err != nil {
		return Transition{}, err
	}

	current := state.Stage
	prior := append(state.PriorArtifacts(current), state.ActiveArtifacts(current)...)
	refs, err := m.generate(ctx, state, current, prior)
	if err != nil {
		return m.generationFailed(ctx, logger, state, gate.Result{Stage: current}, err)
	}
	result := m.gate.Validate(current, refs)
	var supersedes []int
	if prev, ok := state.ActiveRecord(current); ok {
		supersedes = []int{prev.Seq}
	}
	m.enter(state, current, progress.KindRefine, refs, &result, supersedes)
	if err := m.save(ctx, state); err != nil {
		return Transition{}, err
	}
	logger.Info("stage refined",
		logging.String(logging.FieldEventType, "stage_refined"),
		logging.String(logging.FieldStage, current.String()),
		logging.Int("artifacts", len(refs)),
		logging.Bool("gate_pass", result.Pass),
	)
	return Transition{
		Feature:      name,
		From:         current,
		To:           current,
		Validation:   result,
		ArtifactRefs: slices.Clone(refs),
		State:        state,
	}, nil
}

// Reset moves the feature back to target, an earlier gated stage, and
// supersedes every active record after it. Resetting a blocked feature to a
// stage at or before the one it was blocked in clears the block.
func (m *Machine) Reset(ctx context.Context, name string, target stage.Stage) (*progress.FeatureState, error) {
	unlock, err := m.acquire(name)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ctx, logger := m.begin(ctx, name, "reset")

	state, err := m.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if !target.Gated() {
		return nil, fmt.Errorf("%w: %q is not a resettable stage", ErrInvalidReset, target)
	}
	if state.Blocked() {
		if state.BlockedFrom.Before(target) {
			return nil, fmt.Errorf("%w: %s was blocked in %s", ErrInvalidReset, name, state.BlockedFrom)
		}
	} else if !target.Before(state.Stage) {
		return nil, fmt.Errorf("%w: %s is not before %s", ErrInvalidReset, target, state.Stage)
	}

	var superseded []int
	for _, rec := range state.ActiveRecords() {
		if target.Before(rec.Stage) {
			superseded = append(superseded, rec.Seq)
		}
	}
	from := state.Stage
	state.Append(progress.StageRecord{
		Stage:      target,
		Kind:       progress.KindReset,
		EnteredAt:  m.now(),
		Supersedes: superseded,
		Note:       "reset from " + from.String(),
	})
	state.Stage = target
	state.BlockedFrom = ""
	state.BlockReason = ""
	state.LastValidation = nil
	if err := m.save(ctx, state); err != nil {
		return nil, err
	}
	logger.Info("feature reset",
		logging.String(logging.FieldEventType, "feature_reset"),
		logging.String("from", from.String()),
		logging.String(logging.FieldStage, target.String()),
		logging.Int("superseded", len(superseded)),
	)
	return state, nil
}

// Block marks the feature blocked until it is reset.
func (m *Machine) Block(ctx context.Context, name, reason string) (*progress.FeatureState, error) {
	unlock, err := m.acquire(name)
	if err != nil {
		return nil, err
	}
	defer unlock()
	ctx, logger := m.begin(ctx, name, "block")

	state, err := m.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := checkMovable(state); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "blocked by operator"
	}
	m.block(state, reason)
	if err := m.save(ctx, state); err != nil {
		return nil, err
	}
	logging.WarnWithContext(logger, "feature blocked", "feature_blocked",
		logging.String(logging.FieldStage, state.BlockedFrom.String()),
		logging.String("reason", reason),
	)
	return state, nil
}

// Validate runs the gate over the current stage's active artifacts without
// changing anything. A blocked feature is validated at the stage it was
// blocked in.
func (m *Machine) Validate(ctx context.Context, name string) (gate.Result, error) {
	state, err := m.load(ctx, name)
	if err != nil {
		return gate.Result{}, err
	}
	current := state.Stage
	if state.Blocked() {
		current = state.BlockedFrom
	}
	if current.Terminal() {
		return gate.Result{}, fmt.Errorf("%w: %s", ErrTerminalStage, name)
	}
	return m.gate.Validate(current, state.ActiveArtifacts(current)), nil
}

// AutoResult reports an AutoAdvance pipeline.
type AutoResult struct {
	Transitions []Transition
	Final       stage.Stage
	// Reached is true when the feature ended at or past the requested stage.
	Reached bool
}

// Last returns the final transition, if any.
func (r AutoResult) Last() (Transition, bool) {
	if len(r.Transitions) == 0 {
		return Transition{}, false
	}
	return r.Transitions[len(r.Transitions)-1], true
}

// AutoAdvance advances repeatedly until the feature reaches until (Complete
// when empty). It stops at the first failing gate or error and checks for a
// stop request before each step.
func (m *Machine) AutoAdvance(ctx context.Context, name string, until stage.Stage) (AutoResult, error) {
	if until == "" {
		until = stage.Complete
	}
	if !until.Gated() && until != stage.Complete {
		return AutoResult{}, fmt.Errorf("%w: cannot auto-advance to %q", ErrInvalidStage, until)
	}
	unlock, err := m.acquire(name)
	if err != nil {
		return AutoResult{}, err
	}
	defer unlock()
	ctx, logger := m.begin(ctx, name, "auto")

	state, err := m.load(ctx, name)
	if err != nil {
		return AutoResult{}, err
	}
	out := AutoResult{Final: state.Stage}
	for {
		if out.Final == until || until.Before(out.Final) {
			out.Reached = true
			return out, nil
		}
		if services.StopRequested(ctx) {
			logger.Info("auto-advance stopped",
				logging.String(logging.FieldEventType, "auto_advance_stopped"),
				logging.String(logging.FieldStage, out.Final.String()),
			)
			return out, fmt.Errorf("%w: %s at %s", ErrStopped, name, out.Final)
		}
		tr, err := m.advance(ctx, logger, name)
		if err != nil {
			if tr.State != nil {
				out.Final = tr.State.Stage
			}
			return out, err
		}
		out.Transitions = append(out.Transitions, tr)
		out.Final = tr.To
		if !tr.Advanced {
			return out, nil
		}
	}
}

// generationFailed blocks the feature on unrecoverable errors and reports
// everything else with the state untouched.
func (m *Machine) generationFailed(ctx context.Context, logger *slog.Logger, state *progress.FeatureState, result gate.Result, err error) (Transition, error) {
	current := state.Stage
	if !services.IsUnrecoverable(err) {
		logger.Warn("generation failed",
			logging.String(logging.FieldEventType, "generation_failed"),
			logging.String(logging.FieldStage, current.String()),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
		return Transition{}, err
	}
	m.block(state, err.Error())
	if saveErr := m.save(ctx, state); saveErr != nil {
		return Transition{}, errors.Join(err, saveErr)
	}
	logger.Warn("feature blocked",
		logging.String(logging.FieldEventType, "feature_blocked"),
		logging.String(logging.FieldStage, current.String()),
		logging.String(logging.FieldErrorHint, "reset the feature once the generator problem is fixed"),
		logging.Error(err),
	)
	return Transition{Feature: state.Name, From: current, To: stage.Blocked, Validation: result, State: state},
		fmt.Errorf("%w: %w", ErrBlocked, err)
}

// enter appends an enter or refine record and moves the feature to s. A nil
// result leaves LastValidation as it was.
func (m *Machine) enter(state *progress.FeatureState, s stage.Stage, kind progress.RecordKind, refs []string, result *gate.Result, supersedes []int) {
	state.Append(progress.StageRecord{
		Stage:        s,
		Kind:         kind,
		EnteredAt:    m.now(),
		ArtifactRefs: refs,
		Validation:   result,
		Supersedes:   supersedes,
	})
	state.Stage = s
	if result != nil {
		state.LastValidation = result
	}
}

func checkMovable(state *progress.FeatureState) error {
	switch {
	case state.Blocked():
		return fmt.Errorf("%w: %s (blocked in %s: %s)", ErrBlocked, state.Name, state.BlockedFrom, state.BlockReason)
	case state.Stage.Terminal():
		return fmt.Errorf("%w: %s", ErrTerminalStage, state.Name)
	}
	return nil
}
