package feature

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"featureflow/internal/gate"
	"featureflow/internal/orchestrator"
	"featureflow/internal/progress"
	"featureflow/internal/services"
	"featureflow/internal/stage"
)

// Op is one state-machine operation that can be applied to any feature. The
// set of implementations is closed; Apply switches over all of them.
type Op interface {
	// ID is the stable identifier stored with a run so it can be resumed.
	ID() string
	isOp()
}

type (
	CreateOp       struct{}
	AdvanceOp      struct{}
	ResetOp        struct{ Target stage.Stage }
	ValidateOnlyOp struct{}
	RefineOp       struct{}
	AutoAdvanceOp  struct{ Until stage.Stage }
)

func (CreateOp) ID() string       { return "create" }
func (AdvanceOp) ID() string      { return "advance" }
func (o ResetOp) ID() string      { return "reset:" + o.Target.String() }
func (ValidateOnlyOp) ID() string { return "validate" }
func (RefineOp) ID() string       { return "refine" }

func (o AutoAdvanceOp) ID() string {
	if o.Until == "" || o.Until == stage.Complete {
		return "auto"
	}
	return "auto:" + o.Until.String()
}

func (CreateOp) isOp()       {}
func (AdvanceOp) isOp()      {}
func (ResetOp) isOp()        {}
func (ValidateOnlyOp) isOp() {}
func (RefineOp) isOp()       {}
func (AutoAdvanceOp) isOp()  {}

// ParseOp is the inverse of Op.ID.
func ParseOp(id string) (Op, error) {
	name, arg, hasArg := strings.Cut(strings.ToLower(strings.TrimSpace(id)), ":")
	parseStage := func() (stage.Stage, error) {
		s, ok := stage.Parse(arg)
		if !ok {
			return "", fmt.Errorf("%w: %q in operation %q", ErrInvalidStage, arg, id)
		}
		return s, nil
	}
	switch name {
	case "create":
		return CreateOp{}, nil
	case "advance":
		return AdvanceOp{}, nil
	case "validate":
		return ValidateOnlyOp{}, nil
	case "refine":
		return RefineOp{}, nil
	case "reset":
		if !hasArg {
			return nil, fmt.Errorf("%w: reset needs a target stage (reset:<stage>)", ErrUnknownOp)
		}
		s, err := parseStage()
		if err != nil {
			return nil, err
		}
		if !s.Gated() {
			return nil, fmt.Errorf("%w: %q is not a resettable stage", ErrInvalidReset, s)
		}
		return ResetOp{Target: s}, nil
	case "auto":
		if !hasArg {
			return AutoAdvanceOp{Until: stage.Complete}, nil
		}
		s, err := parseStage()
		if err != nil {
			return nil, err
		}
		return AutoAdvanceOp{Until: s}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOp, id)
}

// Result is the outcome of applying an Op to one feature.
type Result struct {
	State        *progress.FeatureState
	Stage        stage.Stage
	ArtifactRefs []string
	// Validation is set when the op ran the gate. A failing validation is
	// reported here, not as an error.
	Validation *gate.Result
}

// Passed reports whether the op's gate check, if any, passed.
func (r Result) Passed() bool {
	return r.Validation == nil || r.Validation.Pass
}

// Apply dispatches op for the named feature.
func (m *Machine) Apply(ctx context.Context, name string, op Op) (Result, error) {
	switch op := op.(type) {
	case CreateOp:
		state, err := m.Create(ctx, name)
		if err != nil {
			return Result{}, err
		}
		// The requirements gate is informational at creation.
		res := resultFromState(state)
		res.Validation = nil
		return res, nil
	case AdvanceOp:
		tr, err := m.Advance(ctx, name)
		return resultFromTransition(tr), err
	case ResetOp:
		state, err := m.Reset(ctx, name, op.Target)
		if err != nil {
			return Result{}, err
		}
		res := resultFromState(state)
		res.Validation = nil
		return res, nil
	case ValidateOnlyOp:
		validation, err := m.Validate(ctx, name)
		if err != nil {
			return Result{}, err
		}
		return Result{Stage: validation.Stage, Validation: &validation}, nil
	case RefineOp:
		tr, err := m.Refine(ctx, name)
		return resultFromTransition(tr), err
	case AutoAdvanceOp:
		auto, err := m.AutoAdvance(ctx, name, op.Until)
		res := Result{Stage: auto.Final}
		if last, ok := auto.Last(); ok {
			res = resultFromTransition(last)
			res.Stage = auto.Final
		}
		return res, err
	case nil:
		return Result{}, fmt.Errorf("%w: nil", ErrUnknownOp)
	default:
		return Result{}, fmt.Errorf("%w: %T", ErrUnknownOp, op)
	}
}

// Operation adapts op for the orchestrator. Gate failures become validation
// failures and workflow-position errors are reported with the state kind.
func (m *Machine) Operation(op Op) orchestrator.Operation {
	return func(ctx context.Context, name string) orchestrator.Outcome {
		res, err := m.Apply(ctx, name, op)
		out := orchestrator.Outcome{Stage: res.Stage, ArtifactRefs: res.ArtifactRefs}
		if res.Validation != nil {
			out.Issues = res.Validation.Issues
		}
		switch {
		case err != nil:
			out.Err = err
			switch {
			case errors.Is(err, ErrStopped):
				out.ErrorKind = progress.ErrorKindCancelled
			case stateError(err):
				out.ErrorKind = progress.ErrorKindState
			}
		case !res.Passed():
			out.Err = services.Wrap(services.ErrValidation, res.Validation.Stage.String(), op.ID(), res.Validation.Summary(), nil)
			out.ErrorKind = progress.ErrorKindValidation
		}
		return out
	}
}

func resultFromState(state *progress.FeatureState) Result {
	if state == nil {
		return Result{}
	}
	res := Result{State: state, Stage: state.Stage, ArtifactRefs: state.ActiveArtifacts(state.Stage)}
	if state.LastValidation != nil {
		v := *state.LastValidation
		res.Validation = &v
	}
	return res
}

func resultFromTransition(tr Transition) Result {
	res := Result{State: tr.State, Stage: tr.To, ArtifactRefs: tr.ArtifactRefs}
	if tr.State != nil {
		v := tr.Validation
		res.Validation = &v
	}
	return res
}
