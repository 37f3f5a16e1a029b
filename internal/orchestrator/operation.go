package orchestrator

import (
	"context"
	"errors"

	"featureflow/internal/gate"
	"featureflow/internal/progress"
	"featureflow/internal/services"
	"featureflow/internal/stage"
)

var (
	// ErrInvalidRequest rejects a run before anything is persisted.
	ErrInvalidRequest = errors.New("invalid run request")
	// ErrTimeout marks a feature whose operation exceeded its budget.
	ErrTimeout = errors.New("feature operation timed out")
)

// Outcome is what an Operation reports for one feature. A nil Err is a success.
type Outcome struct {
	Stage        stage.Stage
	ArtifactRefs []string
	Issues       []gate.Issue
	Err          error
	// ErrorKind overrides the kind derived from Err.
	ErrorKind string
}

// Operation applies one unit of work to a single feature. Implementations
// should check services.StopRequested between steps.
type Operation func(ctx context.Context, feature string) Outcome

// result converts an outcome into the stored form.
func (o Outcome) result(feature string) progress.FeatureResult {
	res := progress.FeatureResult{
		Feature:      feature,
		Status:       progress.StatusSuccess,
		Stage:        o.Stage,
		ArtifactRefs: append([]string(nil), o.ArtifactRefs...),
		Issues:       append([]gate.Issue(nil), o.Issues...),
	}
	if o.Err != nil {
		res.Status = progress.StatusFailure
		res.Error = o.Err.Error()
		res.ErrorKind = errorKind(o)
	}
	return res
}

func errorKind(o Outcome) string {
	if o.ErrorKind != "" {
		return o.ErrorKind
	}
	switch {
	case errors.Is(o.Err, ErrTimeout), errors.Is(o.Err, services.ErrTimeout), errors.Is(o.Err, context.DeadlineExceeded):
		return progress.ErrorKindTimeout
	case errors.Is(o.Err, services.ErrValidation):
		return progress.ErrorKindValidation
	case errors.Is(o.Err, context.Canceled):
		return progress.ErrorKindCancelled
	default:
		return progress.ErrorKindExecution
	}
}
