package feature

import "errors"

var (
	ErrInvalidName      = errors.New("invalid feature name")
	ErrDuplicateFeature = errors.New("feature already exists")
	ErrNotFound         = errors.New("feature not found")
	ErrBlocked          = errors.New("feature is blocked")
	ErrTerminalStage    = errors.New("feature is complete")
	ErrInvalidReset     = errors.New("invalid reset target")
	ErrInvalidStage     = errors.New("invalid stage")
	ErrFeatureBusy      = errors.New("feature is busy")
	ErrUnknownOp        = errors.New("unknown operation")

	// ErrStopped reports that auto-advance stopped at a safe point because the
	// caller asked it to.
	ErrStopped = errors.New("stopped before completion")
)

// stateError reports whether err came from the feature's workflow position
// rather than from running a stage.
func stateError(err error) bool {
	for _, target := range []error{ErrInvalidName, ErrDuplicateFeature, ErrNotFound, ErrBlocked, ErrTerminalStage, ErrInvalidReset, ErrInvalidStage, ErrFeatureBusy, ErrUnknownOp} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
