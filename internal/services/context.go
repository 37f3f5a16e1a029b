package services

import "context"

type contextKey int

const (
	featureKey contextKey = iota
	stageKey
	runIDKey
	requestIDKey
	stopKey
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithFeature annotates context with the feature name.
func WithFeature(ctx context.Context, name string) context.Context {
	return withString(ctx, featureKey, name)
}

// FeatureFromContext returns the feature name if present.
func FeatureFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, featureKey) }

// WithStage annotates context with the workflow stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, stageKey) }

// WithRunID tags ctx with the orchestrator run it belongs to.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

func RunIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, runIDKey) }

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, requestIDKey) }

// WithStopSignal attaches a channel that is closed when the caller asks
// in-flight work to wind down. Work observing it should stop only at safe
// points, between steps, never in the middle of one.
func WithStopSignal(ctx context.Context, stop <-chan struct{}) context.Context {
	if stop == nil {
		return ctx
	}
	return context.WithValue(ctx, stopKey, stop)
}

// StopRequested reports whether the stop signal attached to ctx has fired,
// or ctx itself is done.
func StopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	stop, ok := ctx.Value(stopKey).(<-chan struct{})
	if !ok {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
