package logging

import (
	"context"
	"log/slog"

	"featureflow/internal/services"
)

// Standard structured logging keys.
const (
	FieldComponent     = "component"
	FieldFeature       = "feature"
	FieldStage         = "stage"
	FieldRunID         = "run_id"
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a line for filtering (stage_transition, run_finished, ...).
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator-facing next step for a failure.
	FieldErrorHint = "error_hint"
	FieldErrorKind = "error_kind"
)

var contextFields = []struct {
	key string
	get func(context.Context) (string, bool)
}{
	{FieldFeature, services.FeatureFromContext},
	{FieldStage, services.StageFromContext},
	{FieldRunID, services.RunIDFromContext},
	{FieldCorrelationID, services.RequestIDFromContext},
}

// ContextFields returns the feature, stage, run id, and correlation id
// annotations carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var out []slog.Attr
	for _, f := range contextFields {
		if v, ok := f.get(ctx); ok {
			out = append(out, slog.String(f.key, v))
		}
	}
	return out
}

// WithContext returns logger extended with ContextFields(ctx).
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return logger.With(args...)
}
