// Package logging assembles structured slog loggers and formatting helpers used
// across featureflow.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so state machine and orchestrator code can
// tag log lines with feature names, stages, run ids, and correlation ids. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
