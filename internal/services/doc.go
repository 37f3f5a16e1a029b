// Package services defines shared utilities consumed by the state machine,
// orchestrator, and content generators.
//
// Key responsibilities:
//   - Context helpers that stamp feature names, stage names, run ids, and
//     correlation identifiers for logging.
//   - A stop signal that lets long operations wind down at safe points after a
//     run is cancelled.
//   - Structured error markers plus the Wrap helper that classify failures
//     (execution, unrecoverable, timeout, validation) for persisted results.
package services
