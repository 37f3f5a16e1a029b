// Package orchestrator runs one operation across many features in parallel.
//
// A run dispatches its features to a bounded pool of workers. Each feature's
// outcome is written into the run report as soon as it finishes and the
// report is persisted after every change, so a crashed run can be resumed:
// Resume re-executes only the entries that never finished (and failures, when
// asked). A failing or timed-out feature never affects its siblings.
//
// Cancellation is cooperative. Features that have not started are marked
// skipped; features already running keep going on a context detached from
// the caller's, and can poll services.StopRequested to stop between steps.
package orchestrator
