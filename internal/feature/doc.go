// Package feature implements the stage state machine.
//
// A feature moves Requirements → Design → Planning → Building → Complete one
// stage at a time. Leaving a stage requires its active artifacts to pass the
// validation gate; entering a stage asks the generator for that stage's
// artifacts. Failures of the gate are returned as values so callers can refine
// and retry. An unrecoverable generator failure blocks the feature until it is
// reset.
//
// Every change is persisted through progress.Store before the call returns.
// History is append-only: Reset and Refine append records that supersede
// earlier ones instead of editing them.
//
// Operations are also available as Op values so the orchestrator can apply
// one operation across many features and resume the run later by Op.ID.
package feature
