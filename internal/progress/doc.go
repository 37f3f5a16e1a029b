// Package progress owns the durable record of feature states and run reports.
//
// FeatureState carries a feature's current stage and its append-only history.
// Resets and refinements never edit old StageRecords; they append a record
// whose Supersedes list names the records it invalidates, and the active view
// is derived from that. RunReport tracks one fan-out run and derives its
// overall status from the per-feature results.
//
// Two Store backends are provided. SQLiteStore keeps everything in one
// database and saves each record in a single transaction. FileStore writes one
// JSON document per record with temp-file-and-rename, guarded by a lock file
// per record. Both reject feature saves whose Revision is stale with
// ErrConflict so a single writer owns each history.
package progress
