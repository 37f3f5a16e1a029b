// Command featureflow drives features through the staged workflow and runs
// operations across many features at once.
//
// Feature commands (create, advance, refine, reset, block, validate, auto,
// show, list) act on one feature. The run command applies an operation to a
// comma-separated feature list with bounded concurrency; run status, run
// resume, and run list inspect and continue earlier runs. Interrupting a run
// with Ctrl-C lets in-flight features finish and marks the rest skipped.
package main
