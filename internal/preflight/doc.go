// Package preflight provides readiness checks for the filesystem paths and
// external tooling featureflow depends on.
//
// These checks run in two contexts:
//   - The run command calls RunAll before dispatching any feature. If a check
//     fails the run is refused rather than recording a failure per feature.
//   - The "featureflow doctor" command prints every check, including the
//     progress store probe.
package preflight
