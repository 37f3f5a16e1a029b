// Package generator produces stage artifacts for features.
//
// The state machine treats generation as an opaque collaborator: given a
// feature, the stage being entered, and the artifacts of earlier stages, a
// Generator returns artifact references. Scaffold writes markdown skeletons
// to the artifacts directory; Command hands the request to an external
// program. Failures are tagged with services markers so callers can tell a
// retryable failure from one that should block the feature.
package generator
