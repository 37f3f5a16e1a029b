// Package gate implements the validation gate a feature must pass before it
// leaves a stage.
//
// A Gate runs an ordered list of checks over a stage's artifact references.
// Each check reports issues tagged critical or advisory; the stage passes iff
// no critical issue was raised. Validation is pure: it reads only its inputs
// and each stage is checked without reference to its siblings.
package gate
