// Package stage defines the ordered workflow stages a feature moves through
// and the helpers that compare, label, and classify them.
package stage
