package stage

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage is one position in a feature's workflow.
type Stage string

const (
	NotStarted   Stage = "not_started"
	Requirements Stage = "requirements"
	Design       Stage = "design"
	Planning     Stage = "planning"
	Building     Stage = "building"
	Complete     Stage = "complete"
	Blocked      Stage = "blocked"
)

var ordered = []Stage{
	NotStarted,
	Requirements,
	Design,
	Planning,
	Building,
	Complete,
}

var ordinals = func() map[Stage]int {
	m := make(map[Stage]int, len(ordered))
	for i, s := range ordered {
		m[s] = i
	}
	return m
}()

var artifactKinds = map[Stage]string{
	Requirements: "requirements",
	Design:       "design",
	Planning:     "plan",
	Building:     "build",
}

// Ordered returns the linear workflow order, NotStarted through Complete.
func Ordered() []Stage {
	cp := make([]Stage, len(ordered))
	copy(cp, ordered)
	return cp
}

// GatedStages returns the stages whose artifacts must pass validation before the
// feature may leave them.
func GatedStages() []Stage {
	return []Stage{Requirements, Design, Planning, Building}
}

// Parse converts a string into a known Stage.
func Parse(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	normalized = Stage(strings.ReplaceAll(string(normalized), "-", "_"))
	if normalized == Blocked {
		return Blocked, true
	}
	_, ok := ordinals[normalized]
	if !ok {
		return "", false
	}
	return normalized, true
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := ordinals[s]
	return ok || s == Blocked
}

// Ordinal returns the position of s in the linear order, or -1 for Blocked
// and unknown values.
func (s Stage) Ordinal() int {
	if i, ok := ordinals[s]; ok {
		return i
	}
	return -1
}

// Next returns the stage that follows s. Complete, Blocked, and unknown
// stages have no successor.
func (s Stage) Next() (Stage, bool) {
	i := s.Ordinal()
	if i < 0 || i >= len(ordered)-1 {
		return "", false
	}
	return ordered[i+1], true
}

// Before reports whether s comes strictly earlier than other in the linear order.
func (s Stage) Before(other Stage) bool {
	a, b := s.Ordinal(), other.Ordinal()
	return a >= 0 && b >= 0 && a < b
}

// Gated reports whether s requires a validation pass before advancing.
func (s Stage) Gated() bool {
	_, ok := artifactKinds[s]
	return ok
}

// Terminal reports whether no further advance is possible from s.
func (s Stage) Terminal() bool {
	return s == Complete
}

// ArtifactKind returns the artifact reference kind produced at s.
func (s Stage) ArtifactKind() string {
	return artifactKinds[s]
}

// Label returns a human-friendly stage name.
func (s Stage) Label() string {
	if s == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(s), "_", " "))
}

func (s Stage) String() string {
	return string(s)
}
