package gate

import (
	"fmt"
	"slices"
	"strings"

	"featureflow/internal/stage"
)

// Severity indicates how serious an issue is.
type Severity string

const (
	// SeverityCritical blocks the stage from passing.
	SeverityCritical Severity = "critical"
	// SeverityAdvisory is reported but never blocks.
	SeverityAdvisory Severity = "advisory"
)

// Issue is one finding raised by a check.
type Issue struct {
	Severity Severity `json:"severity"`
	Check    string   `json:"check"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Check, i.Message)
}

// Result is the outcome of validating one stage's artifacts.
type Result struct {
	Stage  stage.Stage `json:"stage"`
	Pass   bool        `json:"pass"`
	Issues []Issue     `json:"issues,omitempty"`
}

// Messages renders the issues in order.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		out = append(out, issue.String())
	}
	return out
}

// Critical returns only the blocking issues.
func (r Result) Critical() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			out = append(out, issue)
		}
	}
	return out
}

// Summary joins the critical issue messages for error strings and tables.
func (r Result) Summary() string {
	critical := r.Critical()
	if len(critical) == 0 {
		return ""
	}
	parts := make([]string, 0, len(critical))
	for _, issue := range critical {
		parts = append(parts, issue.Message)
	}
	return strings.Join(parts, "; ")
}

// Check inspects a stage's artifact references.
type Check interface {
	// Name returns the check identifier.
	Name() string
	// Check returns the issues found, or nil when the artifacts are acceptable.
	Check(s stage.Stage, refs []string) []Issue
}

// CheckFunc adapts a function into a Check.
type CheckFunc struct {
	ID string
	Fn func(s stage.Stage, refs []string) []Issue
}

func (c CheckFunc) Name() string { return c.ID }

func (c CheckFunc) Check(s stage.Stage, refs []string) []Issue {
	if c.Fn == nil {
		return nil
	}
	return c.Fn(s, refs)
}

// Options tunes the built-in checks and registers extra per-stage checks.
type Options struct {
	RequireStageKind bool
	MaxArtifacts     int
	StageChecks      map[stage.Stage][]Check
}

// Gate validates stage artifacts. It holds no mutable state after New and is
// safe for concurrent use.
type Gate struct {
	common []Check
	stages map[stage.Stage][]Check
}

// New builds a gate from options.
func New(opts Options) *Gate {
	g := &Gate{
		common: []Check{artifactsPresent(), blankRef(), duplicateRef(), refFormat()},
		stages: make(map[stage.Stage][]Check),
	}
	if opts.MaxArtifacts > 0 {
		g.common = append(g.common, maxArtifacts(opts.MaxArtifacts))
	}
	for _, s := range stage.GatedStages() {
		var checks []Check
		if opts.RequireStageKind {
			checks = append(checks, stageKind())
		}
		checks = append(checks, opts.StageChecks[s]...)
		g.stages[s] = checks
	}
	return g
}

// Default returns a gate with the stage kind check enabled.
func Default() *Gate {
	return New(Options{RequireStageKind: true})
}

// Validate runs the common checks then the stage's own checks. The result
// passes iff no critical issue was raised.
func (g *Gate) Validate(s stage.Stage, refs []string) Result {
	result := Result{Stage: s}
	if !s.Gated() {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityCritical,
			Check:    "stage-not-gated",
			Message:  fmt.Sprintf("stage %s has no validation gate", s),
		})
		return result
	}
	refs = slices.Clone(refs)
	for _, check := range g.common {
		result.Issues = append(result.Issues, normalize(check, check.Check(s, refs))...)
	}
	for _, check := range g.stages[s] {
		result.Issues = append(result.Issues, normalize(check, check.Check(s, refs))...)
	}
	result.Pass = len(result.Critical()) == 0
	return result
}

func normalize(check Check, issues []Issue) []Issue {
	for i := range issues {
		if issues[i].Check == "" {
			issues[i].Check = check.Name()
		}
		if issues[i].Severity == "" {
			issues[i].Severity = SeverityCritical
		}
	}
	return issues
}
