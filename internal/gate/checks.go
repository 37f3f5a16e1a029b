package gate

import (
	"fmt"
	"strings"

	"featureflow/internal/stage"
)

// RefKind returns the kind prefix of a "kind:locator" artifact reference.
func RefKind(ref string) (string, bool) {
	kind, locator, ok := strings.Cut(strings.TrimSpace(ref), ":")
	if !ok || kind == "" || locator == "" {
		return "", false
	}
	return kind, true
}

func artifactsPresent() Check {
	return CheckFunc{ID: "artifacts-present", Fn: func(s stage.Stage, refs []string) []Issue {
		if len(refs) > 0 {
			return nil
		}
		return []Issue{{
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("%s produced no artifacts", s.Label()),
		}}
	}}
}

func blankRef() Check {
	return CheckFunc{ID: "blank-ref", Fn: func(_ stage.Stage, refs []string) []Issue {
		var issues []Issue
		for i, ref := range refs {
			if strings.TrimSpace(ref) == "" {
				issues = append(issues, Issue{
					Severity: SeverityCritical,
					Message:  fmt.Sprintf("artifact reference %d is blank", i+1),
				})
			}
		}
		return issues
	}}
}

func duplicateRef() Check {
	return CheckFunc{ID: "duplicate-ref", Fn: func(_ stage.Stage, refs []string) []Issue {
		seen := make(map[string]struct{}, len(refs))
		var issues []Issue
		for _, ref := range refs {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				continue
			}
			if _, ok := seen[ref]; ok {
				issues = append(issues, Issue{
					Severity: SeverityAdvisory,
					Message:  fmt.Sprintf("artifact %q listed more than once", ref),
				})
				continue
			}
			seen[ref] = struct{}{}
		}
		return issues
	}}
}

func refFormat() Check {
	return CheckFunc{ID: "ref-format", Fn: func(_ stage.Stage, refs []string) []Issue {
		var issues []Issue
		for _, ref := range refs {
			if strings.TrimSpace(ref) == "" {
				continue
			}
			if _, ok := RefKind(ref); !ok {
				issues = append(issues, Issue{
					Severity: SeverityAdvisory,
					Message:  fmt.Sprintf("artifact %q has no kind prefix", ref),
				})
			}
		}
		return issues
	}}
}

func maxArtifacts(limit int) Check {
	return CheckFunc{ID: "max-artifacts", Fn: func(s stage.Stage, refs []string) []Issue {
		if len(refs) <= limit {
			return nil
		}
		return []Issue{{
			Severity: SeverityAdvisory,
			Message:  fmt.Sprintf("%s produced %d artifacts (limit %d)", s.Label(), len(refs), limit),
		}}
	}}
}

func stageKind() Check {
	return CheckFunc{ID: "stage-kind", Fn: func(s stage.Stage, refs []string) []Issue {
		want := s.ArtifactKind()
		for _, ref := range refs {
			if kind, ok := RefKind(ref); ok && kind == want {
				return nil
			}
		}
		return []Issue{{
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("%s requires a %q artifact", s.Label(), want),
		}}
	}}
}
