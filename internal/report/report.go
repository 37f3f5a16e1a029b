package report

import (
	"slices"
	"strings"
	"time"

	"featureflow/internal/gate"
	"featureflow/internal/progress"
)

// Failure is one unsuccessful feature in a run.
type Failure struct {
	Feature string
	Kind    string
	Error   string
	Issues  []gate.Issue
}

// Summary condenses a run report for display.
type Summary struct {
	RunID       string
	OperationID string
	Overall     progress.OverallStatus
	Total       int
	Counts      map[progress.FeatureStatus]int
	Failures    []Failure
	Elapsed     time.Duration
	Finished    bool
}

// Summarize aggregates r. Elapsed runs to now while the run is unfinished.
func Summarize(r *progress.RunReport, now time.Time) Summary {
	if r == nil {
		return Summary{Counts: map[progress.FeatureStatus]int{}}
	}
	s := Summary{
		RunID:       r.ID,
		OperationID: r.Request.OperationID,
		Overall:     r.ComputeOverall(),
		Total:       len(r.Results),
		Counts:      make(map[progress.FeatureStatus]int, 4),
		Finished:    !r.FinishedAt.IsZero(),
	}
	for _, res := range r.Results {
		s.Counts[res.Status]++
		if res.Status != progress.StatusFailure {
			continue
		}
		s.Failures = append(s.Failures, Failure{
			Feature: res.Feature,
			Kind:    res.ErrorKind,
			Error:   res.Error,
			Issues:  slices.Clone(res.Issues),
		})
	}
	slices.SortFunc(s.Failures, func(a, b Failure) int { return strings.Compare(a.Feature, b.Feature) })

	end := r.FinishedAt
	if end.IsZero() {
		end = now
	}
	if !r.StartedAt.IsZero() && end.After(r.StartedAt) {
		s.Elapsed = end.Sub(r.StartedAt)
	}
	return s
}

// Succeeded reports whether every feature succeeded.
func (s Summary) Succeeded() bool {
	return s.Overall == progress.OverallSuccess
}

// HasFailures reports whether any feature failed.
func (s Summary) HasFailures() bool {
	return len(s.Failures) > 0
}
