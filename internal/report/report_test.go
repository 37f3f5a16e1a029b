package report_test

import (
	"testing"
	"time"

	"featureflow/internal/gate"
	"featureflow/internal/progress"
	"featureflow/internal/report"
)

func TestSummarizeFinishedRun(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := progress.NewRunReport("run-1", progress.RunRequest{OperationID: "advance", Features: []string{"c", "a", "b", "d"}}, started)
	r.Results["a"] = progress.FeatureResult{Feature: "a", Status: progress.StatusSuccess}
	r.Results["b"] = progress.FeatureResult{Feature: "b", Status: progress.StatusFailure, ErrorKind: progress.ErrorKindValidation, Error: "gate failed",
		Issues: []gate.Issue{{Severity: gate.SeverityCritical, Check: "artifacts-present", Message: "no artifacts"}}}
	r.Results["c"] = progress.FeatureResult{Feature: "c", Status: progress.StatusFailure, ErrorKind: progress.ErrorKindTimeout, Error: "timed out"}
	r.Results["d"] = progress.FeatureResult{Feature: "d", Status: progress.StatusSkipped}
	r.FinishedAt = started.Add(90 * time.Second)

	s := report.Summarize(r, started.Add(time.Hour))
	if s.Overall != progress.OverallPartialFailure || s.Succeeded() || !s.HasFailures() {
		t.Fatalf("unexpected overall %+v", s)
	}
	if s.Total != 4 || s.Counts[progress.StatusSuccess] != 1 || s.Counts[progress.StatusFailure] != 2 || s.Counts[progress.StatusSkipped] != 1 {
		t.Fatalf("unexpected counts %+v", s.Counts)
	}
	if len(s.Failures) != 2 || s.Failures[0].Feature != "b" || s.Failures[1].Feature != "c" {
		t.Fatalf("failures not sorted: %+v", s.Failures)
	}
	if s.Failures[0].Kind != progress.ErrorKindValidation || len(s.Failures[0].Issues) != 1 {
		t.Fatalf("unexpected failure %+v", s.Failures[0])
	}
	if s.Elapsed != 90*time.Second || !s.Finished {
		t.Fatalf("elapsed = %s finished = %v", s.Elapsed, s.Finished)
	}
}

func TestSummarizeRunningRunUsesNow(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := progress.NewRunReport("run-2", progress.RunRequest{Features: []string{"a", "b"}}, started)
	r.Results["a"] = progress.FeatureResult{Feature: "a", Status: progress.StatusSuccess}

	s := report.Summarize(r, started.Add(5*time.Second))
	if s.Overall != progress.OverallInProgress || s.Finished {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.Elapsed != 5*time.Second {
		t.Fatalf("elapsed = %s", s.Elapsed)
	}
}

func TestSummarizeAllSucceeded(t *testing.T) {
	r := progress.NewRunReport("run-3", progress.RunRequest{Features: []string{"a"}}, time.Now())
	r.Results["a"] = progress.FeatureResult{Feature: "a", Status: progress.StatusSuccess}
	s := report.Summarize(r, time.Now())
	if !s.Succeeded() || s.HasFailures() {
		t.Fatalf("unexpected summary %+v", s)
	}
	if empty := report.Summarize(nil, time.Now()); empty.Total != 0 || empty.Counts == nil {
		t.Fatalf("unexpected nil summary %+v", empty)
	}
}
