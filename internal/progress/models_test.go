package progress_test

import (
	"slices"
	"testing"
	"time"

	"featureflow/internal/progress"
	"featureflow/internal/stage"
)

func TestActiveRecordsSkipSuperseded(t *testing.T) {
	now := time.Now().UTC()
	state := progress.NewFeatureState("auth", now)
	state.Append(progress.StageRecord{Stage: stage.Requirements, Kind: progress.KindEnter, ArtifactRefs: []string{"requirements:r1"}})
	state.Append(progress.StageRecord{Stage: stage.Design, Kind: progress.KindEnter, ArtifactRefs: []string{"design:d1"}})
	state.Append(progress.StageRecord{Stage: stage.Design, Kind: progress.KindRefine, ArtifactRefs: []string{"design:d2"}, Supersedes: []int{2}})
	state.Append(progress.StageRecord{Stage: stage.Planning, Kind: progress.KindEnter, ArtifactRefs: []string{"plan:p1"}})

	if got := state.ActiveArtifacts(stage.Design); !slices.Equal(got, []string{"design:d2"}) {
		t.Fatalf("design artifacts = %v", got)
	}
	if got := state.PriorArtifacts(stage.Planning); !slices.Equal(got, []string{"requirements:r1", "design:d2"}) {
		t.Fatalf("prior artifacts = %v", got)
	}

	state.Append(progress.StageRecord{Stage: stage.Requirements, Kind: progress.KindReset, Supersedes: []int{3, 4}})
	active := state.ActiveRecords()
	if len(active) != 1 || active[0].Seq != 1 {
		t.Fatalf("expected only requirements active, got %+v", active)
	}
	if len(state.History) != 5 {
		t.Fatalf("history length = %d", len(state.History))
	}
	for i, rec := range state.History {
		if rec.Seq != i+1 {
			t.Fatalf("record %d has seq %d", i, rec.Seq)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	state := progress.NewFeatureState("auth", time.Now())
	state.Append(progress.StageRecord{Stage: stage.Requirements, Kind: progress.KindEnter, ArtifactRefs: []string{"requirements:a"}})
	cp := state.Clone()
	cp.History[0].ArtifactRefs[0] = "changed"
	if state.History[0].ArtifactRefs[0] != "requirements:a" {
		t.Fatal("clone shares artifact slice")
	}
}

func TestComputeOverall(t *testing.T) {
	tests := []struct {
		name     string
		statuses []progress.FeatureStatus
		want     progress.OverallStatus
	}{
		{"empty", nil, progress.OverallFailure},
		{"all success", []progress.FeatureStatus{progress.StatusSuccess, progress.StatusSuccess}, progress.OverallSuccess},
		{"mixed", []progress.FeatureStatus{progress.StatusSuccess, progress.StatusFailure}, progress.OverallPartialFailure},
		{"success and skipped", []progress.FeatureStatus{progress.StatusSuccess, progress.StatusSkipped}, progress.OverallFailure},
		{"success failure and skipped", []progress.FeatureStatus{progress.StatusSuccess, progress.StatusFailure, progress.StatusSkipped}, progress.OverallPartialFailure},
		{"all failed", []progress.FeatureStatus{progress.StatusFailure, progress.StatusFailure}, progress.OverallFailure},
		{"all skipped", []progress.FeatureStatus{progress.StatusSkipped}, progress.OverallFailure},
		{"running", []progress.FeatureStatus{progress.StatusSuccess, progress.StatusInProgress}, progress.OverallInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := &progress.RunReport{Results: map[string]progress.FeatureResult{}}
			for i, status := range tt.statuses {
				name := string(rune('a' + i))
				report.Results[name] = progress.FeatureResult{Feature: name, Status: status}
			}
			if got := report.ComputeOverall(); got != tt.want {
				t.Fatalf("ComputeOverall() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPendingKeepsRequestOrder(t *testing.T) {
	req := progress.RunRequest{Features: []string{"c", "a", "b", "d"}}
	report := progress.NewRunReport("run", req, time.Now())
	report.Results["c"] = progress.FeatureResult{Feature: "c", Status: progress.StatusSuccess}
	report.Results["b"] = progress.FeatureResult{Feature: "b", Status: progress.StatusFailure}
	report.Results["d"] = progress.FeatureResult{Feature: "d", Status: progress.StatusSkipped}

	if got := report.Pending(false); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("Pending(false) = %v", got)
	}
	if got := report.Pending(true); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("Pending(true) = %v", got)
	}
	if report.Finished() {
		t.Fatal("expected unfinished report")
	}
}
