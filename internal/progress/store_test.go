package progress_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"featureflow/internal/gate"
	"featureflow/internal/progress"
	"featureflow/internal/stage"
	"featureflow/internal/testsupport"
)

func forEachBackend(t *testing.T, fn func(t *testing.T, store progress.Store)) {
	t.Helper()
	for _, backend := range testsupport.Backends() {
		t.Run(backend, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithStoreBackend(backend))
			fn(t, testsupport.MustOpenStore(t, cfg))
		})
	}
}

func newFeature(name string) *progress.FeatureState {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := progress.NewFeatureState(name, now)
	state.Stage = stage.Requirements
	result := gate.Result{Stage: stage.Requirements, Pass: true}
	state.Append(progress.StageRecord{
		Stage:        stage.Requirements,
		Kind:         progress.KindEnter,
		EnteredAt:    now,
		ArtifactRefs: []string{"requirements:" + name + "/requirements.md"},
		Validation:   &result,
	})
	return state
}

func TestFeatureStateRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store progress.Store) {
		ctx := context.Background()
		state := newFeature("auth")
		if err := store.SaveFeatureState(ctx, state); err != nil {
			t.Fatalf("save: %v", err)
		}
		if state.Revision != 1 {
			t.Fatalf("revision = %d, want 1", state.Revision)
		}

		loaded, err := store.LoadFeatureState(ctx, "auth")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if loaded.Stage != stage.Requirements || loaded.Revision != 1 || len(loaded.History) != 1 {
			t.Fatalf("unexpected state %+v", loaded)
		}
		rec := loaded.History[0]
		if rec.Seq != 1 || rec.Kind != progress.KindEnter || len(rec.ArtifactRefs) != 1 {
			t.Fatalf("unexpected record %+v", rec)
		}
		if rec.Validation == nil || !rec.Validation.Pass {
			t.Fatalf("expected validation to persist, got %+v", rec.Validation)
		}
		if !loaded.CreatedAt.Equal(state.CreatedAt) {
			t.Fatalf("created_at = %v, want %v", loaded.CreatedAt, state.CreatedAt)
		}
	})
}

func TestSaveFeatureStateRejectsStaleRevision(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store progress.Store) {
		ctx := context.Background()
		state := newFeature("auth")
		if err := store.SaveFeatureState(ctx, state); err != nil {
			t.Fatalf("save: %v", err)
		}

		first := testsupport.MustLoadFeature(t, store, "auth")
		second := testsupport.MustLoadFeature(t, store, "auth")

		first.Stage = stage.Design
		first.Append(progress.StageRecord{Stage: stage.Design, Kind: progress.KindEnter, EnteredAt: time.Now().UTC()})
		if err := store.SaveFeatureState(ctx, first); err != nil {
			t.Fatalf("first writer: %v", err)
		}

		second.BlockReason = "late writer"
		err := store.SaveFeatureState(ctx, second)
		if !errors.Is(err, progress.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}

		loaded := testsupport.MustLoadFeature(t, store, "auth")
		if loaded.Stage != stage.Design || loaded.BlockReason != "" {
			t.Fatalf("conflicting save leaked into store: %+v", loaded)
		}
	})
}

func TestSaveNewFeatureTwiceConflicts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store progress.Store) {
		ctx := context.Background()
		if err := store.SaveFeatureState(ctx, newFeature("auth")); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := store.SaveFeatureState(ctx, newFeature("auth")); !errors.Is(err, progress.ErrConflict) {
			t.Fatalf("expected conflict for duplicate create, got %v", err)
		}
	})
}

func TestHistoryIsAppendOnly(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store progress.Store) {
		ctx := context.Background()
		state := newFeature("auth")
		if err := store.SaveFeatureState(ctx, state); err != nil {
			t.Fatalf("save: %v", err)
		}

		state.Stage = stage.Design
		state.Append(progress.StageRecord{Stage: stage.Design, Kind: progress.KindEnter, EnteredAt: time.Now().UTC(), ArtifactRefs: []string{"design:auth/design.md"}})
		if err := store.SaveFeatureState(ctx, state); err != nil {
			t.Fatalf("save: %v", err)
		}
		state.Stage = stage.Requirements
		state.Append(progress.StageRecord{Stage: stage.Requirements, Kind: progress.KindReset, EnteredAt: time.Now().UTC(), Supersedes: []int{2}})
		if err := store.SaveFeatureState(ctx, state); err != nil {
			t.Fatalf("save: %v", err)
		}

		loaded := testsupport.MustLoadFeature(t, store, "auth")
		if len(loaded.History) != 3 {
			t.Fatalf("history length = %d, want 3", len(loaded.History))
		}
		if loaded.History[1].ArtifactRefs[0] != "design:auth/design.md" {
			t.Fatalf("superseded record was rewritten: %+v", loaded.History[1])
		}
		if !loaded.IsSuperseded(2) {
			t.Fatal("expected design record superseded")
		}
		if refs := loaded.ActiveArtifacts(stage.Design); len(refs) != 0 {
			t.Fatalf("expected no active design artifacts, got %v", refs)
		}
	})
}

func TestLoadUnknownFeature(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store progress.Store) {
		_, err := store.LoadFeatureState(context.Background(), "missing")
		if !errors.Is(err, progress.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestFeaturesLoadIndependently(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store progress.Store) {
		ctx := context.Background()
		for _, name := range []string{"payments", "auth", "search"} {
			if err := store.SaveFeatureState(ctx, newFeature(name)); err != nil {
				t.Fatalf("save %s: %v", name, err)
			}
		}
		states, err := store.ListFeatures(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(states) != 3 || states[0].Name != "auth" || states[2].Name != "search" {
			t.Fatalf("unexpected list order: %v", names(states))
		}
		search := testsupport.MustLoadFeature(t, store, "search")
		if refs := search.ActiveArtifacts(stage.Requirements); len(refs) != 1 || refs[0] != "requirements:search/requirements.md" {
			t.Fatalf("unexpected artifacts %v", refs)
		}
	})
}

func TestConcurrentSavesKeepOneWriter(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store progress.Store) {
		ctx := context.Background()
		if err := store.SaveFeatureState(ctx, newFeature("auth")); err != nil {
			t.Fatalf("save: %v", err)
		}

		const writers = 6
		states := make([]*progress.FeatureState, writers)
		for i := range states {
			states[i] = testsupport.MustLoadFeature(t, store, "auth")
			states[i].BlockReason = "writer"
		}

		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := range states {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = store.SaveFeatureState(ctx, states[i])
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, progress.ErrConflict):
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("succeeded = %d, want exactly 1", succeeded)
		}
		if loaded := testsupport.MustLoadFeature(t, store, "auth"); loaded.Revision != 2 {
			t.Fatalf("revision = %d, want 2", loaded.Revision)
		}
	})
}

func TestRunReportRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store progress.Store) {
		ctx := context.Background()
		started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		req := progress.RunRequest{OperationID: "advance", Features: []string{"auth", "search"}, ConcurrencyLimit: 2, FeatureTimeout: time.Minute}
		report := progress.NewRunReport("run-1", req, started)
		if err := store.SaveRunReport(ctx, report); err != nil {
			t.Fatalf("save: %v", err)
		}

		report.Results["auth"] = progress.FeatureResult{
			Feature:      "auth",
			Status:       progress.StatusSuccess,
			Stage:        stage.Design,
			ArtifactRefs: []string{"design:auth/design.md"},
			StartedAt:    started,
			FinishedAt:   started.Add(time.Second),
		}
		report.Results["search"] = progress.FeatureResult{
			Feature:   "search",
			Status:    progress.StatusFailure,
			ErrorKind: progress.ErrorKindValidation,
			Error:     "gate failed",
			Issues:    []gate.Issue{{Severity: gate.SeverityCritical, Check: "artifacts-present", Message: "no artifacts"}},
		}
		report.Overall = report.ComputeOverall()
		report.FinishedAt = started.Add(2 * time.Second)
		if err := store.SaveRunReport(ctx, report); err != nil {
			t.Fatalf("save: %v", err)
		}

		loaded, err := store.LoadRunReport(ctx, "run-1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if loaded.Overall != progress.OverallPartialFailure {
			t.Fatalf("overall = %s", loaded.Overall)
		}
		if loaded.Request.OperationID != "advance" || loaded.Request.FeatureTimeout != time.Minute || len(loaded.Request.Features) != 2 {
			t.Fatalf("unexpected request %+v", loaded.Request)
		}
		search := loaded.Results["search"]
		if search.Status != progress.StatusFailure || len(search.Issues) != 1 || search.Issues[0].Check != "artifacts-present" {
			t.Fatalf("unexpected search result %+v", search)
		}
		if auth := loaded.Results["auth"]; auth.Stage != stage.Design || !auth.FinishedAt.Equal(started.Add(time.Second)) {
			t.Fatalf("unexpected auth result %+v", auth)
		}
		if !loaded.FinishedAt.Equal(report.FinishedAt) {
			t.Fatalf("finished_at = %v", loaded.FinishedAt)
		}
	})
}

func TestListRunsNewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store progress.Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		offsets := map[string]time.Duration{"old": 0, "mid": time.Hour, "new": 2 * time.Hour}
		for _, id := range []string{"old", "new", "mid"} {
			report := progress.NewRunReport(id, progress.RunRequest{OperationID: "advance", Features: []string{"auth"}}, base.Add(offsets[id]))
			if err := store.SaveRunReport(ctx, report); err != nil {
				t.Fatalf("save %s: %v", id, err)
			}
		}
		runs, err := store.ListRuns(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(runs) != 3 || runs[0].ID != "new" || runs[1].ID != "mid" || runs[2].ID != "old" {
			t.Fatalf("unexpected order")
		}
		if _, err := store.LoadRunReport(ctx, "missing"); !errors.Is(err, progress.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func names(states []*progress.FeatureState) []string {
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, s.Name)
	}
	return out
}
