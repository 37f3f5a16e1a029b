package stage_test

import (
	"testing"

	"featureflow/internal/stage"
)

func TestNextFollowsLinearOrder(t *testing.T) {
	ordered := stage.Ordered()
	for i := 0; i < len(ordered)-1; i++ {
		next, ok := ordered[i].Next()
		if !ok {
			t.Fatalf("expected successor for %s", ordered[i])
		}
		if next != ordered[i+1] {
			t.Fatalf("Next(%s) = %s, want %s", ordered[i], next, ordered[i+1])
		}
		if !ordered[i].Before(next) {
			t.Fatalf("expected %s before %s", ordered[i], next)
		}
	}
	if _, ok := stage.Complete.Next(); ok {
		t.Fatal("complete must not have a successor")
	}
	if _, ok := stage.Blocked.Next(); ok {
		t.Fatal("blocked must not have a successor")
	}
}

func TestBlockedHasNoOrdinal(t *testing.T) {
	if stage.Blocked.Ordinal() != -1 {
		t.Fatalf("blocked ordinal = %d", stage.Blocked.Ordinal())
	}
	if stage.Blocked.Before(stage.Complete) || stage.Requirements.Before(stage.Blocked) {
		t.Fatal("blocked must not compare with ordered stages")
	}
}

func TestParse(t *testing.T) {
	tests := map[string]stage.Stage{
		"Design":       stage.Design,
		" planning ":   stage.Planning,
		"not-started":  stage.NotStarted,
		"BLOCKED":      stage.Blocked,
		"requirements": stage.Requirements,
	}
	for input, want := range tests {
		got, ok := stage.Parse(input)
		if !ok || got != want {
			t.Fatalf("Parse(%q) = %q, %v; want %q", input, got, ok, want)
		}
	}
	if _, ok := stage.Parse("review"); ok {
		t.Fatal("expected unknown stage to fail parsing")
	}
}

func TestGatedStagesHaveArtifactKinds(t *testing.T) {
	for _, s := range stage.GatedStages() {
		if !s.Gated() {
			t.Fatalf("%s should be gated", s)
		}
		if s.ArtifactKind() == "" {
			t.Fatalf("%s missing artifact kind", s)
		}
	}
	for _, s := range []stage.Stage{stage.NotStarted, stage.Complete, stage.Blocked} {
		if s.Gated() {
			t.Fatalf("%s should not be gated", s)
		}
	}
	if stage.Planning.ArtifactKind() != "plan" {
		t.Fatalf("unexpected planning kind %q", stage.Planning.ArtifactKind())
	}
}

func TestLabel(t *testing.T) {
	if got := stage.NotStarted.Label(); got != "Not Started" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := stage.Building.Label(); got != "Building" {
		t.Fatalf("unexpected label %q", got)
	}
}
