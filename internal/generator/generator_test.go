package generator_test

import (
	"context"
	"errors"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"featureflow/internal/config"
	"featureflow/internal/generator"
	"featureflow/internal/services"
	"featureflow/internal/stage"
)

func TestScaffoldWritesArtifact(t *testing.T) {
	root := t.TempDir()
	gen := generator.NewScaffold(root)

	refs, err := gen.Generate(context.Background(), generator.Request{
		Feature:        "auth",
		Stage:          stage.Design,
		PriorArtifacts: []string{"requirements:auth/requirements.md"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(refs) != 1 || refs[0] != "design:auth/design-1.md" {
		t.Fatalf("unexpected refs %v", refs)
	}
	content, err := os.ReadFile(filepath.Join(root, "auth", "design-1.md"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.Contains(string(content), "requirements:auth/requirements.md") {
		t.Fatalf("expected prior artifacts listed, got %q", content)
	}
}

func TestScaffoldKeepsEarlierAttempts(t *testing.T) {
	root := t.TempDir()
	gen := generator.NewScaffold(root)
	ctx := context.Background()

	first, err := gen.Generate(ctx, generator.Request{Feature: "auth", Stage: stage.Planning})
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	before, err := os.ReadFile(filepath.Join(root, "auth", "plan-1.md"))
	if err != nil {
		t.Fatalf("read first attempt: %v", err)
	}

	second, err := gen.Generate(ctx, generator.Request{Feature: "auth", Stage: stage.Planning, PriorArtifacts: []string{"design:auth/design-1.md"}})
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if first[0] != "plan:auth/plan-1.md" || second[0] != "plan:auth/plan-2.md" {
		t.Fatalf("refs = %v then %v", first, second)
	}
	after, err := os.ReadFile(filepath.Join(root, "auth", "plan-1.md"))
	if err != nil {
		t.Fatalf("reread first attempt: %v", err)
	}
	if string(after) != string(before) {
		t.Fatalf("first attempt rewritten: %q -> %q", before, after)
	}
}

func TestScaffoldRejectsEscapingNames(t *testing.T) {
	gen := generator.NewScaffold(t.TempDir())
	for _, name := range []string{"../x", "a/b", "..", ""} {
		_, err := gen.Generate(context.Background(), generator.Request{Feature: name, Stage: stage.Requirements})
		if err == nil {
			t.Fatalf("expected error for %q", name)
		}
		if !services.IsUnrecoverable(err) {
			t.Fatalf("expected unrecoverable for %q, got %v", name, err)
		}
	}
}

func TestScaffoldRejectsUngatedStage(t *testing.T) {
	gen := generator.NewScaffold(t.TempDir())
	if _, err := gen.Generate(context.Background(), generator.Request{Feature: "auth", Stage: stage.Complete}); err == nil {
		t.Fatal("expected error for complete stage")
	}
}

type stubExecutor struct {
	lines []string
	err   error
	env   []string
	calls int
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args, env []string, onStdout func(string)) error {
	s.calls++
	s.env = append([]string(nil), env...)
	for _, line := range s.lines {
		onStdout(line)
	}
	return s.err
}

type exitError struct{ code int }

func (e exitError) Error() string { return "exit status" }
func (e exitError) ExitCode() int { return e.code }

func TestCommandCollectsRefsAndPassesEnv(t *testing.T) {
	exec := &stubExecutor{lines: []string{"plan:auth/plan.md", "", "  plan:auth/tasks.md  "}}
	gen, err := generator.NewCommand("gen", nil, generator.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommand: %v", err)
	}

	refs, err := gen.Generate(context.Background(), generator.Request{
		Feature:        "auth",
		Stage:          stage.Planning,
		PriorArtifacts: []string{"requirements:a", "design:b"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(refs) != 2 || refs[0] != "plan:auth/plan.md" || refs[1] != "plan:auth/tasks.md" {
		t.Fatalf("unexpected refs %v", refs)
	}
	want := []string{
		"FEATUREFLOW_FEATURE=auth",
		"FEATUREFLOW_STAGE=planning",
		"FEATUREFLOW_PRIOR_ARTIFACTS=requirements:a\ndesign:b",
	}
	for i, entry := range want {
		if exec.env[i] != entry {
			t.Fatalf("env[%d] = %q, want %q", i, exec.env[i], entry)
		}
	}
}

func TestCommandClassifiesExitCodes(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		unrecoverable bool
	}{
		{"tempfail", exitError{code: generator.ExitTempFail}, false},
		{"hard failure", exitError{code: 2}, true},
		{"start failure", errors.New("start command: not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := generator.NewCommand("gen", nil, generator.WithExecutor(&stubExecutor{err: tt.err}))
			if err != nil {
				t.Fatalf("NewCommand: %v", err)
			}
			_, err = gen.Generate(context.Background(), generator.Request{Feature: "auth", Stage: stage.Design})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := services.IsUnrecoverable(err); got != tt.unrecoverable {
				t.Fatalf("unrecoverable = %v, want %v (%v)", got, tt.unrecoverable, err)
			}
			if !tt.unrecoverable && !errors.Is(err, services.ErrExecution) {
				t.Fatalf("expected execution marker, got %v", err)
			}
		})
	}
}

type blockingExecutor struct{}

func (blockingExecutor) Run(ctx context.Context, _ string, _, _ []string, _ func(string)) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCommandTimeout(t *testing.T) {
	gen, err := generator.NewCommand("gen", nil,
		generator.WithExecutor(blockingExecutor{}),
		generator.WithTimeout(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewCommand: %v", err)
	}
	_, err = gen.Generate(context.Background(), generator.Request{Feature: "auth", Stage: stage.Design})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestCommandRunsRealProcess(t *testing.T) {
	sh, err := osexec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	gen, err := generator.NewCommand(sh, []string{"-c", `echo "$FEATUREFLOW_STAGE:$FEATUREFLOW_FEATURE/out.md"; [ "$FEATUREFLOW_STAGE" = building ] && exit 75; exit 0`})
	if err != nil {
		t.Fatalf("NewCommand: %v", err)
	}
	refs, err := gen.Generate(context.Background(), generator.Request{Feature: "auth", Stage: stage.Design})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(refs) != 1 || refs[0] != "design:auth/out.md" {
		t.Fatalf("unexpected refs %v", refs)
	}

	_, err = gen.Generate(context.Background(), generator.Request{Feature: "auth", Stage: stage.Building})
	if err == nil || services.IsUnrecoverable(err) {
		t.Fatalf("expected recoverable failure for exit 75, got %v", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.ArtifactsDir = t.TempDir()
	gen, err := generator.New(&cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := gen.(*generator.Scaffold); !ok {
		t.Fatalf("expected scaffold, got %T", gen)
	}

	cfg.Generator.Kind = config.GeneratorCommand
	if _, err := generator.New(&cfg, nil); err == nil {
		t.Fatal("expected error for command kind without command")
	}
	cfg.Generator.Command = "gen"
	gen, err = generator.New(&cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := gen.(*generator.Command); !ok {
		t.Fatalf("expected command, got %T", gen)
	}

	cfg.Generator.Kind = "llm"
	if _, err := generator.New(&cfg, nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
