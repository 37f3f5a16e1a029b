package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "generate")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	tests := []struct {
		name      string
		command   string
		available bool
		detail    string
		resolved  string
	}{
		{name: "absolute path", command: present, available: true, resolved: present},
		{name: "found on PATH", command: "generate", available: true, resolved: present},
		{name: "missing", command: "clearly-not-present-binary", detail: `binary "clearly-not-present-binary" not found`, resolved: "clearly-not-present-binary"},
		{name: "blank", command: "  ", detail: "command not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckBinaries([]Requirement{{Name: "Generator", Command: tt.command}})[0]
			if got.Available != tt.available {
				t.Fatalf("Available = %v, want %v (%s)", got.Available, tt.available, got.Detail)
			}
			if got.Detail != tt.detail {
				t.Fatalf("Detail = %q, want %q", got.Detail, tt.detail)
			}
			if got.Command != tt.resolved {
				t.Fatalf("Command = %q, want %q", got.Command, tt.resolved)
			}
		})
	}
}

func TestCheckBinariesPreservesOrder(t *testing.T) {
	reqs := []Requirement{{Name: "a"}, {Name: "b", Optional: true}, {Name: "c"}}
	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	for i, r := range results {
		if r.Name != reqs[i].Name || r.Optional != reqs[i].Optional {
			t.Fatalf("result %d = %+v, want requirement %+v", i, r, reqs[i])
		}
	}
}
