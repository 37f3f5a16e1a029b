package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"featureflow/internal/fileutil"
	"featureflow/internal/services"
)

// Scaffold writes a markdown skeleton for each stage under the artifacts
// directory. It is the default backend and needs no external tooling.
type Scaffold struct {
	root string
}

// NewScaffold returns a Scaffold rooted at dir.
func NewScaffold(dir string) *Scaffold {
	return &Scaffold{root: dir}
}

// Generate writes <root>/<feature>/<kind>-<n>.md, n being the first unused
// attempt number, and returns "<kind>:<feature>/<kind>-<n>.md". Earlier
// attempts are never overwritten, so refs held by superseded history keep
// pointing at their original content.
func (s *Scaffold) Generate(ctx context.Context, req Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind := req.Stage.ArtifactKind()
	if kind == "" {
		return nil, services.Wrap(services.ErrValidation, req.Stage.String(), "scaffold", "stage produces no artifacts", nil)
	}
	name := strings.TrimSpace(req.Feature)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Clean(name) != name {
		return nil, services.Wrap(services.ErrUnrecoverable, req.Stage.String(), "scaffold", fmt.Sprintf("feature name %q cannot be used as a directory", req.Feature), nil)
	}

	file, err := s.nextAttempt(name, kind)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, req.Stage.String(), "scaffold", "pick artifact name", err)
	}
	rel := name + "/" + file
	path := filepath.Join(s.root, name, file)
	if err := fileutil.WriteFileAtomic(path, []byte(scaffoldBody(req)), 0o644); err != nil {
		return nil, services.Wrap(services.ErrExecution, req.Stage.String(), "scaffold", "write artifact", err)
	}
	return []string{kind + ":" + rel}, nil
}

// nextAttempt returns the first <kind>-<n>.md not yet present. Callers hold
// the feature's lock, so no two attempts race for the same name.
func (s *Scaffold) nextAttempt(feature, kind string) (string, error) {
	for n := 1; ; n++ {
		file := kind + "-" + strconv.Itoa(n) + ".md"
		_, err := os.Stat(filepath.Join(s.root, feature, file))
		if errors.Is(err, fs.ErrNotExist) {
			return file, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func scaffoldBody(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", req.Feature, req.Stage.Label())
	if len(req.PriorArtifacts) > 0 {
		b.WriteString("## Inputs\n\n")
		for _, ref := range req.PriorArtifacts {
			fmt.Fprintf(&b, "- %s\n", ref)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Notes\n\n")
	return b.String()
}
