package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"featureflow/internal/fileutil"
)

const lockRetryDelay = 10 * time.Millisecond

// FileStore persists each feature and run as its own JSON document. Saves are
// written to a temp file and renamed into place; a lock file per record key
// serializes writers across processes and a mutex per key within one.
type FileStore struct {
	root  string
	locks sync.Map
}

// OpenFileStore prepares the directory layout under root.
func OpenFileStore(root string) (*FileStore, error) {
	for _, dir := range []string{filepath.Join(root, "features"), filepath.Join(root, "runs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %q: %w", dir, err)
		}
	}
	return &FileStore{root: root}, nil
}

// Close is a no-op; every operation opens and closes its own files.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) featurePath(name string) string {
	return filepath.Join(s.root, "features", url.PathEscape(name)+".json")
}

func (s *FileStore) runPath(id string) string {
	return filepath.Join(s.root, "runs", url.PathEscape(id)+".json")
}

// lock takes the in-process and on-disk locks for path and returns the release func.
func (s *FileStore) lock(ctx context.Context, path string) (func(), error) {
	muAny, _ := s.locks.LoadOrStore(path, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		mu.Unlock()
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, fmt.Errorf("lock %s: %w", filepath.Base(path), err)
	}
	return func() {
		_ = fl.Unlock()
		mu.Unlock()
	}, nil
}

// SaveFeatureState writes state after checking its revision against the stored copy.
func (s *FileStore) SaveFeatureState(ctx context.Context, state *FeatureState) error {
	if state == nil || strings.TrimSpace(state.Name) == "" {
		return errors.New("save feature state: name is required")
	}
	ctx = ensureContext(ctx)
	path := s.featurePath(state.Name)
	release, err := s.lock(ctx, path)
	if err != nil {
		return err
	}
	defer release()

	var stored FeatureState
	switch err := readJSON(path, &stored); {
	case errors.Is(err, ErrNotFound):
		if state.Revision != 0 {
			return fmt.Errorf("%w: feature %q is no longer stored", ErrConflict, state.Name)
		}
	case err != nil:
		return err
	default:
		if stored.Revision != state.Revision {
			return fmt.Errorf("%w: feature %q is at revision %d, save was based on %d", ErrConflict, state.Name, stored.Revision, state.Revision)
		}
		if len(state.History) < len(stored.History) {
			return fmt.Errorf("%w: feature %q history is behind the stored history", ErrConflict, state.Name)
		}
	}

	next := state.Clone()
	next.Revision = state.Revision + 1
	if err := writeJSON(path, next); err != nil {
		return err
	}
	state.Revision = next.Revision
	return nil
}

// LoadFeatureState reads one feature document.
func (s *FileStore) LoadFeatureState(_ context.Context, name string) (*FeatureState, error) {
	var state FeatureState
	if err := readJSON(s.featurePath(name), &state); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("feature %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return &state, nil
}

// ListFeatures reads every feature document, ordered by name.
func (s *FileStore) ListFeatures(_ context.Context) ([]*FeatureState, error) {
	var states []*FeatureState
	err := s.readDir(filepath.Join(s.root, "features"), func(path string) error {
		var state FeatureState
		if err := readJSON(path, &state); err != nil {
			return err
		}
		states = append(states, &state)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(states, func(a, b *FeatureState) int { return strings.Compare(a.Name, b.Name) })
	return states, nil
}

// SaveRunReport replaces the run document.
func (s *FileStore) SaveRunReport(ctx context.Context, report *RunReport) error {
	if report == nil || strings.TrimSpace(report.ID) == "" {
		return errors.New("save run report: id is required")
	}
	path := s.runPath(report.ID)
	release, err := s.lock(ensureContext(ctx), path)
	if err != nil {
		return err
	}
	defer release()
	return writeJSON(path, report)
}

// LoadRunReport reads one run document.
func (s *FileStore) LoadRunReport(_ context.Context, id string) (*RunReport, error) {
	var report RunReport
	if err := readJSON(s.runPath(id), &report); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if report.Results == nil {
		report.Results = map[string]FeatureResult{}
	}
	return &report, nil
}

// ListRuns reads every run document, newest first.
func (s *FileStore) ListRuns(_ context.Context) ([]*RunReport, error) {
	var reports []*RunReport
	err := s.readDir(filepath.Join(s.root, "runs"), func(path string) error {
		var report RunReport
		if err := readJSON(path, &report); err != nil {
			return err
		}
		reports = append(reports, &report)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(reports, func(a, b *RunReport) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return reports, nil
}

func (s *FileStore) readDir(dir string, fn func(path string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		if err := fn(filepath.Join(dir, name)); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

func readJSON(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
