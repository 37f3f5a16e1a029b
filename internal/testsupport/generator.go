package testsupport

import (
	"context"
	"errors"
	"sync"
	"time"

	"featureflow/internal/generator"
	"featureflow/internal/services"
	"featureflow/internal/stage"
)

// StubGenerator is a scripted generator.Generator. By default it returns one
// reference "<kind>:<feature>/<kind>.md" per call.
type StubGenerator struct {
	mu            sync.Mutex
	failures      map[string]error
	unrecoverable map[string]bool
	delays        map[string]time.Duration
	refs          map[stage.Stage][]string
	calls         []generator.Request
}

// NewStubGenerator returns an empty StubGenerator.
func NewStubGenerator() *StubGenerator {
	return &StubGenerator{
		failures:      map[string]error{},
		unrecoverable: map[string]bool{},
		delays:        map[string]time.Duration{},
		refs:          map[stage.Stage][]string{},
	}
}

// FailFeature makes every call for feature return err. A nil err clears it.
func (g *StubGenerator) FailFeature(feature string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, feature)
		return
	}
	g.failures[feature] = err
}

// FailUnrecoverable makes calls for feature fail with an unrecoverable error.
func (g *StubGenerator) FailUnrecoverable(feature string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unrecoverable[feature] = true
}

// Delay makes calls for feature wait d, or until the context ends.
func (g *StubGenerator) Delay(feature string, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delays[feature] = d
}

// ReturnRefs overrides the references produced for s. An empty slice makes
// the stage produce nothing.
func (g *StubGenerator) ReturnRefs(s stage.Stage, refs ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refs[s] = append([]string{}, refs...)
}

// Generate implements generator.Generator.
func (g *StubGenerator) Generate(ctx context.Context, req generator.Request) ([]string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	delay := g.delays[req.Feature]
	failure := g.failures[req.Feature]
	unrecoverable := g.unrecoverable[req.Feature]
	refs, override := g.refs[req.Stage]
	g.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if unrecoverable {
		return nil, services.Wrap(services.ErrUnrecoverable, req.Stage.String(), "generate", "stub generator refused", nil)
	}
	if failure != nil {
		return nil, services.Wrap(services.ErrExecution, req.Stage.String(), "generate", "stub generator failed", failure)
	}
	if override {
		return append([]string(nil), refs...), nil
	}
	kind := req.Stage.ArtifactKind()
	if kind == "" {
		return nil, errors.New("stub generator: stage has no artifact kind")
	}
	return []string{kind + ":" + req.Feature + "/" + kind + ".md"}, nil
}

// Calls returns a copy of every request received.
func (g *StubGenerator) Calls() []generator.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generator.Request(nil), g.calls...)
}

// CallCount returns how many requests targeted feature.
func (g *StubGenerator) CallCount(feature string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, call := range g.calls {
		if call.Feature == feature {
			n++
		}
	}
	return n
}
