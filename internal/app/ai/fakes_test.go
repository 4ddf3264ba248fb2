package ai

import (
	"context"
	"sync"

	"github.com/ahrav/buenobot/internal/domain/analysis"
)

type fakeEngine struct {
	name  string
	cloud bool

	mu    sync.Mutex
	calls int
	errs  []error
	out   analysis.Narrative
}

func (e *fakeEngine) Name() string { return e.name }
func (e *fakeEngine) Cloud() bool  { return e.cloud }

func (e *fakeEngine) Analyze(context.Context, analysis.EvidencePack, analysis.Mode) (analysis.Narrative, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if len(e.errs) > 0 {
		err := e.errs[0]
		if len(e.errs) > 1 {
			e.errs = e.errs[1:]
		}
		if err != nil {
			return analysis.Narrative{}, err
		}
	}
	return e.out, nil
}

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]analysis.EnrichedReport
	sets    int
}

func newMemCache() *memCache { return &memCache{entries: make(map[string]analysis.EnrichedReport)} }

func cacheKey(commit, hash, engine string) string { return commit + "|" + hash + "|" + engine }

func (c *memCache) Get(_ context.Context, commit, hash, engine string) (analysis.EnrichedReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rep, ok := c.entries[cacheKey(commit, hash, engine)]
	return rep, ok
}

func (c *memCache) Set(_ context.Context, commit, hash, engine string, rep analysis.EnrichedReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[cacheKey(commit, hash, engine)] = rep
	return nil
}
