package search_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/questionbank/internal/search"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func results(ids ...string) []search.Result {
	out := make([]search.Result, len(ids))
	for i, id := range ids {
		out[i] = search.Result{Question: search.Question{ID: id}, Score: 1}
	}
	return out
}

func TestResultCache_LRU(t *testing.T) {
	cache := search.NewResultCache(2, time.Hour)

	cache.Put("a", results("1"))
	cache.Put("b", results("2"))
	_, ok := cache.Get("a") // a becomes most recent
	require.True(t, ok)

	cache.Put("c", results("3"))

	_, ok = cache.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestResultCache_TTL(t *testing.T) {
	clock := newFakeClock()
	cache := search.NewResultCache(10, time.Hour, search.WithClock(clock.Now))

	cache.Put("k", results("1"))
	clock.Advance(59 * time.Minute)
	_, ok := cache.Get("k")
	assert.True(t, ok)

	// access does not extend the lifetime
	clock.Advance(2 * time.Minute)
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, int64(1), cache.Stats().Expirations)
}

func TestResultCache_PutPrefersExpiredOverLRU(t *testing.T) {
	clock := newFakeClock()
	cache := search.NewResultCache(2, time.Minute, search.WithClock(clock.Now))

	cache.Put("old", results("1"))
	clock.Advance(30 * time.Second)
	cache.Put("fresh", results("2"))
	_, _ = cache.Get("old")
	clock.Advance(45 * time.Second) // old expired, fresh still valid

	cache.Put("new", results("3"))
	_, ok := cache.Get("fresh")
	assert.True(t, ok)
	_, ok = cache.Get("new")
	assert.True(t, ok)
	assert.Equal(t, int64(0), cache.Stats().Evictions)
}

func TestResultCache_ReturnsCopies(t *testing.T) {
	cache := search.NewResultCache(2, time.Hour)
	cache.Put("k", results("1"))

	got, _ := cache.Get("k")
	got[0].Score = 0

	again, _ := cache.Get("k")
	assert.Equal(t, 1.0, again[0].Score)
}

func TestResultCache_ReturnsDeepCopies(t *testing.T) {
	cache := search.NewResultCache(2, time.Hour)
	stored := []search.Result{{Question: search.Question{ID: "1", KnowledgePoints: []string{"linear_equation"}}, Score: 1}}
	cache.Put("k", stored)
	stored[0].Question.KnowledgePoints[0] = "changed"

	got, _ := cache.Get("k")
	got[0].Question.KnowledgePoints[0] = "changed"

	again, _ := cache.Get("k")
	assert.Equal(t, []string{"linear_equation"}, again[0].Question.KnowledgePoints)
}

func TestCachedScorer_ResultsDoNotAliasIndex(t *testing.T) {
	corpus := scenarioCorpus()
	corpus[0].KnowledgePoints = []string{"linear_equation"}
	store := search.NewIndexStore(indexConfig(), testLogger())
	snap, err := store.Rebuild(corpus)
	require.NoError(t, err)
	scorer, err := search.NewScorer(defaultSimilarity(), testLogger())
	require.NoError(t, err)
	cached := search.NewCachedScorer(scorer, search.NewResultCache(100, time.Hour), testLogger())

	first, err := cached.Score(snap, scenarioQuery(), 3, 0)
	require.NoError(t, err)
	for i := range first {
		if first[i].Question.ID == "q1" {
			first[i].Question.KnowledgePoints[0] = "overwritten"
		}
	}

	entry, ok := snap.Lookup("q1")
	require.True(t, ok)
	assert.Equal(t, []string{"linear_equation"}, entry.KnowledgePoints)
	entry.KnowledgePoints[0] = "overwritten"
	again, ok := snap.Lookup("q1")
	require.True(t, ok)
	assert.Equal(t, []string{"linear_equation"}, again.KnowledgePoints)

	second, err := cached.Score(snap, scenarioQuery(), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.Cache().Stats().Hits)
	for _, r := range second {
		if r.Question.ID == "q1" {
			assert.Equal(t, []string{"linear_equation"}, r.Question.KnowledgePoints)
		}
	}
}

func TestResultCache_Disabled(t *testing.T) {
	for _, cache := range []*search.ResultCache{
		search.NewResultCache(0, time.Hour),
		search.NewResultCache(-5, time.Hour),
		search.NewResultCache(10, 0),
		nil,
	} {
		cache.Put("k", results("1"))
		_, ok := cache.Get("k")
		assert.False(t, ok)
		assert.False(t, cache.Enabled())
		assert.Equal(t, 0, cache.Len())
	}
}

func TestCachedScorer_MatchesUncached(t *testing.T) {
	scorer, snap := buildScenario(t)
	cached := search.NewCachedScorer(scorer, search.NewResultCache(100, time.Hour), testLogger())
	disabled := search.NewCachedScorer(scorer, search.NewResultCache(0, 0), testLogger())

	queries := []search.Question{
		scenarioQuery(),
		{Stem: "name the capital of France", Type: search.TypeFillBlank, Difficulty: 1, Subject: "geography"},
		{Stem: "solve for x", Type: search.TypeChoice, Difficulty: 4, Subject: "physics"},
	}
	for _, q := range queries {
		for _, topK := range []int{1, 3} {
			for _, threshold := range []float64{0, 0.3, 0.9} {
				want, err := scorer.Score(snap, q, topK, threshold)
				require.NoError(t, err)

				for round := 0; round < 2; round++ { // miss then hit
					got, err := cached.Score(snap, q, topK, threshold)
					require.NoError(t, err)
					assert.Equal(t, want, got)

					got, err = disabled.Score(snap, q, topK, threshold)
					require.NoError(t, err)
					assert.Equal(t, want, got)
				}
			}
		}
	}
	assert.Greater(t, cached.Cache().Stats().Hits, int64(0))
}

func TestCachedScorer_RecomputesAfterTTL(t *testing.T) {
	scorer, snap := buildScenario(t)
	clock := newFakeClock()
	cache := search.NewResultCache(100, time.Hour, search.WithClock(clock.Now))
	cached := search.NewCachedScorer(scorer, cache, testLogger())

	_, err := cached.Score(snap, scenarioQuery(), 2, 0.3)
	require.NoError(t, err)
	_, err = cached.Score(snap, scenarioQuery(), 2, 0.3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cache.Stats().Hits)
	assert.Equal(t, int64(1), cache.Stats().Misses)

	clock.Advance(time.Hour + time.Second)
	_, err = cached.Score(snap, scenarioQuery(), 2, 0.3)
	require.NoError(t, err)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.Expirations)
}

func TestCachedScorer_GenerationIsolation(t *testing.T) {
	scorer, _ := buildScenario(t)
	cache := search.NewResultCache(100, time.Hour)
	cached := search.NewCachedScorer(scorer, cache, testLogger())

	store := search.NewIndexStore(indexConfig(), testLogger())
	first, err := store.Rebuild(scenarioCorpus())
	require.NoError(t, err)
	second, err := store.Rebuild(scenarioCorpus()[:1])
	require.NoError(t, err)

	a, err := cached.Score(first, scenarioQuery(), 3, 0)
	require.NoError(t, err)
	b, err := cached.Score(second, scenarioQuery(), 3, 0)
	require.NoError(t, err)

	assert.Len(t, a, 3)
	assert.Len(t, b, 1)
}

func TestCachedScorer_InvalidTopK(t *testing.T) {
	scorer, snap := buildScenario(t)
	cached := search.NewCachedScorer(scorer, search.NewResultCache(10, time.Hour), testLogger())

	_, err := cached.Score(snap, scenarioQuery(), 0, 0)
	assert.ErrorIs(t, err, search.ErrInvalidArgument)
}
