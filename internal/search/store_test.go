package search_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/questionbank/internal/config"
	"github.com/knowledge-engine/questionbank/internal/search"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger.WithField("test", "search")
}

func indexConfig() config.IndexConfig {
	return config.IndexConfig{MaxVocabulary: 5000, Dimensions: 32, FitSample: 2000}
}

func scenarioCorpus() []search.Question {
	return []search.Question{
		{ID: "q1", Stem: "solve 2x+3=7 for x", Type: search.TypeCalculation, Difficulty: 2, Subject: "math"},
		{ID: "q2", Stem: "solve 3x-1=8 for x", Type: search.TypeCalculation, Difficulty: 2, Subject: "math"},
		{ID: "q3", Stem: "name the capital of France", Type: search.TypeFillBlank, Difficulty: 1, Subject: "geography"},
	}
}

func TestIndexStore_Rebuild(t *testing.T) {
	store := search.NewIndexStore(indexConfig(), testLogger())
	assert.Nil(t, store.Snapshot())

	snap, err := store.Rebuild(scenarioCorpus())
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Len())
	assert.NotEmpty(t, snap.Generation)
	for _, entry := range snap.Entries {
		assert.Len(t, entry.Vector, snap.Dim())
	}
	assert.Equal(t, 32, snap.Dim())
	assert.Same(t, snap, store.Snapshot())

	q, ok := snap.Lookup("q3")
	assert.True(t, ok)
	assert.Equal(t, search.Subject("geography"), q.Subject)
}

func TestIndexStore_RebuildEmpty(t *testing.T) {
	store := search.NewIndexStore(indexConfig(), testLogger())
	first, err := store.Rebuild(scenarioCorpus())
	require.NoError(t, err)

	_, err = store.Rebuild(nil)
	assert.ErrorIs(t, err, search.ErrCorpusEmpty)

	_, err = store.Rebuild([]search.Question{{ID: "", Stem: "orphan"}, {ID: "x", Stem: "  "}})
	assert.ErrorIs(t, err, search.ErrCorpusEmpty)

	// failed builds leave the previous generation in place
	assert.Same(t, first, store.Snapshot())
}

func TestIndexStore_NormalizesAndDeduplicates(t *testing.T) {
	store := search.NewIndexStore(indexConfig(), testLogger())
	snap, err := store.Rebuild([]search.Question{
		{ID: "a", Stem: "first version", Type: "CALC", Difficulty: 9, Subject: " Math "},
		{ID: "b", Stem: "other question", Type: "choice", Difficulty: 0, Subject: "math"},
		{ID: "a", Stem: "second version", Type: "calculation", Difficulty: -1, Subject: "math"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, 1, snap.Skipped)

	a, _ := snap.Lookup("a")
	assert.Equal(t, "second version", a.Stem)
	assert.Equal(t, search.TypeCalculation, a.Type)
	assert.Equal(t, search.MinDifficulty, a.Difficulty)

	b, _ := snap.Lookup("b")
	assert.Equal(t, 3, b.Difficulty)
	assert.Equal(t, search.Subject("math"), b.Subject)
}

func TestIndexStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	store := search.NewIndexStore(indexConfig(), testLogger())
	_, err := store.Rebuild(scenarioCorpus())
	require.NoError(t, err)

	bigger := scenarioCorpus()
	for i := 0; i < 20; i++ {
		bigger = append(bigger, search.Question{ID: fmt.Sprintf("extra-%02d", i), Stem: fmt.Sprintf("compute %d plus %d", i, i+1)})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			_, _ = store.Rebuild(bigger)
		}
	}()

	for i := 0; i < 200; i++ {
		snap := store.Snapshot()
		n := snap.Len()
		assert.True(t, n == 3 || n == 23, "unexpected snapshot size %d", n)
		for _, entry := range snap.Entries {
			assert.Len(t, entry.Vector, snap.Dim())
		}
	}
	wg.Wait()
}
