package search

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/questionbank/internal/config"
)

// Snapshot is one immutable generation of the index. Vectors from different
// generations must never be compared.
type Snapshot struct {
	Generation string
	Entries    []IndexEntry
	BuiltAt    time.Time
	Elapsed    time.Duration
	Skipped    int

	vectorizer Vectorizer
	byID       map[string]int
}

// Len returns the number of indexed entries; nil snapshots are empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// Dim returns the vector dimensionality of the snapshot.
func (s *Snapshot) Dim() int {
	if s == nil || s.vectorizer == nil {
		return 0
	}
	return s.vectorizer.Dim()
}

// Vector projects ad-hoc text with this generation's fitted transform.
func (s *Snapshot) Vector(text string) []float64 {
	if s == nil || s.vectorizer == nil {
		return nil
	}
	return s.vectorizer.Transform(text)
}

// Lookup returns the indexed question with the given id.
func (s *Snapshot) Lookup(id string) (Question, bool) {
	if s == nil {
		return Question{}, false
	}
	idx, ok := s.byID[id]
	if !ok {
		return Question{}, false
	}
	return s.Entries[idx].Question.Clone(), true
}

// IndexStore holds the current snapshot. Rebuilds construct a complete new
// snapshot before publishing it, so readers see the old or the new index and
// never a partial one.
type IndexStore struct {
	config  config.IndexConfig
	logger  *logrus.Entry
	current atomic.Pointer[Snapshot]

	// serializes rebuilds; readers never take it
	buildMu sync.Mutex

	newVectorizer func() Vectorizer
}

// NewIndexStore creates an empty, unbuilt store.
func NewIndexStore(cfg config.IndexConfig, logger *logrus.Entry) *IndexStore {
	if logger == nil {
		logger = logrus.WithField("component", "index_store")
	}
	s := &IndexStore{
		config: cfg,
		logger: logger,
	}
	s.newVectorizer = func() Vectorizer {
		return NewTFIDFVectorizer(cfg.MaxVocabulary, cfg.Dimensions, cfg.FitSample)
	}
	return s
}

// Snapshot returns the current generation, or nil before the first build.
func (s *IndexStore) Snapshot() *Snapshot {
	return s.current.Load()
}

// Rebuild indexes the given questions and atomically replaces the current
// snapshot. On error the previous snapshot stays in place.
func (s *IndexStore) Rebuild(questions []Question) (*Snapshot, error) {
	if len(questions) == 0 {
		return nil, ErrCorpusEmpty
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	start := time.Now()

	// 1. Validate and de-duplicate; the last record for an id wins.
	byID := make(map[string]int, len(questions))
	kept := make([]Question, 0, len(questions))
	skipped := 0
	for _, q := range questions {
		q.ID = strings.TrimSpace(q.ID)
		if q.ID == "" || strings.TrimSpace(q.Stem) == "" {
			skipped++
			continue
		}
		q = q.normalized()
		if idx, dup := byID[q.ID]; dup {
			s.logger.WithField("question_id", q.ID).Warn("Duplicate question id, keeping the last record")
			kept[idx] = q
			skipped++
			continue
		}
		byID[q.ID] = len(kept)
		kept = append(kept, q)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: all %d questions lack an id or stem", ErrCorpusEmpty, len(questions))
	}

	// 2. Fit the vectorizer on the stems
	vectorizer := s.newVectorizer()
	stems := make([]string, len(kept))
	for i, q := range kept {
		stems[i] = q.Stem
	}
	if err := vectorizer.Fit(stems); err != nil {
		return nil, fmt.Errorf("fit vectorizer: %w", err)
	}

	// 3. Vectorize all questions
	dim := vectorizer.Dim()
	entries := make([]IndexEntry, len(kept))
	for i, q := range kept {
		vec := vectorizer.Transform(q.Stem)
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: question %s has %d dimensions, index has %d", ErrDimensionMismatch, q.ID, len(vec), dim)
		}
		entries[i] = IndexEntry{Question: q, Vector: vec}
	}

	snap := &Snapshot{
		Generation: uuid.NewString(),
		Entries:    entries,
		BuiltAt:    time.Now(),
		Elapsed:    time.Since(start),
		Skipped:    skipped,
		vectorizer: vectorizer,
		byID:       byID,
	}
	s.current.Store(snap)

	s.logger.WithFields(logrus.Fields{
		"generation": snap.Generation,
		"indexed":    len(entries),
		"skipped":    skipped,
		"dimensions": dim,
		"elapsed":    snap.Elapsed,
	}).Info("Index rebuilt")
	return snap, nil
}
