package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/questionbank/internal/config"
	"github.com/knowledge-engine/questionbank/internal/knowledge"
	"github.com/knowledge-engine/questionbank/internal/search"
	"github.com/knowledge-engine/questionbank/internal/storage"
)

// Engine wires the similarity index and the knowledge classifier together
// behind the operations the HTTP and CLI adapters expose.
type Engine struct {
	Config     *config.Config
	Logger     *logrus.Entry
	Index      *search.IndexStore
	Scorer     *search.CachedScorer
	Classifier *knowledge.Classifier
	Storage    storage.QuestionStorage

	// buildMu keeps rebuild, retraining and persistence of one build together,
	// so the live index, the model and the stored corpus agree.
	buildMu sync.Mutex

	queries         atomic.Int64
	classifications atomic.Int64
	startTime       time.Time
}

// BuildResult summarizes an index build.
type BuildResult struct {
	Indexed    int           `json:"indexed"`
	Skipped    int           `json:"skipped"`
	Dimensions int           `json:"dimensions"`
	Generation string        `json:"generation"`
	Elapsed    time.Duration `json:"elapsed"`
}

// SimilarHits are ranked results together with the index generation that
// produced them.
type SimilarHits struct {
	Generation string
	Results    []search.Result
}

// SimilarOptions tune a FindSimilar call.
type SimilarOptions struct {
	TopK      int
	Threshold float64
	ExcludeID string
}

// EngineStats is a status snapshot for operators.
type EngineStats struct {
	Indexed         int               `json:"indexed"`
	Skipped         int               `json:"skipped"`
	Dimensions      int               `json:"dimensions"`
	Generation      string            `json:"generation,omitempty"`
	BuiltAt         time.Time         `json:"built_at,omitempty"`
	KnowledgePoints int               `json:"knowledge_points"`
	Queries         int64             `json:"queries"`
	Classifications int64             `json:"classifications"`
	Uptime          time.Duration     `json:"uptime"`
	Cache           search.CacheStats `json:"cache"`
}

// NewEngine builds every component from configuration. store may be nil,
// in which case corpora are neither loaded nor persisted.
func NewEngine(cfg *config.Config, logger *logrus.Entry, store storage.QuestionStorage) (*Engine, error) {
	if logger == nil {
		logger = logrus.WithField("component", "engine")
	}

	table := knowledge.DefaultTable()
	if path := cfg.Classifier.KnowledgeTablePath; path != "" {
		loaded, err := knowledge.LoadTable(path)
		if err != nil {
			return nil, err
		}
		table = loaded
	}

	classifier, err := knowledge.NewClassifier(table, cfg.Classifier, cfg.Ensemble, logger.WithField("component", "classifier"))
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	scorer, err := search.NewScorer(cfg.Similarity, logger.WithField("component", "scorer"))
	if err != nil {
		return nil, fmt.Errorf("scorer: %w", err)
	}

	capacity := cfg.Cache.Capacity
	if !cfg.Cache.Enabled {
		capacity = 0
	}
	cache := search.NewResultCache(capacity, cfg.Cache.TTL)

	return &Engine{
		Config:     cfg,
		Logger:     logger,
		Index:      search.NewIndexStore(cfg.Index, logger.WithField("component", "index")),
		Scorer:     search.NewCachedScorer(scorer, cache, logger.WithField("component", "cache")),
		Classifier: classifier,
		Storage:    store,
		startTime:  time.Now(),
	}, nil
}

// BuildIndex replaces the whole index with questions. On failure the
// previous index keeps serving. Labelled questions also retrain the model
// matcher, and the corpus is persisted when storage is configured.
func (e *Engine) BuildIndex(ctx context.Context, questions []search.Question) (BuildResult, error) {
	return e.buildIndex(ctx, questions, e.Storage != nil)
}

func (e *Engine) buildIndex(ctx context.Context, questions []search.Question, persist bool) (BuildResult, error) {
	if err := ctx.Err(); err != nil {
		return BuildResult{}, err
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	if err := ctx.Err(); err != nil {
		return BuildResult{}, err
	}

	snap, err := e.Index.Rebuild(questions)
	if err != nil {
		e.Logger.WithError(err).WithField("questions", len(questions)).Warn("Index build rejected")
		return BuildResult{}, err
	}

	// old generations can never be hit again
	e.Scorer.Cache().Purge()

	var examples []knowledge.Example
	for _, entry := range snap.Entries {
		if len(entry.Question.KnowledgePoints) > 0 {
			examples = append(examples, knowledge.Example{
				Text:     entry.Question.Stem,
				PointIDs: entry.Question.KnowledgePoints,
			})
		}
	}
	e.Classifier.Train(examples)

	if persist {
		if err := e.Storage.Save(questions); err != nil {
			e.Logger.WithError(err).Error("Failed to persist corpus")
		}
	}

	return BuildResult{
		Indexed:    snap.Len(),
		Skipped:    snap.Skipped,
		Dimensions: snap.Dim(),
		Generation: snap.Generation,
		Elapsed:    snap.Elapsed,
	}, nil
}

// LoadCorpus rebuilds the index from storage. A missing corpus file is not
// an error; the engine simply stays unbuilt.
func (e *Engine) LoadCorpus(ctx context.Context) (BuildResult, error) {
	if e.Storage == nil {
		return BuildResult{}, nil
	}
	questions, err := e.Storage.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			e.Logger.Info("No stored corpus, index starts empty")
			return BuildResult{}, nil
		}
		return BuildResult{}, err
	}
	return e.buildIndex(ctx, questions, false)
}

// DefaultSimilarOptions returns the configured top-k and threshold.
func (e *Engine) DefaultSimilarOptions() SimilarOptions {
	return SimilarOptions{
		TopK:      e.Config.Similarity.DefaultTopK,
		Threshold: e.Config.Similarity.DefaultThreshold,
	}
}

// FindSimilar ranks indexed questions against query. Results are sorted by
// score, ties by id; a query against an unbuilt index yields no results.
func (e *Engine) FindSimilar(ctx context.Context, query search.Question, opts SimilarOptions) ([]search.Result, error) {
	hits, err := e.FindSimilarDetailed(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return hits.Results, nil
}

// FindSimilarDetailed is FindSimilar plus the generation that was scored.
func (e *Engine) FindSimilarDetailed(ctx context.Context, query search.Question, opts SimilarOptions) (SimilarHits, error) {
	return e.findSimilar(ctx, e.Index.Snapshot(), query, opts)
}

// FindSimilarByID ranks the index against an already indexed question,
// leaving that question out of its own results.
func (e *Engine) FindSimilarByID(ctx context.Context, id string, opts SimilarOptions) ([]search.Result, error) {
	hits, err := e.FindSimilarByIDDetailed(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	return hits.Results, nil
}

// FindSimilarByIDDetailed is FindSimilarByID plus the generation that was
// scored. The question is looked up in the same snapshot it is ranked against.
func (e *Engine) FindSimilarByIDDetailed(ctx context.Context, id string, opts SimilarOptions) (SimilarHits, error) {
	snap := e.Index.Snapshot()
	query, ok := snap.Lookup(id)
	if !ok {
		return SimilarHits{}, fmt.Errorf("%w: question %q is not indexed", search.ErrInvalidArgument, id)
	}
	opts.ExcludeID = id
	return e.findSimilar(ctx, snap, query, opts)
}

func (e *Engine) findSimilar(ctx context.Context, snap *search.Snapshot, query search.Question, opts SimilarOptions) (SimilarHits, error) {
	if err := ctx.Err(); err != nil {
		return SimilarHits{}, err
	}
	topK, threshold := opts.TopK, opts.Threshold
	if topK <= 0 {
		return SimilarHits{}, fmt.Errorf("%w: top_k must be positive, got %d", search.ErrInvalidArgument, topK)
	}

	limit := topK
	if opts.ExcludeID != "" {
		if _, ok := snap.Lookup(opts.ExcludeID); ok {
			limit++
		}
	}

	e.queries.Add(1)
	results, err := e.Scorer.Score(snap, query, limit, threshold)
	if err != nil {
		return SimilarHits{}, err
	}

	if opts.ExcludeID != "" {
		filtered := results[:0]
		for _, r := range results {
			if r.Question.ID != opts.ExcludeID {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if len(results) > topK {
		results = results[:topK]
	}

	hits := SimilarHits{Results: results}
	if snap != nil {
		hits.Generation = snap.Generation
	}
	return hits, nil
}

// Classify returns the topK knowledge points for text.
func (e *Engine) Classify(ctx context.Context, text string, topK int) ([]knowledge.MatchResult, error) {
	res, err := e.ClassifyDetailed(ctx, text, topK)
	if err != nil {
		return nil, err
	}
	return res.Matches, nil
}

// ClassifyDetailed is Classify plus the complexity assessment and strategy.
func (e *Engine) ClassifyDetailed(ctx context.Context, text string, topK int) (knowledge.Classification, error) {
	if err := ctx.Err(); err != nil {
		return knowledge.Classification{}, err
	}
	e.classifications.Add(1)
	return e.Classifier.ClassifyDetailed(ctx, text, topK)
}

// Stats reports index size, generation and cache counters.
func (e *Engine) Stats() EngineStats {
	snap := e.Index.Snapshot()
	stats := EngineStats{
		Indexed:         snap.Len(),
		Dimensions:      snap.Dim(),
		KnowledgePoints: e.Classifier.Table().Len(),
		Queries:         e.queries.Load(),
		Classifications: e.classifications.Load(),
		Uptime:          time.Since(e.startTime),
		Cache:           e.Scorer.Cache().Stats(),
	}
	if snap != nil {
		stats.Skipped = snap.Skipped
		stats.Generation = snap.Generation
		stats.BuiltAt = snap.BuiltAt
	}
	return stats
}
