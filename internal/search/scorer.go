package search

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/questionbank/internal/config"
)

const weightTolerance = 1e-6

// Weights combines the four similarity dimensions. They must sum to 1.0.
type Weights struct {
	Text       float64 `json:"text" msgpack:"text"`
	Type       float64 `json:"type" msgpack:"type"`
	Difficulty float64 `json:"difficulty" msgpack:"difficulty"`
	Subject    float64 `json:"subject" msgpack:"subject"`
}

func DefaultWeights() Weights {
	return Weights{Text: 0.6, Type: 0.2, Difficulty: 0.1, Subject: 0.1}
}

// Validate rejects negative weights and weights not summing to 1.0.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Text, w.Type, w.Difficulty, w.Subject} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: negative similarity weight %v", ErrInvalidArgument, v)
		}
	}
	if sum := w.Text + w.Type + w.Difficulty + w.Subject; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: similarity weights sum to %.4f, want 1.0", ErrInvalidArgument, sum)
	}
	return nil
}

// Affinity is a symmetric partial-credit table for pairs of labels that are
// related but not equal (e.g. calculation and application questions).
type Affinity map[[2]string]float64

func (a Affinity) Set(x, y string, v float64) {
	a[pairKey(x, y)] = clamp01(v)
}

// Lookup returns 1 for equal labels, the table value for related pairs and 0
// otherwise.
func (a Affinity) Lookup(x, y string) float64 {
	if x == y {
		return 1
	}
	return a[pairKey(x, y)]
}

func pairKey(x, y string) [2]string {
	if y < x {
		x, y = y, x
	}
	return [2]string{x, y}
}

// DefaultTypeAffinity gives partial credit to structurally close types.
func DefaultTypeAffinity() Affinity {
	a := Affinity{}
	a.Set(string(TypeCalculation), string(TypeApplication), 0.5)
	a.Set(string(TypeChoice), string(TypeFillBlank), 0.3)
	return a
}

// DefaultSubjectAffinity covers common interdisciplinary overlaps.
func DefaultSubjectAffinity() Affinity {
	a := Affinity{}
	a.Set("math", "physics", 0.3)
	a.Set("physics", "chemistry", 0.3)
	a.Set("chemistry", "biology", 0.3)
	return a
}

// Components are the per-dimension similarities behind a score.
type Components struct {
	Text       float64 `json:"text"`
	Type       float64 `json:"type"`
	Difficulty float64 `json:"difficulty"`
	Subject    float64 `json:"subject"`
}

// Result holds a matching question and its combined score in [0,1]
type Result struct {
	Question   Question   `json:"question"`
	Score      float64    `json:"score"`
	Components Components `json:"components"`
}

// Scorer ranks indexed questions against a query by a weighted sum of text,
// type, difficulty and subject similarity. It is immutable and safe for
// concurrent use.
type Scorer struct {
	Weights         Weights
	TypeAffinity    Affinity
	SubjectAffinity Affinity
	DifficultySpan  int

	logger *logrus.Entry
}

// NewScorer builds a scorer from configuration, validating the weights.
func NewScorer(cfg config.SimilarityConfig, logger *logrus.Entry) (*Scorer, error) {
	if logger == nil {
		logger = logrus.WithField("component", "scorer")
	}
	w := Weights{
		Text:       cfg.TextWeight,
		Type:       cfg.TypeWeight,
		Difficulty: cfg.DifficultyWeight,
		Subject:    cfg.SubjectWeight,
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	span := cfg.DifficultySpan
	if span <= 0 {
		span = MaxDifficulty - MinDifficulty
	}
	return &Scorer{
		Weights:         w,
		TypeAffinity:    DefaultTypeAffinity(),
		SubjectAffinity: DefaultSubjectAffinity(),
		DifficultySpan:  span,
		logger:          logger,
	}, nil
}

// Score returns the indexed questions scoring at least threshold against the
// query, best first, ties broken by id, truncated to topK. An unbuilt or
// empty snapshot yields an empty result.
func (s *Scorer) Score(snap *Snapshot, query Question, topK int, threshold float64) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}
	results := []Result{}
	if snap.Len() == 0 {
		return results, nil
	}

	query = query.normalized()
	queryVector := snap.Vector(query.Stem)

	for _, entry := range snap.Entries {
		comp, err := s.components(queryVector, query, entry)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"question_id": entry.Question.ID,
				"generation":  snap.Generation,
			}).Error("Skipping entry with inconsistent vector")
			continue
		}
		score := s.combine(comp)
		if score < threshold {
			continue
		}
		results = append(results, Result{
			Question:   entry.Question.Clone(),
			Score:      score,
			Components: comp,
		})
	}

	SortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Scorer) components(queryVector []float64, query Question, entry IndexEntry) (Components, error) {
	cos, err := CosineSimilarity(queryVector, entry.Vector)
	if err != nil {
		return Components{}, err
	}
	return Components{
		Text:       clamp01(cos),
		Type:       s.TypeAffinity.Lookup(string(query.Type), string(entry.Question.Type)),
		Difficulty: s.difficulty(query.Difficulty, entry.Question.Difficulty),
		Subject:    s.SubjectAffinity.Lookup(string(query.Subject), string(entry.Question.Subject)),
	}, nil
}

func (s *Scorer) difficulty(a, b int) float64 {
	delta := math.Abs(float64(a - b))
	return math.Max(0, 1-delta/float64(s.DifficultySpan))
}

func (s *Scorer) combine(c Components) float64 {
	w := s.Weights
	return clamp01(w.Text*c.Text + w.Type*c.Type + w.Difficulty*c.Difficulty + w.Subject*c.Subject)
}

// SortResults sorts results by score (descending), then by question ID (ascending).
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Question.ID < results[j].Question.ID
		}
		return results[i].Score > results[j].Score
	})
}
