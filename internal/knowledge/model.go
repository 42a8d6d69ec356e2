package knowledge

import (
	"math"

	"github.com/knowledge-engine/questionbank/internal/text"
)

// additive smoothing for unseen terms
const modelSmoothing = 0.1

// Example is a labelled text used to train the model matcher, typically an
// indexed question that already carries knowledge-point ids.
type Example struct {
	Text     string
	PointIDs []string
}

// nbModel is a multinomial naive Bayes classifier over knowledge points with
// a uniform prior. Immutable once trained.
type nbModel struct {
	points        []KnowledgePoint
	logLikelihood []map[string]float64
	logUnseen     []float64
	vocab         map[string]struct{}
}

func trainModel(table *Table, examples []Example) *nbModel {
	points := table.Points()
	counts := make([]map[string]float64, len(points))
	totals := make([]float64, len(points))
	vocab := make(map[string]struct{})

	add := func(i int, s string, weight float64) {
		for _, term := range text.Terms(s) {
			counts[i][term] += weight
			totals[i] += weight
			vocab[term] = struct{}{}
		}
	}

	for i, p := range points {
		counts[i] = make(map[string]float64)
		add(i, p.Name, 1)
		add(i, p.Description, 1)
		for _, kw := range p.keywords {
			add(i, kw.phrase, kw.weight)
		}
	}
	for _, ex := range examples {
		for _, id := range ex.PointIDs {
			if idx, ok := table.byID[id]; ok {
				add(idx, ex.Text, 1)
			}
		}
	}

	m := &nbModel{
		points:        points,
		logLikelihood: make([]map[string]float64, len(points)),
		logUnseen:     make([]float64, len(points)),
		vocab:         vocab,
	}
	vocabSize := float64(len(vocab))
	for i := range points {
		denom := totals[i] + modelSmoothing*vocabSize
		ll := make(map[string]float64, len(counts[i]))
		for term, c := range counts[i] {
			ll[term] = math.Log((c + modelSmoothing) / denom)
		}
		m.logLikelihood[i] = ll
		m.logUnseen[i] = math.Log(modelSmoothing / denom)
	}
	return m
}

// posterior returns P(point | terms) for every point, or nil when none of
// the terms was seen in training.
func (m *nbModel) posterior(terms []string) []float64 {
	if len(m.points) == 0 {
		return nil
	}
	known := make([]string, 0, len(terms))
	for _, term := range terms {
		if _, ok := m.vocab[term]; ok {
			known = append(known, term)
		}
	}
	if len(known) == 0 {
		return nil
	}

	scores := make([]float64, len(m.points))
	best := math.Inf(-1)
	for i := range m.points {
		var s float64
		for _, term := range known {
			if ll, ok := m.logLikelihood[i][term]; ok {
				s += ll
			} else {
				s += m.logUnseen[i]
			}
		}
		scores[i] = s
		best = math.Max(best, s)
	}

	// log-sum-exp normalization
	var sum float64
	for i, s := range scores {
		scores[i] = math.Exp(s - best)
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
	return scores
}

// ModelMatcher is the heavier statistical matcher used for long or unusual
// phrasing. It generalizes over character and word n-grams rather than exact
// keywords.
type ModelMatcher struct {
	model         *nbModel
	minConfidence float64
}

// NewModelMatcher trains a matcher from the table and optional examples.
func NewModelMatcher(table *Table, examples []Example, minConfidence float64) *ModelMatcher {
	return &ModelMatcher{
		model:         trainModel(table, examples),
		minConfidence: minConfidence,
	}
}

func (m *ModelMatcher) Strategy() Strategy {
	return StrategyModel
}

func (m *ModelMatcher) Match(input string) []MatchResult {
	matches := []MatchResult{}
	probs := m.model.posterior(text.Terms(input))
	for i, p := range probs {
		if p < m.minConfidence || p == 0 {
			continue
		}
		point := m.model.points[i]
		matches = append(matches, MatchResult{
			PointID:    point.ID,
			Name:       point.Name,
			Confidence: clamp01(p),
			Strategy:   StrategyModel,
		})
	}
	sortMatches(matches)
	return matches
}
