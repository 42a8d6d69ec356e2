package knowledge

import (
	"math"
	"strings"

	"github.com/knowledge-engine/questionbank/internal/text"
)

// KeywordMatcher scores a point by its weighted keyword occurrences. Fast and
// precise on short explicit text; it does not generalize to paraphrases.
type KeywordMatcher struct {
	table         *Table
	minConfidence float64
}

func NewKeywordMatcher(table *Table, minConfidence float64) *KeywordMatcher {
	return &KeywordMatcher{table: table, minConfidence: minConfidence}
}

func (m *KeywordMatcher) Strategy() Strategy {
	return StrategyKeyword
}

// Match computes, per point, raw = Σ weight·occurrences over its keywords and
// reports 1 - exp(-raw/w) where w is the point's heaviest keyword weight. One
// hit on the strongest keyword scores the same however long the keyword list
// is, and repeated evidence approaches but never exceeds 1.
func (m *KeywordMatcher) Match(input string) []MatchResult {
	normalized := text.Normalize(input)
	if normalized == "" {
		return []MatchResult{}
	}

	matches := []MatchResult{}
	for _, p := range m.table.Points() {
		var raw, strongest float64
		for _, kw := range p.keywords {
			strongest = math.Max(strongest, kw.weight)
			if n := strings.Count(normalized, kw.phrase); n > 0 {
				raw += kw.weight * float64(n)
			}
		}
		if strongest == 0 || raw == 0 {
			continue
		}
		confidence := clamp01(1 - math.Exp(-raw/strongest))
		if confidence < m.minConfidence {
			continue
		}
		matches = append(matches, MatchResult{
			PointID:    p.ID,
			Name:       p.Name,
			Confidence: confidence,
			Strategy:   StrategyKeyword,
		})
	}
	sortMatches(matches)
	return matches
}
