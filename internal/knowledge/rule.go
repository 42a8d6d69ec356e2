package knowledge

import (
	"github.com/knowledge-engine/questionbank/internal/text"
)

// RuleMatcher applies the table's ordered structural rules. The first rule
// that fires for a point decides its confidence.
type RuleMatcher struct {
	table         *Table
	minConfidence float64
}

func NewRuleMatcher(table *Table, minConfidence float64) *RuleMatcher {
	return &RuleMatcher{table: table, minConfidence: minConfidence}
}

func (m *RuleMatcher) Strategy() Strategy {
	return StrategyRule
}

func (m *RuleMatcher) Match(input string) []MatchResult {
	normalized := text.Normalize(input)
	if normalized == "" {
		return []MatchResult{}
	}

	matches := []MatchResult{}
	fired := make(map[string]bool)
	for _, r := range m.table.Rules() {
		if fired[r.PointID] || r.Confidence < m.minConfidence {
			continue
		}
		if !r.re.MatchString(normalized) {
			continue
		}
		fired[r.PointID] = true
		matches = append(matches, MatchResult{
			PointID:    r.PointID,
			Name:       m.table.name(r.PointID),
			Confidence: r.Confidence,
			Strategy:   StrategyRule,
		})
	}
	sortMatches(matches)
	return matches
}
