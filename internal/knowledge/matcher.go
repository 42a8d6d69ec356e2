package knowledge

import (
	"math"
	"sort"
)

// Strategy tags the closed set of matching strategies.
type Strategy string

const (
	StrategyKeyword  Strategy = "keyword"
	StrategyRule     Strategy = "rule"
	StrategyModel    Strategy = "model"
	StrategyEnsemble Strategy = "ensemble"
)

// MatchResult is one candidate knowledge point for a piece of text.
type MatchResult struct {
	PointID    string   `json:"point_id"`
	Name       string   `json:"name"`
	Confidence float64  `json:"confidence"`
	Strategy   Strategy `json:"strategy"`
}

// Matcher maps text to candidate knowledge points. Having nothing confident
// to say is an empty result, never an error.
type Matcher interface {
	Strategy() Strategy
	Match(text string) []MatchResult
}

// sortMatches orders by confidence (descending), then point id (ascending).
func sortMatches(matches []MatchResult) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence == matches[j].Confidence {
			return matches[i].PointID < matches[j].PointID
		}
		return matches[i].Confidence > matches[j].Confidence
	})
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
