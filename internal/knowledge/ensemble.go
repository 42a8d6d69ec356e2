package knowledge

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/knowledge-engine/questionbank/internal/config"
	"github.com/knowledge-engine/questionbank/internal/search"
)

// EnsembleWeights are the per-strategy vote weights; they sum to 1.0.
type EnsembleWeights struct {
	Keyword float64 `json:"keyword"`
	Rule    float64 `json:"rule"`
	Model   float64 `json:"model"`
}

func DefaultEnsembleWeights() EnsembleWeights {
	return EnsembleWeights{Keyword: 0.3, Rule: 0.4, Model: 0.3}
}

func EnsembleWeightsFromConfig(cfg config.EnsembleConfig) EnsembleWeights {
	return EnsembleWeights{Keyword: cfg.KeywordWeight, Rule: cfg.RuleWeight, Model: cfg.ModelWeight}
}

func (w EnsembleWeights) Validate() error {
	for _, v := range []float64{w.Keyword, w.Rule, w.Model} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: negative ensemble weight %v", search.ErrInvalidArgument, v)
		}
	}
	if sum := w.Keyword + w.Rule + w.Model; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: ensemble weights sum to %.4f, want 1.0", search.ErrInvalidArgument, sum)
	}
	return nil
}

// Of returns the weight of a strategy; unknown strategies weigh nothing.
func (w EnsembleWeights) Of(s Strategy) float64 {
	switch s {
	case StrategyKeyword:
		return w.Keyword
	case StrategyRule:
		return w.Rule
	case StrategyModel:
		return w.Model
	default:
		return 0
	}
}

// Vote is one strategy's opinion about one knowledge point.
type Vote struct {
	Strategy Strategy
	Match    MatchResult
}

// Combine merges votes by weighted sum per knowledge point. Each strategy
// counts at most once per point (its highest confidence), so a combined
// confidence never exceeds the sum of the weights.
func Combine(votes []Vote, weights EnsembleWeights) []MatchResult {
	type key struct {
		strategy Strategy
		point    string
	}
	best := make(map[key]float64)
	names := make(map[string]string)
	var order []key
	for _, v := range votes {
		k := key{v.Strategy, v.Match.PointID}
		c := clamp01(v.Match.Confidence)
		prev, seen := best[k]
		if !seen {
			order = append(order, k)
		}
		if !seen || c > prev {
			best[k] = c
		}
		if _, ok := names[v.Match.PointID]; !ok {
			names[v.Match.PointID] = v.Match.Name
		}
	}

	scores := make(map[string]float64)
	var points []string
	for _, k := range order {
		if _, ok := scores[k.point]; !ok {
			points = append(points, k.point)
		}
		scores[k.point] += weights.Of(k.strategy) * best[k]
	}

	out := make([]MatchResult, 0, len(points))
	for _, id := range points {
		if scores[id] <= 0 {
			continue
		}
		out = append(out, MatchResult{
			PointID:    id,
			Name:       names[id],
			Confidence: scores[id],
			Strategy:   StrategyEnsemble,
		})
	}
	sortMatches(out)
	return out
}

// EnsembleMatcher runs its member matchers concurrently and merges their
// output with Combine. It returns empty only when every member does.
type EnsembleMatcher struct {
	members []Matcher
	weights EnsembleWeights
}

func NewEnsembleMatcher(weights EnsembleWeights, members ...Matcher) *EnsembleMatcher {
	return &EnsembleMatcher{members: members, weights: weights}
}

func (m *EnsembleMatcher) Strategy() Strategy {
	return StrategyEnsemble
}

func (m *EnsembleMatcher) Match(input string) []MatchResult {
	outputs := make([][]MatchResult, len(m.members))
	var g errgroup.Group
	for i, member := range m.members {
		g.Go(func() error {
			outputs[i] = member.Match(input)
			return nil
		})
	}
	_ = g.Wait()

	var votes []Vote
	for i, member := range m.members {
		for _, match := range outputs[i] {
			votes = append(votes, Vote{Strategy: member.Strategy(), Match: match})
		}
	}
	return Combine(votes, m.weights)
}
