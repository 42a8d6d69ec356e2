package knowledge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/questionbank/internal/config"
	"github.com/knowledge-engine/questionbank/internal/search"
	"github.com/knowledge-engine/questionbank/internal/text"
)

// DefaultDispatch maps each regime to the strategy that handles it.
func DefaultDispatch() map[Regime]Strategy {
	return map[Regime]Strategy{
		RegimeSimple:    StrategyKeyword,
		RegimeStandard:  StrategyRule,
		RegimeComplex:   StrategyModel,
		RegimeUncertain: StrategyEnsemble,
	}
}

// matcherSet is one immutable generation of matchers built from one table.
type matcherSet struct {
	table    *Table
	examples []Example
	matchers map[Strategy]Matcher
}

func newMatcherSet(table *Table, examples []Example, cfg config.ClassifierConfig, weights EnsembleWeights) *matcherSet {
	keyword := NewKeywordMatcher(table, cfg.KeywordMinConfidence)
	rule := NewRuleMatcher(table, cfg.RuleMinConfidence)
	model := NewModelMatcher(table, examples, cfg.ModelMinConfidence)
	return &matcherSet{
		table:    table,
		examples: examples,
		matchers: map[Strategy]Matcher{
			StrategyKeyword:  keyword,
			StrategyRule:     rule,
			StrategyModel:    model,
			StrategyEnsemble: NewEnsembleMatcher(weights, keyword, rule, model),
		},
	}
}

// Classification is a classify outcome together with how it was reached.
type Classification struct {
	Assessment Assessment    `json:"assessment"`
	Strategy   Strategy      `json:"strategy"`
	Matches    []MatchResult `json:"matches"`
}

// Classifier routes text through the strategy its complexity calls for.
// The table and trained model can be replaced at any time; in-flight calls
// finish against the set they started with.
type Classifier struct {
	config     config.ClassifierConfig
	complexity *ComplexityClassifier
	dispatch   map[Regime]Strategy
	weights    EnsembleWeights
	logger     *logrus.Entry

	// swapMu serializes SetTable and Train so neither drops the other's change.
	swapMu  sync.Mutex
	current atomic.Pointer[matcherSet]
}

// NewClassifier validates the ensemble weights and builds matchers for table.
func NewClassifier(table *Table, cfg config.ClassifierConfig, ensemble config.EnsembleConfig, logger *logrus.Entry) (*Classifier, error) {
	if logger == nil {
		logger = logrus.WithField("component", "classifier")
	}
	if table == nil {
		return nil, fmt.Errorf("%w: knowledge table is required", search.ErrInvalidArgument)
	}
	weights := EnsembleWeightsFromConfig(ensemble)
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{
		config:     cfg,
		complexity: NewComplexityClassifier(ThresholdsFromConfig(cfg)),
		dispatch:   DefaultDispatch(),
		weights:    weights,
		logger:     logger,
	}
	c.current.Store(newMatcherSet(table, nil, cfg, weights))
	logger.WithFields(logrus.Fields{
		"points": table.Len(),
		"rules":  len(table.Rules()),
	}).Info("Knowledge classifier ready")
	return c, nil
}

// Table returns the knowledge table currently in use.
func (c *Classifier) Table() *Table {
	return c.current.Load().table
}

// SetTable swaps in a new knowledge table, keeping the training examples.
func (c *Classifier) SetTable(table *Table) {
	if table == nil {
		return
	}
	c.swapMu.Lock()
	defer c.swapMu.Unlock()
	prev := c.current.Load()
	c.current.Store(newMatcherSet(table, prev.examples, c.config, c.weights))
	c.logger.WithField("points", table.Len()).Info("Knowledge table replaced")
}

// Train retrains the model matcher with labelled examples.
func (c *Classifier) Train(examples []Example) {
	c.swapMu.Lock()
	defer c.swapMu.Unlock()
	prev := c.current.Load()
	c.current.Store(newMatcherSet(prev.table, examples, c.config, c.weights))
	c.logger.WithField("examples", len(examples)).Debug("Model matcher retrained")
}

// Assess exposes the complexity decision for a text.
func (c *Classifier) Assess(input string) Assessment {
	return c.complexity.Assess(input)
}

// Classify returns the top knowledge-point matches for text. Empty text and
// texts nothing matches give an empty list, not an error.
func (c *Classifier) Classify(ctx context.Context, input string, topK int) ([]MatchResult, error) {
	res, err := c.ClassifyDetailed(ctx, input, topK)
	if err != nil {
		return nil, err
	}
	return res.Matches, nil
}

// ClassifyDetailed is Classify plus the regime and strategy used.
func (c *Classifier) ClassifyDetailed(ctx context.Context, input string, topK int) (Classification, error) {
	if topK <= 0 {
		return Classification{}, fmt.Errorf("%w: top_k must be positive, got %d", search.ErrInvalidArgument, topK)
	}
	res := Classification{Matches: []MatchResult{}}
	if text.Normalize(input) == "" {
		res.Assessment = Assessment{Regime: RegimeUncertain}
		return res, nil
	}

	set := c.current.Load()
	res.Assessment = c.complexity.Assess(input)
	res.Strategy = c.dispatch[res.Assessment.Regime]
	if c.config.AlwaysEnsemble || res.Strategy == "" {
		res.Strategy = StrategyEnsemble
	}

	if err := ctx.Err(); err != nil {
		return Classification{}, err
	}
	res.Matches = set.matchers[res.Strategy].Match(input)
	if len(res.Matches) == 0 && res.Strategy != StrategyEnsemble && c.config.FallbackToEnsemble {
		c.logger.WithField("strategy", res.Strategy).Debug("No confident match, falling back to ensemble")
		res.Strategy = StrategyEnsemble
		res.Matches = set.matchers[StrategyEnsemble].Match(input)
	}

	if len(res.Matches) > topK {
		res.Matches = res.Matches[:topK]
	}
	c.logger.WithFields(logrus.Fields{
		"regime":   res.Assessment.Regime,
		"strategy": res.Strategy,
		"matches":  len(res.Matches),
	}).Debug("Text classified")
	return res, nil
}
