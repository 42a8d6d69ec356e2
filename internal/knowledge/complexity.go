package knowledge

import (
	"strings"
	"unicode"

	"github.com/knowledge-engine/questionbank/internal/config"
	"github.com/knowledge-engine/questionbank/internal/text"
)

// Regime is the complexity bucket a text falls into.
type Regime string

const (
	RegimeSimple    Regime = "simple"
	RegimeStandard  Regime = "standard"
	RegimeComplex   Regime = "complex"
	RegimeUncertain Regime = "uncertain"
)

// Thresholds are the tunable boundaries between regimes.
type Thresholds struct {
	SimpleMaxLength    int
	SimpleMaxSymbols   int
	StandardMaxLength  int
	StandardMaxDensity float64
	ComplexMinLength   int
	ComplexMinDensity  float64
	ComplexMinSymbols  int
	ComplexMinMarkers  int
	DomainMarkers      []string
}

// ThresholdsFromConfig copies the classifier section of the configuration.
func ThresholdsFromConfig(cfg config.ClassifierConfig) Thresholds {
	return Thresholds{
		SimpleMaxLength:    cfg.SimpleMaxLength,
		SimpleMaxSymbols:   cfg.SimpleMaxSymbols,
		StandardMaxLength:  cfg.StandardMaxLength,
		StandardMaxDensity: cfg.StandardMaxDensity,
		ComplexMinLength:   cfg.ComplexMinLength,
		ComplexMinDensity:  cfg.ComplexMinDensity,
		ComplexMinSymbols:  cfg.ComplexMinSymbols,
		ComplexMinMarkers:  cfg.ComplexMinMarkers,
		DomainMarkers:      cfg.DomainMarkers,
	}
}

// Assessment carries the structural signals behind a regime decision.
type Assessment struct {
	Regime        Regime  `json:"regime"`
	Length        int     `json:"length"`
	Symbols       int     `json:"symbols"`
	ScriptChars   int     `json:"script_chars"`
	Markers       int     `json:"markers"`
	SymbolDensity float64 `json:"symbol_density"`
}

// ComplexityClassifier buckets raw text by cheap structural signals.
type ComplexityClassifier struct {
	thresholds Thresholds
	markers    []string
}

func NewComplexityClassifier(t Thresholds) *ComplexityClassifier {
	markers := make([]string, 0, len(t.DomainMarkers))
	seen := make(map[string]bool)
	for _, m := range t.DomainMarkers {
		m = text.Normalize(m)
		if m != "" && !seen[m] {
			seen[m] = true
			markers = append(markers, m)
		}
	}
	return &ComplexityClassifier{thresholds: t, markers: markers}
}

// Assess never fails; text that meets no threshold clearly is uncertain.
func (c *ComplexityClassifier) Assess(input string) Assessment {
	normalized := text.Normalize(input)
	a := Assessment{Regime: RegimeUncertain}
	if normalized == "" {
		return a
	}

	visible := 0
	for _, r := range normalized {
		a.Length++
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		switch {
		case text.IsOperator(r):
			a.Symbols++
		case text.IsIdeograph(r):
			a.ScriptChars++
		}
	}
	for _, m := range c.markers {
		if strings.Contains(normalized, m) {
			a.Markers++
		}
	}
	if visible > 0 {
		a.SymbolDensity = float64(a.Symbols) / float64(visible)
	}

	t := c.thresholds
	switch {
	case a.Length <= t.SimpleMaxLength && a.Symbols <= t.SimpleMaxSymbols:
		a.Regime = RegimeSimple
	case a.Length >= t.ComplexMinLength,
		a.SymbolDensity >= t.ComplexMinDensity && a.Symbols >= t.ComplexMinSymbols,
		t.ComplexMinMarkers > 0 && a.Markers >= t.ComplexMinMarkers:
		a.Regime = RegimeComplex
	case a.Length <= t.StandardMaxLength && a.SymbolDensity <= t.StandardMaxDensity && a.Markers > 0:
		a.Regime = RegimeStandard
	}
	return a
}
