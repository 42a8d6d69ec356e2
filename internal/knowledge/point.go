// Package knowledge classifies question text into curriculum knowledge
// points. A complexity classifier picks one of three matching strategies
// (keyword, rule, model) or a weighted ensemble of all three.
package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/knowledge-engine/questionbank/internal/text"
)

//go:embed default_table.yaml
var defaultTableYAML []byte

// KnowledgePoint is an atomic curriculum concept.
type KnowledgePoint struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Subject     string             `yaml:"subject,omitempty" json:"subject,omitempty"`
	Difficulty  int                `yaml:"difficulty,omitempty" json:"difficulty,omitempty"`
	Keywords    map[string]float64 `yaml:"keywords" json:"keywords"`

	// keywords sorted by phrase, so sums are order independent
	keywords []weightedKeyword
}

type weightedKeyword struct {
	phrase string
	weight float64
}

// Rule maps a structural pattern in normalized text to a knowledge point.
type Rule struct {
	Name       string  `yaml:"name" json:"name"`
	Pattern    string  `yaml:"pattern" json:"pattern"`
	PointID    string  `yaml:"point" json:"point"`
	Confidence float64 `yaml:"confidence" json:"confidence"`

	re *regexp.Regexp
}

// tableFile is the on-disk layout of a knowledge table.
type tableFile struct {
	Points []KnowledgePoint `yaml:"points"`
	Rules  *[]Rule          `yaml:"rules"`
}

// Table is the read-only knowledge-point reference data. It is never
// mutated after construction; updates build a new Table and swap it in.
type Table struct {
	points []KnowledgePoint
	byID   map[string]int
	rules  []Rule
}

// NewTable validates points and rules. Keywords are normalized the same way
// as query text; non-positive keyword weights are dropped. Rules pointing at
// unknown points are dropped.
func NewTable(points []KnowledgePoint, rules []Rule) (*Table, error) {
	t := &Table{byID: make(map[string]int, len(points))}

	for _, p := range points {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("knowledge point %q has no id", p.Name)
		}
		if _, dup := t.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate knowledge point id %q", p.ID)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		keywords := make(map[string]float64, len(p.Keywords))
		for kw, w := range p.Keywords {
			kw = text.Normalize(kw)
			if kw == "" || w <= 0 {
				continue
			}
			keywords[kw] += w
		}
		p.Keywords = keywords
		p.keywords = make([]weightedKeyword, 0, len(keywords))
		for kw, w := range keywords {
			p.keywords = append(p.keywords, weightedKeyword{phrase: kw, weight: w})
		}
		sort.Slice(p.keywords, func(i, j int) bool { return p.keywords[i].phrase < p.keywords[j].phrase })
		t.points = append(t.points, p)
		t.byID[p.ID] = -1
	}

	sort.Slice(t.points, func(i, j int) bool { return t.points[i].ID < t.points[j].ID })
	for i, p := range t.points {
		t.byID[p.ID] = i
	}

	for _, r := range rules {
		if _, ok := t.byID[r.PointID]; !ok {
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.re = re
		r.Confidence = clamp01(r.Confidence)
		t.rules = append(t.rules, r)
	}
	return t, nil
}

// ParseTable decodes a YAML knowledge table. When the document has no
// rules section the built-in structural rules are used.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse knowledge table: %w", err)
	}
	rules := DefaultRules()
	if f.Rules != nil {
		rules = *f.Rules
	}
	return NewTable(f.Points, rules)
}

// LoadTable reads a YAML knowledge table from disk.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge table %s: %w", path, err)
	}
	return ParseTable(data)
}

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	t, err := ParseTable(defaultTableYAML)
	if err != nil {
		panic(fmt.Sprintf("knowledge: embedded default table is invalid: %v", err))
	}
	return t
}

// DefaultRules returns the built-in structural rules, in priority order.
func DefaultRules() []Rule {
	var f tableFile
	if err := yaml.Unmarshal(defaultTableYAML, &f); err != nil || f.Rules == nil {
		return nil
	}
	return *f.Rules
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.points)
}

// Points returns the points sorted by id. Callers must not modify them.
func (t *Table) Points() []KnowledgePoint {
	if t == nil {
		return nil
	}
	return t.points
}

func (t *Table) Point(id string) (KnowledgePoint, bool) {
	if t == nil {
		return KnowledgePoint{}, false
	}
	idx, ok := t.byID[id]
	if !ok {
		return KnowledgePoint{}, false
	}
	return t.points[idx], true
}

// Rules returns the compiled rules in evaluation order.
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	return t.rules
}

func (t *Table) name(id string) string {
	if p, ok := t.Point(id); ok {
		return p.Name
	}
	return id
}
