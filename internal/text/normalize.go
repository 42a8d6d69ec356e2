// Package text holds the text handling shared by the vector index and the
// knowledge-point matchers: markup stripping, Unicode normalization and
// tokenization into unigram/bigram terms.
package text

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// markupPattern detects the rich-text tags the grading pipeline emits. A bare
// "<b>" is not enough since "0<b>1" is a chained inequality over b; opening
// tags only count when they carry an attribute. Inequalities like
// "x<y and y>2" are never fed to the HTML tokenizer.
var markupPattern = regexp.MustCompile(`(?i)</(p|div|span|sup|sub|b|i|u|em|strong|table|tr|td|th|ul|ol|li|font|script|style)\s*>|<(br|img|hr)(\s[^<>]*)?/?>|<(p|div|span|sup|sub|b|i|u|em|strong|table|tr|td|th|ul|ol|li|font|script|style)\s+[a-z-]+\s*=`)

// entityPattern matches the character references found in plain-text stems.
var entityPattern = regexp.MustCompile(`&(nbsp|lt|gt|amp|quot|#[0-9]+);`)

// superscripts keeps exponents visible; NFKC alone would turn "x²" into "x2".
var superscripts = strings.NewReplacer("²", "^2", "³", "^3", "⁴", "^4", "ⁿ", "^n")

// Normalize converts raw question text into the canonical form used for
// indexing, matching and cache fingerprints: markup removed, NFKC applied,
// full-width forms folded, lower-cased and whitespace collapsed.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	switch {
	case markupPattern.MatchString(s):
		s = StripMarkup(s)
	case entityPattern.MatchString(s):
		s = html.UnescapeString(s)
	}
	s = superscripts.Replace(s)
	s = width.Fold.String(s)
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return cleanText(s)
}

// StripMarkup extracts the visible text from rich-text question stems.
// Script and style bodies are dropped; inline elements such as sup/sub keep
// their content so "x<sup>2</sup>" becomes "x2".
func StripMarkup(s string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way keep what was read.
			return cleanText(b.String())

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li", "tr", "td":
				b.WriteByte(' ')
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "tr", "td":
				b.WriteByte(' ')
			}

		case html.SelfClosingTagToken:
			b.WriteByte(' ')

		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

// Fingerprint returns a stable sha256 hex digest over the given parts.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// cleanText removes excessive whitespace
func cleanText(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
