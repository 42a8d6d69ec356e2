package text

import (
	"strings"
	"unicode"
)

// operators are the characters counted as mathematical/structural symbols.
const operators = "+-*/=<>^%×÷±≤≥≠≈√∑∫∏∞π°()[]{}|!·′″∠⊥∥△"

// IsOperator reports whether r is an operator or math symbol.
func IsOperator(r rune) bool {
	return strings.ContainsRune(operators, r) || unicode.Is(unicode.Sm, r)
}

// IsIdeograph reports whether r belongs to a script written without spaces
// (Han, Hiragana, Katakana, Hangul), where each character is a token.
func IsIdeograph(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// Tokenize splits normalized text into unigram tokens. Runs of letters and
// digits form one token, each ideograph is its own token, and everything
// else (punctuation, operators, spaces) separates tokens.
func Tokenize(s string) []string {
	s = Normalize(s)
	if s == "" {
		return nil
	}

	var tokens []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}

	for _, r := range s {
		switch {
		case IsIdeograph(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// Terms returns the unigrams of s followed by the bigrams of adjacent
// unigrams, the term space used by the vectorizer and the model matcher.
func Terms(s string) []string {
	unigrams := Tokenize(s)
	if len(unigrams) < 2 {
		return unigrams
	}
	terms := make([]string, 0, 2*len(unigrams)-1)
	terms = append(terms, unigrams...)
	for i := 0; i+1 < len(unigrams); i++ {
		terms = append(terms, unigrams[i]+" "+unigrams[i+1])
	}
	return terms
}
