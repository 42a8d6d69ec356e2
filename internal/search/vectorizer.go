package search

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/knowledge-engine/questionbank/internal/text"
)

// Vectorizer turns text into a vector
type Vectorizer interface {
	Fit(docs []string) error
	Transform(text string) []float64
	Dim() int
}

const (
	DefaultMaxVocabulary = 5000
	DefaultDimensions    = 128
	DefaultFitSample     = 2000

	// singular values below this fraction of the largest carry no signal
	singularCutoff = 1e-9
)

// TFIDFVectorizer implements Term Frequency - Inverse Document Frequency over
// unigrams and bigrams, followed by a latent semantic projection (truncated
// SVD) down to a fixed number of dimensions.
type TFIDFVectorizer struct {
	MaxVocabulary int
	Dimensions    int
	// FitSample caps how many documents the projection is fitted on; the
	// vocabulary and IDF always use the whole corpus.
	FitSample int

	Vocabulary map[string]int
	IDF        []float64

	// projection is |Vocabulary| x k with k <= Dimensions
	projection *mat.Dense
}

func NewTFIDFVectorizer(maxVocabulary, dimensions, fitSample int) *TFIDFVectorizer {
	if maxVocabulary <= 0 {
		maxVocabulary = DefaultMaxVocabulary
	}
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	if fitSample <= 0 {
		fitSample = DefaultFitSample
	}
	return &TFIDFVectorizer{
		MaxVocabulary: maxVocabulary,
		Dimensions:    dimensions,
		FitSample:     fitSample,
		Vocabulary:    make(map[string]int),
	}
}

func (v *TFIDFVectorizer) Dim() int {
	return v.Dimensions
}

// Fit analyzes the corpus to build vocabulary and IDF stats, then fits the
// projection.
func (v *TFIDFVectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return ErrCorpusEmpty
	}

	docCount := float64(len(docs))
	docTerms := make([][]string, len(docs))
	wordDocCounts := make(map[string]int)

	// 1. Count document occurrences
	for i, doc := range docs {
		terms := text.Terms(doc)
		docTerms[i] = terms
		seenInDoc := make(map[string]bool, len(terms))
		for _, term := range terms {
			if !seenInDoc[term] {
				wordDocCounts[term]++
				seenInDoc[term] = true
			}
		}
	}

	// 2. Keep the most frequent terms; ties alphabetical so the vocabulary is
	// a pure function of the corpus.
	words := make([]string, 0, len(wordDocCounts))
	for word := range wordDocCounts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		ci, cj := wordDocCounts[words[i]], wordDocCounts[words[j]]
		if ci == cj {
			return words[i] < words[j]
		}
		return ci > cj
	})
	if len(words) > v.MaxVocabulary {
		words = words[:v.MaxVocabulary]
	}

	v.Vocabulary = make(map[string]int, len(words))
	v.IDF = make([]float64, len(words))
	for idx, word := range words {
		v.Vocabulary[word] = idx
		// idf = log(N / (df + 1)) + 1
		v.IDF[idx] = math.Log(docCount/(float64(wordDocCounts[word])+1)) + 1
	}
	v.projection = nil

	if len(words) == 0 {
		return nil
	}
	return v.fitProjection(docTerms)
}

func (v *TFIDFVectorizer) fitProjection(docTerms [][]string) error {
	sample := sampleRows(len(docTerms), v.FitSample)
	cols := len(v.Vocabulary)

	data := make([]float64, 0, len(sample)*cols)
	for _, row := range sample {
		data = append(data, v.weigh(docTerms[row])...)
	}
	m := mat.NewDense(len(sample), cols, data)

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return fmt.Errorf("fit projection: svd did not converge on %dx%d matrix", len(sample), cols)
	}
	values := svd.Values(nil)

	k := 0
	for _, s := range values {
		if k == v.Dimensions || s <= values[0]*singularCutoff {
			break
		}
		k++
	}
	if k == 0 {
		return nil
	}

	var right mat.Dense
	svd.VTo(&right)
	v.projection = mat.DenseCopyOf(right.Slice(0, cols, 0, k))
	return nil
}

// Transform converts text to a vector of length Dim(). Terms outside the
// learned vocabulary are ignored; text with no known term maps to zeros.
func (v *TFIDFVectorizer) Transform(s string) []float64 {
	out := make([]float64, v.Dimensions)
	if v.projection == nil {
		return out
	}

	weighted := v.weigh(text.Terms(s))
	_, k := v.projection.Dims()
	var projected mat.VecDense
	projected.MulVec(v.projection.T(), mat.NewVecDense(len(weighted), weighted))
	for i := 0; i < k; i++ {
		out[i] = projected.AtVec(i)
	}
	return out
}

// weigh returns the L2-normalized tf-idf vector of the given terms.
func (v *TFIDFVectorizer) weigh(terms []string) []float64 {
	vector := make([]float64, len(v.Vocabulary))
	if len(terms) == 0 {
		return vector
	}

	tf := make(map[string]float64)
	for _, term := range terms {
		tf[term]++
	}

	var norm float64
	for term, count := range tf {
		if idx, exists := v.Vocabulary[term]; exists {
			w := (count / float64(len(terms))) * v.IDF[idx]
			vector[idx] = w
			norm += w * w
		}
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range vector {
			vector[i] *= inv
		}
	}
	return vector
}

// sampleRows picks at most limit row indices spread evenly over n rows.
func sampleRows(n, limit int) []int {
	if n <= limit {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	rows := make([]int, limit)
	stride := float64(n) / float64(limit)
	for i := range rows {
		rows[i] = int(float64(i) * stride)
	}
	return rows
}
