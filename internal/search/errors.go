package search

import "errors"

var (
	// ErrCorpusEmpty is returned when an index build is given no questions.
	// A previously built index is left untouched.
	ErrCorpusEmpty = errors.New("corpus is empty")

	// ErrInvalidArgument covers caller mistakes: non-positive top_k, weights
	// not summing to 1.0 and similar.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch indicates two vectors have different dimensions.
	// Seeing it outside of this package means the index build is broken.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
