// Package index holds the labeled example store and the nearest-neighbor
// search over its embedding vectors. Two searchers implement the same
// contract: an in-process exact flat index persisted to disk, and a
// warehouse-backed remote index queried over the network.
package index

import (
	"context"
	"errors"

	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

var (
	// ErrEmptyIndex is returned when searching an index that was never built.
	ErrEmptyIndex = errors.New("index: index is empty")
	// ErrBadK is returned for a non-positive result count.
	ErrBadK = errors.New("index: k must be positive")
	// ErrDimensionMismatch is returned when a query vector's width differs
	// from the index dimension.
	ErrDimensionMismatch = errors.New("index: query vector dimension mismatch")
	// ErrMisaligned is returned when examples and vectors differ in count.
	ErrMisaligned = errors.New("index: example count does not match vector count")
	// ErrRaggedVectors is returned when input vectors are not uniform-width.
	ErrRaggedVectors = errors.New("index: vectors are not uniform dimension")
)

// Metric selects the distance function. Lower distance always means more
// similar, for both metrics.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// RetrievedExample is a transient view of one search hit, ordered by
// ascending distance within a result set.
type RetrievedExample struct {
	Text     string            `json:"text"`
	Category taxonomy.Category `json:"category"`
	Distance float32           `json:"distance"`
}

// Searcher is the k-nearest-neighbor capability both index variants provide.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]RetrievedExample, error)
}
