package domain

import "context"

// Reranker scores documents against a query with a cross-encoder. The
// returned slice is aligned with the documents argument. Score scale is
// model-defined and may be negative.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}
