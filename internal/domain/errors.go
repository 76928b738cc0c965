package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrEmptyRerank signals that the reranker returned no scored candidates.
	ErrEmptyRerank = errors.New("reranking returned no results")
	// ErrVectorDimMismatch signals an embedding width that does not match the index.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRerankerError signals a reranker service failure.
	ErrRerankerError = errors.New("reranker error")
)
