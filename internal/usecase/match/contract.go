package match

import (
	"context"

	"github.com/kailas-cloud/stepmatch/internal/domain"
	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
	domfall "github.com/kailas-cloud/stepmatch/internal/domain/fallback"
)

// Retriever fetches candidates from the step catalog.
type Retriever interface {
	Retrieve(ctx context.Context, vector []float32, k, efRuntime int) ([]candidate.Candidate, error)
}

// Embedder vectorizes normalized query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Reranker scores candidates against the query with a cross-encoder.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}

// UsageTracker records template reuse.
type UsageTracker interface {
	IncrementUsage(ctx context.Context, id string) (int64, error)
}

// FallbackRunner executes the escalating fallback chain.
type FallbackRunner interface {
	Execute(ctx context.Context, in domfall.Input) domfall.Result
}
