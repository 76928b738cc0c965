// Package stepmatch provides an embedded Go client for the stepmatch
// decision engine: it matches free-form manual test steps against a catalog
// of indexed BDD steps backed by Redis vector search.
//
//	client, _ := stepmatch.New(ctx,
//	    stepmatch.WithRedis("localhost:6379", ""),
//	    stepmatch.WithOpenAI(apiKey, "", "text-embedding-3-small"),
//	)
//	defer client.Close()
//
//	_, _ = client.Ingest(ctx, scenarios)
//	res := client.Match(ctx, stepmatch.Query{QueryID: "tc-1_chunk_0", Text: "click the Pay button"})
package stepmatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stepmatch/internal/chunker"
	"github.com/kailas-cloud/stepmatch/internal/clustering"
	"github.com/kailas-cloud/stepmatch/internal/config"
	"github.com/kailas-cloud/stepmatch/internal/db"
	dbRedis "github.com/kailas-cloud/stepmatch/internal/db/redis"
	"github.com/kailas-cloud/stepmatch/internal/domain"
	"github.com/kailas-cloud/stepmatch/internal/metrics"
	"github.com/kailas-cloud/stepmatch/internal/normalizer"
	"github.com/kailas-cloud/stepmatch/internal/repository/embcache"
	retrievalrepo "github.com/kailas-cloud/stepmatch/internal/repository/retrieval"
	stepsrepo "github.com/kailas-cloud/stepmatch/internal/repository/steps"
	openaiEmb "github.com/kailas-cloud/stepmatch/internal/transport/openai"
	rerankTransport "github.com/kailas-cloud/stepmatch/internal/transport/rerank"
	fallbackuc "github.com/kailas-cloud/stepmatch/internal/usecase/fallback"
	ingestuc "github.com/kailas-cloud/stepmatch/internal/usecase/ingest"
	matchuc "github.com/kailas-cloud/stepmatch/internal/usecase/match"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultDimensions       = 1536 // text-embedding-3-small
)

// Client is the embedded stepmatch entry point. It owns the database
// connection and the full matching pipeline.
type Client struct {
	store     db.Store
	matchSvc  *matchuc.Service
	ingestSvc *ingestuc.Service
	norm      *normalizer.Normalizer
	chunk     *chunker.Chunker
}

// New creates a Client and connects to the database.
// The provided context bounds the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{vectorDimensions: defaultDimensions}
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("stepmatch: database address required (use WithRedis)")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Username: cfg.username,
		Password: cfg.password,
		DB:       cfg.db,
	})
	if err != nil {
		return nil, fmt.Errorf("stepmatch: create store: %w", err)
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("stepmatch: database not ready: %w", err)
	}

	c, err := wireClient(ctx, store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig) (*Client, error) {
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Pipeline tuning shares the server defaults.
	var tuned config.Config
	tuned.ApplyDefaults()
	if cfg.vectorThreshold > 0 {
		tuned.Matching.VectorThreshold = cfg.vectorThreshold
	}
	tuned.Matching.MinScoreThreshold = cfg.minScoreThreshold
	if cfg.hnswM > 0 {
		tuned.Index.HNSWM = cfg.hnswM
	}
	if cfg.hnswEFConstruct > 0 {
		tuned.Index.HNSWEFConstruct = cfg.hnswEFConstruct
	}

	stepsRepo := stepsrepo.New(store)
	if err := stepsRepo.EnsureIndex(ctx, cfg.vectorDimensions, tuned.Index.HNSWM, tuned.Index.HNSWEFConstruct); err != nil {
		return nil, fmt.Errorf("stepmatch: ensure step index: %w", err)
	}
	retrRepo := retrievalrepo.New(store)

	embedder := buildEmbedder(cfg, store, logger)
	norm := normalizer.New(normalizer.Config{Version: tuned.Normalization.Version})

	var reranker matchuc.Reranker
	if cfg.rerankBaseURL != "" {
		reranker = rerankTransport.New(&rerankTransport.Config{
			BaseURL: cfg.rerankBaseURL,
			APIKey:  cfg.rerankAPIKey,
			Model:   cfg.rerankModel,
			Logger:  logger,
		})
	}

	fallbackChain := fallbackuc.New(norm, embedder, retrRepo, reranker, fallbackuc.Options{
		RelaxedLimit:          tuned.Retrieval.RelaxedLimit,
		EFRelaxed:             tuned.Retrieval.EFRelaxed,
		RerankTopK:            tuned.Rerank.TopK,
		MedConfThreshold:      tuned.Matching.MedConfThreshold,
		LowConfThreshold:      tuned.Matching.LowConfThreshold,
		WeakClusterMinMembers: tuned.Fallbacks.WeakClusterMinMembers,
		EnableLexicalSearch:   true,
		EnableRuleSynthesis:   true,
	}, logger)

	matchSvc := matchuc.New(norm, embedder, retrRepo, reranker, stepsRepo, fallbackChain, matchuc.Options{
		TopKResults:       tuned.Matching.TopKResults,
		PrefilterLimit:    tuned.Retrieval.PrefilterLimit,
		EFSearch:          tuned.Retrieval.EFSearch,
		RerankEnabled:     reranker != nil,
		RerankTopK:        tuned.Rerank.TopK,
		MinScoreThreshold: tuned.Matching.MinScoreThreshold,
		VectorThreshold:   tuned.Matching.VectorThreshold,
		Decision: matchuc.DecisionConfig{
			TargetTopK:             tuned.DynamicRerank.TargetTopK,
			MinPercentileRank:      tuned.DynamicRerank.MinPercentileRank,
			PercentileGapThreshold: tuned.DynamicRerank.PercentileGapThreshold,
			ClusterSeparation:      tuned.DynamicRerank.ClusterSeparation,
			TopPercentile:          tuned.DynamicRerank.TopPercentile,
			TopKMinPercentile:      tuned.DynamicRerank.TopKMinPercentile,
		},
	}, logger)

	clusterer := clustering.New(clustering.Config{
		DistanceThreshold: tuned.Clustering.Threshold,
		MinClusterSize:    tuned.Clustering.MinClusterSize,
	})
	ingestSvc := ingestuc.New(stepsRepo, embedder, norm, clusterer, cfg.batchSize, logger)

	return &Client{
		store:     store,
		matchSvc:  matchSvc,
		ingestSvc: ingestSvc,
		norm:      norm,
		chunk:     chunker.New(chunker.Config{}),
	}, nil
}

func buildEmbedder(cfg *clientConfig, store db.Store, logger *zap.Logger) *embcache.CachedEmbedder {
	var inner domain.Embedder
	switch {
	case cfg.embedder != nil:
		inner = &embedderAdapter{inner: cfg.embedder}
	case cfg.openAIKey != "":
		inner = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.openAIKey,
			BaseURL:    cfg.openAIBaseURL,
			Model:      cfg.openAIModel,
			Dimensions: cfg.vectorDimensions,
			Logger:     logger,
		})
	default:
		inner = noopEmbedder{}
	}
	return embcache.New(inner, store, metrics.EmbeddingCacheTotal, logger)
}

// Close releases the database connection.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// embedderAdapter wraps the public Embedder to satisfy domain.Embedder.
// Batch calls go through domain.BatchFallback inside the cache decorator.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// noopEmbedder returns an error on Embed call (used when no embedder configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.New(
		"stepmatch: embedder not configured (use WithEmbedder or WithOpenAI)",
	)
}
