package stepmatch

import (
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs    []string
	username string
	password string
	db       int

	embedder Embedder

	openAIKey     string
	openAIBaseURL string
	openAIModel   string

	rerankBaseURL string
	rerankAPIKey  string
	rerankModel   string

	vectorDimensions int
	hnswM            int
	hnswEFConstruct  int
	batchSize        int

	vectorThreshold   float64
	minScoreThreshold float64

	logger *zap.Logger
}

// WithRedis configures the client to connect to a Redis instance with the
// search and JSON modules loaded.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedisDB selects a logical database number. Default: 0.
func WithRedisDB(db int) Option {
	return optionFunc(func(c *clientConfig) {
		c.db = db
	})
}

// WithEmbedder sets a custom text embedding provider. Takes precedence
// over WithOpenAI.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithOpenAI configures the built-in OpenAI-compatible embedding provider.
// baseURL may be empty for api.openai.com.
func WithOpenAI(apiKey, baseURL, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAIKey = apiKey
		c.openAIBaseURL = baseURL
		c.openAIModel = model
	})
}

// WithReranker enables the cross-encoder rerank stage against a TEI-style
// /rerank endpoint. Without it, decisions fall back to raw vector similarity.
func WithReranker(baseURL, apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.rerankBaseURL = baseURL
		c.rerankAPIKey = apiKey
		c.rerankModel = model
	})
}

// WithVectorDimensions sets the embedding dimension for the step index.
// Default: 1536 (text-embedding-3-small).
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithHNSW configures HNSW index parameters (M and EF construction).
// Defaults: M=32, EFConstruct=400.
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	})
}

// WithBatchSize bounds the number of texts per embedding API call during
// ingestion. Default: 64.
func WithBatchSize(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.batchSize = size
	})
}

// WithThresholds overrides the acceptance thresholds: vector similarity for
// the rerank-skip path and the minimum cross-encoder score for the rerank
// path. Defaults: 0.65 and the model scale zero respectively.
func WithThresholds(vector, minScore float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorThreshold = vector
		c.minScoreThreshold = minScore
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
