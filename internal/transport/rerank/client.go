// Package rerank provides a cross-encoder client for TEI-compatible
// rerank endpoints (POST /rerank).
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stepmatch/internal/domain"
	"github.com/kailas-cloud/stepmatch/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// Config holds the rerank endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client implements domain.Reranker against a TEI-compatible HTTP endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *zap.Logger
}

// New creates a rerank client.
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		logger:     cfg.Logger,
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	Model     string   `json:"model,omitempty"`
	RawScores bool     `json:"raw_scores"`
}

type rerankEntry struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores documents against the query. The result is aligned with
// the documents argument; entries the endpoint omits keep score 0.
func (c *Client) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Query:     query,
		Texts:     documents,
		Model:     c.model,
		RawScores: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RerankRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("rerank request: %w: %w", domain.ErrRerankerError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.RerankRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read rerank response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.RerankRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("rerank API error %d: %s: %w", resp.StatusCode, truncate(raw, 256), domain.ErrRerankerError)
	}

	var entries []rerankEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		metrics.RerankRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("parse rerank response: %w: %w", domain.ErrRerankerError, err)
	}

	if len(entries) == 0 {
		metrics.RerankRequestsTotal.WithLabelValues("error").Inc()
		return nil, domain.ErrEmptyRerank
	}

	metrics.RerankRequestsTotal.WithLabelValues("success").Inc()

	scores := make([]float64, len(documents))
	for _, e := range entries {
		if e.Index >= 0 && e.Index < len(scores) {
			scores[e.Index] = e.Score
		} else {
			c.logger.Warn("Rerank entry index out of range",
				zap.Int("index", e.Index), zap.Int("documents", len(documents)))
		}
	}
	return scores, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
