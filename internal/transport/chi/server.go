// Package chi exposes the matching engine over HTTP: single and batch
// match, scenario ingestion, health and metrics.
package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/stepmatch/internal/domain"
	dommatch "github.com/kailas-cloud/stepmatch/internal/domain/match"
	logpkg "github.com/kailas-cloud/stepmatch/internal/logger"
	"github.com/kailas-cloud/stepmatch/internal/metrics"
	ingestuc "github.com/kailas-cloud/stepmatch/internal/usecase/ingest"
	matchuc "github.com/kailas-cloud/stepmatch/internal/usecase/match"
	reportuc "github.com/kailas-cloud/stepmatch/internal/usecase/report"
)

// Error codes returned in JSON error bodies.
const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorized"
	codeInternal     = "internal_error"
	codeUnavailable  = "unavailable"
)

const maxBatchSize = 500

// Matcher runs the matching pipeline for one query.
type Matcher interface {
	Match(ctx context.Context, q matchuc.Query) dommatch.Result
}

// Ingester loads scenarios into the catalog and reclusters it.
type Ingester interface {
	Ingest(ctx context.Context, scenarios []ingestuc.Scenario) (ingestuc.Stats, error)
	Recluster(ctx context.Context) (int, error)
}

// Pinger reports storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API surface.
type Server struct {
	matcher  Matcher
	runner   *reportuc.Runner
	ingester Ingester
	pinger   Pinger
	checker  domain.HealthChecker
	logger   *zap.Logger
}

// NewServer creates an HTTP API server. checker may be nil when the
// embedding provider has no health probe.
func NewServer(matcher Matcher, ingester Ingester, pinger Pinger, checker domain.HealthChecker, logger *zap.Logger) *Server {
	return &Server{
		matcher:  matcher,
		runner:   reportuc.NewRunner(matcher, logger),
		ingester: ingester,
		pinger:   pinger,
		checker:  checker,
		logger:   logger,
	}
}

// Routes mounts all endpoints on a new chi router.
func (s *Server) Routes(apiKeys []string) chi.Router {
	r := chi.NewRouter()
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(requestLogger(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/match", s.handleMatch)
		r.Post("/match/batch", s.handleMatchBatch)
		r.Post("/ingest", s.handleIngest)
	})
	return r
}

// requestLogger stores a logger carrying the request id in the context, so
// handler logs can be correlated with access logs.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := base
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				l = base.With(zap.String("request_id", reqID))
			}
			next.ServeHTTP(w, r.WithContext(logpkg.ContextWithLogger(r.Context(), l)))
		})
	}
}

type matchRequest struct {
	QueryID       string   `json:"query_id"`
	ParentID      string   `json:"parent_testcase_id"`
	ChunkIndex    int      `json:"chunk_index"`
	Text          string   `json:"text"`
	FullTestcase  string   `json:"full_testcase_text"`
	PreviousSteps []string `json:"previous_steps,omitempty"`
}

type candidateResponse struct {
	ID          string   `json:"id"`
	Template    string   `json:"template"`
	Similarity  float64  `json:"similarity"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
	UsageCount  int      `json:"usage_count"`
	ClusterID   string   `json:"cluster_id,omitempty"`
	Synthesized bool     `json:"synthesized,omitempty"`
}

type matchResponse struct {
	QueryID          string              `json:"query_id"`
	ParentID         string              `json:"parent_testcase_id,omitempty"`
	ChunkIndex       int                 `json:"chunk_index"`
	NormalizedText   string              `json:"normalized_text"`
	FinalAction      string              `json:"final_action"`
	SelectedID       string              `json:"selected_candidate_id,omitempty"`
	SelectedTemplate string              `json:"selected_template,omitempty"`
	RerankScore      *float64            `json:"reranker_score,omitempty"`
	VectorSimilarity *float64            `json:"vector_similarity,omitempty"`
	TopCandidates    []candidateResponse `json:"top_k_candidates"`
	ProcessingTimeMs float64             `json:"processing_time_ms"`
	Notes            string              `json:"notes,omitempty"`
}

// handleMatch handles POST /v1/match.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "text is required")
		return
	}

	res := s.matcher.Match(r.Context(), matchuc.Query{
		QueryID:       req.QueryID,
		ParentID:      req.ParentID,
		ChunkIndex:    req.ChunkIndex,
		Text:          req.Text,
		FullTestcase:  req.FullTestcase,
		PreviousSteps: req.PreviousSteps,
	})
	writeJSON(w, http.StatusOK, matchToResponse(res))
}

type batchMatchRequest struct {
	Queries []matchRequest `json:"queries"`
}

type batchMatchResponse struct {
	Results []matchResponse `json:"results"`
	Report  reportSummary   `json:"report"`
}

type reportSummary struct {
	TotalQueries int                    `json:"total_queries"`
	Actions      map[string]actionCount `json:"action_distribution"`
	MatchRate    float64                `json:"match_rate"`
	Latency      reportuc.LatencyStats  `json:"latency"`
	VectorScores *reportuc.ScoreStats   `json:"vector_scores,omitempty"`
	RerankScores *reportuc.ScoreStats   `json:"reranker_scores,omitempty"`
}

type actionCount struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// handleMatchBatch handles POST /v1/match/batch.
func (s *Server) handleMatchBatch(w http.ResponseWriter, r *http.Request) {
	var req batchMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "queries is required")
		return
	}
	if len(req.Queries) > maxBatchSize {
		writeError(w, http.StatusBadRequest, codeBadRequest, "batch exceeds maximum size")
		return
	}

	queries := make([]matchuc.Query, len(req.Queries))
	for i, q := range req.Queries {
		queries[i] = matchuc.Query{
			QueryID:       q.QueryID,
			ParentID:      q.ParentID,
			ChunkIndex:    q.ChunkIndex,
			Text:          q.Text,
			FullTestcase:  q.FullTestcase,
			PreviousSteps: q.PreviousSteps,
		}
	}

	results, rep := s.runner.Run(r.Context(), queries)

	resp := batchMatchResponse{
		Results: make([]matchResponse, len(results)),
		Report:  summarize(rep),
	}
	for i, res := range results {
		resp.Results[i] = matchToResponse(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

type ingestRequest struct {
	Scenarios []ingestScenario `json:"scenarios"`
	Recluster bool             `json:"recluster"`
}

type ingestScenario struct {
	ScenarioID string `json:"scenario_id"`
	BDDText    string `json:"bdd_text"`
}

type ingestResponse struct {
	Scenarios    int `json:"scenarios"`
	Steps        int `json:"steps"`
	SkippedEmpty int `json:"skipped_empty"`
	TokensUsed   int `json:"tokens_used"`
	Clusters     int `json:"clusters,omitempty"`
}

// handleIngest handles POST /v1/ingest.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Scenarios) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "scenarios is required")
		return
	}

	scenarios := make([]ingestuc.Scenario, len(req.Scenarios))
	for i, sc := range req.Scenarios {
		if sc.ScenarioID == "" {
			writeError(w, http.StatusBadRequest, codeBadRequest, "scenario_id is required")
			return
		}
		scenarios[i] = ingestuc.Scenario{ScenarioID: sc.ScenarioID, BDDText: sc.BDDText}
	}

	stats, err := s.ingester.Ingest(r.Context(), scenarios)
	if err != nil {
		logpkg.FromContext(r.Context()).Error("Ingestion failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "ingestion failed")
		return
	}

	resp := ingestResponse{
		Scenarios:    stats.Scenarios,
		Steps:        stats.Steps,
		SkippedEmpty: stats.SkippedEmpty,
		TokensUsed:   stats.TokensUsed,
	}
	if req.Recluster {
		clusters, err := s.ingester.Recluster(r.Context())
		if err != nil {
			logpkg.FromContext(r.Context()).Error("Recluster failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, codeInternal, "recluster failed")
			return
		}
		resp.Clusters = clusters
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "database unreachable")
		return
	}
	if s.checker != nil {
		if err := s.checker.HealthCheck(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, "embedding provider unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func matchToResponse(res dommatch.Result) matchResponse {
	out := matchResponse{
		QueryID:          res.QueryID,
		ParentID:         res.ParentID,
		ChunkIndex:       res.ChunkIndex,
		NormalizedText:   res.NormalizedText,
		FinalAction:      string(res.FinalAction),
		SelectedID:       res.SelectedID,
		SelectedTemplate: res.SelectedTemplate,
		RerankScore:      res.RerankScore,
		VectorSimilarity: res.VectorSimilarity,
		TopCandidates:    make([]candidateResponse, len(res.TopCandidates)),
		ProcessingTimeMs: float64(res.Latency.Microseconds()) / 1000,
		Notes:            res.Notes,
	}
	for i, c := range res.TopCandidates {
		out.TopCandidates[i] = candidateResponse{
			ID:          c.ID,
			Template:    c.Template(),
			Similarity:  c.Similarity,
			RerankScore: c.RerankScore,
			UsageCount:  c.UsageCount,
			ClusterID:   c.ClusterID,
			Synthesized: c.Synthesized,
		}
	}
	return out
}

func summarize(rep reportuc.Report) reportSummary {
	sum := reportSummary{
		TotalQueries: rep.TotalQueries,
		Actions:      make(map[string]actionCount, len(rep.Actions)),
		MatchRate:    rep.Coverage.MatchRate,
		Latency:      rep.Latency,
		VectorScores: rep.VectorSimilarity,
		RerankScores: rep.RerankScore,
	}
	for action, c := range rep.Actions {
		sum.Actions[string(action)] = actionCount{Count: c.Count, Percentage: c.Percentage}
	}
	return sum
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
