// Package match orchestrates the chunk matching pipeline: normalize, embed,
// retrieve, gate the reranker, apply the threshold policy and fall back when
// the primary path is inconclusive.
package match

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
	domfall "github.com/kailas-cloud/stepmatch/internal/domain/fallback"
	dommatch "github.com/kailas-cloud/stepmatch/internal/domain/match"
	domnorm "github.com/kailas-cloud/stepmatch/internal/domain/normalize"
	"github.com/kailas-cloud/stepmatch/internal/metrics"
	"github.com/kailas-cloud/stepmatch/internal/normalizer"
)

// noCandidatesNote is the canonical note for an empty retrieval result.
const noCandidatesNote = "No candidates found in vector search"

// emptyRerankNote is the canonical note for a reranker that returned nothing.
const emptyRerankNote = "Reranking returned no results"

// Options holds the tuned pipeline parameters.
type Options struct {
	TopKResults       int
	PrefilterLimit    int
	EFSearch          int
	RerankEnabled     bool
	RerankTopK        int
	MinScoreThreshold float64 // reranker score scale, may be negative
	VectorThreshold   float64 // similarity threshold when rerank is skipped
	Decision          DecisionConfig
}

// Query is one atomic chunk to match against the step catalog.
type Query struct {
	QueryID       string
	ParentID      string
	ChunkIndex    int
	Text          string
	FullTestcase  string
	PreviousSteps []string
}

// Service is the matching pipeline orchestrator.
type Service struct {
	norm      *normalizer.Normalizer
	embed     Embedder
	retriever Retriever
	reranker  Reranker
	usage     UsageTracker
	fallback  FallbackRunner
	opts      Options
	logger    *zap.Logger
}

// New creates the matching service. reranker and fallback may be nil when
// the corresponding features are disabled.
func New(
	norm *normalizer.Normalizer,
	embed Embedder,
	retriever Retriever,
	reranker Reranker,
	usage UsageTracker,
	fb FallbackRunner,
	opts Options,
	logger *zap.Logger,
) *Service {
	return &Service{
		norm:      norm,
		embed:     embed,
		retriever: retriever,
		reranker:  reranker,
		usage:     usage,
		fallback:  fb,
		opts:      opts,
		logger:    logger,
	}
}

// Match runs the full pipeline for one chunk. It never returns an error:
// infrastructure failures degrade to NEW_BDD_REQUIRED with the error text
// in Notes, so one broken chunk cannot sink a whole batch.
func (s *Service) Match(ctx context.Context, q Query) dommatch.Result {
	start := time.Now()

	res := s.match(ctx, q, start)

	metrics.MatchDecisionsTotal.WithLabelValues(string(res.FinalAction)).Inc()
	metrics.MatchDuration.Observe(res.Latency.Seconds())
	return res
}

func (s *Service) match(ctx context.Context, q Query, start time.Time) dommatch.Result {
	base := dommatch.Result{
		QueryID:       q.QueryID,
		ParentID:      q.ParentID,
		ChunkIndex:    q.ChunkIndex,
		OriginalChunk: q.Text,
		FullTestcase:  q.FullTestcase,
		FinalAction:   dommatch.NewBDDRequired,
	}

	normalized := s.norm.Normalize(q.Text)
	base.NormalizedText = normalized.NormalizedText

	emb, err := s.embed.Embed(ctx, normalized.NormalizedText)
	if err != nil {
		return s.fail(base, start, fmt.Errorf("embed query: %w", err))
	}

	cands, err := s.retriever.Retrieve(ctx, emb.Embedding, s.opts.PrefilterLimit, s.opts.EFSearch)
	if err != nil {
		return s.fail(base, start, fmt.Errorf("retrieve candidates: %w", err))
	}

	if len(cands) == 0 {
		base.Notes = noCandidatesNote
		base.Latency = time.Since(start)
		return base
	}

	topSim := cands[0].Similarity

	scores := make([]float64, len(cands))
	for i, c := range cands {
		scores[i] = c.Similarity
	}
	decision := s.decide(scores)
	metrics.RerankSkipsTotal.WithLabelValues(decision.Reason).Inc()

	var (
		top            []candidate.Candidate
		topRerankScore *float64
	)

	if decision.Skip {
		k := min(s.opts.Decision.TargetTopK, len(cands))
		top = append([]candidate.Candidate(nil), cands[:k]...)
		base.Notes = decision.Detail
	} else {
		reranked, err := s.rerank(ctx, normalized, cands)
		if err != nil {
			return s.fail(base, start, err)
		}
		if len(reranked) == 0 {
			base.VectorSimilarity = &topSim
			base.Notes = emptyRerankNote
			base.Latency = time.Since(start)
			return base
		}
		k := min(s.opts.TopKResults, len(reranked))
		top = reranked[:k]
		topRerankScore = top[0].RerankScore
	}

	base.TopCandidates = top
	base.SelectedID = top[0].ID
	base.SelectedTemplate = top[0].Template()
	base.RerankScore = topRerankScore
	base.VectorSimilarity = &topSim

	if s.hasGoodMatch(top, decision.Skip) {
		base.FinalAction = dommatch.ReusedTemplate
		s.trackUsage(ctx, base.SelectedID)
		base.Latency = time.Since(start)
		return base
	}

	// Low confidence: run the fallback chain before giving up.
	if s.fallback != nil {
		in := domfall.Input{
			QueryText:      q.Text,
			NormalizedText: normalized.NormalizedText,
			Embedding:      emb.Embedding,
			PreviousSteps:  q.PreviousSteps,
		}
		if topRerankScore != nil {
			in.TopRerankScore = *topRerankScore
			in.HasRerankScore = true
		}

		fbRes := s.fallback.Execute(ctx, in)
		metrics.FallbackStagesTotal.WithLabelValues(string(fbRes.StageUsed)).Inc()

		if fbRes.Success && len(fbRes.Candidates) > 0 {
			return s.acceptFallback(ctx, base, fbRes, start)
		}
	}

	base.FinalAction = dommatch.NewBDDRequired
	base.Latency = time.Since(start)
	return base
}

func (s *Service) decide(scores []float64) Decision {
	if !s.opts.RerankEnabled || s.reranker == nil {
		// Without a reranker every decision rides on vector similarity.
		return Decision{Skip: true, Reason: ReasonDisabled, Detail: "reranker disabled"}
	}
	return ShouldSkipRerank(s.opts.Decision, scores)
}

// rerank scores the best prefilter candidates with the cross-encoder and
// returns them sorted by descending rerank score.
func (s *Service) rerank(
	ctx context.Context, normalized domnorm.Result, cands []candidate.Candidate,
) ([]candidate.Candidate, error) {
	k := min(s.opts.RerankTopK, len(cands))
	pool := append([]candidate.Candidate(nil), cands[:k]...)

	docs := make([]string, len(pool))
	for i, c := range pool {
		docs[i] = formatCandidate(c, s.norm)
	}

	rerankScores, err := s.reranker.Rerank(ctx, formatQuery(normalized), docs)
	if err != nil {
		return nil, fmt.Errorf("rerank candidates: %w", err)
	}
	if len(rerankScores) == 0 {
		return nil, nil
	}
	if len(rerankScores) != len(pool) {
		return nil, fmt.Errorf("rerank returned %d scores for %d candidates", len(rerankScores), len(pool))
	}

	for i := range pool {
		score := rerankScores[i]
		pool[i].RerankScore = &score
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return *pool[i].RerankScore > *pool[j].RerankScore
	})
	return pool, nil
}

// hasGoodMatch applies the one-to-many threshold: any top-K candidate
// clearing the relevant threshold makes the chunk a REUSED_TEMPLATE.
func (s *Service) hasGoodMatch(top []candidate.Candidate, skipped bool) bool {
	for _, c := range top {
		if skipped {
			if c.Similarity >= s.opts.VectorThreshold {
				return true
			}
			continue
		}
		if c.RerankScore != nil && *c.RerankScore >= s.opts.MinScoreThreshold {
			return true
		}
	}
	return false
}

func (s *Service) acceptFallback(
	ctx context.Context, base dommatch.Result, fbRes domfall.Result, start time.Time,
) dommatch.Result {
	k := min(s.opts.TopKResults, len(fbRes.Candidates))
	top := fbRes.Candidates[:k]

	base.TopCandidates = top
	base.SelectedID = top[0].ID
	base.SelectedTemplate = top[0].Template()
	base.FinalAction = dommatch.ReusedTemplate
	base.Notes = fmt.Sprintf("fallback %s (%s)", fbRes.StageUsed, fbRes.Confidence)
	if top[0].RerankScore != nil {
		base.RerankScore = top[0].RerankScore
	}

	if !top[0].Synthesized {
		s.trackUsage(ctx, top[0].ID)
	}

	base.Latency = time.Since(start)
	return base
}

// trackUsage bumps the reuse counter; a failed increment never affects the
// match outcome.
func (s *Service) trackUsage(ctx context.Context, id string) {
	if s.usage == nil || id == "" {
		return
	}
	if _, err := s.usage.IncrementUsage(ctx, id); err != nil {
		s.logger.Warn("Failed to increment step usage", zap.String("step_id", id), zap.Error(err))
	}
}

func (s *Service) fail(base dommatch.Result, start time.Time, err error) dommatch.Result {
	s.logger.Warn("Match pipeline degraded", zap.String("query_id", base.QueryID), zap.Error(err))
	base.FinalAction = dommatch.NewBDDRequired
	base.Notes = "Error: " + err.Error()
	base.Latency = time.Since(start)
	return base
}
