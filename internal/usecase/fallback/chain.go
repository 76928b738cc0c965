// Package fallback runs the escalating recovery chain invoked when the
// primary matching path ends below threshold. Stages run in a fixed order
// and the first stage producing an acceptable result wins.
package fallback

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stepmatch/internal/domain"
	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
	domfall "github.com/kailas-cloud/stepmatch/internal/domain/fallback"
	"github.com/kailas-cloud/stepmatch/internal/normalizer"
	"github.com/kailas-cloud/stepmatch/internal/repository/retrieval"
)

// Retriever is the candidate source the chain searches with relaxed
// parameters and by lexical match.
type Retriever interface {
	Retrieve(ctx context.Context, vector []float32, k, efRuntime int) ([]candidate.Candidate, error)
	Lexical(ctx context.Context, query string, k int) ([]candidate.Candidate, error)
}

// Embedder produces embeddings for context-expanded queries.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Reranker scores candidates against a query text.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Options tunes the chain. Zero-valued flags disable their stage; relaxed
// search and cluster aggregation always run.
type Options struct {
	RelaxedLimit int
	EFRelaxed    int
	RerankTopK   int

	MedConfThreshold float64
	LowConfThreshold float64

	WeakClusterMinMembers  int
	EnableContextExpansion bool
	EnableLexicalSearch    bool
	EnableRuleSynthesis    bool
	EnableLLMSynthesis     bool
}

// Chain executes fallback stages in order. reranker may be nil, in which
// case the stages that depend on cross-encoder scores are skipped.
type Chain struct {
	norm      *normalizer.Normalizer
	embed     Embedder
	retriever Retriever
	reranker  Reranker
	opts      Options
	logger    *zap.Logger
}

// New creates the fallback chain.
func New(
	norm *normalizer.Normalizer,
	embed Embedder,
	retriever Retriever,
	reranker Reranker,
	opts Options,
	logger *zap.Logger,
) *Chain {
	return &Chain{
		norm:      norm,
		embed:     embed,
		retriever: retriever,
		reranker:  reranker,
		opts:      opts,
		logger:    logger,
	}
}

// Execute runs the chain for one failed query. It never returns an error:
// a stage that breaks is logged and the chain moves on, and when every
// stage fails the canonical failure result is returned.
func (c *Chain) Execute(ctx context.Context, in domfall.Input) domfall.Result {
	stages := []struct {
		name domfall.Stage
		run  func(context.Context, domfall.Input) (domfall.Result, error)
	}{
		{domfall.StageRelaxedSearch, c.relaxedSearch},
		{domfall.StageContextExpansion, c.contextExpansion},
		{domfall.StageLexicalSearch, c.lexicalSearch},
		{domfall.StageClusterAggregation, c.clusterAggregation},
		{domfall.StageRuleSynthesis, c.ruleSynthesis},
		{domfall.StageLLMSynthesis, c.llmSynthesis},
	}

	for _, stage := range stages {
		res, err := stage.run(ctx, in)
		if err != nil {
			c.logger.Warn("Fallback stage failed",
				zap.String("stage", string(stage.name)),
				zap.Error(err))
			continue
		}
		if res.Success {
			c.logger.Info("Fallback stage succeeded",
				zap.String("stage", string(stage.name)),
				zap.String("confidence", string(res.Confidence)))
			return res
		}
	}

	return domfall.Failed(domfall.StageNone)
}

// relaxedSearch retries the vector search with a wider beam and a larger
// candidate pool. Pointless when the primary path already produced a
// medium-confidence rerank score.
func (c *Chain) relaxedSearch(ctx context.Context, in domfall.Input) (domfall.Result, error) {
	if c.reranker == nil {
		return domfall.Failed(domfall.StageRelaxedSearch), nil
	}
	if in.HasRerankScore && in.TopRerankScore >= c.opts.MedConfThreshold {
		return domfall.Failed(domfall.StageRelaxedSearch), nil
	}

	cands, err := c.retriever.Retrieve(ctx, in.Embedding, c.opts.RelaxedLimit, c.opts.EFRelaxed)
	if err != nil {
		return domfall.Result{}, fmt.Errorf("relaxed search: %w", err)
	}
	return c.rerankAndAccept(ctx, domfall.StageRelaxedSearch, in.NormalizedText, cands)
}

// contextExpansion prepends the preceding chunks of the test case to the
// query and reruns the search, recovering steps whose meaning depends on
// what happened before.
func (c *Chain) contextExpansion(ctx context.Context, in domfall.Input) (domfall.Result, error) {
	if !c.opts.EnableContextExpansion || len(in.PreviousSteps) == 0 || c.reranker == nil {
		return domfall.Failed(domfall.StageContextExpansion), nil
	}

	expanded := strings.Join(in.PreviousSteps, " ") + " " + in.QueryText
	normalized := c.norm.Normalize(expanded)
	if normalized.Empty() {
		return domfall.Failed(domfall.StageContextExpansion), nil
	}

	emb, err := c.embed.Embed(ctx, normalized.NormalizedText)
	if err != nil {
		return domfall.Result{}, fmt.Errorf("context expansion embed: %w", err)
	}
	cands, err := c.retriever.Retrieve(ctx, emb.Embedding, c.opts.RelaxedLimit, c.opts.EFRelaxed)
	if err != nil {
		return domfall.Result{}, fmt.Errorf("context expansion search: %w", err)
	}
	return c.rerankAndAccept(ctx, domfall.StageContextExpansion, normalized.NormalizedText, cands)
}

// lexicalSearch matches on normalized step text instead of embeddings,
// catching exact-wording reuse that the vector space missed.
func (c *Chain) lexicalSearch(ctx context.Context, in domfall.Input) (domfall.Result, error) {
	if !c.opts.EnableLexicalSearch || c.reranker == nil {
		return domfall.Failed(domfall.StageLexicalSearch), nil
	}

	cands, err := c.retriever.Lexical(ctx, in.NormalizedText, c.opts.RerankTopK)
	if err != nil {
		return domfall.Result{}, fmt.Errorf("lexical search: %w", err)
	}
	return c.rerankAndAccept(ctx, domfall.StageLexicalSearch, in.NormalizedText, cands)
}

// clusterAggregation votes across step clusters: when a cluster with enough
// members dominates the relaxed search result, its best member is accepted
// at low confidence even though no single candidate cleared threshold.
func (c *Chain) clusterAggregation(ctx context.Context, in domfall.Input) (domfall.Result, error) {
	cands, err := c.retriever.Retrieve(ctx, in.Embedding, c.opts.RelaxedLimit, c.opts.EFRelaxed)
	if err != nil {
		return domfall.Result{}, fmt.Errorf("cluster aggregation search: %w", err)
	}

	for _, cluster := range retrieval.AggregateClusters(cands) {
		if len(cluster.Members) <= c.opts.WeakClusterMinMembers {
			continue
		}
		best := cluster.BestMember()
		c.logger.Debug("Cluster vote accepted",
			zap.String("cluster_id", cluster.ClusterID),
			zap.Int("members", len(cluster.Members)),
			zap.Float64("score", cluster.Score))
		return domfall.Result{
			Success:    true,
			Candidates: []candidate.Candidate{best},
			StageUsed:  domfall.StageClusterAggregation,
			Confidence: domfall.LowConf,
		}, nil
	}
	return domfall.Failed(domfall.StageClusterAggregation), nil
}

// ruleSynthesis fabricates a BDD step template from the extracted action
// verb, primary object and placeholder tags. The result never points at a
// stored step, so it is marked synthesized and usage is not tracked.
func (c *Chain) ruleSynthesis(_ context.Context, in domfall.Input) (domfall.Result, error) {
	if !c.opts.EnableRuleSynthesis {
		return domfall.Failed(domfall.StageRuleSynthesis), nil
	}

	normalized := c.norm.Normalize(in.QueryText)
	if normalized.ActionVerb == "" || normalized.PrimaryObject == "" {
		return domfall.Failed(domfall.StageRuleSynthesis), nil
	}

	parts := []string{normalized.ActionVerb, "the", normalized.PrimaryObject}
	for _, p := range normalized.Placeholders {
		parts = append(parts, p.Type.Tag())
	}
	template := strings.Join(parts, " ")

	score := synthesizedScore
	return domfall.Result{
		Success: true,
		Candidates: []candidate.Candidate{{
			StepType:    "When",
			StepText:    template,
			RerankScore: &score,
			Synthesized: true,
		}},
		StageUsed:  domfall.StageRuleSynthesis,
		Confidence: domfall.LowConf,
	}, nil
}

// synthesizedScore is the fixed confidence assigned to rule-synthesized
// templates; they are suggestions, not matches.
const synthesizedScore = 0.5

// llmSynthesis is reserved for generative template synthesis. No provider
// is wired yet, so the stage always fails even when enabled.
func (c *Chain) llmSynthesis(_ context.Context, _ domfall.Input) (domfall.Result, error) {
	if c.opts.EnableLLMSynthesis {
		c.logger.Debug("LLM synthesis enabled but no provider is configured")
	}
	return domfall.Failed(domfall.StageLLMSynthesis), nil
}

// rerankAndAccept scores candidates against the query and accepts the stage
// when the best score clears the medium-confidence threshold.
func (c *Chain) rerankAndAccept(
	ctx context.Context, stage domfall.Stage, query string, cands []candidate.Candidate,
) (domfall.Result, error) {
	if len(cands) == 0 {
		return domfall.Failed(stage), nil
	}
	if len(cands) > c.opts.RerankTopK {
		cands = cands[:c.opts.RerankTopK]
	}

	docs := make([]string, len(cands))
	for i, cand := range cands {
		docs[i] = candidateText(cand)
	}
	scores, err := c.reranker.Rerank(ctx, query, docs)
	if err != nil {
		return domfall.Result{}, fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(cands) {
		return domfall.Result{}, fmt.Errorf("rerank returned %d scores for %d candidates", len(scores), len(cands))
	}

	ranked := append([]candidate.Candidate(nil), cands...)
	for i := range ranked {
		score := scores[i]
		ranked[i].RerankScore = &score
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].RerankScore > *ranked[j].RerankScore
	})

	if *ranked[0].RerankScore < c.opts.MedConfThreshold {
		return domfall.Failed(stage), nil
	}
	return domfall.Result{
		Success:    true,
		Candidates: ranked,
		StageUsed:  stage,
		Confidence: domfall.MedConf,
	}, nil
}

// candidateText picks the best available text for cross-encoder scoring.
func candidateText(c candidate.Candidate) string {
	switch {
	case c.StepNormalized != "":
		return c.StepNormalized
	case c.StepText != "":
		return c.StepText
	default:
		return c.ScenarioFullText
	}
}
