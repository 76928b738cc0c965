package fallback

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stepmatch/internal/domain"
	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
	domfall "github.com/kailas-cloud/stepmatch/internal/domain/fallback"
	"github.com/kailas-cloud/stepmatch/internal/normalizer"
)

type mockRetriever struct {
	vectorHits  []candidate.Candidate
	lexicalHits []candidate.Candidate
}

func (m *mockRetriever) Retrieve(_ context.Context, _ []float32, _, _ int) ([]candidate.Candidate, error) {
	return m.vectorHits, nil
}

func (m *mockRetriever) Lexical(_ context.Context, _ string, _ int) ([]candidate.Candidate, error) {
	return m.lexicalHits, nil
}

type mockEmbedder struct{}

func (mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type mockReranker struct {
	scores []float64
	calls  int
}

func (m *mockReranker) Rerank(_ context.Context, _ string, docs []string) ([]float64, error) {
	m.calls++
	if m.scores != nil {
		return m.scores, nil
	}
	return make([]float64, len(docs)), nil
}

func testOptions() Options {
	return Options{
		RelaxedLimit:          100,
		EFRelaxed:             300,
		RerankTopK:            10,
		MedConfThreshold:      0.70,
		LowConfThreshold:      0.50,
		WeakClusterMinMembers: 3,
	}
}

func newChain(r *mockRetriever, rr *mockReranker, opts Options) *Chain {
	var reranker Reranker
	if rr != nil {
		reranker = rr
	}
	return New(normalizer.New(normalizer.Config{}), mockEmbedder{}, r, reranker, opts, zap.NewNop())
}

func TestExecute_LexicalStageWins(t *testing.T) {
	// Vector search finds nothing, so relaxed search and cluster
	// aggregation cannot produce a result; lexical search can.
	retr := &mockRetriever{lexicalHits: []candidate.Candidate{
		{ID: "lex1", StepType: "When", StepText: "select the payment option"},
		{ID: "lex2", StepType: "When", StepText: "select the shipping option"},
	}}
	rr := &mockReranker{scores: []float64{0.91, 0.12}}

	opts := testOptions()
	opts.EnableLexicalSearch = true

	res := newChain(retr, rr, opts).Execute(context.Background(), domfall.Input{
		QueryText:      "select the payment option",
		NormalizedText: "select the payment option",
		Embedding:      []float32{1, 0},
	})

	if !res.Success {
		t.Fatal("chain failed, want lexical success")
	}
	if res.StageUsed != domfall.StageLexicalSearch {
		t.Errorf("stage = %s, want lexical_search", res.StageUsed)
	}
	if res.Confidence != domfall.MedConf {
		t.Errorf("confidence = %s, want MED_CONF", res.Confidence)
	}
	if res.Candidates[0].ID != "lex1" {
		t.Errorf("best = %s, want lex1", res.Candidates[0].ID)
	}
}

func TestExecute_LexicalDisabledMeansNoLexicalOutcome(t *testing.T) {
	retr := &mockRetriever{lexicalHits: []candidate.Candidate{
		{ID: "lex1", StepText: "select the payment option"},
	}}
	rr := &mockReranker{scores: []float64{0.99}}

	res := newChain(retr, rr, testOptions()).Execute(context.Background(), domfall.Input{
		NormalizedText: "select the payment option",
	})

	if res.Success {
		t.Fatalf("stage %s succeeded, want total failure", res.StageUsed)
	}
	if res.StageUsed != domfall.StageNone {
		t.Errorf("stage = %s, want %s", res.StageUsed, domfall.StageNone)
	}
	if res.Confidence != domfall.NoMatch {
		t.Errorf("confidence = %s, want NO_MATCH", res.Confidence)
	}
}

func TestExecute_RelaxedSkippedWhenPrimaryScoreWasGood(t *testing.T) {
	retr := &mockRetriever{vectorHits: []candidate.Candidate{
		{ID: "v1", StepText: "open the settings page", Similarity: 0.6},
	}}
	rr := &mockReranker{scores: []float64{0.95}}

	res := newChain(retr, rr, testOptions()).Execute(context.Background(), domfall.Input{
		NormalizedText: "open the settings page",
		TopRerankScore: 0.85,
		HasRerankScore: true,
	})

	if rr.calls != 0 {
		t.Errorf("reranker called %d times, want 0 when the primary score was already confident", rr.calls)
	}
	if res.Success {
		t.Errorf("stage %s succeeded, want failure", res.StageUsed)
	}
}

func TestExecute_ClusterVote(t *testing.T) {
	retr := &mockRetriever{vectorHits: []candidate.Candidate{
		{ID: "a", ClusterID: "c1", StepText: "scan the item", Similarity: 0.55, UsageCount: 4},
		{ID: "b", ClusterID: "c1", StepText: "scan an item", Similarity: 0.60, UsageCount: 9},
		{ID: "c", ClusterID: "c1", StepText: "scan items", Similarity: 0.52},
		{ID: "d", ClusterID: "c1", StepText: "scan the items", Similarity: 0.50},
		{ID: "e", StepText: "void the sale", Similarity: 0.58},
	}}

	// No reranker: relaxed, context and lexical stages are all inert, the
	// cluster vote decides alone.
	res := newChain(retr, nil, testOptions()).Execute(context.Background(), domfall.Input{
		NormalizedText: "scan one item",
		Embedding:      []float32{1, 0},
	})

	if !res.Success {
		t.Fatal("chain failed, want cluster aggregation success")
	}
	if res.StageUsed != domfall.StageClusterAggregation {
		t.Errorf("stage = %s, want cluster_aggregation", res.StageUsed)
	}
	if res.Confidence != domfall.LowConf {
		t.Errorf("confidence = %s, want LOW_CONF", res.Confidence)
	}
	if res.Candidates[0].ID != "b" {
		t.Errorf("best member = %s, want b (highest similarity)", res.Candidates[0].ID)
	}
}

func TestExecute_ClusterBelowMinIsRejected(t *testing.T) {
	retr := &mockRetriever{vectorHits: []candidate.Candidate{
		{ID: "a", ClusterID: "c1", Similarity: 0.55},
		{ID: "b", ClusterID: "c1", Similarity: 0.60},
		{ID: "c", ClusterID: "c1", Similarity: 0.52},
	}}

	res := newChain(retr, nil, testOptions()).Execute(context.Background(), domfall.Input{})

	if res.Success {
		t.Fatalf("stage %s succeeded, want failure for a 3-member cluster", res.StageUsed)
	}
}

func TestExecute_RuleSynthesis(t *testing.T) {
	opts := testOptions()
	opts.EnableRuleSynthesis = true

	res := newChain(&mockRetriever{}, nil, opts).Execute(context.Background(), domfall.Input{
		QueryText: "enter 42 in the amount field",
	})

	if !res.Success {
		t.Fatal("chain failed, want rule synthesis success")
	}
	if res.StageUsed != domfall.StageRuleSynthesis {
		t.Errorf("stage = %s, want rule_synthesis", res.StageUsed)
	}
	got := res.Candidates[0]
	if !got.Synthesized {
		t.Error("synthesized candidate must be flagged")
	}
	if got.StepText != "enter the amount <NUMBER>" {
		t.Errorf("template = %q", got.StepText)
	}
	if got.RerankScore == nil || *got.RerankScore != 0.5 {
		t.Errorf("score = %v, want 0.5", got.RerankScore)
	}
}

func TestExecute_RuleSynthesisNeedsActionAndObject(t *testing.T) {
	opts := testOptions()
	opts.EnableRuleSynthesis = true

	res := newChain(&mockRetriever{}, nil, opts).Execute(context.Background(), domfall.Input{
		QueryText: "something happened somewhere",
	})

	if res.Success {
		t.Fatalf("stage %s succeeded, want failure without an action verb", res.StageUsed)
	}
}
