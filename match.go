package stepmatch

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/stepmatch/internal/domain"
	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
	dommatch "github.com/kailas-cloud/stepmatch/internal/domain/match"
	"github.com/kailas-cloud/stepmatch/internal/placeholder"
	ingestuc "github.com/kailas-cloud/stepmatch/internal/usecase/ingest"
	matchuc "github.com/kailas-cloud/stepmatch/internal/usecase/match"
)

// Embedder converts text to vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call. Optional:
// if the provided Embedder also implements BatchEmbedder, ingestion uses it
// for significantly better throughput.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Action is the final decision for one query chunk.
type Action string

const (
	// ActionReusedTemplate means an existing BDD step satisfies the chunk.
	ActionReusedTemplate = Action(dommatch.ReusedTemplate)
	// ActionNewBDDRequired means no existing step matched and a new one
	// must be authored.
	ActionNewBDDRequired = Action(dommatch.NewBDDRequired)
)

// Query is one atomic manual test chunk to match against the catalog.
type Query struct {
	QueryID       string
	ParentID      string
	ChunkIndex    int
	Text          string
	FullTestcase  string
	PreviousSteps []string
}

// Candidate is a retrieved BDD step with its scores.
type Candidate struct {
	ID           string
	StepType     string
	StepText     string
	ScenarioID   string
	ScenarioName string
	Template     string
	Similarity   float64
	RerankScore  *float64
	Synthesized  bool
}

// Result is the per-chunk decision record. RerankScore and VectorSimilarity
// are nil when the corresponding stage never produced a score.
type Result struct {
	QueryID          string
	FinalAction      Action
	SelectedID       string
	SelectedTemplate string
	NormalizedText   string
	TopCandidates    []Candidate
	RerankScore      *float64
	VectorSimilarity *float64
	Latency          time.Duration
	Notes            string
}

// Scenario is one BDD scenario to ingest.
type Scenario struct {
	ScenarioID string
	BDDText    string
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Scenarios    int
	Steps        int
	SkippedEmpty int
	TokensUsed   int
}

// Match runs the full decision pipeline for one chunk. It never returns an
// error: infrastructure failures degrade to ActionNewBDDRequired with the
// error text in Notes.
func (c *Client) Match(ctx context.Context, q Query) Result {
	res := c.matchSvc.Match(ctx, matchuc.Query{
		QueryID:       q.QueryID,
		ParentID:      q.ParentID,
		ChunkIndex:    q.ChunkIndex,
		Text:          q.Text,
		FullTestcase:  q.FullTestcase,
		PreviousSteps: q.PreviousSteps,
	})
	return toResult(res)
}

// Ingest parses the scenarios, extracts their Given/When/Then steps and
// indexes them with embeddings.
func (c *Client) Ingest(ctx context.Context, scenarios []Scenario) (IngestStats, error) {
	in := make([]ingestuc.Scenario, len(scenarios))
	for i, s := range scenarios {
		in[i] = ingestuc.Scenario{ScenarioID: s.ScenarioID, BDDText: s.BDDText}
	}
	stats, err := c.ingestSvc.Ingest(ctx, in)
	if err != nil {
		return IngestStats{}, fmt.Errorf("ingest: %w", err)
	}
	return IngestStats{
		Scenarios:    stats.Scenarios,
		Steps:        stats.Steps,
		SkippedEmpty: stats.SkippedEmpty,
		TokensUsed:   stats.TokensUsed,
	}, nil
}

// MatchTestcase splits a free-form manual test case into atomic action
// chunks and matches each one, threading already-matched templates into the
// next chunk's PreviousSteps. Chunk ids are "<testcaseID>_chunk_<n>".
func (c *Client) MatchTestcase(ctx context.Context, testcaseID, text string) []Result {
	chunks := c.chunk.Chunk(text, testcaseID, c.norm)
	if len(chunks) == 0 {
		return nil
	}

	var previous []string
	results := make([]Result, 0, len(chunks))
	for _, ch := range chunks {
		res := c.Match(ctx, Query{
			QueryID:       ch.ID,
			ParentID:      testcaseID,
			ChunkIndex:    ch.Index,
			Text:          ch.Original,
			FullTestcase:  text,
			PreviousSteps: previous,
		})
		if res.FinalAction == ActionReusedTemplate {
			previous = append(previous, res.SelectedTemplate)
		}
		results = append(results, res)
	}
	return results
}

// TemplateFill is the outcome of mapping one query onto one template.
type TemplateFill struct {
	// Values maps slot type name ("URL", "NUMBER", ...) to the query value.
	Values map[string]string
	// Score is filled slots over total slots; 1 when the template has none.
	Score float64
	// Missing lists slot types with no query value, in template order.
	Missing []string
}

// FillTemplate maps the typed values found in queryText onto the <TYPE>
// slots of a matched template, reporting how completely it is satisfied.
func (c *Client) FillTemplate(queryText, template string) TemplateFill {
	norm := c.norm.Normalize(queryText)
	m := placeholder.Map(queryText, norm.Placeholders, template)
	return TemplateFill{
		Values:  m.Values,
		Score:   m.Score,
		Missing: m.Missing,
	}
}

// Recluster reassigns cluster ids across the whole catalog and returns the
// number of clusters found.
func (c *Client) Recluster(ctx context.Context) (int, error) {
	n, err := c.ingestSvc.Recluster(ctx)
	if err != nil {
		return 0, fmt.Errorf("recluster: %w", err)
	}
	return n, nil
}

func toResult(res dommatch.Result) Result {
	out := Result{
		QueryID:          res.QueryID,
		FinalAction:      Action(res.FinalAction),
		SelectedID:       res.SelectedID,
		SelectedTemplate: res.SelectedTemplate,
		NormalizedText:   res.NormalizedText,
		RerankScore:      res.RerankScore,
		VectorSimilarity: res.VectorSimilarity,
		Latency:          res.Latency,
		Notes:            res.Notes,
	}
	if len(res.TopCandidates) > 0 {
		out.TopCandidates = make([]Candidate, len(res.TopCandidates))
		for i, cand := range res.TopCandidates {
			out.TopCandidates[i] = toCandidate(cand)
		}
	}
	return out
}

func toCandidate(c candidate.Candidate) Candidate {
	return Candidate{
		ID:           c.ID,
		StepType:     c.StepType,
		StepText:     c.StepText,
		ScenarioID:   c.ScenarioID,
		ScenarioName: c.ScenarioName,
		Template:     c.Template(),
		Similarity:   c.Similarity,
		RerankScore:  c.RerankScore,
		Synthesized:  c.Synthesized,
	}
}

// BatchEmbed forwards to the wrapped embedder's native batch call when it
// has one, and loops over Embed otherwise.
func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	b, ok := a.inner.(BatchEmbedder)
	if !ok {
		return domain.BatchFallback(ctx, a, texts)
	}
	r, err := b.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed batch: %w", err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
