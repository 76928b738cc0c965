package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	dommatch "github.com/kailas-cloud/stepmatch/internal/domain/match"
	matchuc "github.com/kailas-cloud/stepmatch/internal/usecase/match"
)

// Matcher is the pipeline the runner feeds queries into.
type Matcher interface {
	Match(ctx context.Context, q matchuc.Query) dommatch.Result
}

// Runner executes a batch of queries sequentially and builds the report.
// Matching never errors per query, so one bad chunk cannot abort a run.
type Runner struct {
	matcher Matcher
	logger  *zap.Logger
}

// NewRunner creates a batch runner.
func NewRunner(matcher Matcher, logger *zap.Logger) *Runner {
	return &Runner{matcher: matcher, logger: logger}
}

// Run matches every query in order, carrying the preceding chunk texts of
// the same parent as context for the next one. It stops early when ctx is
// cancelled, returning what was processed so far.
func (r *Runner) Run(ctx context.Context, queries []matchuc.Query) ([]dommatch.Result, Report) {
	results := make([]dommatch.Result, 0, len(queries))
	previous := map[string][]string{}

	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("Batch run cancelled", zap.Int("processed", i), zap.Error(err))
			break
		}

		if q.QueryID == "" {
			q.QueryID = fmt.Sprintf("%s_chunk_%d", q.ParentID, q.ChunkIndex)
		}
		if len(q.PreviousSteps) == 0 {
			q.PreviousSteps = previous[q.ParentID]
		}

		res := r.matcher.Match(ctx, q)
		results = append(results, res)
		previous[q.ParentID] = append(previous[q.ParentID], q.Text)
	}

	return results, Build(results)
}

// csvHeader lists the result columns in output order.
var csvHeader = []string{
	"query_id", "parent_testcase_id", "chunk_index", "original_chunk",
	"full_testcase_text", "normalized_text", "top_k_candidates",
	"selected_candidate_id", "selected_template", "final_action",
	"reranker_score", "vector_similarity", "processing_time_ms", "notes",
}

// WriteCSV streams results as CSV. Top-K candidates are embedded as a JSON
// array of id/template/score triples so the column stays machine-readable.
func WriteCSV(w io.Writer, results []dommatch.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, res := range results {
		row := []string{
			res.QueryID,
			res.ParentID,
			strconv.Itoa(res.ChunkIndex),
			res.OriginalChunk,
			res.FullTestcase,
			res.NormalizedText,
			candidatesJSON(res),
			res.SelectedID,
			res.SelectedTemplate,
			string(res.FinalAction),
			formatScore(res.RerankScore),
			formatScore(res.VectorSimilarity),
			strconv.FormatFloat(float64(res.Latency.Microseconds())/1000, 'f', 3, 64),
			res.Notes,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", res.QueryID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

type candidateRow struct {
	ID          string   `json:"id"`
	Template    string   `json:"template"`
	Similarity  float64  `json:"similarity"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

func candidatesJSON(res dommatch.Result) string {
	rows := make([]candidateRow, len(res.TopCandidates))
	for i, c := range res.TopCandidates {
		rows[i] = candidateRow{
			ID:          c.ID,
			Template:    c.Template(),
			Similarity:  c.Similarity,
			RerankScore: c.RerankScore,
		}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func formatScore(s *float64) string {
	if s == nil {
		return ""
	}
	return strconv.FormatFloat(*s, 'f', 4, 64)
}
