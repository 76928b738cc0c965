package report

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
	dommatch "github.com/kailas-cloud/stepmatch/internal/domain/match"
	matchuc "github.com/kailas-cloud/stepmatch/internal/usecase/match"
)

func result(action dommatch.Action, vecSim float64, latencyMs int, candidates int) dommatch.Result {
	r := dommatch.Result{
		FinalAction:      action,
		VectorSimilarity: &vecSim,
		Latency:          time.Duration(latencyMs) * time.Millisecond,
	}
	for i := 0; i < candidates; i++ {
		r.TopCandidates = append(r.TopCandidates, candidate.Candidate{ID: "c"})
	}
	return r
}

func TestBuild(t *testing.T) {
	results := []dommatch.Result{
		result(dommatch.ReusedTemplate, 0.9, 10, 5),
		result(dommatch.ReusedTemplate, 0.8, 20, 5),
		result(dommatch.NewBDDRequired, 0.4, 30, 3),
		result(dommatch.NewBDDRequired, 0.3, 40, 0),
	}

	rep := Build(results)

	if rep.TotalQueries != 4 {
		t.Errorf("total = %d", rep.TotalQueries)
	}
	if got := rep.Actions[dommatch.ReusedTemplate]; got.Count != 2 || got.Percentage != 50 {
		t.Errorf("reused = %+v", got)
	}
	if rep.VectorSimilarity == nil {
		t.Fatal("vector stats missing")
	}
	if math.Abs(rep.VectorSimilarity.Mean-0.6) > 1e-9 {
		t.Errorf("vector mean = %g, want 0.6", rep.VectorSimilarity.Mean)
	}
	if rep.VectorSimilarity.Min != 0.3 || rep.VectorSimilarity.Max != 0.9 {
		t.Errorf("vector min/max = %g/%g", rep.VectorSimilarity.Min, rep.VectorSimilarity.Max)
	}
	if rep.RerankScore != nil {
		t.Error("rerank stats should be nil when no result was reranked")
	}
	if rep.Coverage.WithMatches != 3 || rep.Coverage.WithoutMatches != 1 {
		t.Errorf("coverage = %+v", rep.Coverage)
	}
	if rep.Coverage.MatchRate != 75 {
		t.Errorf("match rate = %g", rep.Coverage.MatchRate)
	}
	if rep.Coverage.MinCandidates != 0 || rep.Coverage.MaxCandidates != 5 {
		t.Errorf("candidate bounds = %d..%d", rep.Coverage.MinCandidates, rep.Coverage.MaxCandidates)
	}
	if math.Abs(rep.VectorSimilarity.P25-0.375) > 1e-9 {
		t.Errorf("vector p25 = %g, want 0.375", rep.VectorSimilarity.P25)
	}
	if math.Abs(rep.Latency.MedianMs-25) > 1e-9 {
		t.Errorf("median latency = %g, want 25", rep.Latency.MedianMs)
	}
	if math.Abs(rep.Latency.P95Ms-38.5) > 1e-9 {
		t.Errorf("p95 latency = %g, want 38.5", rep.Latency.P95Ms)
	}
	if math.Abs(rep.Latency.TotalSeconds-0.1) > 1e-9 {
		t.Errorf("total seconds = %g, want 0.1", rep.Latency.TotalSeconds)
	}
}

func TestBuild_Empty(t *testing.T) {
	rep := Build(nil)
	if rep.TotalQueries != 0 || rep.Actions == nil {
		t.Errorf("report = %+v", rep)
	}
	if rep.VectorSimilarity != nil || rep.RerankScore != nil {
		t.Error("score stats must be nil for an empty batch")
	}
}

type sequenceMatcher struct {
	queries []matchuc.Query
}

func (m *sequenceMatcher) Match(_ context.Context, q matchuc.Query) dommatch.Result {
	m.queries = append(m.queries, q)
	return dommatch.Result{QueryID: q.QueryID, FinalAction: dommatch.NewBDDRequired}
}

func TestRunner_ThreadsPreviousStepsPerParent(t *testing.T) {
	m := &sequenceMatcher{}
	runner := NewRunner(m, zap.NewNop())

	results, rep := runner.Run(context.Background(), []matchuc.Query{
		{ParentID: "tc-1", ChunkIndex: 0, Text: "open the till"},
		{ParentID: "tc-2", ChunkIndex: 0, Text: "scan an item"},
		{ParentID: "tc-1", ChunkIndex: 1, Text: "count the cash"},
	})

	if len(results) != 3 || rep.TotalQueries != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if m.queries[0].QueryID != "tc-1_chunk_0" {
		t.Errorf("query id = %s", m.queries[0].QueryID)
	}
	if len(m.queries[1].PreviousSteps) != 0 {
		t.Errorf("tc-2 inherited context %v from another parent", m.queries[1].PreviousSteps)
	}
	if want := []string{"open the till"}; len(m.queries[2].PreviousSteps) != 1 || m.queries[2].PreviousSteps[0] != want[0] {
		t.Errorf("previous steps = %v, want %v", m.queries[2].PreviousSteps, want)
	}
}

func TestRunner_CancelledContextStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &sequenceMatcher{}
	results, _ := NewRunner(m, zap.NewNop()).Run(ctx, []matchuc.Query{{ParentID: "tc-1", Text: "x"}})
	if len(results) != 0 {
		t.Errorf("got %d results from a cancelled run", len(results))
	}
}

func TestWriteCSV(t *testing.T) {
	score := 0.87
	res := dommatch.Result{
		QueryID:          "q1",
		ParentID:         "tc-1",
		ChunkIndex:       2,
		OriginalChunk:    "click the Pay button",
		FinalAction:      dommatch.ReusedTemplate,
		SelectedID:       "s9",
		SelectedTemplate: "When: click Pay",
		VectorSimilarity: &score,
		Latency:          12500 * time.Microsecond,
		TopCandidates:    []candidate.Candidate{{ID: "s9", StepType: "When", StepText: "click Pay", Similarity: 0.87}},
	}

	var sb strings.Builder
	if err := WriteCSV(&sb, []dommatch.Result{res}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	out := sb.String()
	if !strings.HasPrefix(out, "query_id,") {
		t.Errorf("missing header: %q", out)
	}
	if !strings.Contains(out, "REUSED_TEMPLATE") || !strings.Contains(out, "12.500") {
		t.Errorf("row not serialized: %q", out)
	}
	if !strings.Contains(out, "s9") {
		t.Errorf("candidate id missing: %q", out)
	}
}
