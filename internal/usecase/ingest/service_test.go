package ingest

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stepmatch/internal/clustering"
	"github.com/kailas-cloud/stepmatch/internal/domain"
	"github.com/kailas-cloud/stepmatch/internal/normalizer"
	"github.com/kailas-cloud/stepmatch/internal/repository/steps"
)

type mockCatalog struct {
	saved     []steps.Record
	clusters  map[string]string
	templates map[string]string
	saveErr   error
}

func (m *mockCatalog) Save(_ context.Context, recs []steps.Record) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, recs...)
	return nil
}

func (m *mockCatalog) All(_ context.Context) ([]steps.Record, error) {
	return m.saved, nil
}

func (m *mockCatalog) SetClusterID(_ context.Context, id, clusterID string) error {
	if m.clusters == nil {
		m.clusters = map[string]string{}
	}
	m.clusters[id] = clusterID
	return nil
}

func (m *mockCatalog) SetClusterTemplate(_ context.Context, clusterID, template string) error {
	if m.templates == nil {
		m.templates = map[string]string{}
	}
	m.templates[clusterID] = template
	return nil
}

type mockEmbedder struct {
	batches int
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batches++
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts) * 3}, nil
}

func newService(c *mockCatalog, e *mockEmbedder, batchSize int) *Service {
	return New(c, e, normalizer.New(normalizer.Config{}), clustering.New(clustering.Config{}), batchSize, zap.NewNop())
}

const scenarioText = `Scenario: Pay by card
Given the cart has items
When the cashier selects card payment
Then the terminal prompts for a card`

func TestIngest(t *testing.T) {
	cat := &mockCatalog{}
	emb := &mockEmbedder{}
	svc := newService(cat, emb, 64)

	stats, err := svc.Ingest(context.Background(), []Scenario{
		{ScenarioID: "tc-1", BDDText: scenarioText},
		{ScenarioID: "tc-2", BDDText: "free-form text without keywords"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if stats.Scenarios != 1 || stats.Steps != 3 || stats.SkippedEmpty != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(cat.saved) != 3 {
		t.Fatalf("saved %d records, want 3", len(cat.saved))
	}

	first := cat.saved[0].Candidate
	if first.ID != "tc-1:0" {
		t.Errorf("id = %s", first.ID)
	}
	if first.StepType != "Given" || first.StepText != "the cart has items" {
		t.Errorf("step = %s %q", first.StepType, first.StepText)
	}
	if first.ScenarioName != "Pay by card" {
		t.Errorf("scenario name = %q", first.ScenarioName)
	}
	if first.StepNormalized == "" {
		t.Error("normalized text missing")
	}
	if len(cat.saved[0].Vector) == 0 {
		t.Error("vector missing")
	}
	if len(first.WhenSteps) != 1 {
		t.Errorf("when steps = %v", first.WhenSteps)
	}
}

func TestIngest_BatchSizeSplitsEmbedCalls(t *testing.T) {
	cat := &mockCatalog{}
	emb := &mockEmbedder{}
	svc := newService(cat, emb, 2)

	_, err := svc.Ingest(context.Background(), []Scenario{{ScenarioID: "tc-1", BDDText: scenarioText}})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if emb.batches != 2 {
		t.Errorf("embed batches = %d, want 2 for 3 steps at batch size 2", emb.batches)
	}
	if len(cat.saved) != 3 {
		t.Errorf("saved = %d, want 3", len(cat.saved))
	}
}

func TestIngest_SaveErrorStopsRun(t *testing.T) {
	cat := &mockCatalog{saveErr: errors.New("write refused")}
	svc := newService(cat, &mockEmbedder{}, 64)

	_, err := svc.Ingest(context.Background(), []Scenario{{ScenarioID: "tc-1", BDDText: scenarioText}})
	if err == nil {
		t.Fatal("want error when the catalog rejects a batch")
	}
}

func TestRecluster(t *testing.T) {
	cat := &mockCatalog{}
	group := func(id, text, norm string, vec []float32) steps.Record {
		rec := steps.Record{Vector: vec}
		rec.Candidate.ID = id
		rec.Candidate.StepText = text
		rec.Candidate.StepNormalized = norm
		return rec
	}
	cat.saved = []steps.Record{
		group("a", "click the Pay button", "click pay button", []float32{1, 0, 0}),
		group("b", "click pay button", "click pay button", []float32{0.99, 0.01, 0}),
		group("c", "press Pay", "press pay", []float32{0.98, 0.02, 0}),
		group("d", "scan loyalty card", "scan loyalty card", []float32{0, 0, 1}),
	}

	svc := newService(cat, &mockEmbedder{}, 64)
	n, err := svc.Recluster(context.Background())
	if err != nil {
		t.Fatalf("Recluster: %v", err)
	}
	if n != 1 {
		t.Fatalf("clusters = %d, want 1 (the singleton is below min size)", n)
	}
	for _, id := range []string{"a", "b", "c"} {
		if cat.clusters[id] != "c0" {
			t.Errorf("cluster[%s] = %q, want c0", id, cat.clusters[id])
		}
	}
	if _, ok := cat.clusters["d"]; ok {
		t.Error("outlier d must stay unclustered")
	}
	// "click pay button" appears twice; its first original form wins.
	if cat.templates["c0"] != "click the Pay button" {
		t.Errorf("canonical template = %q", cat.templates["c0"])
	}
}

func TestRecluster_TinyCatalogNoop(t *testing.T) {
	cat := &mockCatalog{}
	svc := newService(cat, &mockEmbedder{}, 64)
	n, err := svc.Recluster(context.Background())
	if err != nil || n != 0 {
		t.Errorf("n = %d, err = %v, want noop", n, err)
	}
}
