// Package ingest loads BDD scenarios into the step catalog: parse, extract
// individual steps, normalize, batch-embed and index. It also owns the
// offline reclustering pass that stamps cluster ids onto stored steps.
package ingest

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/stepmatch/internal/bdd"
	"github.com/kailas-cloud/stepmatch/internal/clustering"
	"github.com/kailas-cloud/stepmatch/internal/domain"
	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
	"github.com/kailas-cloud/stepmatch/internal/normalizer"
	"github.com/kailas-cloud/stepmatch/internal/repository/steps"
)

// Catalog is the step storage the ingester writes to.
type Catalog interface {
	Save(ctx context.Context, recs []steps.Record) error
	All(ctx context.Context) ([]steps.Record, error)
	SetClusterID(ctx context.Context, id, clusterID string) error
	SetClusterTemplate(ctx context.Context, clusterID, template string) error
}

// Embedder vectorizes normalized step texts in batches.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Scenario is one BDD scenario to ingest.
type Scenario struct {
	ScenarioID string
	BDDText    string
}

// Stats summarizes one ingestion run.
type Stats struct {
	Scenarios    int
	Steps        int
	SkippedEmpty int
	TokensUsed   int
}

// Service ingests scenarios and reclusters the catalog.
type Service struct {
	catalog   Catalog
	embed     Embedder
	norm      *normalizer.Normalizer
	clusterer *clustering.Clusterer
	batchSize int
	logger    *zap.Logger
}

// New creates the ingestion service. batchSize bounds one embedding API call.
func New(
	catalog Catalog,
	embed Embedder,
	norm *normalizer.Normalizer,
	clusterer *clustering.Clusterer,
	batchSize int,
	logger *zap.Logger,
) *Service {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Service{
		catalog:   catalog,
		embed:     embed,
		norm:      norm,
		clusterer: clusterer,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Ingest parses each scenario, extracts its individual Given/When/Then
// steps and indexes them with embeddings. Scenarios that parse to no steps
// are counted and skipped, not failed.
func (s *Service) Ingest(ctx context.Context, scenarios []Scenario) (Stats, error) {
	var stats Stats
	var pending []steps.Record
	var texts []string

	for _, sc := range scenarios {
		parsed := bdd.Parse(sc.BDDText)
		stepList := bdd.Steps(sc.BDDText)
		if len(stepList) == 0 {
			stats.SkippedEmpty++
			continue
		}
		stats.Scenarios++

		for _, st := range stepList {
			normalized := s.norm.Normalize(st.Text)
			pending = append(pending, steps.Record{Candidate: candidate.Candidate{
				ID:               stepID(sc.ScenarioID, st.Index),
				StepType:         st.Type,
				StepText:         st.Text,
				StepNormalized:   normalized.NormalizedText,
				StepIndex:        st.Index,
				ScenarioID:       sc.ScenarioID,
				ScenarioName:     parsed.Name,
				ScenarioFullText: parsed.FullText,
				GivenSteps:       parsed.GivenSteps,
				WhenSteps:        parsed.WhenSteps,
				ThenSteps:        parsed.ThenSteps,
			}})
			texts = append(texts, normalized.NormalizedText)
		}
	}

	for start := 0; start < len(pending); start += s.batchSize {
		end := min(start+s.batchSize, len(pending))
		batch := pending[start:end]

		res, err := s.embed.BatchEmbed(ctx, texts[start:end])
		if err != nil {
			return stats, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(res.Embeddings) != len(batch) {
			return stats, fmt.Errorf("embed batch returned %d vectors for %d steps", len(res.Embeddings), len(batch))
		}
		stats.TokensUsed += res.TotalTokens

		for i := range batch {
			batch[i].Vector = res.Embeddings[i]
		}
		if err := s.catalog.Save(ctx, batch); err != nil {
			return stats, fmt.Errorf("save batch [%d:%d]: %w", start, end, err)
		}
		stats.Steps += len(batch)
	}

	s.logger.Info("Ingestion complete",
		zap.Int("scenarios", stats.Scenarios),
		zap.Int("steps", stats.Steps),
		zap.Int("skipped_empty", stats.SkippedEmpty),
		zap.Int("tokens", stats.TokensUsed))
	return stats, nil
}

// Recluster regroups the whole catalog and stamps cluster ids onto member
// steps. It returns the number of clusters found. Steps leaving a cluster
// keep their old id until the next run overwrites it; the catalog is small
// enough that full rewrites are acceptable.
func (s *Service) Recluster(ctx context.Context) (int, error) {
	recs, err := s.catalog.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}
	if len(recs) < 2 {
		return 0, nil
	}

	embeddings := make([][]float32, len(recs))
	for i, rec := range recs {
		embeddings[i] = rec.Vector
	}

	assignment := s.clusterer.Cluster(embeddings)
	for clusterID, members := range assignment {
		id := "c" + strconv.Itoa(clusterID)
		items := make([]clustering.Item, 0, len(members))
		for _, m := range members {
			if err := s.catalog.SetClusterID(ctx, recs[m].Candidate.ID, id); err != nil {
				return 0, fmt.Errorf("stamp cluster %s on %s: %w", id, recs[m].Candidate.ID, err)
			}
			items = append(items, clustering.Item{
				Normalized: recs[m].Candidate.StepNormalized,
				Original:   recs[m].Candidate.StepText,
			})
		}
		if tmpl := clustering.SelectCanonicalTemplate(items); tmpl != "" {
			if err := s.catalog.SetClusterTemplate(ctx, id, tmpl); err != nil {
				return 0, fmt.Errorf("store template for cluster %s: %w", id, err)
			}
		}
	}

	s.logger.Info("Recluster complete",
		zap.Int("steps", len(recs)),
		zap.Int("clusters", len(assignment)))
	return len(assignment), nil
}

// stepID derives a stable step id from its scenario and position.
func stepID(scenarioID string, index int) string {
	return scenarioID + ":" + strconv.Itoa(index)
}
