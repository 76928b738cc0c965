// Package retrieval runs vector and lexical searches over the step catalog
// and aggregates hits into cluster-level scores.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/stepmatch/internal/db"
	"github.com/kailas-cloud/stepmatch/internal/domain"
	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
	"github.com/kailas-cloud/stepmatch/internal/repository/steps"
)

// Hybrid cluster score weights: retrieval strength dominates, usage and
// cluster coherence refine the ordering.
const (
	weightMaxSimilarity = 0.6
	weightUsage         = 0.2
	weightAvgSimilarity = 0.2

	// usageSaturation caps the usage contribution; 100 reuses max it out.
	usageSaturation = 100.0
)

// searcher is the consumer interface for retrieval (ISP).
type searcher interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SupportsTextSearch(ctx context.Context) bool
}

// Repo implements candidate retrieval over db.Searcher.
type Repo struct {
	store searcher
}

// New creates a retrieval repository.
func New(s searcher) *Repo {
	return &Repo{store: s}
}

// returnFields lists every step hash field except the raw vector blob.
var returnFields = []string{
	steps.FieldStepType,
	steps.FieldStepText,
	steps.FieldStepNorm,
	steps.FieldStepIndex,
	steps.FieldScenarioID,
	steps.FieldScenarioName,
	steps.FieldScenarioText,
	steps.FieldGivenSteps,
	steps.FieldWhenSteps,
	steps.FieldThenSteps,
	steps.FieldUsageCount,
	steps.FieldClusterID,
	"__vector_score",
}

// Retrieve runs an approximate KNN search and returns candidates ordered by
// descending similarity. efRuntime widens the HNSW beam; 0 keeps the index
// default.
func (r *Repo) Retrieve(ctx context.Context, vector []float32, k, efRuntime int) ([]candidate.Candidate, error) {
	q := &db.KNNQuery{
		IndexName:    domain.StepIndexName,
		Vector:       vector,
		K:            k,
		EFRuntime:    efRuntime,
		ReturnFields: returnFields,
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	cands := parseEntries(sr)
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Similarity > cands[j].Similarity })
	return cands, nil
}

// Lexical runs a BM25 search over normalized step text. Returns nil when the
// backend has no text search support.
func (r *Repo) Lexical(ctx context.Context, query string, k int) ([]candidate.Candidate, error) {
	if !r.store.SupportsTextSearch(ctx) {
		return nil, nil
	}

	q := &db.TextQuery{
		IndexName:    domain.StepIndexName,
		Field:        steps.FieldStepNorm,
		Query:        query,
		TopK:         k,
		ReturnFields: returnFields,
	}

	sr, err := r.store.SearchText(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	return parseEntries(sr), nil
}

func parseEntries(sr *db.SearchResult) []candidate.Candidate {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	cands := make([]candidate.Candidate, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, domain.StepKeyPrefix)
		c := steps.FromFields(id, entry.Fields)
		c.Similarity = entry.Score
		cands = append(cands, c)
	}
	return cands
}

// ClusterScore is the aggregated strength of one cluster among the
// retrieved candidates.
type ClusterScore struct {
	ClusterID string
	Members   []candidate.Candidate
	Score     float64
}

// AggregateClusters groups candidates by cluster id and computes the hybrid
// score 0.6*maxSim + 0.2*min(usage/100, 1) + 0.2*avgSim per cluster, where
// usage is the count of the first retrieved member. Unclustered candidates
// are skipped. Clusters come back best first.
func AggregateClusters(cands []candidate.Candidate) []ClusterScore {
	groups := make(map[string][]candidate.Candidate)
	order := make([]string, 0)
	for _, c := range cands {
		if c.ClusterID == "" {
			continue
		}
		if _, ok := groups[c.ClusterID]; !ok {
			order = append(order, c.ClusterID)
		}
		groups[c.ClusterID] = append(groups[c.ClusterID], c)
	}

	scores := make([]ClusterScore, 0, len(order))
	for _, id := range order {
		members := groups[id]

		maxSim, sum := members[0].Similarity, 0.0
		for _, m := range members {
			if m.Similarity > maxSim {
				maxSim = m.Similarity
			}
			sum += m.Similarity
		}
		avg := sum / float64(len(members))
		usage := min(float64(members[0].UsageCount)/usageSaturation, 1.0)

		scores = append(scores, ClusterScore{
			ClusterID: id,
			Members:   members,
			Score:     weightMaxSimilarity*maxSim + weightUsage*usage + weightAvgSimilarity*avg,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores
}

// BestMember returns the highest-similarity member of a cluster score.
func (cs ClusterScore) BestMember() candidate.Candidate {
	best := cs.Members[0]
	for _, m := range cs.Members[1:] {
		if m.Similarity > best.Similarity {
			best = m
		}
	}
	return best
}
