package retrieval

import (
	"math"
	"testing"

	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
)

func TestAggregateClusters_HybridScore(t *testing.T) {
	cands := []candidate.Candidate{
		{ID: "a1", ClusterID: "c1", Similarity: 0.9, UsageCount: 50},
		{ID: "a2", ClusterID: "c1", Similarity: 0.7, UsageCount: 10},
		{ID: "b1", ClusterID: "c2", Similarity: 0.5, UsageCount: 200},
		{ID: "u1", ClusterID: "", Similarity: 0.99}, // unclustered, ignored
	}

	scores := AggregateClusters(cands)
	if len(scores) != 2 {
		t.Fatalf("clusters = %d, want 2", len(scores))
	}

	// c1: 0.6*0.9 + 0.2*min(50/100,1) + 0.2*0.8 = 0.54 + 0.10 + 0.16 = 0.80
	if scores[0].ClusterID != "c1" {
		t.Fatalf("best cluster = %s, want c1", scores[0].ClusterID)
	}
	if got := scores[0].Score; math.Abs(got-0.80) > 1e-9 {
		t.Errorf("c1 score = %v, want 0.80", got)
	}

	// c2: usage saturates at 1.0: 0.6*0.5 + 0.2*1 + 0.2*0.5 = 0.60
	if got := scores[1].Score; math.Abs(got-0.60) > 1e-9 {
		t.Errorf("c2 score = %v, want 0.60", got)
	}
}

func TestAggregateClusters_UsageFromFirstRetrievedMember(t *testing.T) {
	cands := []candidate.Candidate{
		{ID: "a1", ClusterID: "c1", Similarity: 0.9, UsageCount: 10},
		{ID: "a2", ClusterID: "c1", Similarity: 0.7, UsageCount: 100},
	}

	scores := AggregateClusters(cands)
	if len(scores) != 1 {
		t.Fatalf("clusters = %d, want 1", len(scores))
	}

	// Usage comes from a1 (first hit), not a2's higher count:
	// 0.6*0.9 + 0.2*min(10/100,1) + 0.2*0.8 = 0.54 + 0.02 + 0.16 = 0.72
	if got := scores[0].Score; math.Abs(got-0.72) > 1e-9 {
		t.Errorf("c1 score = %v, want 0.72", got)
	}
}

func TestAggregateClusters_Empty(t *testing.T) {
	if got := AggregateClusters(nil); len(got) != 0 {
		t.Errorf("AggregateClusters(nil) = %v, want none", got)
	}
	only := []candidate.Candidate{{ID: "u", Similarity: 0.9}}
	if got := AggregateClusters(only); len(got) != 0 {
		t.Errorf("unclustered-only input = %v, want none", got)
	}
}

func TestClusterScore_BestMember(t *testing.T) {
	cs := ClusterScore{Members: []candidate.Candidate{
		{ID: "a", Similarity: 0.4},
		{ID: "b", Similarity: 0.8},
		{ID: "c", Similarity: 0.6},
	}}
	if got := cs.BestMember(); got.ID != "b" {
		t.Errorf("best member = %s, want b", got.ID)
	}
}
