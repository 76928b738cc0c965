package clustering

import (
	"testing"
)

func vec(vals ...float32) []float32 { return vals }

func TestCluster_GroupsSimilarVectors(t *testing.T) {
	// Two tight groups along orthogonal axes plus one outlier.
	embeddings := [][]float32{
		vec(1, 0, 0),
		vec(0.99, 0.05, 0),
		vec(0.98, 0.02, 0.01),
		vec(0, 1, 0),
		vec(0.03, 0.99, 0),
		vec(0, 0.97, 0.04),
		vec(0, 0, 1), // outlier, never reaches min size
	}

	c := New(Config{DistanceThreshold: 0.1, MinClusterSize: 3})
	got := c.Cluster(embeddings)

	if len(got) != 2 {
		t.Fatalf("clusters = %d, want 2 (%v)", len(got), got)
	}
	want := map[int][]int{0: {0, 1, 2}, 1: {3, 4, 5}}
	for id, members := range want {
		if !equalInts(got[id], members) {
			t.Errorf("cluster %d = %v, want %v", id, got[id], members)
		}
	}
}

func TestCluster_MinSizeDiscardsSmallClusters(t *testing.T) {
	// A pair of near-identical vectors forms a cluster of two, which must
	// be discarded rather than merged elsewhere.
	embeddings := [][]float32{
		vec(1, 0),
		vec(0.99, 0.01),
		vec(0, 1),
	}

	c := New(Config{DistanceThreshold: 0.1, MinClusterSize: 3})
	got := c.Cluster(embeddings)

	if len(got) != 0 {
		t.Fatalf("clusters = %v, want none below min size", got)
	}
}

func TestCluster_FewerThanTwoInputs(t *testing.T) {
	c := New(Config{})
	if got := c.Cluster(nil); len(got) != 0 {
		t.Errorf("Cluster(nil) = %v, want empty", got)
	}
	if got := c.Cluster([][]float32{vec(1, 0)}); len(got) != 0 {
		t.Errorf("Cluster(single) = %v, want empty", got)
	}
}

func TestCluster_ThresholdStopsMerging(t *testing.T) {
	embeddings := [][]float32{
		vec(1, 0),
		vec(0.9, 0.44),
		vec(0.8, 0.6),
	}

	// Generous threshold merges everything into one cluster.
	loose := New(Config{DistanceThreshold: 0.9, MinClusterSize: 3})
	if got := loose.Cluster(embeddings); len(got) != 1 {
		t.Fatalf("loose threshold clusters = %v, want one cluster", got)
	}

	// Tight threshold keeps them apart and min size drops the singletons.
	tight := New(Config{DistanceThreshold: 0.001, MinClusterSize: 3})
	if got := tight.Cluster(embeddings); len(got) != 0 {
		t.Fatalf("tight threshold clusters = %v, want none", got)
	}
}

func TestSelectCanonicalTemplate(t *testing.T) {
	members := []Item{
		{Normalized: "press the login button", Original: "Click the Login button"},
		{Normalized: "enter username", Original: "Type username"},
		{Normalized: "press the login button", Original: "Hit Login"},
	}

	if got := SelectCanonicalTemplate(members); got != "Click the Login button" {
		t.Errorf("canonical = %q, want first original of modal normalized text", got)
	}
}

func TestSelectCanonicalTemplate_TieBreaksOnFirstOccurrence(t *testing.T) {
	members := []Item{
		{Normalized: "verify the balance", Original: "Check balance"},
		{Normalized: "press enter", Original: "Hit ENTER"},
	}

	if got := SelectCanonicalTemplate(members); got != "Check balance" {
		t.Errorf("canonical = %q, want %q", got, "Check balance")
	}
	if got := SelectCanonicalTemplate(nil); got != "" {
		t.Errorf("canonical of empty = %q, want empty", got)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
