// Package clustering groups embedding vectors into similarity clusters and
// selects canonical representatives. It is used offline to organize the
// candidate pool and inside the weak-cluster fallback stage.
package clustering

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultDistanceThreshold is the cosine-distance cutoff for merging.
	DefaultDistanceThreshold = 0.22
	// DefaultMinClusterSize discards clusters smaller than this outright.
	DefaultMinClusterSize = 3
)

// Item carries the texts needed to pick a canonical cluster template.
type Item struct {
	Normalized string
	Original   string
}

// Assignment maps cluster id to the member indices of the input slice.
// Only clusters meeting the minimum size appear; smaller ones are
// discarded, not merged.
type Assignment map[int][]int

// Config holds clustering parameters.
type Config struct {
	DistanceThreshold float64 // 0 selects DefaultDistanceThreshold
	MinClusterSize    int     // 0 selects DefaultMinClusterSize
}

// Clusterer performs average-linkage agglomerative clustering over cosine
// distance.
type Clusterer struct {
	threshold float64
	minSize   int
}

// New creates a Clusterer from cfg, filling defaults for zero fields.
func New(cfg Config) *Clusterer {
	c := &Clusterer{threshold: cfg.DistanceThreshold, minSize: cfg.MinClusterSize}
	if c.threshold <= 0 {
		c.threshold = DefaultDistanceThreshold
	}
	if c.minSize <= 0 {
		c.minSize = DefaultMinClusterSize
	}
	return c
}

// Cluster groups embeddings by average-linkage agglomerative clustering.
// Fewer than two inputs yield an empty assignment. Cluster ids are assigned
// in order of each cluster's first member index.
func (c *Clusterer) Cluster(embeddings [][]float32) Assignment {
	n := len(embeddings)
	if n < 2 {
		return Assignment{}
	}

	dist := pairwiseCosineDistances(embeddings)

	// Start with singleton clusters, then merge the closest pair until the
	// closest average-linkage distance exceeds the threshold.
	clusters := make([][]int, n)
	for i := range clusters {
		clusters[i] = []int{i}
	}

	for len(clusters) > 1 {
		bestI, bestJ := -1, -1
		bestDist := math.Inf(1)
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				if d := averageLinkage(clusters[i], clusters[j], dist); d < bestDist {
					bestDist, bestI, bestJ = d, i, j
				}
			}
		}
		if bestDist > c.threshold {
			break
		}
		clusters[bestI] = append(clusters[bestI], clusters[bestJ]...)
		clusters = append(clusters[:bestJ], clusters[bestJ+1:]...)
	}

	assignment := Assignment{}
	id := 0
	for _, members := range clusters {
		if len(members) < c.minSize {
			continue
		}
		sorted := append([]int(nil), members...)
		sort.Ints(sorted)
		assignment[id] = sorted
		id++
	}
	return assignment
}

// SelectCanonicalTemplate returns the original text of the cluster's most
// frequent normalized text; ties resolve to the first occurrence in input
// order. Empty input yields "".
func SelectCanonicalTemplate(members []Item) string {
	if len(members) == 0 {
		return ""
	}

	counts := make(map[string]int, len(members))
	for _, m := range members {
		counts[m.Normalized]++
	}

	best := ""
	bestCount := 0
	for _, m := range members { // input order breaks ties
		if c := counts[m.Normalized]; c > bestCount {
			best, bestCount = m.Normalized, c
		}
	}

	for _, m := range members {
		if m.Normalized == best {
			if m.Original != "" {
				return m.Original
			}
			return best
		}
	}
	return best
}

func averageLinkage(a, b []int, dist [][]float64) float64 {
	sum := 0.0
	for _, i := range a {
		for _, j := range b {
			sum += dist[i][j]
		}
	}
	return sum / float64(len(a)*len(b))
}

// pairwiseCosineDistances builds the full distance matrix
// (distance = 1 - cosine similarity).
func pairwiseCosineDistances(embeddings [][]float32) [][]float64 {
	n := len(embeddings)
	vecs := make([][]float64, n)
	norms := make([]float64, n)
	for i, e := range embeddings {
		v := make([]float64, len(e))
		for k, f := range e {
			v[k] = float64(f)
		}
		vecs[i] = v
		norms[i] = floats.Norm(v, 2)
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := 1.0 - cosine(vecs[i], vecs[j], norms[i], norms[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

func cosine(a, b []float64, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}
