// Package report aggregates a batch of match results into a run report:
// action distribution, score statistics, top-K coverage and latency.
package report

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	dommatch "github.com/kailas-cloud/stepmatch/internal/domain/match"
)

// ActionCount is one row of the action distribution.
type ActionCount struct {
	Count      int
	Percentage float64
}

// ScoreStats summarizes a score sample.
type ScoreStats struct {
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	P25    float64
	P75    float64
	Std    float64
}

// Coverage summarizes how many queries found candidates at all.
type Coverage struct {
	WithMatches    int
	WithoutMatches int
	MatchRate      float64 // percent
	AvgCandidates  float64
	MinCandidates  int
	MaxCandidates  int
}

// LatencyStats summarizes per-query processing time in milliseconds.
type LatencyStats struct {
	MeanMs       float64
	MedianMs     float64
	MinMs        float64
	MaxMs        float64
	P95Ms        float64
	P99Ms        float64
	TotalSeconds float64
}

// Report is the aggregate of one batch run. VectorSimilarity and
// RerankScore are nil when no result carried the corresponding score.
type Report struct {
	GeneratedAt      time.Time
	TotalQueries     int
	Actions          map[dommatch.Action]ActionCount
	VectorSimilarity *ScoreStats
	RerankScore      *ScoreStats
	Coverage         Coverage
	Latency          LatencyStats
}

// Build computes the report for a batch of results. An empty batch yields
// a zero report with a non-nil action map.
func Build(results []dommatch.Result) Report {
	r := Report{
		GeneratedAt:  time.Now().UTC(),
		TotalQueries: len(results),
		Actions:      make(map[dommatch.Action]ActionCount),
	}
	if len(results) == 0 {
		return r
	}

	counts := make(map[dommatch.Action]int)
	var vectorScores, rerankScores, latencies []float64
	candidateCounts := make([]float64, len(results))

	for i, res := range results {
		counts[res.FinalAction]++
		if res.VectorSimilarity != nil {
			vectorScores = append(vectorScores, *res.VectorSimilarity)
		}
		if res.RerankScore != nil {
			rerankScores = append(rerankScores, *res.RerankScore)
		}
		latencies = append(latencies, float64(res.Latency)/float64(time.Millisecond))
		candidateCounts[i] = float64(len(res.TopCandidates))

		if len(res.TopCandidates) > 0 {
			r.Coverage.WithMatches++
		}
	}

	total := float64(len(results))
	for action, count := range counts {
		r.Actions[action] = ActionCount{Count: count, Percentage: float64(count) / total * 100}
	}

	r.VectorSimilarity = scoreStats(vectorScores)
	r.RerankScore = scoreStats(rerankScores)

	r.Coverage.WithoutMatches = len(results) - r.Coverage.WithMatches
	r.Coverage.MatchRate = float64(r.Coverage.WithMatches) / total * 100
	r.Coverage.AvgCandidates = stat.Mean(candidateCounts, nil)
	sort.Float64s(candidateCounts)
	r.Coverage.MinCandidates = int(candidateCounts[0])
	r.Coverage.MaxCandidates = int(candidateCounts[len(candidateCounts)-1])

	sort.Float64s(latencies)
	r.Latency = LatencyStats{
		MeanMs:       stat.Mean(latencies, nil),
		MedianMs:     percentile(latencies, 50),
		MinMs:        latencies[0],
		MaxMs:        latencies[len(latencies)-1],
		P95Ms:        percentile(latencies, 95),
		P99Ms:        percentile(latencies, 99),
		TotalSeconds: floats.Sum(latencies) / 1000,
	}
	return r
}

// scoreStats returns nil for an empty sample.
func scoreStats(scores []float64) *ScoreStats {
	if len(scores) == 0 {
		return nil
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	return &ScoreStats{
		Mean:   stat.Mean(sorted, nil),
		Median: percentile(sorted, 50),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P25:    percentile(sorted, 25),
		P75:    percentile(sorted, 75),
		Std:    stat.PopStdDev(sorted, nil),
	}
}

// percentile computes the p-th percentile (0..100) over an ascending-sorted
// slice with linear interpolation between closest ranks at h = (n-1)*p/100.
func percentile(sortedAsc []float64, p float64) float64 {
	if len(sortedAsc) == 0 {
		return 0
	}
	h := float64(len(sortedAsc)-1) * p / 100
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo < 0 {
		return sortedAsc[0]
	}
	if hi >= len(sortedAsc) {
		return sortedAsc[len(sortedAsc)-1]
	}
	if lo == hi {
		return sortedAsc[lo]
	}
	return sortedAsc[lo] + (h-float64(lo))*(sortedAsc[hi]-sortedAsc[lo])
}
