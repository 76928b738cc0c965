package match

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Skip reason labels, used as metric label values.
const (
	ReasonDisabled          = "disabled"
	ReasonTooFewCandidates  = "too_few_candidates"
	ReasonPercentileFloor   = "percentile_floor"
	ReasonPercentileGap     = "percentile_gap"
	ReasonClusterSeparation = "cluster_separation"
	ReasonTopDominance      = "top_dominance"
	ReasonAmbiguous         = "ambiguous"
)

// DecisionConfig tunes the statistical rerank skip conditions.
type DecisionConfig struct {
	Disabled               bool
	TargetTopK             int
	MinPercentileRank      float64
	PercentileGapThreshold float64
	ClusterSeparation      float64
	TopPercentile          float64
	TopKMinPercentile      float64
}

// Decision is the outcome of the rerank gate. Reason is a stable label,
// Detail a human-readable explanation recorded in result notes.
type Decision struct {
	Skip   bool
	Reason string
	Detail string
}

// ShouldSkipRerank evaluates the ordered skip conditions over the similarity
// scores of the retrieved candidates, which must be sorted descending. The
// first condition that fires wins; when none fires the caller reranks.
func ShouldSkipRerank(cfg DecisionConfig, scores []float64) Decision {
	if cfg.Disabled {
		return Decision{Reason: ReasonDisabled, Detail: "dynamic rerank gate disabled"}
	}

	topK := cfg.TargetTopK

	// Condition 1: reranking a list no larger than what is needed is pointless.
	if len(scores) <= topK {
		return Decision{
			Skip:   true,
			Reason: ReasonTooFewCandidates,
			Detail: fmt.Sprintf("only %d candidates (<=%d), skipping rerank", len(scores), topK),
		}
	}

	topScores := scores[:topK]
	asc := ascending(scores)

	// Condition 2: all top-K scores sit above the configured percentile of
	// the full distribution.
	floor := percentile(asc, cfg.MinPercentileRank)
	if allAtLeast(topScores, floor) {
		return Decision{
			Skip:   true,
			Reason: ReasonPercentileFloor,
			Detail: fmt.Sprintf("all top %d above %gth percentile (%.3f)", topK, cfg.MinPercentileRank, floor),
		}
	}

	// Condition 3: a clear statistical boundary between the K-th and
	// (K+1)-th candidate.
	kRank := percentileRank(scores, scores[topK-1])
	nextRank := percentileRank(scores, scores[topK])
	if gap := kRank - nextRank; gap >= cfg.PercentileGapThreshold {
		return Decision{
			Skip:   true,
			Reason: ReasonPercentileGap,
			Detail: fmt.Sprintf("percentile gap %.1f points (k=%.1f, k+1=%.1f)", gap, kRank, nextRank),
		}
	}

	// Condition 4: the top group's mean is well separated from the rest.
	topMean := stat.Mean(topScores, nil)
	restMean := stat.Mean(scores[topK:], nil)
	if separation := topMean - restMean; separation > cfg.ClusterSeparation {
		return Decision{
			Skip:   true,
			Reason: ReasonClusterSeparation,
			Detail: fmt.Sprintf("cluster separation %.3f (top mean %.3f, rest mean %.3f)", separation, topMean, restMean),
		}
	}

	// Condition 5: an unambiguous leader with a strong supporting group.
	pHigh := percentile(asc, cfg.TopPercentile)
	pLow := percentile(asc, cfg.TopKMinPercentile)
	if scores[0] >= pHigh && allAtLeast(topScores, pLow) {
		return Decision{
			Skip:   true,
			Reason: ReasonTopDominance,
			Detail: fmt.Sprintf("top score dominant (top %.3f >= %.3f, all top %d >= %.3f)", scores[0], pHigh, topK, pLow),
		}
	}

	return Decision{Reason: ReasonAmbiguous, Detail: "scores too ambiguous, using reranker"}
}

// percentile computes the p-th percentile (0..100) over an ascending-sorted
// slice with linear interpolation between closest ranks at h = (n-1)*p/100.
// The tuned thresholds were calibrated against this convention.
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

// percentileRank returns the share of scores at or below the given score,
// as a 0..100 rank.
func percentileRank(scores []float64, score float64) float64 {
	count := 0
	for _, s := range scores {
		if s <= score {
			count++
		}
	}
	return float64(count) / float64(len(scores)) * 100
}

func allAtLeast(scores []float64, bound float64) bool {
	for _, s := range scores {
		if s < bound {
			return false
		}
	}
	return true
}

func ascending(scores []float64) []float64 {
	asc := append([]float64(nil), scores...)
	sort.Float64s(asc)
	return asc
}
