package match

import (
	"math"
	"testing"
)

func defaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		TargetTopK:             5,
		MinPercentileRank:      90,
		PercentileGapThreshold: 20,
		ClusterSeparation:      0.1,
		TopPercentile:          95,
		TopKMinPercentile:      85,
	}
}

func TestShouldSkipRerank_TooFewCandidates(t *testing.T) {
	cfg := defaultDecisionConfig()

	d := ShouldSkipRerank(cfg, []float64{0.9, 0.8, 0.7})
	if !d.Skip {
		t.Fatalf("want skip for %d candidates, got %+v", 3, d)
	}
	if d.Reason != ReasonTooFewCandidates {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonTooFewCandidates)
	}
}

func TestShouldSkipRerank_MonotonicInCandidateCount(t *testing.T) {
	// Shrinking any distribution to <= target-K must always skip.
	cfg := defaultDecisionConfig()
	scores := []float64{0.9, 0.72, 0.71, 0.70, 0.69, 0.68, 0.67, 0.66, 0.65, 0.64}

	for n := 1; n <= cfg.TargetTopK; n++ {
		d := ShouldSkipRerank(cfg, scores[:n])
		if !d.Skip {
			t.Errorf("n=%d: want skip, got %+v", n, d)
		}
	}
}

func TestShouldSkipRerank_ClusterSeparation(t *testing.T) {
	cfg := defaultDecisionConfig()
	// Tight top group far above a tight bottom group, but with the gap
	// conditions defeated by duplicated boundary scores.
	scores := []float64{0.90, 0.89, 0.88, 0.87, 0.86, 0.40, 0.39, 0.38, 0.37, 0.36, 0.35, 0.34}

	d := ShouldSkipRerank(cfg, scores)
	if !d.Skip {
		t.Fatalf("want skip, got %+v", d)
	}
	// Either the percentile or separation family may fire first; the gate
	// must skip, and never via the too-few branch.
	if d.Reason == ReasonTooFewCandidates || d.Reason == ReasonAmbiguous {
		t.Errorf("unexpected reason %s", d.Reason)
	}
}

func TestShouldSkipRerank_AmbiguousUsesReranker(t *testing.T) {
	cfg := defaultDecisionConfig()
	// Smooth, dense decay with no boundary anywhere.
	scores := make([]float64, 20)
	for i := range scores {
		scores[i] = 0.80 - float64(i)*0.005
	}

	d := ShouldSkipRerank(cfg, scores)
	if d.Skip {
		t.Fatalf("want rerank for smooth distribution, got skip: %+v", d)
	}
	if d.Reason != ReasonAmbiguous {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonAmbiguous)
	}
}

func TestShouldSkipRerank_Disabled(t *testing.T) {
	cfg := defaultDecisionConfig()
	cfg.Disabled = true

	d := ShouldSkipRerank(cfg, []float64{0.9, 0.8})
	if d.Skip {
		t.Fatalf("disabled gate must never skip, got %+v", d)
	}
	if d.Reason != ReasonDisabled {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonDisabled)
	}
}

func TestPercentile_LinearInterpolationBetweenClosestRanks(t *testing.T) {
	cases := []struct {
		name string
		data []float64
		p    float64
		want float64
	}{
		{"median of four", []float64{0.1, 0.2, 0.3, 0.4}, 50, 0.25},
		{"p25 of four", []float64{1, 2, 3, 4}, 25, 1.75},
		{"p75 of four", []float64{1, 2, 3, 4}, 75, 3.25},
		{"p90 of ten", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 90, 9.1},
		{"exact rank", []float64{1, 2, 3}, 50, 2},
		{"p0 is min", []float64{1, 2, 3}, 0, 1},
		{"p100 is max", []float64{1, 2, 3}, 100, 3},
		{"single element", []float64{7}, 42, 7},
	}
	for _, tc := range cases {
		if got := percentile(tc.data, tc.p); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("%s: percentile(%v, %g) = %v, want %v", tc.name, tc.data, tc.p, got, tc.want)
		}
	}
}

func TestShouldSkipRerank_PercentileFloorUsesInterpolatedValue(t *testing.T) {
	// The p50 floor of {0.1, 0.2, 0.3, 0.4} interpolates to 0.250; the
	// third-best score 0.2 sits below it, so the gate must not declare the
	// whole top group above the floor.
	cfg := DecisionConfig{
		TargetTopK:             3,
		MinPercentileRank:      50,
		PercentileGapThreshold: 1000,
		ClusterSeparation:      1000,
		TopPercentile:          95,
		TopKMinPercentile:      85,
	}

	d := ShouldSkipRerank(cfg, []float64{0.4, 0.3, 0.2, 0.1})
	if d.Skip {
		t.Fatalf("want rerank, got skip: %+v", d)
	}
	if d.Reason != ReasonAmbiguous {
		t.Errorf("reason = %s, want %s", d.Reason, ReasonAmbiguous)
	}
}

func TestPercentileRank(t *testing.T) {
	scores := []float64{0.9, 0.8, 0.7, 0.6}
	if got := percentileRank(scores, 0.9); got != 100 {
		t.Errorf("rank(0.9) = %v, want 100", got)
	}
	if got := percentileRank(scores, 0.6); got != 25 {
		t.Errorf("rank(0.6) = %v, want 25", got)
	}
}
