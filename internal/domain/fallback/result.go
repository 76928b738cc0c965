// Package fallback defines the outcome of the escalating fallback chain.
package fallback

import "github.com/kailas-cloud/stepmatch/internal/domain/candidate"

// Confidence labels the strength of a fallback outcome.
type Confidence string

const (
	// MedConf means the fallback cleared the medium-confidence threshold.
	MedConf Confidence = "MED_CONF"
	// LowConf means a weak but accepted match (cluster vote or synthesis).
	LowConf Confidence = "LOW_CONF"
	// NoMatch means the stage (or the whole chain) produced nothing usable.
	NoMatch Confidence = "NO_MATCH"
)

// Stage identifies which fallback produced a result.
type Stage string

// Fallback stages in chain order.
const (
	StageRelaxedSearch      Stage = "relaxed_search"
	StageContextExpansion   Stage = "context_expansion"
	StageLexicalSearch      Stage = "lexical_search"
	StageClusterAggregation Stage = "cluster_aggregation"
	StageRuleSynthesis      Stage = "rule_synthesis"
	StageLLMSynthesis       Stage = "llm_synthesis"
	// StageNone is reported when every enabled stage failed.
	StageNone Stage = "new_bdd_required"
)

// Input carries everything the fallback chain needs from the primary path.
type Input struct {
	QueryText      string
	NormalizedText string
	Embedding      []float32
	// TopRerankScore is the best reranker score from the primary path;
	// HasRerankScore is false when rerank was skipped there.
	TopRerankScore float64
	HasRerankScore bool
	PreviousSteps  []string
}

// Result is the outcome of executing the fallback chain (or one stage of it).
type Result struct {
	Success    bool
	Candidates []candidate.Candidate
	StageUsed  Stage
	Confidence Confidence
}

// Failed builds the canonical failure result for a stage.
func Failed(stage Stage) Result {
	return Result{StageUsed: stage, Confidence: NoMatch}
}
