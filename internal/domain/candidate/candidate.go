// Package candidate defines the retrieved unit a query chunk is compared against.
package candidate

// Candidate is a single retrieval hit: an individual Given/When/Then step
// together with its owning scenario's context, or a lexical hit on a full
// scenario. Similarity is cosine similarity in [-1, 1] for vector hits and
// a backend rank score for lexical hits.
//
// RerankScore is nil until the cross-encoder has scored the candidate; the
// score scale is model-defined and may be negative, so nil (not 0) encodes
// "never reranked".
type Candidate struct {
	ID             string
	StepType       string // "Given", "When" or "Then"
	StepText       string
	StepNormalized string
	StepIndex      int

	ScenarioID       string
	ScenarioName     string
	ScenarioFullText string
	GivenSteps       []string
	WhenSteps        []string
	ThenSteps        []string

	Similarity  float64
	RerankScore *float64
	UsageCount  int
	ClusterID   string // empty when the step is unclustered

	Synthesized bool // true for templates fabricated by rule synthesis
}

// Template returns the display form of the candidate: "Type: text" for
// individual steps, scenario name otherwise.
func (c Candidate) Template() string {
	if c.StepType != "" && c.StepText != "" {
		return c.StepType + ": " + c.StepText
	}
	return c.ScenarioName
}
