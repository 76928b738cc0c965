package match

import (
	"strings"

	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
	domnorm "github.com/kailas-cloud/stepmatch/internal/domain/normalize"
	"github.com/kailas-cloud/stepmatch/internal/normalizer"
)

// formatQuery renders the normalized query with structured cues for the
// cross-encoder. The cue layout must match formatCandidate so the model
// compares like with like.
func formatQuery(n domnorm.Result) string {
	var parts []string
	if n.ActionCanonical != "" {
		parts = append(parts, "Action: "+n.ActionCanonical)
	}
	if len(n.DomainTerms) > 0 {
		parts = append(parts, "Domain: "+strings.Join(n.DomainTerms, " "))
	}
	if len(n.CountPhrases) > 0 {
		parts = append(parts, "Counts: "+strings.Join(n.CountPhrases, " "))
	}
	parts = append(parts, "Text: "+n.NormalizedText)
	return strings.Join(parts, " | ")
}

// formatCandidate renders a candidate for the cross-encoder, re-normalizing
// its original text to recover the same structured cues the query carries.
func formatCandidate(c candidate.Candidate, norm *normalizer.Normalizer) string {
	text := c.StepText
	if text == "" {
		text = c.ScenarioFullText
	}
	if text == "" {
		text = c.StepNormalized
	}
	if text == "" {
		return ""
	}

	n := norm.Normalize(text)

	var parts []string
	if n.ActionCanonical != "" {
		parts = append(parts, "Action: "+n.ActionCanonical)
	}
	if len(n.DomainTerms) > 0 {
		parts = append(parts, "Domain: "+strings.Join(n.DomainTerms, " "))
	}
	if len(n.CountPhrases) > 0 {
		parts = append(parts, "Counts: "+strings.Join(n.CountPhrases, " "))
	}

	base := c.StepNormalized
	if base == "" {
		base = n.NormalizedText
	}
	parts = append(parts, "Text: "+base)
	return strings.Join(parts, " | ")
}
