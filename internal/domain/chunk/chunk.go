// Package chunk defines the atomic-action unit extracted from a manual test step.
package chunk

import "github.com/kailas-cloud/stepmatch/internal/domain/normalize"

// Chunk is one atomic action split out of a (possibly multi-action) manual
// test step. Index values within one parent are contiguous, starting at 0,
// and preserve the left-to-right order of actions in the source text.
type Chunk struct {
	ID            string
	ParentID      string
	Index         int
	Original      string
	Normalized    string
	ActionVerb    string
	PrimaryObject string
	Placeholders  []normalize.Placeholder
}
