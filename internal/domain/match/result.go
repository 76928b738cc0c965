// Package match defines the terminal decision record of the matching pipeline.
package match

import (
	"time"

	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
)

// Action is the final decision for one query chunk.
type Action string

const (
	// ReusedTemplate means an existing BDD step satisfies the chunk.
	ReusedTemplate Action = "REUSED_TEMPLATE"
	// NewBDDRequired means no existing BDD step matched; a new one must be authored.
	NewBDDRequired Action = "NEW_BDD_REQUIRED"
)

// Result is the per-chunk decision record. It is created once per match
// invocation and never mutated afterwards.
//
// RerankScore and VectorSimilarity are nil when the corresponding stage
// never produced a score (rerank skipped, or no candidates at all).
type Result struct {
	QueryID        string
	ParentID       string
	ChunkIndex     int
	OriginalChunk  string
	FullTestcase   string
	NormalizedText string

	TopCandidates    []candidate.Candidate
	SelectedID       string
	SelectedTemplate string

	FinalAction      Action
	RerankScore      *float64
	VectorSimilarity *float64

	Latency time.Duration
	Notes   string // skip reason, fallback stage, or error text
}
