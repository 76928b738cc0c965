// Package chunker splits multi-action manual test steps into atomic,
// independently matchable chunks.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kailas-cloud/stepmatch/internal/domain/chunk"
	domnorm "github.com/kailas-cloud/stepmatch/internal/domain/normalize"
	"github.com/kailas-cloud/stepmatch/internal/nlp"
	"github.com/kailas-cloud/stepmatch/internal/normalizer"
)

const (
	// DefaultMinTokens drops fragments too short to carry an action.
	DefaultMinTokens = 3
	// DefaultMaxTokens triggers re-splitting of run-on segments.
	DefaultMaxTokens = 20
)

var (
	newlineRe     = regexp.MustCompile(`\n+`)
	bulletSplitRe = regexp.MustCompile(`[•\-*]\s+`)
	semicolonRe   = regexp.MustCompile(`;\s*`)
	commaConjRe   = regexp.MustCompile(`,\s*(?:and|or|then)\s+`)
	bareConjRe    = regexp.MustCompile(`\s+(?:and|or|then)\s+`)
	hasLetterRe   = regexp.MustCompile(`[a-zA-Z]`)
)

var conjunctions = map[string]struct{}{"and": {}, "or": {}, "then": {}}

// Config holds chunking limits and the tagger used for verb-boundary
// detection.
type Config struct {
	MinTokens int        // 0 selects DefaultMinTokens
	MaxTokens int        // 0 selects DefaultMaxTokens
	Tagger    nlp.Tagger // nil selects the regex fallback
}

// Chunker splits manual test steps. Immutable after construction.
type Chunker struct {
	minTokens int
	maxTokens int
	tagger    nlp.Tagger
}

// New creates a Chunker from cfg, filling defaults for zero fields.
func New(cfg Config) *Chunker {
	c := &Chunker{
		minTokens: cfg.MinTokens,
		maxTokens: cfg.MaxTokens,
		tagger:    cfg.Tagger,
	}
	if c.minTokens <= 0 {
		c.minTokens = DefaultMinTokens
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.tagger == nil {
		c.tagger = nlp.NewRegexTagger()
	}
	return c
}

// Chunk splits text into atomic chunks ordered left to right, each
// normalized through n. Empty input yields an empty slice, not an error.
// Chunk indexes within the parent are contiguous from 0; the
// context-expansion fallback depends on this ordering.
func (c *Chunker) Chunk(text, parentID string, n *normalizer.Normalizer) []chunk.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	segments := c.splitOnDelimiters(text)

	var refined []string
	for _, seg := range segments {
		refined = append(refined, c.splitAtVerbBoundaries(seg)...)
	}

	refined = c.filterNoise(refined)

	var result []chunk.Chunk
	for _, seg := range refined {
		norm := n.Normalize(seg)

		if tokenCount(norm.NormalizedText) > c.maxTokens {
			for _, sub := range c.splitLongSegment(seg) {
				result = append(result, materialize(sub, parentID, len(result), n.Normalize(sub)))
			}
			continue
		}
		result = append(result, materialize(seg, parentID, len(result), norm))
	}

	return result
}

func materialize(original, parentID string, index int, norm domnorm.Result) chunk.Chunk {
	return chunk.Chunk{
		ID:            fmt.Sprintf("%s_chunk_%d", parentID, index),
		ParentID:      parentID,
		Index:         index,
		Original:      original,
		Normalized:    norm.NormalizedText,
		ActionVerb:    norm.ActionVerb,
		PrimaryObject: norm.PrimaryObject,
		Placeholders:  norm.Placeholders,
	}
}

// splitOnDelimiters performs coarse segmentation: newlines, then bullet
// markers, then semicolons.
func (c *Chunker) splitOnDelimiters(text string) []string {
	var out []string
	for _, line := range newlineRe.Split(text, -1) {
		for _, bullet := range bulletSplitRe.Split(line, -1) {
			for _, seg := range semicolonRe.Split(bullet, -1) {
				if s := strings.TrimSpace(seg); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// splitAtVerbBoundaries cuts a segment before each verb that follows a
// coordinating conjunction, attributing tokens to the chunk whose verb
// governs them. Single-verb segments pass through unchanged.
func (c *Chunker) splitAtVerbBoundaries(text string) []string {
	tokens, err := c.tagger.Tag(text)
	if err != nil || countVerbs(tokens) <= 1 {
		return []string{text}
	}

	var (
		chunks  []string
		current []string
		seen    bool // a verb has occurred in the current chunk
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
		}
	}

	for i, tok := range tokens {
		if tok.Tag == nlp.Verb && seen && i > 0 {
			if _, conj := conjunctions[strings.ToLower(tokens[i-1].Text)]; conj {
				// Drop the trailing conjunction from the finished chunk.
				if len(current) > 0 {
					current = current[:len(current)-1]
				}
				flush()
			}
		}
		current = append(current, tok.Text)
		if tok.Tag == nlp.Verb {
			seen = true
		}
	}
	flush()

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// filterNoise drops segments that cannot be matched: too short, no action
// verb, or no letters at all.
func (c *Chunker) filterNoise(segments []string) []string {
	var out []string
	for _, seg := range segments {
		words := strings.Fields(seg)
		if len(words) < c.minTokens {
			continue
		}
		if !containsActionVerb(words) {
			continue
		}
		if !hasLetterRe.MatchString(seg) {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// splitLongSegment re-splits an over-long segment at verb boundaries, or at
// comma-joined conjunctions when the tagger finds nothing to cut.
func (c *Chunker) splitLongSegment(text string) []string {
	if parts := c.splitAtVerbBoundaries(text); len(parts) > 1 {
		return parts
	}

	parts := commaConjRe.Split(text, -1)
	if len(parts) == 1 {
		parts = bareConjRe.Split(text, -1)
	}

	var out []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

func containsActionVerb(words []string) bool {
	for _, w := range words {
		if nlp.IsActionVerb(strings.Trim(w, ".,;:!?()'")) {
			return true
		}
	}
	return false
}

func countVerbs(tokens []nlp.Token) int {
	n := 0
	for _, tok := range tokens {
		if tok.Tag == nlp.Verb {
			n++
		}
	}
	return n
}

func tokenCount(text string) int {
	return len(strings.Fields(text))
}
