package chunker

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/stepmatch/internal/normalizer"
)

func newTestNormalizer() *normalizer.Normalizer {
	return normalizer.New(normalizer.Config{})
}

func TestChunk_EmptyInput(t *testing.T) {
	c := New(Config{})

	for _, input := range []string{"", "   ", "\n\n"} {
		if got := c.Chunk(input, "tc-1", newTestNormalizer()); len(got) != 0 {
			t.Errorf("Chunk(%q): expected no chunks, got %d", input, len(got))
		}
	}
}

func TestChunk_SemicolonSplitPreservesOrder(t *testing.T) {
	c := New(Config{})

	chunks := c.Chunk("Click the Login button; enter the username field; press the Enter key", "tc-1", newTestNormalizer())

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d: index = %d, want %d", i, ch.Index, i)
		}
		if ch.ParentID != "tc-1" {
			t.Errorf("chunk %d: parent = %q, want tc-1", i, ch.ParentID)
		}
		if ch.ActionVerb == "" {
			t.Errorf("chunk %d (%q): no action verb extracted", i, ch.Original)
		}
	}
	// Left-to-right order of the source actions.
	if !strings.Contains(chunks[0].Original, "Login") {
		t.Errorf("chunk 0 should be the Login action, got %q", chunks[0].Original)
	}
	if !strings.Contains(chunks[2].Original, "Enter") {
		t.Errorf("chunk 2 should be the Enter action, got %q", chunks[2].Original)
	}
}

func TestChunk_NewlineAndBulletSplit(t *testing.T) {
	c := New(Config{})

	text := "Click the Save button\n• enter the customer name\n• verify the success message"
	chunks := c.Chunk(text, "tc-2", newTestNormalizer())

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk indexes must be contiguous, got %d at position %d", ch.Index, i)
		}
	}
}

func TestChunk_VerbBoundarySplit(t *testing.T) {
	c := New(Config{})

	chunks := c.Chunk("Click the Login button and enter the username value", "tc-3", newTestNormalizer())

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks from conjunction split, got %d: %+v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0].Original, "Click") {
		t.Errorf("first chunk should carry the click action, got %q", chunks[0].Original)
	}
	if !strings.Contains(chunks[1].Original, "enter") {
		t.Errorf("second chunk should carry the enter action, got %q", chunks[1].Original)
	}
	if strings.Contains(chunks[0].Original, " and") {
		t.Errorf("trailing conjunction should be dropped, got %q", chunks[0].Original)
	}
}

func TestChunk_NoiseFiltering(t *testing.T) {
	c := New(Config{})
	n := newTestNormalizer()

	// Too short.
	if got := c.Chunk("ok go", "tc-4", n); len(got) != 0 {
		t.Errorf("short segment should be dropped, got %+v", got)
	}
	// No action verb.
	if got := c.Chunk("the quick brown fox", "tc-4", n); len(got) != 0 {
		t.Errorf("verbless segment should be dropped, got %+v", got)
	}
	// Punctuation only.
	if got := c.Chunk("... ;;; !!!", "tc-4", n); len(got) != 0 {
		t.Errorf("punctuation-only segment should be dropped, got %+v", got)
	}
}

func TestChunk_LongSegmentResplit(t *testing.T) {
	c := New(Config{MaxTokens: 6})

	text := "click the main navigation menu option, then select the very first available customer account entry"
	chunks := c.Chunk(text, "tc-5", newTestNormalizer())

	if len(chunks) < 2 {
		t.Fatalf("expected over-long segment to be re-split, got %d chunks", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("indexes must stay contiguous after re-split: got %d at %d", ch.Index, i)
		}
	}
}

func TestChunk_ThreeActionsKeepCountAndOrder(t *testing.T) {
	c := New(Config{MinTokens: 2})

	chunks := c.Chunk("Click Login; enter username; press Enter", "tc-7", newTestNormalizer())

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d: index = %d", i, ch.Index)
		}
	}
	wantOrder := []string{"Click", "enter", "press"}
	for i, prefix := range wantOrder {
		if !strings.HasPrefix(chunks[i].Original, prefix) {
			t.Errorf("chunk %d = %q, want prefix %q", i, chunks[i].Original, prefix)
		}
	}
}

func TestChunk_SingleActionPassesThrough(t *testing.T) {
	c := New(Config{})

	chunks := c.Chunk("Click the Submit button", "tc-6", newTestNormalizer())
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ID != "tc-6_chunk_0" {
		t.Errorf("chunk id = %q, want tc-6_chunk_0", chunks[0].ID)
	}
	if chunks[0].Normalized == "" {
		t.Error("chunk should carry normalized text")
	}
}
