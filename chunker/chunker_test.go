package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/richinex/lectern/model"
)

func makeWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(words, " ")
}

func TestChunkReconstruction(t *testing.T) {
	texts := []string{
		"One sentence. Another sentence follows here! A third? Yes.",
		makeWords(500),
		"  leading whitespace preserved. Trailing too.  ",
		"single",
	}

	c := New(50, 10)
	for _, text := range texts {
		chunks, err := c.Chunk(model.Document{DocID: "doc", Text: text})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := Reconstruct(chunks); got != text {
			t.Errorf("reconstruction mismatch:\n got %q\nwant %q", got, text)
		}
	}
}

func TestChunkEmptyDocument(t *testing.T) {
	c := New(0, 0) // defaults
	for _, text := range []string{"", "   ", "\n\t\n"} {
		chunks, err := c.Chunk(model.Document{DocID: "empty", Text: text})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chunks) != 0 {
			t.Errorf("text %q: expected zero chunks, got %d", text, len(chunks))
		}
	}
}

func TestChunkShortDocumentSingleChunk(t *testing.T) {
	c := New(1024, 100)
	chunks, err := c.Chunk(model.Document{DocID: "short", Text: "A short document."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "A short document." {
		t.Errorf("chunk text = %q", chunks[0].Text)
	}
	if chunks[0].Overlap != 0 {
		t.Errorf("first chunk overlap = %d, want 0", chunks[0].Overlap)
	}
}

func TestChunkThreeThousandTokens(t *testing.T) {
	// 3000 tokens at chunk size 1024 with 100-token overlap yields 3 chunks.
	c := New(1024, 100)
	chunks, err := c.Chunk(model.Document{DocID: "big", Text: makeWords(3000)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Seq != i {
			t.Errorf("chunk %d has seq %d", i, ch.Seq)
		}
		if ch.TokenCount > 1024 {
			t.Errorf("chunk %d token count %d exceeds chunk size", i, ch.TokenCount)
		}
		if i > 0 && ch.Overlap != 100 {
			t.Errorf("chunk %d overlap = %d, want 100", i, ch.Overlap)
		}
	}
	total := 0
	for _, ch := range chunks {
		total += ch.TokenCount
	}
	if total != 3000 {
		t.Errorf("contributed tokens = %d, want 3000", total)
	}
}

func TestChunkPrefersSentenceBoundary(t *testing.T) {
	// Sentences of 10 tokens each; chunk size 25 should cut at a sentence end
	// (20 tokens) rather than mid-sentence.
	var b strings.Builder
	for s := 0; s < 10; s++ {
		for w := 0; w < 9; w++ {
			fmt.Fprintf(&b, "s%dw%d ", s, w)
		}
		fmt.Fprintf(&b, "end%d. ", s)
	}
	text := strings.TrimSpace(b.String())

	c := New(25, 0)
	chunks, err := c.Chunk(model.Document{DocID: "sentences", Text: text})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	first := strings.TrimSpace(chunks[0].Text)
	if !strings.HasSuffix(first, ".") {
		t.Errorf("first chunk does not end at a sentence boundary: %q", first[len(first)-20:])
	}
	if chunks[0].TokenCount != 20 {
		t.Errorf("first chunk token count = %d, want 20", chunks[0].TokenCount)
	}
}

func TestChunkOverlapClamped(t *testing.T) {
	c := New(100, 90)
	if c.Overlap() != 20 {
		t.Errorf("overlap = %d, want clamped to 20", c.Overlap())
	}
}

func TestChunkOverlapRepeatsPreviousContext(t *testing.T) {
	c := New(50, 10)
	chunks, err := c.Chunk(model.Document{DocID: "d", Text: makeWords(200)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	prevWords := strings.Fields(chunks[0].Text)
	currWords := strings.Fields(chunks[1].Text)
	overlap := chunks[1].Overlap
	if overlap == 0 {
		t.Fatal("second chunk has no overlap")
	}
	tail := prevWords[len(prevWords)-overlap:]
	for i, w := range tail {
		if currWords[i] != w {
			t.Fatalf("overlap token %d = %q, want %q", i, currWords[i], w)
		}
	}
}
