// Package chunker splits document text into ordered, overlapping,
// token-bounded chunks.
//
// Tokens are whitespace-delimited words; each token keeps its trailing
// whitespace so that concatenating segments reproduces the input exactly.
// Chunk boundaries prefer sentence ends within a lookback window and fall
// back to hard token cuts.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/richinex/lectern/model"
)

// Default chunking parameters.
const (
	DefaultChunkSize = 1024
	DefaultOverlap   = 100
)

// Chunker splits text into token-bounded chunks with overlap.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. Non-positive size falls back to DefaultChunkSize;
// overlap is clamped to at most 20% of the chunk size.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if max := size / 5; overlap > max {
		overlap = max
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the configured chunk size in tokens.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in tokens.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits a document into ordered chunks. Every character of the input
// is covered by exactly one chunk's contributed span; each chunk after the
// first repeats up to Overlap tokens of context from its predecessor.
// An empty or whitespace-only document yields zero chunks.
func (c *Chunker) Chunk(doc model.Document) ([]model.Chunk, error) {
	segments := splitSegments(doc.Text)
	if len(segments) == 0 {
		return nil, nil
	}

	// Core spans partition the segment list; each is at most size tokens,
	// ending at a sentence boundary when one falls inside the lookback window.
	type span struct{ start, end int }
	var cores []span
	lookback := c.size / 4
	for pos := 0; pos < len(segments); {
		end := pos + c.size
		if end >= len(segments) {
			cores = append(cores, span{pos, len(segments)})
			break
		}
		if cut := sentenceCut(segments, end, lookback); cut > pos {
			end = cut
		}
		cores = append(cores, span{pos, end})
		pos = end
	}

	chunks := make([]model.Chunk, 0, len(cores))
	for i, core := range cores {
		start := core.start
		overlap := 0
		if i > 0 {
			overlap = c.overlap
			if overlap > core.start {
				overlap = core.start
			}
			start = core.start - overlap
		}
		var text strings.Builder
		for _, seg := range segments[start:core.end] {
			text.WriteString(seg)
		}
		chunks = append(chunks, model.Chunk{
			DocID:      doc.DocID,
			Seq:        i,
			Text:       text.String(),
			TokenCount: core.end - core.start,
			Overlap:    overlap,
		})
	}
	return chunks, nil
}

// Reconstruct rebuilds the original document text from ordered chunks by
// dropping each chunk's overlap prefix.
func Reconstruct(chunks []model.Chunk) string {
	var out strings.Builder
	for _, chunk := range chunks {
		segments := splitSegments(chunk.Text)
		if chunk.Overlap < len(segments) {
			segments = segments[chunk.Overlap:]
		} else {
			segments = nil
		}
		for _, seg := range segments {
			out.WriteString(seg)
		}
	}
	return out.String()
}

// CountTokens returns the number of whitespace-delimited tokens in text.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// splitSegments splits text into whitespace-delimited tokens, each carrying
// its trailing whitespace. Leading whitespace attaches to the first token,
// so concatenating all segments reproduces the input exactly.
func splitSegments(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var segments []string
	i, n := 0, len(text)
	for i < n {
		for i < n && isSpaceAt(text, i) {
			i = nextRune(text, i)
		}
		if i >= n {
			// Trailing whitespace attaches to the last segment.
			break
		}
		start := i
		if len(segments) == 0 {
			start = 0
		}
		for i < n && !isSpaceAt(text, i) {
			i = nextRune(text, i)
		}
		for i < n && isSpaceAt(text, i) {
			i = nextRune(text, i)
		}
		segments = append(segments, text[start:i])
	}
	return segments
}

func isSpaceAt(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsSpace(r)
}

func nextRune(s string, i int) int {
	_, size := utf8.DecodeRuneInString(s[i:])
	return i + size
}

// sentenceCut looks backward from end (exclusive) within the lookback window
// for a segment whose token finishes a sentence. Returns the index just past
// that segment, or 0 when no boundary is found.
func sentenceCut(segments []string, end, lookback int) int {
	low := end - lookback
	if low < 0 {
		low = 0
	}
	for j := end - 1; j >= low; j-- {
		token := strings.TrimRightFunc(segments[j], unicode.IsSpace)
		token = strings.TrimRight(token, `"')]`)
		if strings.HasSuffix(token, ".") || strings.HasSuffix(token, "!") || strings.HasSuffix(token, "?") {
			return j + 1
		}
	}
	return 0
}
