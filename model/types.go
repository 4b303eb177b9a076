// Package model provides domain types shared across packages.
package model

import "fmt"

// Document is a single ingested text document. Identity is the DocID;
// once chunked for an index build the content is treated as immutable.
type Document struct {
	DocID string
	Path  string
	Text  string
}

// Chunk is a bounded contiguous slice of a document's text, the unit of
// embedding and retrieval. TokenCount counts the tokens the chunk newly
// contributes and never exceeds the configured chunk size; Text additionally
// carries Overlap tokens repeated from the end of the previous chunk.
type Chunk struct {
	DocID      string `json:"doc_id"`
	Seq        int    `json:"seq"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	Overlap    int    `json:"overlap,omitempty"`
}

// ChunkID returns the canonical identifier for a chunk within its document.
func (c Chunk) ChunkID() string {
	return fmt.Sprintf("%s:%d", c.DocID, c.Seq)
}

// ScoredChunk is a chunk paired with a similarity score from a vector query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Step records one turn of the agent loop for tracing.
type Step struct {
	Iteration   int
	Thought     string
	Action      *string
	Observation *string
}

// ToolCall contains metrics about a tool invocation.
// Used for tracking and analytics in agent sessions.
type ToolCall struct {
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}
