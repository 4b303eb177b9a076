// Package toolindex retrieves tools by semantic similarity.
//
// Every registered tool's name and description are embedded once at build
// time; at question time the query is embedded and the k nearest tools are
// handed to the agent as its candidate set. This keeps the tool surface
// small even when many documents are indexed.
package toolindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/richinex/lectern/embed"
	"github.com/richinex/lectern/index"
	"github.com/richinex/lectern/tools"
)

// DefaultTopK is the number of tools retrieved per question.
const DefaultTopK = 2

// ToolIndex is an immutable embedding index over a set of tools.
// Safe for concurrent retrieval.
type ToolIndex struct {
	embedder embed.Embedder
	tools    []tools.Tool
	vectors  [][]float32
}

// Build embeds every tool's description and returns the index. Tools keep
// their given order; the order breaks score ties during retrieval.
func Build(ctx context.Context, embedder embed.Embedder, toolList []tools.Tool) (*ToolIndex, error) {
	texts := make([]string, len(toolList))
	for i, tool := range toolList {
		meta := tool.Metadata()
		texts[i] = meta.Name + ": " + meta.Description
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding tool descriptions: %w", err)
		}
		if len(vectors) != len(toolList) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d tools", len(vectors), len(toolList))
		}
	}

	indexed := make([]tools.Tool, len(toolList))
	copy(indexed, toolList)

	return &ToolIndex{
		embedder: embedder,
		tools:    indexed,
		vectors:  vectors,
	}, nil
}

// Len returns the number of indexed tools.
func (x *ToolIndex) Len() int { return len(x.tools) }

// Tools returns every indexed tool in build order.
func (x *ToolIndex) Tools() []tools.Tool {
	out := make([]tools.Tool, len(x.tools))
	copy(out, x.tools)
	return out
}

// Retrieve returns the k tools most similar to the query, best first.
// Non-positive k falls back to DefaultTopK; k beyond the number of indexed
// tools returns all of them. Ties keep build order.
func (x *ToolIndex) Retrieve(ctx context.Context, query string, k int) ([]tools.Tool, error) {
	if len(x.tools) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = DefaultTopK
	}
	if k > len(x.tools) {
		k = len(x.tools)
	}

	queryVec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	type scored struct {
		position int
		score    float64
	}
	ranked := make([]scored, len(x.tools))
	for i := range x.tools {
		ranked[i] = scored{position: i, score: index.Cosine(queryVec, x.vectors[i])}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].position < ranked[j].position
	})

	out := make([]tools.Tool, k)
	for i := 0; i < k; i++ {
		out[i] = x.tools[ranked[i].position]
	}
	return out, nil
}
