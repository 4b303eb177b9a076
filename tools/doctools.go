// Per-document query tools.
//
// Each indexed document gets a pair of tools: a vector query tool for
// specific-fact questions and a summary tool for whole-document questions.
// Tool names embed a sanitized form of the document id so the model can
// route questions to the right document.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/lectern/model"
)

// DocumentIndex is the slice of an indexed document the tools need.
// Implemented by index.Pair.
type DocumentIndex interface {
	DocID() string
	VectorQuery(ctx context.Context, query string, topK int) ([]model.ScoredChunk, error)
	Summarize(ctx context.Context) (string, error)
	SummarizeFocused(ctx context.Context, focus string) (string, error)
}

// DefaultVectorTopK is the number of chunks a vector query tool returns
// when the model does not ask for a specific count.
const DefaultVectorTopK = 2

// ToolFactory builds tool pairs for documents, keeping generated names
// unique across the documents it has seen.
type ToolFactory struct {
	used map[string]bool
}

// NewToolFactory creates a factory with no names taken.
func NewToolFactory() *ToolFactory {
	return &ToolFactory{used: make(map[string]bool)}
}

// ToolsFor returns the vector and summary tools for one document.
// The slug is derived from the document id; a collision with an earlier
// document gets a numeric suffix.
func (f *ToolFactory) ToolsFor(doc DocumentIndex) (*VectorQueryTool, *SummaryTool) {
	slug := f.claim(Slugify(doc.DocID()))
	return &VectorQueryTool{doc: doc, slug: slug}, &SummaryTool{doc: doc, slug: slug}
}

func (f *ToolFactory) claim(slug string) string {
	if !f.used[slug] {
		f.used[slug] = true
		return slug
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", slug, i)
		if !f.used[candidate] {
			f.used[candidate] = true
			return candidate
		}
	}
}

// Slugify lowercases the id and replaces every run of characters outside
// [a-z0-9] with a single underscore.
func Slugify(id string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(id) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	slug := strings.TrimSuffix(b.String(), "_")
	if slug == "" {
		slug = "doc"
	}
	return slug
}

// VectorQueryTool answers specific-fact questions against one document's
// vector index.
type VectorQueryTool struct {
	BaseTool
	doc  DocumentIndex
	slug string
}

type vectorQueryArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// Metadata returns the tool schema.
func (t *VectorQueryTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "vector_" + t.slug,
		Description: fmt.Sprintf(
			"Useful for questions about specific facts in document %q. Retrieves the most relevant passages for a query.",
			t.doc.DocID()),
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "The question or phrase to search for", Required: true},
			{Name: "top_k", ParamType: "integer", Description: "Number of passages to return (default 2)", Required: false},
		},
	}
}

// Validate checks that a non-empty query is present.
func (t *VectorQueryTool) Validate(args json.RawMessage) error {
	var parsed vectorQueryArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(parsed.Query) == "" {
		return fmt.Errorf("query must not be empty")
	}
	return nil
}

// Execute retrieves the top passages for the query.
func (t *VectorQueryTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var parsed vectorQueryArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if parsed.TopK <= 0 {
		parsed.TopK = DefaultVectorTopK
	}

	hits, err := t.doc.VectorQuery(ctx, parsed.Query, parsed.TopK)
	if err != nil {
		return FailureResult(fmt.Errorf("vector query on %q: %w", t.doc.DocID(), err)), nil
	}
	if len(hits) == 0 {
		return SuccessResult(fmt.Sprintf("No passages found in document %q.", t.doc.DocID())), nil
	}

	var b strings.Builder
	for i, hit := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s passage %d, score %.3f]\n%s", t.doc.DocID(), hit.Chunk.Seq, hit.Score, hit.Chunk.Text)
	}
	return SuccessResult(b.String()), nil
}

// SummaryTool answers whole-document questions with a tree summary,
// optionally steered toward a query.
type SummaryTool struct {
	BaseTool
	doc  DocumentIndex
	slug string
}

type summaryArgs struct {
	Query string `json:"query"`
}

// Metadata returns the tool schema.
func (t *SummaryTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "summary_" + t.slug,
		Description: fmt.Sprintf(
			"Useful for summarization questions about document %q. Produces a summary of the whole document.",
			t.doc.DocID()),
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "Optional focus for the summary", Required: false},
		},
	}
}

// Execute summarizes the document.
func (t *SummaryTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var parsed summaryArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &parsed); err != nil {
			return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
		}
	}

	var summary string
	var err error
	if focus := strings.TrimSpace(parsed.Query); focus != "" {
		summary, err = t.doc.SummarizeFocused(ctx, focus)
	} else {
		summary, err = t.doc.Summarize(ctx)
	}
	if err != nil {
		return FailureResult(fmt.Errorf("summarizing %q: %w", t.doc.DocID(), err)), nil
	}
	return SuccessResult(summary), nil
}
