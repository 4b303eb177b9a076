// Tree summarization over a document's chunks.
//
// Leaves are individual chunk summaries (or the chunk text itself below a
// size threshold); groups of fanIn summaries are combined bottom-up until a
// single document-level summary remains.

package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/richinex/lectern/chunker"
	"github.com/richinex/lectern/llm"
	"github.com/richinex/lectern/model"
)

// Tree summarization defaults.
const (
	DefaultFanIn = 4
	// DefaultLeafThreshold is the token count below which a chunk is used
	// as its own leaf summary without an LLM call.
	DefaultLeafThreshold = 256
)

// SummaryTree aggregates a document's chunks bottom-up into one summary.
// The structure is immutable; summarization itself calls the LLM.
type SummaryTree struct {
	docID         string
	leaves        []string
	fanIn         int
	leafThreshold int
}

// NewSummaryTree creates a summary structure over the document's chunks.
// Non-positive fanIn falls back to DefaultFanIn.
func NewSummaryTree(docID string, chunks []model.Chunk, fanIn int) *SummaryTree {
	if fanIn <= 1 {
		fanIn = DefaultFanIn
	}
	leaves := make([]string, len(chunks))
	for i, ch := range chunks {
		leaves[i] = ch.Text
	}
	return &SummaryTree{
		docID:         docID,
		leaves:        leaves,
		fanIn:         fanIn,
		leafThreshold: DefaultLeafThreshold,
	}
}

// NewSummaryTreeFromLeaves restores a summary structure from persisted leaf
// texts.
func NewSummaryTreeFromLeaves(docID string, leaves []string, fanIn int) *SummaryTree {
	if fanIn <= 1 {
		fanIn = DefaultFanIn
	}
	return &SummaryTree{
		docID:         docID,
		leaves:        leaves,
		fanIn:         fanIn,
		leafThreshold: DefaultLeafThreshold,
	}
}

// DocID returns the owning document's identifier.
func (t *SummaryTree) DocID() string { return t.docID }

// Leaves returns the leaf texts, for persistence.
func (t *SummaryTree) Leaves() []string { return t.leaves }

// Summarize produces a single document-level summary.
func (t *SummaryTree) Summarize(ctx context.Context, client *llm.Client) (string, error) {
	return t.SummarizeFocused(ctx, client, "")
}

// SummarizeFocused produces a document-level summary, steered toward the
// given focus when non-empty. Leaf summaries are combined groupwise until a
// single text remains; a single-leaf document needs no combine step.
func (t *SummaryTree) SummarizeFocused(ctx context.Context, client *llm.Client, focus string) (string, error) {
	if len(t.leaves) == 0 {
		return "", fmt.Errorf("summary tree for %q has no leaves", t.docID)
	}

	level := make([]string, 0, len(t.leaves))
	for i, leaf := range t.leaves {
		if chunker.CountTokens(leaf) <= t.leafThreshold && focus == "" {
			level = append(level, leaf)
			continue
		}
		summary, err := t.summarizeText(ctx, client, leaf, focus)
		if err != nil {
			return "", fmt.Errorf("leaf %d: %w", i, err)
		}
		level = append(level, summary)
	}

	for len(level) > 1 {
		var next []string
		for start := 0; start < len(level); start += t.fanIn {
			end := start + t.fanIn
			if end > len(level) {
				end = len(level)
			}
			if end-start == 1 {
				next = append(next, level[start])
				continue
			}
			combined, err := t.combine(ctx, client, level[start:end], focus)
			if err != nil {
				return "", err
			}
			next = append(next, combined)
		}
		level = next
	}

	return level[0], nil
}

func (t *SummaryTree) summarizeText(ctx context.Context, client *llm.Client, text, focus string) (string, error) {
	prompt := fmt.Sprintf("Summarize the following passage from document %q concisely, keeping concrete facts.", t.docID)
	if focus != "" {
		prompt += fmt.Sprintf(" Emphasize information relevant to: %s.", focus)
	}
	content, err := client.Chat(ctx, []llm.ChatMessage{
		llm.SystemMessage("You summarize document passages faithfully. Do not invent information."),
		llm.UserMessage(prompt + "\n\n" + text),
	})
	if err != nil {
		return "", fmt.Errorf("summarization failed: %w", err)
	}
	return strings.TrimSpace(content), nil
}

func (t *SummaryTree) combine(ctx context.Context, client *llm.Client, parts []string, focus string) (string, error) {
	prompt := fmt.Sprintf("Combine the following %d partial summaries of document %q into one coherent summary.", len(parts), t.docID)
	if focus != "" {
		prompt += fmt.Sprintf(" Emphasize information relevant to: %s.", focus)
	}
	var b strings.Builder
	b.WriteString(prompt)
	for i, part := range parts {
		fmt.Fprintf(&b, "\n\nPart %d:\n%s", i+1, part)
	}
	content, err := client.Chat(ctx, []llm.ChatMessage{
		llm.SystemMessage("You combine partial summaries faithfully. Do not invent information."),
		llm.UserMessage(b.String()),
	})
	if err != nil {
		return "", fmt.Errorf("summary combine failed: %w", err)
	}
	return strings.TrimSpace(content), nil
}
