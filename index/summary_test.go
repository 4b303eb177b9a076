package index

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/richinex/lectern/llm"
	"github.com/richinex/lectern/model"
)

// fakeProvider is a scripted llm.Provider for tests. Chat responses echo a
// tag plus a digest of the prompt so outputs are distinguishable.
type fakeProvider struct {
	calls int
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) Chat(_ context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	f.calls++
	last := messages[len(messages)-1].Content
	return llm.LLMResponse{Content: fmt.Sprintf("[s%d %s]", f.calls, firstWords(last, 3))}, nil
}

func (f *fakeProvider) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
	return f.Chat(ctx, messages)
}

func (f *fakeProvider) StreamChat(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	resp, err := f.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	chunks <- resp.Content
	return nil, nil
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func bigText(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func TestSummarizeSingleSmallLeafPassthrough(t *testing.T) {
	// A single chunk below the leaf threshold is its own summary: no LLM
	// calls, no combine step.
	provider := &fakeProvider{}
	tree := NewSummaryTree("doc", chunksOf("doc", "A short document."), 0)

	summary, err := tree.Summarize(context.Background(), llm.NewClient(provider))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "A short document." {
		t.Errorf("summary = %q", summary)
	}
	if provider.calls != 0 {
		t.Errorf("expected 0 LLM calls, got %d", provider.calls)
	}
}

func TestSummarizeSingleLargeLeaf(t *testing.T) {
	// One chunk above the threshold: exactly one leaf summarization, no
	// combine step.
	provider := &fakeProvider{}
	chunks := []model.Chunk{{DocID: "doc", Seq: 0, Text: bigText("token", 500), TokenCount: 500}}
	tree := NewSummaryTree("doc", chunks, 0)

	summary, err := tree.Summarize(context.Background(), llm.NewClient(provider))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary == "" {
		t.Error("expected non-empty summary")
	}
	if provider.calls != 1 {
		t.Errorf("expected 1 LLM call, got %d", provider.calls)
	}
}

func TestSummarizeCombinesBottomUp(t *testing.T) {
	// Nine large leaves with fan-in 3: 9 leaf calls, 3 first-level combines,
	// 1 top-level combine.
	provider := &fakeProvider{}
	var chunks []model.Chunk
	for i := 0; i < 9; i++ {
		chunks = append(chunks, model.Chunk{
			DocID: "doc", Seq: i, Text: bigText(fmt.Sprintf("w%d", i), 300), TokenCount: 300,
		})
	}
	tree := NewSummaryTree("doc", chunks, 3)

	summary, err := tree.Summarize(context.Background(), llm.NewClient(provider))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary == "" {
		t.Error("expected non-empty summary")
	}
	if provider.calls != 13 {
		t.Errorf("expected 13 LLM calls (9 leaves + 3 + 1 combines), got %d", provider.calls)
	}
}

func TestSummarizeFocusedAlwaysCallsModel(t *testing.T) {
	// With a focus, even small leaves go through the model.
	provider := &fakeProvider{}
	tree := NewSummaryTree("doc", chunksOf("doc", "Small chunk."), 0)

	if _, err := tree.SummarizeFocused(context.Background(), llm.NewClient(provider), "revenue"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("expected 1 LLM call, got %d", provider.calls)
	}
}

func TestSummarizeNoLeaves(t *testing.T) {
	tree := NewSummaryTreeFromLeaves("doc", nil, 0)
	if _, err := tree.Summarize(context.Background(), llm.NewClient(&fakeProvider{})); err == nil {
		t.Error("expected error for empty tree")
	}
}
