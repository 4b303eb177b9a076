package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/richinex/lectern/llm"
	"github.com/richinex/lectern/tools"
)

// scriptedProvider replays a fixed sequence of responses and records the
// conversations and tool definitions it was shown.
type scriptedProvider struct {
	responses     []llm.LLMResponse
	calls         int
	conversations [][]llm.ChatMessage
	definitions   [][]llm.ToolDefinition
}

func (s *scriptedProvider) Name() string  { return "scripted" }
func (s *scriptedProvider) Model() string { return "scripted-model" }

func (s *scriptedProvider) ChatWithTools(_ context.Context, messages []llm.ChatMessage, definitions []llm.ToolDefinition) (llm.LLMResponse, error) {
	s.conversations = append(s.conversations, messages)
	s.definitions = append(s.definitions, definitions)
	if s.calls >= len(s.responses) {
		return llm.LLMResponse{}, errors.New("script exhausted")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func (s *scriptedProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return s.ChatWithTools(ctx, messages, nil)
}

func (s *scriptedProvider) StreamChat(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	resp, err := s.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	chunks <- resp.Content
	return resp.Usage, nil
}

// echoTool records its invocations and returns a fixed passage.
type echoTool struct {
	tools.BaseTool
	name   string
	output string
	calls  int
	fail   bool
}

func (e *echoTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{Name: e.name, Description: "returns passages from a document"}
}

func (e *echoTool) Execute(context.Context, json.RawMessage) (tools.ToolResult, error) {
	e.calls++
	if e.fail {
		return tools.FailureResultf("invalid arguments for %s", e.name), nil
	}
	return tools.SuccessResult(e.output), nil
}

func usage(prompt, completion uint32) *llm.TokenUsage {
	return &llm.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

func newTestAgent(provider llm.Provider, toolList ...tools.Tool) *Agent {
	config := DefaultConfig()
	config.Tools = toolList
	config.MaxIterations = 5
	return New(config, provider)
}

func TestExecuteToolCallThenAnswer(t *testing.T) {
	tool := &echoTool{name: "vector_metagpt", output: "MetaGPT uses role specialization."}
	provider := &scriptedProvider{responses: []llm.LLMResponse{
		{
			ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "vector_metagpt", Arguments: json.RawMessage(`{"query":"roles"}`)}},
			Usage:     usage(100, 20),
		},
		{
			Content: "MetaGPT assigns specialized roles (per the metagpt document).",
			Usage:   usage(150, 30),
		},
	}}

	response := newTestAgent(provider, tool).Execute(context.Background(), "What roles does MetaGPT use?")

	if !response.IsSuccess() {
		t.Fatalf("expected success, got %+v", response)
	}
	if tool.calls != 1 {
		t.Errorf("tool calls = %d, want 1", tool.calls)
	}
	if !strings.Contains(response.Result, "specialized roles") {
		t.Errorf("Result = %q", response.Result)
	}
	if response.Metadata.LLMCalls != 2 {
		t.Errorf("LLMCalls = %d, want 2", response.Metadata.LLMCalls)
	}
	if got := response.Metadata.TokenUsage.TotalTokens; got != 300 {
		t.Errorf("TotalTokens = %d, want 300", got)
	}
	if len(response.Metadata.ToolCalls) != 1 || !response.Metadata.ToolCalls[0].Success {
		t.Errorf("ToolCalls = %+v", response.Metadata.ToolCalls)
	}

	// The tool result must have been fed back to the model.
	last := provider.conversations[1]
	found := false
	for _, msg := range last {
		if msg.Role == "tool" && strings.Contains(msg.Content, "role specialization") {
			if msg.ToolCallID != "call-1" {
				t.Errorf("ToolCallID = %q", msg.ToolCallID)
			}
			found = true
		}
	}
	if !found {
		t.Error("tool result missing from follow-up conversation")
	}
}

func TestDuplicateToolNamesRegisterOnce(t *testing.T) {
	first := &echoTool{name: "vector_doc", output: "first passage"}
	second := &echoTool{name: "vector_doc", output: "second passage"}
	provider := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "vector_doc", Arguments: json.RawMessage(`{"query":"x"}`)}}},
		{Content: "answer"},
	}}

	response := newTestAgent(provider, first, second).Execute(context.Background(), "q")

	if !response.IsSuccess() {
		t.Fatalf("expected success, got %+v", response)
	}
	if len(provider.definitions[0]) != 1 {
		t.Errorf("model saw %d tool definitions, want 1", len(provider.definitions[0]))
	}
	if first.calls != 1 || second.calls != 0 {
		t.Errorf("tool calls = %d/%d, want the first registration to win", first.calls, second.calls)
	}
}

func TestExecuteParallelToolCalls(t *testing.T) {
	toolA := &echoTool{name: "vector_a", output: "from a"}
	toolB := &echoTool{name: "summary_a", output: "from b"}
	provider := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "vector_a", Arguments: json.RawMessage(`{"query":"x"}`)},
			{ID: "c2", Name: "summary_a", Arguments: json.RawMessage(`{}`)},
		}},
		{Content: "combined answer"},
	}}

	response := newTestAgent(provider, toolA, toolB).Execute(context.Background(), "q")

	if !response.IsSuccess() {
		t.Fatalf("expected success, got %+v", response)
	}
	if toolA.calls != 1 || toolB.calls != 1 {
		t.Errorf("tool calls = %d/%d, want 1/1", toolA.calls, toolB.calls)
	}

	// Results come back in request order.
	var toolMsgs []llm.ChatMessage
	for _, msg := range provider.conversations[1] {
		if msg.Role == "tool" {
			toolMsgs = append(toolMsgs, msg)
		}
	}
	if len(toolMsgs) != 2 {
		t.Fatalf("expected 2 tool messages, got %d", len(toolMsgs))
	}
	if toolMsgs[0].ToolCallID != "c1" || toolMsgs[1].ToolCallID != "c2" {
		t.Errorf("tool message order: %q, %q", toolMsgs[0].ToolCallID, toolMsgs[1].ToolCallID)
	}
}

func TestExecuteRejectsUnknownTool(t *testing.T) {
	tool := &echoTool{name: "vector_a", output: "from a"}
	provider := &scriptedProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "vector_other", Arguments: json.RawMessage(`{}`)}}},
		{Content: "answer without the missing tool"},
	}}

	response := newTestAgent(provider, tool).Execute(context.Background(), "q")

	if !response.IsSuccess() {
		t.Fatalf("expected success, got %+v", response)
	}
	if tool.calls != 0 {
		t.Errorf("registered tool should not run, got %d calls", tool.calls)
	}

	// The rejection names the available tools so the model can recover.
	found := false
	for _, msg := range provider.conversations[1] {
		if msg.Role == "tool" && strings.Contains(msg.Content, "not available") && strings.Contains(msg.Content, "vector_a") {
			found = true
		}
	}
	if !found {
		t.Error("expected rejection message listing available tools")
	}
	if len(response.Metadata.ToolCalls) != 1 || response.Metadata.ToolCalls[0].Success {
		t.Errorf("ToolCalls = %+v", response.Metadata.ToolCalls)
	}
}

func TestExecuteInlineJSONFallback(t *testing.T) {
	// A provider without native tool calling returns the request as text.
	tool := &echoTool{name: "vector_a", output: "passage"}
	provider := &scriptedProvider{responses: []llm.LLMResponse{
		{Content: `{"tool": "vector_a", "input": {"query": "x"}}`},
		{Content: "final answer"},
	}}

	response := newTestAgent(provider, tool).Execute(context.Background(), "q")

	if !response.IsSuccess() {
		t.Fatalf("expected success, got %+v", response)
	}
	if tool.calls != 1 {
		t.Errorf("tool calls = %d, want 1", tool.calls)
	}
	if response.Result != "final answer" {
		t.Errorf("Result = %q", response.Result)
	}
}

func TestExecuteTimeoutKeepsPartialResult(t *testing.T) {
	tool := &echoTool{name: "vector_a", output: "partial passage"}
	var responses []llm.LLMResponse
	for i := 0; i < 5; i++ {
		responses = append(responses, llm.LLMResponse{
			ToolCalls: []llm.ToolCall{{ID: "c", Name: "vector_a", Arguments: json.RawMessage(`{}`)}},
		})
	}
	provider := &scriptedProvider{responses: responses}

	response := newTestAgent(provider, tool).Execute(context.Background(), "q")

	if response.Type != ResponseTimeout {
		t.Fatalf("expected timeout, got %+v", response)
	}
	if response.PartialResult != "partial passage" {
		t.Errorf("PartialResult = %q", response.PartialResult)
	}
	if tool.calls != 5 {
		t.Errorf("tool calls = %d, want 5", tool.calls)
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	response := newTestAgent(&scriptedProvider{}).Execute(ctx, "q")
	if response.Type != ResponseFailure {
		t.Fatalf("expected failure, got %+v", response)
	}
	if !strings.Contains(response.Error, "cancelled") {
		t.Errorf("Error = %q", response.Error)
	}
}

func TestExecuteLLMError(t *testing.T) {
	response := newTestAgent(&scriptedProvider{}).Execute(context.Background(), "q")
	if response.Type != ResponseFailure {
		t.Fatalf("expected failure, got %+v", response)
	}
	if !strings.Contains(response.Error, "LLM chat failed") {
		t.Errorf("Error = %q", response.Error)
	}
}
