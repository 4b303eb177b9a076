// Tool-calling loop implementation.
//
// This is THE canonical implementation of the question loop.
// All question answering goes through this module.
//
// Information Hiding:
// - Loop internals hidden
// - LLM communication hidden
// - Tool execution coordination hidden

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	jsonutil "github.com/richinex/lectern/internal/json"
	"github.com/richinex/lectern/llm"
	"github.com/richinex/lectern/model"
	"github.com/richinex/lectern/tools"
)

// Agent answers one question with a bounded tool-calling loop. The tool
// set is fixed at construction; tool calls outside it are rejected and
// reported back to the model.
type Agent struct {
	config       Config
	llmClient    *llm.Client
	toolRegistry *tools.Registry
	toolExecutor *tools.Executor
	toolConfig   tools.ToolConfig
	verbose      bool
}

// New creates a new agent with the given configuration and provider.
func New(config Config, provider llm.Provider) *Agent {
	registry := tools.NewRegistry()
	for _, tool := range config.Tools {
		if err := registry.Register(tool); err != nil {
			fmt.Fprintf(os.Stderr, "warning: dropping duplicate tool %q: %v\n", tool.Metadata().Name, err)
		}
	}

	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}

	return &Agent{
		config:       config,
		llmClient:    llm.NewClient(provider),
		toolRegistry: registry,
		toolExecutor: tools.NewDefaultExecutor(),
		toolConfig:   tools.DefaultToolConfig(),
	}
}

// WithToolConfig overrides the tool execution configuration.
func (a *Agent) WithToolConfig(config tools.ToolConfig) *Agent {
	a.toolExecutor = tools.NewExecutor(config)
	a.toolConfig = config
	return a
}

// Verbose enables progress output (tool activity per step).
func (a *Agent) Verbose(enabled bool) *Agent {
	a.verbose = enabled
	return a
}

// Execute answers the question, looping between the model and the tools
// until the model produces a final answer or the iteration bound is hit.
func (a *Agent) Execute(ctx context.Context, question string) Response {
	startTime := time.Now()
	maxIterations := a.config.Iterations()

	var steps []model.Step
	var toolCalls []model.ToolCall
	var totalUsage llm.TokenUsage
	var llmCalls int
	var lastToolOutput string

	definitions := a.definitions()
	conversation := []llm.ChatMessage{
		llm.SystemMessage(a.config.SystemPrompt),
		llm.UserMessage(question),
	}

	for iteration := 0; iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			return NewFailureResponse(
				fmt.Sprintf("execution cancelled: %v", ctx.Err()),
				steps,
				uint64(time.Since(startTime).Milliseconds()),
			)
		}

		response, err := a.llmClient.ChatWithTools(ctx, conversation, definitions)
		if err != nil {
			return NewFailureResponse(
				fmt.Sprintf("LLM chat failed: %v", err),
				steps,
				uint64(time.Since(startTime).Milliseconds()),
			)
		}
		llmCalls++
		totalUsage.Add(response.Usage)

		requests := a.toolRequests(response)
		if len(requests) == 0 {
			// No tool call: the content is the final answer.
			answer := strings.TrimSpace(response.Content)
			steps = append(steps, model.Step{
				Iteration:   iteration,
				Thought:     answer,
				Observation: &answer,
			})
			return NewSuccessResponse(
				answer,
				steps,
				toolCalls,
				uint64(time.Since(startTime).Milliseconds()),
				&totalUsage,
				llmCalls,
			)
		}

		conversation = append(conversation, llm.ChatMessage{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: requests,
		})

		// All tool calls from one turn run together; results return in
		// request order.
		observations := a.executeAll(ctx, requests)
		for i, req := range requests {
			obs := observations[i]
			toolCalls = append(toolCalls, obs.metrics)

			observationMsg := obs.output
			if obs.err != nil {
				observationMsg = fmt.Sprintf("Tool failed: %v", obs.err)
			} else {
				lastToolOutput = obs.output
			}

			if a.verbose {
				fmt.Printf("[step %d] %s -> %s\n", iteration, req.Name, preview(observationMsg, 120))
			}

			conversation = append(conversation, llm.ToolMessage(req.ID, observationMsg))

			actionName := req.Name
			steps = append(steps, model.Step{
				Iteration:   iteration,
				Thought:     response.Content,
				Action:      &actionName,
				Observation: &observationMsg,
			})
		}

		if remaining := maxIterations - iteration - 1; remaining == 1 {
			conversation = append(conversation,
				llm.UserMessage("Only one step remains. Answer the question now with what you have, and state which document the information came from."))
		}
	}

	return NewTimeoutResponse(
		lastToolOutput,
		steps,
		toolCalls,
		uint64(time.Since(startTime).Milliseconds()),
		&totalUsage,
		llmCalls,
	)
}

// definitions returns the provider-facing schemas for the configured tools.
func (a *Agent) definitions() []llm.ToolDefinition {
	metadata := a.toolRegistry.List()
	defs := make([]llm.ToolDefinition, len(metadata))
	for i, meta := range metadata {
		defs[i] = meta.Definition()
	}
	return defs
}

// toolRequest mirrors the shape some providers emit as plain text when
// they do not use native tool calling.
type toolRequest struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// toolRequests returns the tool calls the model asked for. When the
// provider returned none, the content is checked for a JSON-encoded tool
// request as a fallback.
func (a *Agent) toolRequests(response llm.LLMResponse) []llm.ToolCall {
	if len(response.ToolCalls) > 0 {
		return response.ToolCalls
	}

	parsed, err := jsonutil.ExtractJSONFromResponse[toolRequest](response.Content)
	if err != nil || parsed.Tool == "" || !a.toolRegistry.Has(parsed.Tool) {
		return nil
	}
	input := parsed.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return []llm.ToolCall{{ID: "inline-0", Name: parsed.Tool, Arguments: input}}
}

// observation is the outcome of one tool call.
type observation struct {
	output  string
	err     error
	metrics model.ToolCall
}

// executeAll runs every requested tool call concurrently and returns the
// observations in request order.
func (a *Agent) executeAll(ctx context.Context, requests []llm.ToolCall) []observation {
	observations := make([]observation, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req llm.ToolCall) {
			defer wg.Done()
			observations[i] = a.executeTool(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return observations
}

// executeTool runs one tool call and returns the observation.
func (a *Agent) executeTool(ctx context.Context, req llm.ToolCall) observation {
	startTime := time.Now()

	tool, exists := a.toolRegistry.Get(req.Name)
	if !exists {
		err := fmt.Errorf("tool '%s' is not available for this question; available tools: %s",
			req.Name, strings.Join(a.toolRegistry.Names(), ", "))
		return observation{
			err: err,
			metrics: model.ToolCall{
				Name:       req.Name,
				InputSize:  len(req.Arguments),
				DurationMs: uint64(time.Since(startTime).Milliseconds()),
			},
		}
	}

	timeout := time.Duration(a.toolConfig.Timeout()) * time.Second
	result, err := a.toolExecutor.ExecuteWithTimeout(ctx, tool, req.Arguments, timeout)
	if err != nil {
		return observation{
			err: fmt.Errorf("tool %q failed: %w", req.Name, err),
			metrics: model.ToolCall{
				Name:       req.Name,
				InputSize:  len(req.Arguments),
				DurationMs: uint64(time.Since(startTime).Milliseconds()),
			},
		}
	}

	metrics := model.ToolCall{
		Name:       req.Name,
		InputSize:  len(req.Arguments),
		OutputSize: len(result.Output),
		DurationMs: uint64(time.Since(startTime).Milliseconds()),
		Success:    result.Success(),
	}

	if result.Success() {
		return observation{output: result.Output, metrics: metrics}
	}
	return observation{err: result.Error, metrics: metrics}
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
