// Package agent provides the tool-calling question-answering agent.
//
// Contains all types used by the agent for responses and per-step tracing.
package agent

import (
	"github.com/richinex/lectern/llm"
	"github.com/richinex/lectern/model"
)

// Step is an alias for model.Step for agent reasoning steps.
type Step = model.Step

// ToolCall is an alias for model.ToolCall for tool call metadata.
type ToolCall = model.ToolCall

// Metadata contains metadata about agent execution.
type Metadata struct {
	ExecutionTimeMs uint64
	ToolCalls       []ToolCall
	TokenUsage      *llm.TokenUsage
	LLMCalls        int // Number of LLM calls made for this question
}

// ResponseType indicates the type of agent response.
type ResponseType int

const (
	ResponseSuccess ResponseType = iota
	ResponseFailure
	ResponseTimeout
)

// Response represents a response from an agent execution.
type Response struct {
	Type          ResponseType
	Result        string // For Success
	Error         string // For Failure
	PartialResult string // For Timeout
	Steps         []Step
	Metadata      Metadata
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(result string, steps []Step, toolCalls []ToolCall, executionTimeMs uint64, tokenUsage *llm.TokenUsage, llmCalls int) Response {
	return Response{
		Type:   ResponseSuccess,
		Result: result,
		Steps:  steps,
		Metadata: Metadata{
			ExecutionTimeMs: executionTimeMs,
			ToolCalls:       toolCalls,
			TokenUsage:      tokenUsage,
			LLMCalls:        llmCalls,
		},
	}
}

// NewFailureResponse creates a failure response.
func NewFailureResponse(err string, steps []Step, executionTimeMs uint64) Response {
	return Response{
		Type:  ResponseFailure,
		Error: err,
		Steps: steps,
		Metadata: Metadata{
			ExecutionTimeMs: executionTimeMs,
		},
	}
}

// NewTimeoutResponse creates a timeout response with whatever partial
// answer the loop accumulated.
func NewTimeoutResponse(partial string, steps []Step, toolCalls []ToolCall, executionTimeMs uint64, tokenUsage *llm.TokenUsage, llmCalls int) Response {
	if partial == "" {
		partial = "Max iterations reached"
	}
	return Response{
		Type:          ResponseTimeout,
		PartialResult: partial,
		Steps:         steps,
		Metadata: Metadata{
			ExecutionTimeMs: executionTimeMs,
			ToolCalls:       toolCalls,
			TokenUsage:      tokenUsage,
			LLMCalls:        llmCalls,
		},
	}
}

// ResultText returns the result string (for success) or error (for failure).
func (r Response) ResultText() string {
	switch r.Type {
	case ResponseSuccess:
		return r.Result
	case ResponseFailure:
		return r.Error
	case ResponseTimeout:
		return r.PartialResult
	default:
		return ""
	}
}

// IsSuccess checks if the response was successful.
func (r Response) IsSuccess() bool {
	return r.Type == ResponseSuccess
}
