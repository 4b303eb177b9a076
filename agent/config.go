// Agent configuration types.
//
// Information Hiding:
// - Configuration validation logic hidden
// - Default values hidden

package agent

import (
	"github.com/richinex/lectern/tools"
)

// DefaultMaxIterations bounds the tool-calling loop per question.
const DefaultMaxIterations = 10

// DefaultSystemPrompt steers the agent toward grounded, attributed answers.
const DefaultSystemPrompt = "You are an agent designed to answer questions about a set of documents. " +
	"Always use at least one of the provided tools when answering a question; do not rely on prior knowledge. " +
	"Always state which document the information came from."

// Config holds agent configuration.
type Config struct {
	// SystemPrompt guides the agent's behavior.
	SystemPrompt string

	// Tools available for this question. The agent rejects any tool call
	// outside this set.
	Tools []tools.Tool

	// MaxIterations bounds the loop; non-positive falls back to
	// DefaultMaxIterations.
	MaxIterations int
}

// DefaultConfig returns a basic agent configuration.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:  DefaultSystemPrompt,
		Tools:         []tools.Tool{},
		MaxIterations: DefaultMaxIterations,
	}
}

// HasTools returns true if the agent has tools configured.
func (c *Config) HasTools() bool {
	return len(c.Tools) > 0
}

// Iterations returns the configured iteration bound.
func (c *Config) Iterations() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}
