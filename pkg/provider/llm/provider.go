// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o, Anthropic
// Claude, or a local Ollama instance) and exposes a single blocking completion
// call. Polyglot uses it for prompt-based translation, so only non-streaming
// text completion is needed.
//
// Implementors must be safe for concurrent use and must return promptly when the
// supplied context is cancelled.
package llm

import (
	"context"
	"errors"

	"github.com/MrWong99/polyglot/pkg/types"
)

var (
	// ErrNoMessages is returned for a request with neither a system prompt
	// nor messages.
	ErrNoMessages = errors.New("llm: request has no messages")

	// ErrEmptyResponse is returned when the backend answers without choices.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrTruncated is returned when the reply hit the token limit. A cut-off
	// translation is worse than none, so it is reported as a failure.
	ErrTruncated = errors.New("llm: reply truncated at token limit")
)

// FinishLength is the finish reason backends report for a reply cut off at
// MaxTokens.
const FinishLength = "length"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically from
	// the "user" role and drives the response.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation.
	SystemPrompt string
}

// Validate reports whether req can be sent to a backend.
func (req CompletionRequest) Validate() error {
	if req.SystemPrompt == "" && len(req.Messages) == 0 {
		return ErrNoMessages
	}
	return nil
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails, the model returns no choices, or
	// ctx is cancelled before the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
