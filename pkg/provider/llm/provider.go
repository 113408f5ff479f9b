// Package llm defines the Provider interface for text-completion model
// backends.
//
// The voice path never touches this package; it exists for the side channels
// of a call — intent classification of caller utterances and post-call
// summarisation — where a small, cheap text model is the right tool.
// Implementations wrap a remote API (OpenAI, or anything reachable through
// the any-llm gateway) behind a uniform completion interface.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/phonio-ai/phonio/pkg/types"
)

// Usage holds token accounting information returned by the model backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. A value
	// of 0.0 typically requests greedy decoding — the right setting for
	// classification prompts that must answer deterministically.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// FinishReason is set on the final chunk and indicates why generation
	// stopped. Common values are "stop", "length", and "error"; it is empty
	// on non-final chunks.
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any text-completion backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// Each method should propagate context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion sends req to the model and returns a read-only channel
	// that emits Chunk values as they arrive. The channel is closed by the
	// implementation when generation finishes or ctx is cancelled.
	//
	// Callers must drain the channel. Errors that occur after the channel is
	// opened surface as a Chunk with FinishReason "error"; the initial error
	// return is non-nil only for failures that prevent the stream from
	// starting.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
