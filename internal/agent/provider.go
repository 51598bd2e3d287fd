// Package agent implements the turn loop engine that drives one conversation
// between the model and the capability registry to a final answer.
package agent

import (
	"context"
	"encoding/json"

	"github.com/finsightai/finsight/pkg/models"
)

// ModelProvider defines the interface for language model backends.
//
// Complete is a single, non-streaming call: given the full message history
// and the capability schemas, the provider returns one assistant decision,
// either free text or a set of requested capability invocations. Token-level
// streaming, where a transport wants it, is layered on top by the event
// stream and is not the provider's concern.
//
// Implementations must be safe for concurrent use.
type ModelProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// Name returns the provider identifier used for metrics and logging.
	Name() string
}

// CompletionRequest contains all parameters for one model call.
type CompletionRequest struct {
	// Model selects the backend model; empty uses the provider default.
	Model string

	// System is the system prompt, handled separately from messages in
	// most model APIs.
	System string

	// Messages is the conversation history in chronological order,
	// excluding the system message.
	Messages []*models.Message

	// Capabilities lists the invokable capability schemas. Empty disables
	// capability use for this call (the forced-summary path).
	Capabilities []CapabilitySpec

	// MaxTokens limits the response length; 0 uses the provider default.
	MaxTokens int
}

// Completion is the model's decision for one turn.
type Completion struct {
	// Text is the assistant's free text, possibly alongside tool calls.
	Text string

	// Thinking carries private reasoning when the backend surfaces it.
	Thinking string

	// ToolCalls is the set of capability invocations the model requests.
	// Empty means Text is the final answer.
	ToolCalls []models.ToolCall

	InputTokens  int
	OutputTokens int
}

// CapabilitySpec is the caller-visible contract of one capability: a name,
// a description, and a JSON schema for its arguments.
type CapabilitySpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}
