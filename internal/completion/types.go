// Package completion defines the language-completion collaborator: a
// message list plus tool schema in, a streaming token/tool-call sequence
// out. The service itself is external; this package carries the interface,
// a streaming HTTP client, and the request/chunk types.
package completion

import (
	"context"

	"github.com/lexiqai/realtime-gateway/internal/protocol"
)

// ContinuationMarker is the reserved input used when a client requests a
// response immediately after a function-call result was appended. Turn
// construction recognizes it and does not inject a user message.
const ContinuationMarker = "\x00:continue"

// Message is one turn of conversation context sent to the service.
type Message struct {
	Role      string `json:"role"` // "user", "assistant", "system", "tool"
	Content   string `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// Request is the payload for one streaming completion.
type Request struct {
	Model        string          `json:"model,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
	Messages     []Message       `json:"messages"`
	Tools        []protocol.Tool `json:"tools,omitempty"`
}

// ToolCallFragment is one streamed piece of a function call.
type ToolCallFragment struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name,omitempty"`
	ArgsDelta string `json:"args_delta,omitempty"`
}

// Chunk is one element of the streamed completion output.
type Chunk struct {
	Text     string            `json:"text,omitempty"`
	ToolCall *ToolCallFragment `json:"tool_call,omitempty"`
	Done     bool              `json:"done,omitempty"`
	Err      error             `json:"-"`
}

// Client is the interface the response orchestrator consumes.
type Client interface {
	// Stream starts a completion; the returned channel closes when the
	// stream ends or the context is cancelled.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)

	// Close releases client resources.
	Close() error
}
