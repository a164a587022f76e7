// Package chat implements the Chat Engine: a ReAct-style loop that drives
// LLM/tool iteration for one user turn and streams incremental deltas to the
// caller.
package chat

import (
	"context"
	"encoding/json"

	"github.com/monad-ai/monad-core/pkg/models"
)

// CompletionMessage is one role/content turn sent to an LLM provider.
type CompletionMessage struct {
	Role        string
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// ToolSpec describes one tool's shape as advertised to the LLM provider.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// CompletionRequest is what the Chat Engine hands a Provider for one LLM
// stream within a turn. It carries no provider-specific fields: the core
// never depends on a concrete LLM wire client.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []ToolSpec
	MaxTokens int
}

// Token is one increment of an LLM completion stream. Providers emit raw
// text only; thinking/content classification and tool-call extraction from
// that text are the Streaming Parser's job (internal/parser), not the
// provider's, per the streaming contract.
type Token struct {
	Text         string
	FinishReason string
	Err          error
}

// Usage reports accounting for a completed generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Provider is the LLM-provider-agnostic streaming interface the Chat Engine
// drives. Concrete provider wire clients are out of scope for the core.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req CompletionRequest) (<-chan Token, error)
}
