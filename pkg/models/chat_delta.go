package models

import "encoding/json"

// ChatDeltaKind identifies the variant of a streamed ChatDelta.
type ChatDeltaKind string

const (
	DeltaGenerationContext  ChatDeltaKind = "generationContext"
	DeltaContent            ChatDeltaKind = "delta"
	DeltaThought            ChatDeltaKind = "thought"
	DeltaThoughtCompleted   ChatDeltaKind = "thoughtCompleted"
	DeltaToolCall           ChatDeltaKind = "toolCall"
	DeltaToolCallError      ChatDeltaKind = "toolCallError"
	DeltaToolExecution      ChatDeltaKind = "toolExecution"
	DeltaGenerationComplete ChatDeltaKind = "generationCompleted"
	DeltaError              ChatDeltaKind = "error"
	DeltaStreamCompleted    ChatDeltaKind = "streamCompleted"
)

// ChatDelta is one unit pushed down the Chat Engine's streaming channel.
// Exactly one of the payload fields is populated, selected by Kind.
type ChatDelta struct {
	Kind ChatDeltaKind `json:"kind"`

	SessionID string `json:"session_id"`
	Iteration int    `json:"iteration,omitempty"`

	// DeltaContent / DeltaThought
	Text string `json:"text,omitempty"`

	// DeltaToolCall / DeltaToolCallError / DeltaToolExecution
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolStage  ToolEventStage  `json:"tool_stage,omitempty"`
	ToolOutput string          `json:"tool_output,omitempty"`

	// DeltaGenerationComplete
	Message *Message `json:"message,omitempty"`

	// DeltaError
	Err string `json:"error,omitempty"`
}
