package models

import "time"

// DebugSnapshot is the Session Manager's record of a session's last turn:
// the structured context handed to the model, every tool call/result the
// engine observed, which model answered, and how many ReAct iterations ran.
// Retained in memory only (one per session, overwritten each turn); never
// persisted, since it exists to answer "what just happened" for a live
// session, not to reconstruct history after a restart.
type DebugSnapshot struct {
	SessionID  string      `json:"session_id"`
	Model      string      `json:"model"`
	TurnCount  int         `json:"turn_count"`
	Context    string      `json:"context,omitempty"`
	MemoryIDs  []string    `json:"memory_ids,omitempty"`
	ToolEvents []ToolEvent `json:"tool_events,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
