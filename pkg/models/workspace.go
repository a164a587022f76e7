package models

import "time"

// WorkspaceType distinguishes where a workspace's files actually live.
type WorkspaceType string

const (
	WorkspaceLocal  WorkspaceType = "local"
	WorkspaceRemote WorkspaceType = "remote"
)

// Workspace is a jailed filesystem root a session's tools may operate in.
type Workspace struct {
	ID        string         `json:"id"`
	Type      WorkspaceType  `json:"type"`
	Root      string         `json:"root"`
	Name      string         `json:"name,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// WorkspaceTool is a custom tool registered against a workspace, described by
// an inline JSON schema rather than a compiled Go type.
type WorkspaceTool struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      string          `json:"schema"` // raw JSON schema document
	Command     string          `json:"command,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// WorkspaceLock is an advisory hold on a workspace held by one session actor
// at a time, per the single-writer resource policy.
type WorkspaceLock struct {
	WorkspaceID string    `json:"workspace_id"`
	Holder      string    `json:"holder"`
	AcquiredAt  time.Time `json:"acquired_at"`
}

// ClientIdentity links an external client connection to an agent/session.
type ClientIdentity struct {
	ID        string         `json:"id"`
	Label     string         `json:"label,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
