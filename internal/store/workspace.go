package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/monad-ai/monad-core/pkg/models"
)

var ErrLockHeld = errors.New("workspace lock held by another holder")

// CreateWorkspace persists a new workspace.
func (s *Store) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	if ws.ID == "" {
		ws.ID = uuid.New().String()
	}
	now := time.Now()
	ws.CreatedAt, ws.UpdatedAt = now, now

	metadata, err := json.Marshal(ws.Metadata)
	if err != nil {
		return fmt.Errorf("marshal workspace metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspace (id, type, root, name, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ws.ID, string(ws.Type), ws.Root, ws.Name, string(metadata), ws.CreatedAt, ws.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

// GetWorkspace fetches a workspace by id.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, root, name, metadata, created_at, updated_at FROM workspace WHERE id = ?
	`, id)
	var ws models.Workspace
	var wsType, metadataJSON string
	if err := row.Scan(&ws.ID, &wsType, &ws.Root, &ws.Name, &metadataJSON, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	ws.Type = models.WorkspaceType(wsType)
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &ws.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal workspace metadata: %w", err)
		}
	}
	return &ws, nil
}

// ListWorkspaces returns every workspace, used at startup to load all
// workspaces into the in-process workspace registry.
func (s *Store) ListWorkspaces(ctx context.Context) ([]*models.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, type, root, name, metadata, created_at, updated_at FROM workspace`)
	if err != nil {
		return nil, fmt.Errorf("query workspaces: %w", err)
	}
	defer rows.Close()

	var out []*models.Workspace
	for rows.Next() {
		var ws models.Workspace
		var wsType, metadataJSON string
		if err := rows.Scan(&ws.ID, &wsType, &ws.Root, &ws.Name, &metadataJSON, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		ws.Type = models.WorkspaceType(wsType)
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &ws.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal workspace metadata: %w", err)
			}
		}
		out = append(out, &ws)
	}
	return out, rows.Err()
}

// CreateWorkspaceTool registers a custom tool against a workspace.
func (s *Store) CreateWorkspaceTool(ctx context.Context, tool *models.WorkspaceTool) error {
	if tool.ID == "" {
		tool.ID = uuid.New().String()
	}
	if tool.CreatedAt.IsZero() {
		tool.CreatedAt = time.Now()
	}
	metadata, err := json.Marshal(tool.Metadata)
	if err != nil {
		return fmt.Errorf("marshal workspace tool metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspace_tool (id, workspace_id, name, description, schema, command, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, tool.ID, tool.WorkspaceID, tool.Name, tool.Description, tool.Schema, tool.Command, string(metadata), tool.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert workspace tool: %w", err)
	}
	return nil
}

// ListWorkspaceTools returns the custom tools registered against a workspace.
func (s *Store) ListWorkspaceTools(ctx context.Context, workspaceID string) ([]*models.WorkspaceTool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, description, schema, command, metadata, created_at
		FROM workspace_tool WHERE workspace_id = ?
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query workspace tools: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkspaceTool
	for rows.Next() {
		var tool models.WorkspaceTool
		var metadataJSON string
		if err := rows.Scan(&tool.ID, &tool.WorkspaceID, &tool.Name, &tool.Description, &tool.Schema, &tool.Command, &metadataJSON, &tool.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace tool: %w", err)
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &tool.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal workspace tool metadata: %w", err)
			}
		}
		out = append(out, &tool)
	}
	return out, rows.Err()
}

// AcquireWorkspaceLock records an advisory lock hold. It fails with
// ErrLockHeld if another holder already owns it.
func (s *Store) AcquireWorkspaceLock(ctx context.Context, workspaceID, holder string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT holder FROM workspace_lock WHERE workspace_id = ?`, workspaceID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO workspace_lock (workspace_id, holder, acquired_at) VALUES (?, ?, ?)`, workspaceID, holder, time.Now()); err != nil {
			return fmt.Errorf("insert workspace lock: %w", err)
		}
	case err != nil:
		return fmt.Errorf("query workspace lock: %w", err)
	case existing != holder:
		return ErrLockHeld
	}
	return tx.Commit()
}

// ReleaseWorkspaceLock drops the advisory lock, if held by holder.
func (s *Store) ReleaseWorkspaceLock(ctx context.Context, workspaceID, holder string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workspace_lock WHERE workspace_id = ? AND holder = ?`, workspaceID, holder)
	return err
}

// CreateClientIdentity registers a client identity, typically at connection time.
func (s *Store) CreateClientIdentity(ctx context.Context, id *models.ClientIdentity) error {
	if id.ID == "" {
		id.ID = uuid.New().String()
	}
	now := time.Now()
	id.CreatedAt, id.UpdatedAt = now, now

	metadata, err := json.Marshal(id.Metadata)
	if err != nil {
		return fmt.Errorf("marshal client identity metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO client_identity (id, label, agent_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.ID, id.Label, nullString(id.AgentID), string(metadata), id.CreatedAt, id.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert client identity: %w", err)
	}
	return nil
}

// GetClientIdentity fetches a client identity by id.
func (s *Store) GetClientIdentity(ctx context.Context, id string) (*models.ClientIdentity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, agent_id, metadata, created_at, updated_at FROM client_identity WHERE id = ?
	`, id)
	var ci models.ClientIdentity
	var agentID sql.NullString
	var metadataJSON string
	if err := row.Scan(&ci.ID, &ci.Label, &agentID, &metadataJSON, &ci.CreatedAt, &ci.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan client identity: %w", err)
	}
	ci.AgentID = agentID.String
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &ci.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal client identity metadata: %w", err)
		}
	}
	return &ci, nil
}
