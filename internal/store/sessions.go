package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/monad-ai/monad-core/pkg/models"
)

var ErrNotFound = errors.New("not found")

const sessionSelectColumns = `SELECT id, agent_id, workspace_id, client_identity_id, title, tags, working_dir, persona, archived, metadata, created_at, updated_at`

// CreateSession inserts a new session, assigning an ID if one is not set.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	now := time.Now()
	sess.CreatedAt, sess.UpdatedAt = now, now

	metadata, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session (id, agent_id, workspace_id, client_identity_id, title, tags, working_dir, persona, archived, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.AgentID, nullString(sess.WorkspaceID), nullString(sess.ClientIdentityID), sess.Title,
		nullString(strings.Join(sess.Tags, ",")), nullString(sess.WorkingDir), nullString(sess.Persona),
		boolToInt(sess.Archived), string(metadata), sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, sessionSelectColumns+` FROM session WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns sessions ordered by most recently updated, paginated.
func (s *Store) ListSessions(ctx context.Context, page, perPage int) ([]*models.Session, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page < 1 {
		page = 1
	}
	rows, err := s.db.QueryContext(ctx, sessionSelectColumns+`
		FROM session ORDER BY updated_at DESC LIMIT ? OFFSET ?
	`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateSessionTitle renames a session. Fails against an archived session
// via the trg_session_archived_no_update trigger.
func (s *Store) UpdateSessionTitle(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE session SET title = ?, updated_at = ? WHERE id = ?`, title, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update session title: %w", err)
	}
	return nil
}

// UpdateSessionPersona updates a session's persona marker; the caller is
// responsible for also writing the persona file under the session's
// working directory (§4.F updateSessionPersona).
func (s *Store) UpdateSessionPersona(ctx context.Context, id, persona string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE session SET persona = ?, updated_at = ? WHERE id = ?`, persona, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update session persona: %w", err)
	}
	return nil
}

// ArchiveSession marks a session archived. Once set, the archive-immutability
// triggers make this session row and all its messages append/delete-proof.
func (s *Store) ArchiveSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE session SET archived = 1, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return nil
}

// DeleteSession removes a non-archived session and its transcript. Fails via
// trg_session_archived_no_delete if the session is archived.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_workspace WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session workspace attachments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return tx.Commit()
}

// AttachWorkspace binds a workspace to a session, either as the primary
// workspace or appended to the ordered attached set (deduplicated).
func (s *Store) AttachWorkspace(ctx context.Context, sessionID, workspaceID string, isPrimary bool) error {
	if isPrimary {
		_, err := s.db.ExecContext(ctx, `UPDATE session SET workspace_id = ?, updated_at = ? WHERE id = ?`, workspaceID, time.Now(), sessionID)
		if err != nil {
			return fmt.Errorf("set primary workspace: %w", err)
		}
		return nil
	}
	var next int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM session_workspace WHERE session_id = ?`, sessionID).Scan(&next); err != nil {
		return fmt.Errorf("compute attach position: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_workspace (session_id, workspace_id, position) VALUES (?, ?, ?)
		ON CONFLICT (session_id, workspace_id) DO NOTHING
	`, sessionID, workspaceID, next)
	if err != nil {
		return fmt.Errorf("attach workspace: %w", err)
	}
	return nil
}

// DetachWorkspace unbinds a workspace from a session, whether it was the
// primary or an attached workspace.
func (s *Store) DetachWorkspace(ctx context.Context, sessionID, workspaceID string) error {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.WorkspaceID == workspaceID {
		_, err := s.db.ExecContext(ctx, `UPDATE session SET workspace_id = NULL, updated_at = ? WHERE id = ?`, time.Now(), sessionID)
		if err != nil {
			return fmt.Errorf("clear primary workspace: %w", err)
		}
		return nil
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM session_workspace WHERE session_id = ? AND workspace_id = ?`, sessionID, workspaceID)
	if err != nil {
		return fmt.Errorf("detach workspace: %w", err)
	}
	return nil
}

// ListSessionWorkspaceIDs returns a session's primary workspace id (if any)
// followed by its attached workspaces in attach order.
func (s *Store) ListSessionWorkspaceIDs(ctx context.Context, sessionID string) ([]string, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var out []string
	if sess.WorkspaceID != "" {
		out = append(out, sess.WorkspaceID)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT workspace_id FROM session_workspace WHERE session_id = ? ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query attached workspaces: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan attached workspace: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// TouchSession updates a session's updated_at timestamp, called after every
// appended message so session listings can sort by recency.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE session SET updated_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var workspaceID, clientID, tags, workingDir, persona sql.NullString
	var archived int
	var metadataJSON string
	if err := row.Scan(&sess.ID, &sess.AgentID, &workspaceID, &clientID, &sess.Title, &tags, &workingDir, &persona,
		&archived, &metadataJSON, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.WorkspaceID = workspaceID.String
	sess.ClientIdentityID = clientID.String
	sess.WorkingDir = workingDir.String
	sess.Persona = persona.String
	sess.Archived = archived != 0
	if tags.String != "" {
		sess.Tags = strings.Split(tags.String, ",")
	}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &sess.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal session metadata: %w", err)
		}
	}
	return &sess, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// AppendMessage inserts a message into a session's transcript. It is the
// store's only write path for messages: there is no message update, and
// messages are deleted only together with their session (DeleteSession).
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}
	toolResults, err := json.Marshal(msg.ToolResults)
	if err != nil {
		return fmt.Errorf("marshal tool results: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}

	// Wrapped in a transaction so that touching the owning session's
	// updated_at (which the archive trigger also guards) rolls back the
	// insert too: an archived session must reject new messages outright,
	// not end up with a message row that never touched its session.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO message (id, session_id, role, content, thought, tool_calls, tool_results, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.Thought, string(toolCalls), string(toolResults), string(metadata), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE session SET updated_at = ? WHERE id = ?`, time.Now(), msg.SessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns a session's transcript in chronological order.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	query := `SELECT id, session_id, role, content, thought, tool_calls, tool_results, metadata, created_at
		FROM message WHERE session_id = ? ORDER BY created_at ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func scanMessageRow(rows *sql.Rows) (*models.Message, error) {
	var msg models.Message
	var role, toolCallsJSON, toolResultsJSON, metadataJSON string
	if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.Thought, &toolCallsJSON, &toolResultsJSON, &metadataJSON, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	msg.Role = models.Role(role)
	if toolCallsJSON != "" && toolCallsJSON != "null" {
		if err := json.Unmarshal([]byte(toolCallsJSON), &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshal tool calls: %w", err)
		}
	}
	if toolResultsJSON != "" && toolResultsJSON != "null" {
		if err := json.Unmarshal([]byte(toolResultsJSON), &msg.ToolResults); err != nil {
			return nil, fmt.Errorf("unmarshal tool results: %w", err)
		}
	}
	if metadataJSON != "" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal message metadata: %w", err)
		}
	}
	return &msg, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
