package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/monad-ai/monad-core/pkg/models"
)

// CreateAgent persists a new agent definition.
func (s *Store) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	now := time.Now()
	agent.CreatedAt, agent.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent (id, name, system, persona, guardrails, model, tools, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, agent.ID, agent.Name, agent.System, agent.Persona, agent.Guardrails, agent.Model, strings.Join(agent.Tools, ","), agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// GetAgent fetches an agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, system, persona, guardrails, model, tools, created_at, updated_at
		FROM agent WHERE id = ?
	`, id)
	var agent models.Agent
	var tools string
	if err := row.Scan(&agent.ID, &agent.Name, &agent.System, &agent.Persona, &agent.Guardrails, &agent.Model, &tools, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	if tools != "" {
		agent.Tools = strings.Split(tools, ",")
	}
	return &agent, nil
}

// AppendCompactificationNode records a hierarchical summary node produced by
// the context compressor.
func (s *Store) AppendCompactificationNode(ctx context.Context, node *models.CompactificationNode) error {
	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compactification_node (id, session_id, parent_id, level, summary, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, node.ID, node.SessionID, nullString(node.ParentID), node.Level, node.Summary, node.TokenCount, node.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert compactification node: %w", err)
	}
	return nil
}

// ListCompactificationNodes returns a session's summary tree ordered by
// level, lowest (most granular) first.
func (s *Store) ListCompactificationNodes(ctx context.Context, sessionID string) ([]*models.CompactificationNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, parent_id, level, summary, token_count, created_at
		FROM compactification_node WHERE session_id = ? ORDER BY level ASC, created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query compactification nodes: %w", err)
	}
	defer rows.Close()

	var out []*models.CompactificationNode
	for rows.Next() {
		var node models.CompactificationNode
		var parentID sql.NullString
		if err := rows.Scan(&node.ID, &node.SessionID, &parentID, &node.Level, &node.Summary, &node.TokenCount, &node.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan compactification node: %w", err)
		}
		node.ParentID = parentID.String
		out = append(out, &node)
	}
	return out, rows.Err()
}
