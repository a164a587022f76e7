package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/monad-ai/monad-core/internal/chat"
	"github.com/monad-ai/monad-core/internal/session"
	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/pkg/models"
)

// EngineExecutor implements Executor by driving one Chat Engine turn per
// job, matching spec.md's "Processing a job" steps: resolve the session,
// hydrate it (tolerating errors), resolve the agent, and delegate execution
// to it. The agent's own tool calls and status transitions happen inside
// the normal turn loop; EngineExecutor just collects the final assistant
// text as the job's result.
type EngineExecutor struct {
	store    *store.Store
	sessions *session.Manager
	engine   *chat.Engine
	log      *slog.Logger
}

// NewEngineExecutor constructs a job Executor backed by the Chat Engine.
func NewEngineExecutor(st *store.Store, sessions *session.Manager, engine *chat.Engine, log *slog.Logger) *EngineExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &EngineExecutor{store: st, sessions: sessions, engine: engine, log: log}
}

// Execute implements Executor.
func (e *EngineExecutor) Execute(ctx context.Context, job *models.Job) (string, error) {
	if strings.TrimSpace(job.SessionID) == "" {
		return "", fmt.Errorf("job %s has no session", job.ID)
	}

	entry, err := e.sessions.HydrateSession(ctx, job.SessionID, job.ID)
	if err != nil {
		return "", fmt.Errorf("session not found: %w", err)
	}

	agent, err := e.store.GetAgent(ctx, job.AgentID)
	if err != nil {
		return "", fmt.Errorf("resolve agent %s: %w", job.AgentID, err)
	}

	deltas, err := e.engine.Run(ctx, chat.TurnRequest{
		Session:  entry.Session,
		Agent:    agent,
		UserText: job.Description,
	})
	if err != nil {
		return "", err
	}

	var final strings.Builder
	for delta := range deltas {
		switch delta.Kind {
		case models.DeltaContent:
			final.WriteString(delta.Text)
		case models.DeltaError:
			return "", fmt.Errorf("job turn failed: %s", delta.Err)
		}
	}
	return final.String(), nil
}
