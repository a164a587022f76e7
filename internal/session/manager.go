// Package session implements the Session Manager (spec.md §4.F): lifecycle
// of sessions and the per-session component graph (its attached workspace
// set and last debug snapshot). Grounded on internal/sessions/store.go's
// load-hydrate-cache shape (teacher) and internal/gateway/managers/
// manager.go's handle-registry idiom (also teacher, now deleted from this
// tree but its "registry of live handles guarded by one lock" pattern is
// exactly what Entry/Manager below implement), generalized from a flat
// per-session record to a component-graph-per-session arena as spec.md §5
// requires (Session Manager is a single-writer actor; this implementation
// serializes it with a mutex rather than a goroutine-and-channel actor,
// matching the style internal/workspace.Registry already uses for the same
// single-writer requirement).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/internal/workspace"
	"github.com/monad-ai/monad-core/pkg/coreerrors"
	"github.com/monad-ai/monad-core/pkg/models"
)

const defaultPersona = "You are a helpful assistant."

// Entry is one session's live component graph: its row, the ordered set of
// workspace ids currently attached (primary first), and the last debug
// snapshot recorded for it. The context manager, tool manager, and tool
// executor named in spec.md §4.F are not separate structs here — they are
// the workspace.Registry, the tools.Dispatcher, and the rag.Pipeline, all
// already shared singletons keyed by session id through the fields below,
// so there is nothing session-scoped left to wrap beyond this entry.
type Entry struct {
	Session     *models.Session
	WorkspaceIDs []string // primary first, then attached, in attach order

	mu       sync.Mutex
	snapshot *models.DebugSnapshot
	touched  time.Time
}

// Manager owns every loaded session's component graph, matching spec.md
// §3's "Session Manager exclusively owns the per-session component graph."
type Manager struct {
	store      *store.Store
	workspaces *workspace.Registry
	dataDir    string
	log        *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
}

// New constructs a Session Manager. dataDir is the root directory under
// which every created session gets "<dataDir>/<sessionID>/Notes".
func New(st *store.Store, workspaces *workspace.Registry, dataDir string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: st, workspaces: workspaces, dataDir: dataDir, log: log, entries: map[string]*Entry{}}
}

// CreateSession allocates a new session: its working directory with a
// default Notes folder, a serverSession workspace rooted there, and the
// persisted session row, then builds its in-memory component graph. Any
// filesystem or persistence failure rolls back whatever was created and
// the in-memory entry is never installed.
func (m *Manager) CreateSession(ctx context.Context, agentID, title, persona string) (*models.Session, error) {
	if persona == "" {
		persona = defaultPersona
	}

	sessionID := uuid.New().String()
	workingDir := filepath.Join(m.dataDir, sessionID)
	notesDir := filepath.Join(workingDir, "Notes")

	if err := os.MkdirAll(notesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	rollbackDir := func() { os.RemoveAll(workingDir) }

	if err := os.WriteFile(filepath.Join(notesDir, "Persona.md"), []byte(persona), 0o644); err != nil {
		rollbackDir()
		return nil, fmt.Errorf("write persona note: %w", err)
	}
	if err := os.WriteFile(filepath.Join(notesDir, "Notes.md"), []byte(""), 0o644); err != nil {
		rollbackDir()
		return nil, fmt.Errorf("write default notes file: %w", err)
	}

	ws := &models.Workspace{
		ID:   "monad-" + sessionID,
		Type: models.WorkspaceLocal,
		Root: workingDir,
		Name: "session:" + sessionID,
	}
	if err := m.workspaces.Create(ctx, ws); err != nil {
		rollbackDir()
		return nil, fmt.Errorf("create session workspace: %w", err)
	}
	rollback := func() { rollbackDir(); m.workspaces.Unload(ws.ID) }

	sess := &models.Session{
		ID:          sessionID,
		AgentID:     agentID,
		WorkspaceID: ws.ID,
		Title:       title,
		WorkingDir:  workingDir,
		Persona:     persona,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		rollback()
		return nil, fmt.Errorf("persist session: %w", err)
	}

	m.mu.Lock()
	m.entries[sess.ID] = &Entry{Session: sess, WorkspaceIDs: []string{ws.ID}, touched: time.Now()}
	m.mu.Unlock()

	return sess, nil
}

// HydrateSession loads a session's component graph into memory. A no-op if
// already hydrated. parentJobID is logged only, identifying a job-triggered
// hydration for tracing purposes.
func (m *Manager) HydrateSession(ctx context.Context, id, parentJobID string) (*Entry, error) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		m.mu.Unlock()
		e.touch()
		return e, nil
	}
	m.mu.Unlock()

	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", coreerrors.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	workspaceIDs, err := m.store.ListSessionWorkspaceIDs(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load session workspaces: %w", err)
	}
	for _, wsID := range workspaceIDs {
		if _, ok := m.workspaces.Get(wsID); ok {
			continue
		}
		if err := m.workspaces.Reload(ctx, wsID); err != nil {
			m.log.Warn("skipping session workspace that failed to load", "session_id", id, "workspace_id", wsID, "error", err)
		}
	}

	entry := &Entry{Session: sess, WorkspaceIDs: workspaceIDs, touched: time.Now()}
	m.mu.Lock()
	m.entries[id] = entry
	m.mu.Unlock()

	if parentJobID != "" {
		m.log.Debug("hydrated session for job", "session_id", id, "parent_job_id", parentJobID)
	}
	return entry, nil
}

// UpdateSessionTitle renames a session, refreshing the in-memory copy if
// the session is currently loaded.
func (m *Manager) UpdateSessionTitle(ctx context.Context, id, title string) error {
	if err := m.store.UpdateSessionTitle(ctx, id, title); err != nil {
		return err
	}
	m.withEntry(id, func(e *Entry) { e.Session.Title = title })
	return nil
}

// UpdateSessionPersona writes the persona note to the session's working
// directory and updates the persisted marker, refreshing the in-memory copy
// if loaded.
func (m *Manager) UpdateSessionPersona(ctx context.Context, id, persona string) error {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.WorkingDir != "" {
		path := filepath.Join(sess.WorkingDir, "Notes", "Persona.md")
		if err := os.WriteFile(path, []byte(persona), 0o644); err != nil {
			return fmt.Errorf("write persona note: %w", err)
		}
	}
	if err := m.store.UpdateSessionPersona(ctx, id, persona); err != nil {
		return err
	}
	m.withEntry(id, func(e *Entry) { e.Session.Persona = persona })
	return nil
}

// AttachWorkspace binds a workspace to a session as primary or appended to
// the attached set, registering it with the session's live component graph
// if hydrated.
func (m *Manager) AttachWorkspace(ctx context.Context, sessionID, workspaceID string, isPrimary bool) error {
	if err := m.store.AttachWorkspace(ctx, sessionID, workspaceID, isPrimary); err != nil {
		return err
	}
	if _, ok := m.workspaces.Get(workspaceID); !ok {
		if err := m.workspaces.Reload(ctx, workspaceID); err != nil {
			return fmt.Errorf("load attached workspace: %w", err)
		}
	}
	m.withEntry(sessionID, func(e *Entry) {
		if isPrimary {
			e.Session.WorkspaceID = workspaceID
			e.WorkspaceIDs = prependUnique(e.WorkspaceIDs, workspaceID)
			return
		}
		for _, id := range e.WorkspaceIDs {
			if id == workspaceID {
				return
			}
		}
		e.WorkspaceIDs = append(e.WorkspaceIDs, workspaceID)
	})
	return nil
}

// DetachWorkspace unbinds a workspace from a session, reversing whichever
// half of AttachWorkspace installed it.
func (m *Manager) DetachWorkspace(ctx context.Context, sessionID, workspaceID string) error {
	if err := m.store.DetachWorkspace(ctx, sessionID, workspaceID); err != nil {
		return err
	}
	m.withEntry(sessionID, func(e *Entry) {
		if e.Session.WorkspaceID == workspaceID {
			e.Session.WorkspaceID = ""
		}
		out := e.WorkspaceIDs[:0]
		for _, id := range e.WorkspaceIDs {
			if id != workspaceID {
				out = append(out, id)
			}
		}
		e.WorkspaceIDs = out
	})
	return nil
}

// WorkspaceStatus pairs a workspace record with its liveness as observed on
// disk: a server-hosted workspace whose root directory no longer exists is
// reported missing rather than failing the whole call.
type WorkspaceStatus struct {
	Workspace *models.Workspace
	Status    string // "active" or "missing"
}

// GetWorkspaces resolves a session's primary and attached workspaces,
// flagging any server-hosted workspace whose root has vanished from disk.
func (m *Manager) GetWorkspaces(ctx context.Context, sessionID string) ([]WorkspaceStatus, error) {
	ids, err := m.store.ListSessionWorkspaceIDs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]WorkspaceStatus, 0, len(ids))
	for _, id := range ids {
		ws, err := m.store.GetWorkspace(ctx, id)
		if err != nil {
			return nil, err
		}
		status := "active"
		if ws.Type == models.WorkspaceLocal {
			if _, statErr := os.Stat(ws.Root); statErr != nil {
				status = "missing"
			}
		}
		out = append(out, WorkspaceStatus{Workspace: ws, Status: status})
	}
	return out, nil
}

// CleanupStaleSessions evicts in-memory component graphs untouched since
// maxAge ago. Persistence is untouched; a later call rehydrates from the
// store. Returns the number of sessions evicted.
func (m *Manager) CleanupStaleSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, e := range m.entries {
		if e.lastTouched().Before(cutoff) {
			delete(m.entries, id)
			evicted++
		}
	}
	return evicted
}

// SetDebugSnapshot retains snap as the session's latest debug snapshot.
func (m *Manager) SetDebugSnapshot(sessionID string, snap *models.DebugSnapshot) {
	m.withEntry(sessionID, func(e *Entry) {
		e.mu.Lock()
		e.snapshot = snap
		e.mu.Unlock()
	})
}

// GetDebugSnapshot returns the session's last recorded debug snapshot, if any.
func (m *Manager) GetDebugSnapshot(sessionID string) (*models.DebugSnapshot, bool) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot, e.snapshot != nil
}

// Get returns the loaded entry for a session id, if hydrated.
func (m *Manager) Get(sessionID string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	return e, ok
}

func (m *Manager) withEntry(sessionID string, fn func(*Entry)) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	m.mu.Unlock()
	if ok {
		fn(e)
	}
}

func (e *Entry) touch() {
	e.mu.Lock()
	e.touched = time.Now()
	e.mu.Unlock()
}

func (e *Entry) lastTouched() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.touched
}

func prependUnique(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, id)
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
