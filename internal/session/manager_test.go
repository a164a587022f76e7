package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/internal/workspace"
	"github.com/monad-ai/monad-core/pkg/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ws := workspace.NewRegistry(st, nil, nil)
	return New(st, ws, t.TempDir(), nil)
}

func TestCreateSessionBuildsWorkingDirAndPersona(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	sess, err := m.CreateSession(ctx, "agent-1", "My Session", "be terse")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.WorkspaceID == "" {
		t.Fatal("expected primary workspace to be set")
	}

	persona, err := os.ReadFile(filepath.Join(sess.WorkingDir, "Notes", "Persona.md"))
	if err != nil {
		t.Fatalf("read persona note: %v", err)
	}
	if string(persona) != "be terse" {
		t.Fatalf("persona note = %q, want %q", persona, "be terse")
	}

	if _, ok := m.workspaces.Get(sess.WorkspaceID); !ok {
		t.Fatal("expected workspace to be registered in the live registry")
	}

	entry, ok := m.Get(sess.ID)
	if !ok {
		t.Fatal("expected session to already be hydrated after creation")
	}
	if len(entry.WorkspaceIDs) != 1 || entry.WorkspaceIDs[0] != sess.WorkspaceID {
		t.Fatalf("entry.WorkspaceIDs = %v, want [%s]", entry.WorkspaceIDs, sess.WorkspaceID)
	}
}

func TestHydrateSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	sess, err := m.CreateSession(ctx, "agent-1", "Title", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Force eviction, then hydrate should rebuild from the store.
	m.mu.Lock()
	delete(m.entries, sess.ID)
	m.mu.Unlock()

	entry, err := m.HydrateSession(ctx, sess.ID, "")
	if err != nil {
		t.Fatalf("HydrateSession: %v", err)
	}
	if entry.Session.ID != sess.ID {
		t.Fatalf("hydrated session id = %s, want %s", entry.Session.ID, sess.ID)
	}

	again, err := m.HydrateSession(ctx, sess.ID, "")
	if err != nil {
		t.Fatalf("HydrateSession (second): %v", err)
	}
	if again != entry {
		t.Fatal("expected second HydrateSession to return the same cached entry")
	}
}

func TestHydrateSessionNotFound(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.HydrateSession(context.Background(), "missing", ""); err == nil {
		t.Fatal("expected error for unknown session id")
	}
}

func TestAttachAndDetachWorkspace(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	sess, err := m.CreateSession(ctx, "agent-1", "Title", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	extra := &models.Workspace{Type: models.WorkspaceLocal, Root: t.TempDir()}
	if err := m.workspaces.Create(ctx, extra); err != nil {
		t.Fatalf("create extra workspace: %v", err)
	}

	if err := m.AttachWorkspace(ctx, sess.ID, extra.ID, false); err != nil {
		t.Fatalf("AttachWorkspace: %v", err)
	}
	entry, _ := m.Get(sess.ID)
	if len(entry.WorkspaceIDs) != 2 {
		t.Fatalf("WorkspaceIDs = %v, want 2 entries", entry.WorkspaceIDs)
	}

	statuses, err := m.GetWorkspaces(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetWorkspaces: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("GetWorkspaces returned %d entries, want 2", len(statuses))
	}

	if err := m.DetachWorkspace(ctx, sess.ID, extra.ID); err != nil {
		t.Fatalf("DetachWorkspace: %v", err)
	}
	entry, _ = m.Get(sess.ID)
	if len(entry.WorkspaceIDs) != 1 {
		t.Fatalf("WorkspaceIDs after detach = %v, want 1 entry", entry.WorkspaceIDs)
	}
}

func TestGetWorkspacesFlagsMissingRoot(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	sess, err := m.CreateSession(ctx, "agent-1", "Title", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := os.RemoveAll(sess.WorkingDir); err != nil {
		t.Fatalf("remove working dir: %v", err)
	}

	statuses, err := m.GetWorkspaces(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetWorkspaces: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Status != "missing" {
		t.Fatalf("statuses = %+v, want one missing workspace", statuses)
	}
}

func TestCleanupStaleSessionsEvictsOnlyInMemoryState(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	sess, err := m.CreateSession(ctx, "agent-1", "Title", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	evicted := m.CleanupStaleSessions(0)
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, ok := m.Get(sess.ID); ok {
		t.Fatal("expected entry to be evicted from memory")
	}

	// Persistence is untouched: rehydrating must still work.
	if _, err := m.HydrateSession(ctx, sess.ID, ""); err != nil {
		t.Fatalf("HydrateSession after eviction: %v", err)
	}
}

func TestDebugSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	sess, err := m.CreateSession(ctx, "agent-1", "Title", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, ok := m.GetDebugSnapshot(sess.ID); ok {
		t.Fatal("expected no snapshot before one is set")
	}

	snap := &models.DebugSnapshot{SessionID: sess.ID, Model: "test-model", TurnCount: 2, CreatedAt: time.Now()}
	m.SetDebugSnapshot(sess.ID, snap)

	got, ok := m.GetDebugSnapshot(sess.ID)
	if !ok || got.TurnCount != 2 {
		t.Fatalf("GetDebugSnapshot = %+v, %v", got, ok)
	}
}

func TestUpdateSessionPersonaRewritesNote(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	sess, err := m.CreateSession(ctx, "agent-1", "Title", "old persona")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := m.UpdateSessionPersona(ctx, sess.ID, "new persona"); err != nil {
		t.Fatalf("UpdateSessionPersona: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(sess.WorkingDir, "Notes", "Persona.md"))
	if err != nil {
		t.Fatalf("read persona note: %v", err)
	}
	if string(data) != "new persona" {
		t.Fatalf("persona note = %q, want %q", data, "new persona")
	}

	entry, _ := m.Get(sess.ID)
	if entry.Session.Persona != "new persona" {
		t.Fatalf("in-memory persona = %q, want %q", entry.Session.Persona, "new persona")
	}
}
