package store

import (
	"context"
	"testing"
	"time"

	"github.com/monad-ai/monad-core/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := newTestStore(t)
	status, err := s.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if status != HealthOK {
		t.Fatalf("expected HealthOK, got %s", status)
	}
}

func TestSessionAndMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	agent := &models.Agent{Name: "tester", Model: "test-model"}
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	sess := &models.Session{AgentID: agent.ID, Title: "hello"}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	msg := &models.Message{SessionID: sess.ID, Role: models.RoleUser, Content: "hi there"}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	got, err := s.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != 1 || got[0].Content != "hi there" {
		t.Fatalf("unexpected messages: %+v", got)
	}

	// Immutability: once the session is archived, updating its message must fail.
	if err := s.ArchiveSession(ctx, sess.ID); err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE message SET content = 'tampered' WHERE id = ?`, msg.ID)
	if err == nil {
		t.Fatal("expected UPDATE on message to be rejected by trigger")
	}
}

func TestSearchMemoriesByVectorOrdersByScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entries := []*models.MemoryEntry{
		{Content: "a", Embedding: []float32{1, 0, 0}},
		{Content: "b", Embedding: []float32{0, 1, 0}},
		{Content: "c", Embedding: []float32{0.9, 0.1, 0}},
	}
	for _, e := range entries {
		if err := s.IndexMemory(ctx, e); err != nil {
			t.Fatalf("IndexMemory: %v", err)
		}
	}

	results, err := s.SearchMemoriesByVector(ctx, []float32{1, 0, 0}, MemoryScope{}, 10, 0)
	if err != nil {
		t.Fatalf("SearchMemoriesByVector: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Entry.Content != "a" || results[1].Entry.Content != "c" {
		t.Fatalf("expected a then c by similarity, got %s then %s", results[0].Entry.Content, results[1].Entry.Content)
	}
}

func TestReinforceMemoriesIncreasesWeightTowardQueryVectors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entry := &models.MemoryEntry{Content: "reinforced", Embedding: []float32{1, 0, 0}}
	if err := s.IndexMemory(ctx, entry); err != nil {
		t.Fatalf("IndexMemory: %v", err)
	}

	evaluations := map[string]float32{entry.ID: 1}
	queryVectors := [][]float32{{1, 0, 0}, {0.8, 0.6, 0}}
	if err := s.ReinforceMemories(ctx, evaluations, queryVectors, 0.05); err != nil {
		t.Fatalf("ReinforceMemories: %v", err)
	}

	results, err := s.SearchMemoriesByVector(ctx, []float32{1, 0, 0}, MemoryScope{}, 10, 0)
	if err != nil {
		t.Fatalf("SearchMemoriesByVector: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Weight <= 0 {
		t.Fatalf("expected reinforced weight > 0, got %+v", results)
	}
}

// TestSaveMemoryPreventsSimilarDuplicates covers seed scenario S4: two
// memories at cosine similarity 0.98 saved under preventSimilar(0.95) must
// collapse to a single row, with the second call returning the first id.
func TestSaveMemoryPreventsSimilarDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := &models.MemoryEntry{Content: "first", Embedding: []float32{1, 0, 0}}
	firstID, err := s.SaveMemory(ctx, first, 0.95)
	if err != nil {
		t.Fatalf("SaveMemory (first): %v", err)
	}
	if firstID != first.ID {
		t.Fatalf("expected first save to return its own id, got %s want %s", firstID, first.ID)
	}

	// cosine({1,0,0}, {0.98, sqrt(1-0.98^2), 0}) ~= 0.98
	second := &models.MemoryEntry{Content: "near-duplicate", Embedding: []float32{0.98, 0.199, 0}}
	secondID, err := s.SaveMemory(ctx, second, 0.95)
	if err != nil {
		t.Fatalf("SaveMemory (second): %v", err)
	}
	if secondID != firstID {
		t.Fatalf("expected near-duplicate save to return existing id %s, got %s", firstID, secondID)
	}

	results, err := s.SearchMemoriesByVector(ctx, []float32{1, 0, 0}, MemoryScope{}, 10, 0)
	if err != nil {
		t.Fatalf("SearchMemoriesByVector: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one stored memory after dedup, got %d", len(results))
	}
}

// TestSaveMemoryWritesDissimilarEntries ensures SaveMemory still upserts
// memories that don't collide with an existing near-duplicate.
func TestSaveMemoryWritesDissimilarEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := &models.MemoryEntry{Content: "a", Embedding: []float32{1, 0, 0}}
	if _, err := s.SaveMemory(ctx, a, 0.95); err != nil {
		t.Fatalf("SaveMemory (a): %v", err)
	}
	b := &models.MemoryEntry{Content: "b", Embedding: []float32{0, 1, 0}}
	bID, err := s.SaveMemory(ctx, b, 0.95)
	if err != nil {
		t.Fatalf("SaveMemory (b): %v", err)
	}
	if bID != b.ID {
		t.Fatalf("expected dissimilar save to return its own id, got %s want %s", bID, b.ID)
	}

	results, err := s.SearchMemoriesByVector(ctx, []float32{1, 0, 0}, MemoryScope{}, 10, 0)
	if err != nil {
		t.Fatalf("SearchMemoriesByVector: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both dissimilar memories stored, got %d", len(results))
	}
}

// TestVacuumMemoriesDropsDuplicatesKeepingFirstOccurrence matches §4.A's
// vacuumMemories(threshold): the first-inserted memory of a near-duplicate
// cluster survives, later ones are deleted, and the delete count is
// returned.
func TestVacuumMemoriesDropsDuplicatesKeepingFirstOccurrence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := &models.MemoryEntry{Content: "first", Embedding: []float32{1, 0, 0}}
	if err := s.IndexMemory(ctx, first); err != nil {
		t.Fatalf("IndexMemory (first): %v", err)
	}
	time.Sleep(time.Millisecond) // ensure distinct created_at ordering
	dup := &models.MemoryEntry{Content: "dup", Embedding: []float32{0.99, 0.1411, 0}}
	if err := s.IndexMemory(ctx, dup); err != nil {
		t.Fatalf("IndexMemory (dup): %v", err)
	}
	time.Sleep(time.Millisecond)
	distinct := &models.MemoryEntry{Content: "distinct", Embedding: []float32{0, 1, 0}}
	if err := s.IndexMemory(ctx, distinct); err != nil {
		t.Fatalf("IndexMemory (distinct): %v", err)
	}

	deleted, err := s.VacuumMemories(ctx, 0.95)
	if err != nil {
		t.Fatalf("VacuumMemories: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 memory deleted, got %d", deleted)
	}

	results, err := s.SearchMemoriesByVector(ctx, []float32{1, 0, 0}, MemoryScope{}, 10, 0)
	if err != nil {
		t.Fatalf("SearchMemoriesByVector: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 memories to remain, got %d", len(results))
	}
	for _, r := range results {
		if r.Entry.ID == dup.ID {
			t.Fatalf("expected duplicate %s to be vacuumed", dup.ID)
		}
	}
}

func TestReinforceMemoriesSkipsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entry := &models.MemoryEntry{Content: "untouched", Embedding: []float32{1, 0, 0}}
	if err := s.IndexMemory(ctx, entry); err != nil {
		t.Fatalf("IndexMemory: %v", err)
	}

	evaluations := map[string]float32{entry.ID: 1}
	queryVectors := [][]float32{{1, 0}} // wrong dimensionality
	if err := s.ReinforceMemories(ctx, evaluations, queryVectors, 0.05); err != nil {
		t.Fatalf("ReinforceMemories: %v", err)
	}

	results, err := s.SearchMemoriesByVector(ctx, []float32{1, 0, 0}, MemoryScope{}, 10, 0)
	if err != nil {
		t.Fatalf("SearchMemoriesByVector: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Weight != 0 {
		t.Fatalf("expected weight untouched on dimension mismatch, got %+v", results[0].Entry)
	}
}

func TestJobLifecycleAndCascadeCancel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	parent := &models.Job{AgentID: "agent-1", Title: "parent"}
	if err := s.CreateJob(ctx, parent); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	child := &models.Job{AgentID: "agent-1", ParentID: parent.ID, Title: "child"}
	if err := s.CreateJob(ctx, child); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := s.CancelJob(ctx, parent.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}

	gotParent, err := s.GetJob(ctx, parent.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if gotParent.Status != models.JobCancelled {
		t.Fatalf("expected parent cancelled, got %s", gotParent.Status)
	}
	gotChild, err := s.GetJob(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetJob child: %v", err)
	}
	if gotChild.Status != models.JobCancelled {
		t.Fatalf("expected child cancelled, got %s", gotChild.Status)
	}
}

func TestDueJobsOrdersByPriorityThenAge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	low := &models.Job{AgentID: "a", Title: "low", Priority: 1}
	high := &models.Job{AgentID: "a", Title: "high", Priority: 10}
	if err := s.CreateJob(ctx, low); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, high); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	due, err := s.DueJobs(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if len(due) != 2 || due[0].Title != "high" {
		t.Fatalf("expected high priority job first, got %+v", due)
	}
}

func TestWorkspaceLockIsAdvisoryAndExclusive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ws := &models.Workspace{Type: models.WorkspaceLocal, Root: "/tmp/ws"}
	if err := s.CreateWorkspace(ctx, ws); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}

	if err := s.AcquireWorkspaceLock(ctx, ws.ID, "session-1"); err != nil {
		t.Fatalf("AcquireWorkspaceLock: %v", err)
	}
	if err := s.AcquireWorkspaceLock(ctx, ws.ID, "session-2"); err == nil {
		t.Fatal("expected second holder to be rejected")
	}
	if err := s.ReleaseWorkspaceLock(ctx, ws.ID, "session-1"); err != nil {
		t.Fatalf("ReleaseWorkspaceLock: %v", err)
	}
	if err := s.AcquireWorkspaceLock(ctx, ws.ID, "session-2"); err != nil {
		t.Fatalf("expected acquire to succeed after release: %v", err)
	}
}
