package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/pkg/models"
)

type constEmbedder struct {
	vec []float32
	err error
}

func (c constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.vec, c.err
}

type constTagger struct {
	tags []string
	err  error
}

func (c constTagger) GenerateTags(ctx context.Context, text string) ([]string, error) {
	return c.tags, c.err
}

func newPipelineTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAugmentRanksSemanticAndTagResults(t *testing.T) {
	ctx := context.Background()
	st := newPipelineTestStore(t)

	agent := &models.Agent{Name: "a", Model: "utility"}
	st.CreateAgent(ctx, agent)
	sess := &models.Session{AgentID: agent.ID}
	st.CreateSession(ctx, sess)

	close1 := &models.MemoryEntry{SessionID: sess.ID, Content: "close match", Embedding: []float32{1, 0, 0}}
	tagOnly := &models.MemoryEntry{SessionID: sess.ID, Content: "tag only", Embedding: []float32{0, 1, 0},
		Metadata: models.MemoryMetadata{Tags: []string{"billing"}}}
	if err := st.IndexMemory(ctx, close1); err != nil {
		t.Fatalf("IndexMemory: %v", err)
	}
	if err := st.IndexMemory(ctx, tagOnly); err != nil {
		t.Fatalf("IndexMemory: %v", err)
	}

	p := New(st, constEmbedder{vec: []float32{1, 0, 0}}, constTagger{tags: []string{"billing"}}, nil)
	result, err := p.Augment(ctx, sess, agent, "what's my balance")
	if err != nil {
		t.Fatalf("Augment: %v", err)
	}
	if len(result.MemoryIDs) != 2 {
		t.Fatalf("expected both memories surfaced, got %+v", result.MemoryIDs)
	}
}

func TestAugmentPropagatesEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	st := newPipelineTestStore(t)
	agent := &models.Agent{Name: "a"}
	st.CreateAgent(ctx, agent)
	sess := &models.Session{AgentID: agent.ID}
	st.CreateSession(ctx, sess)

	p := New(st, constEmbedder{err: context.DeadlineExceeded}, nil, nil)
	_, err := p.Augment(ctx, sess, agent, "query")
	if err == nil {
		t.Fatal("expected embedding failure to propagate")
	}
	var embedErr *ErrEmbeddingFailed
	if !isEmbeddingFailure(err, &embedErr) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
}

func isEmbeddingFailure(err error, target **ErrEmbeddingFailed) bool {
	e, ok := err.(*ErrEmbeddingFailed)
	if ok {
		*target = e
	}
	return ok
}

func TestAugmentToleratesTagGenerationFailure(t *testing.T) {
	ctx := context.Background()
	st := newPipelineTestStore(t)
	agent := &models.Agent{Name: "a"}
	st.CreateAgent(ctx, agent)
	sess := &models.Session{AgentID: agent.ID}
	st.CreateSession(ctx, sess)

	p := New(st, constEmbedder{vec: []float32{1, 0, 0}}, constTagger{err: context.Canceled}, nil)
	if _, err := p.Augment(ctx, sess, agent, "query"); err != nil {
		t.Fatalf("expected tag generation failure to be tolerated, got %v", err)
	}
}

func TestFetchNotesFilesystemWinsOverLegacyRow(t *testing.T) {
	ctx := context.Background()
	st := newPipelineTestStore(t)

	root := t.TempDir()
	notesDir := filepath.Join(root, "Notes")
	if err := os.MkdirAll(notesDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(notesDir, "todo.md"), []byte("fresh from disk"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ws := &models.Workspace{Type: models.WorkspaceLocal, Root: root}
	if err := st.CreateWorkspace(ctx, ws); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}

	legacy := &models.MemoryEntry{
		WorkspaceID: ws.ID,
		Content:     "stale db row",
		Metadata:    models.MemoryMetadata{Source: "note", Tags: []string{"note"}, Extra: map[string]any{"name": "todo"}},
	}
	if err := st.IndexMemory(ctx, legacy); err != nil {
		t.Fatalf("IndexMemory: %v", err)
	}

	agent := &models.Agent{Name: "a"}
	st.CreateAgent(ctx, agent)
	sess := &models.Session{AgentID: agent.ID, WorkspaceID: ws.ID}
	st.CreateSession(ctx, sess)

	p := New(st, constEmbedder{vec: []float32{1, 0, 0}}, nil, nil)
	notes, err := p.fetchNotes(ctx, sess)
	if err != nil {
		t.Fatalf("fetchNotes: %v", err)
	}
	if len(notes) != 1 || notes[0].Content != "fresh from disk" {
		t.Fatalf("expected filesystem note to win, got %+v", notes)
	}
}
