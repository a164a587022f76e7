package chat

import (
	"context"

	"github.com/monad-ai/monad-core/pkg/models"
)

// ContextResult is the outcome of augmenting a turn with recalled memory and
// notes. Before the LLM stream opens, the engine reports NoteNames to the
// caller as the comma-joined text of a generationContext delta; MemoryIDs
// are not included in that delta.
type ContextResult struct {
	MemoryIDs []string
	NoteNames []string
	// Notes is the rendered block injected into the system prompt.
	Notes string
}

// ContextPipeline is the Context/RAG Pipeline (§4.C), built in internal/rag
// on top of the persistence store's memory search. The Chat Engine depends
// only on this interface.
type ContextPipeline interface {
	Augment(ctx context.Context, sess *models.Session, agent *models.Agent, query string) (ContextResult, error)
}
