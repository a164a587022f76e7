// Package rag implements the Context/RAG Pipeline: augmenting a user query
// with notes and ranked memories before a Chat Engine turn calls the LLM.
// Grounded on the teacher's internal/rag/context (Injector) and
// internal/memory (Manager, embeddings.Provider) packages, generalized from
// document-chunk retrieval to the note+memory model SPEC_FULL.md describes.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/monad-ai/monad-core/internal/chat"
	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/internal/workspace"
	"github.com/monad-ai/monad-core/pkg/models"
)

// Progress stages reported while a pipeline call is in flight, matching
// spec.md §4.C's {augmenting, tagging, embedding, searching, ranking,
// complete} state set.
const (
	StageAugmenting = "augmenting"
	StageTagging    = "tagging"
	StageEmbedding  = "embedding"
	StageSearching  = "searching"
	StageRanking    = "ranking"
	StageComplete   = "complete"
)

const (
	defaultLimit    = 5
	semanticFanout  = 2    // semantic search queries at limit = fanout * K
	minSimilarity   = 0.35
	tagBoost        = 0.5
	decayHalfLifeDs = 42 // days
)

// ErrEmbeddingFailed wraps any error returned by the Embedder; unlike tag
// generation, embedding failure is not fault-tolerant.
type ErrEmbeddingFailed struct{ Cause error }

func (e *ErrEmbeddingFailed) Error() string { return fmt.Sprintf("embeddingFailed: %v", e.Cause) }
func (e *ErrEmbeddingFailed) Unwrap() error  { return e.Cause }

// Embedder produces a vector embedding for a piece of text, grounded on the
// teacher's embeddings.Provider interface, narrowed to the one method the
// pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TagGenerator derives topical tags from text. Failure is fault-tolerant:
// the pipeline proceeds with an empty tag list rather than failing the turn.
type TagGenerator interface {
	GenerateTags(ctx context.Context, text string) ([]string, error)
}

// ProgressFunc is notified as the pipeline advances through its stages.
type ProgressFunc func(stage string)

// Pipeline implements chat.ContextPipeline: augmenting a turn with the
// workspace's notes and the session's most relevant memories.
type Pipeline struct {
	Store        *store.Store
	Embedder     Embedder
	TagGenerator TagGenerator
	Progress     ProgressFunc
	Limit        int
	Log          *slog.Logger
}

// New constructs a Pipeline. TagGenerator and Progress may be nil.
func New(st *store.Store, embedder Embedder, tagGen TagGenerator, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{Store: st, Embedder: embedder, TagGenerator: tagGen, Limit: defaultLimit, Log: log}
}

func (p *Pipeline) report(stage string) {
	if p.Progress != nil {
		p.Progress(stage)
	}
}

// Augment implements chat.ContextPipeline. It runs the notes fetch and the
// relevant-memories build concurrently, then formats both into a single
// notes string for the Chat Engine's system prompt.
func (p *Pipeline) Augment(ctx context.Context, sess *models.Session, agent *models.Agent, query string) (chat.ContextResult, error) {
	p.report(StageAugmenting)

	history, err := p.Store.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		return chat.ContextResult{}, fmt.Errorf("load history for augmentation: %w", err)
	}
	tagContext := buildTagContext(history, query)

	var wg sync.WaitGroup
	var notes []Note
	var notesErr error
	var memResults []*models.SearchResult
	var memErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		notes, notesErr = p.fetchNotes(ctx, sess)
	}()
	go func() {
		defer wg.Done()
		memResults, memErr = p.buildRelevantMemories(ctx, sess, agent, tagContext, query)
	}()
	wg.Wait()

	if notesErr != nil {
		return chat.ContextResult{}, fmt.Errorf("fetch notes: %w", notesErr)
	}
	if memErr != nil {
		return chat.ContextResult{}, memErr
	}

	p.report(StageComplete)

	result := chat.ContextResult{}
	for _, n := range notes {
		result.NoteNames = append(result.NoteNames, n.Name)
	}
	for _, r := range memResults {
		result.MemoryIDs = append(result.MemoryIDs, r.Entry.ID)
	}
	result.Notes = formatNotes(notes, memResults)
	return result, nil
}

// buildTagContext concatenates the last 3 user/assistant messages with the
// query, excluding tool-role messages, per spec.md §4.C step 1.
func buildTagContext(history []*models.Message, query string) string {
	var recent []string
	for i := len(history) - 1; i >= 0 && len(recent) < 3; i-- {
		m := history[i]
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		recent = append([]string{m.Content}, recent...)
	}
	recent = append(recent, query)
	return strings.Join(recent, "\n")
}

// buildRelevantMemories runs tag generation, embedding, parallel
// semantic+tag search, and the rank/merge pass (spec.md §4.C steps 3-6).
func (p *Pipeline) buildRelevantMemories(ctx context.Context, sess *models.Session, agent *models.Agent, tagContext, query string) ([]*models.SearchResult, error) {
	p.report(StageTagging)
	tags := p.generateTags(ctx, tagContext)

	p.report(StageEmbedding)
	queryVec, err := p.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, &ErrEmbeddingFailed{Cause: err}
	}

	p.report(StageSearching)
	scope := store.MemoryScope{SessionID: sess.ID}

	limit := p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var wg sync.WaitGroup
	var semantic []*models.SearchResult
	var semErr error
	var tagged []*models.MemoryEntry
	var tagErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		semantic, semErr = p.Store.SearchMemoriesByVector(ctx, queryVec, scope, limit*semanticFanout, minSimilarity)
	}()
	go func() {
		defer wg.Done()
		if len(tags) > 0 {
			tagged, tagErr = p.Store.SearchMemoriesByTags(ctx, tags, scope, limit*semanticFanout)
		}
	}()
	wg.Wait()

	if semErr != nil {
		return nil, fmt.Errorf("semantic search: %w", semErr)
	}
	if tagErr != nil {
		return nil, fmt.Errorf("tag search: %w", tagErr)
	}

	p.report(StageRanking)
	return p.rank(semantic, tagged, queryVec, limit), nil
}

func (p *Pipeline) generateTags(ctx context.Context, text string) []string {
	if p.TagGenerator == nil {
		return nil
	}
	tags, err := p.TagGenerator.GenerateTags(ctx, text)
	if err != nil {
		p.Log.Warn("tag generation failed, proceeding without tags", "error", err)
		return nil
	}
	return tags
}

// rank merges semantic and tag-only results, applying a tag boost to ids
// already present in the semantic set, a freshly-computed cosine score to
// tag-only entries, and a time-decay multiplier, per spec.md §4.C step 6.
func (p *Pipeline) rank(semantic []*models.SearchResult, tagged []*models.MemoryEntry, queryVec []float32, limit int) []*models.SearchResult {
	byID := make(map[string]*models.SearchResult, len(semantic)+len(tagged))
	for _, r := range semantic {
		byID[r.Entry.ID] = r
	}

	for _, entry := range tagged {
		if existing, ok := byID[entry.ID]; ok {
			existing.Score += tagBoost
			continue
		}
		score := cosine(queryVec, entry.Embedding) + tagBoost
		byID[entry.ID] = &models.SearchResult{Entry: entry, Score: score}
	}

	out := make([]*models.SearchResult, 0, len(byID))
	now := time.Now()
	for _, r := range byID {
		ageDays := now.Sub(r.Entry.CreatedAt).Hours() / 24
		decay := math.Pow(2, -ageDays/decayHalfLifeDs)
		r.Score *= float32(decay)
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Note is a deduplicated note available to a workspace, sourced either from
// a legacy memory row (Metadata.Source == "note") or a filesystem file
// under <root>/Notes/*.md, with the filesystem copy winning on name clash.
type Note struct {
	Name    string
	Content string
}

// fetchNotes merges DB legacy notes and filesystem notes under the
// session's workspace root, deduplicating by name with the filesystem copy
// winning, per spec.md §4.C step 2(i).
func (p *Pipeline) fetchNotes(ctx context.Context, sess *models.Session) ([]Note, error) {
	byName := make(map[string]Note)

	if sess.WorkspaceID != "" {
		scope := store.MemoryScope{WorkspaceID: sess.WorkspaceID}
		legacy, err := p.Store.SearchMemoriesByTags(ctx, []string{"note"}, scope, 0)
		if err != nil {
			return nil, fmt.Errorf("search legacy notes: %w", err)
		}
		for _, entry := range legacy {
			if entry.Metadata.Source != "note" {
				continue
			}
			name := entry.Metadata.Extra["name"]
			nameStr, _ := name.(string)
			if nameStr == "" {
				nameStr = entry.ID
			}
			byName[nameStr] = Note{Name: nameStr, Content: entry.Content}
		}

		ws, err := p.Store.GetWorkspace(ctx, sess.WorkspaceID)
		if err == nil && ws != nil && ws.Type == models.WorkspaceLocal {
			fsNotes, err := readFilesystemNotes(ws.Root)
			if err != nil {
				p.Log.Warn("read filesystem notes failed", "error", err, "workspace_id", ws.ID)
			}
			for _, n := range fsNotes {
				byName[n.Name] = n // filesystem wins
			}
		}
	}

	out := make([]Note, 0, len(byName))
	for _, n := range byName {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func readFilesystemNotes(root string) ([]Note, error) {
	resolver := workspace.Resolver{Root: root}
	notesDir, err := resolver.Resolve("Notes")
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(notesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var notes []Note
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(notesDir, e.Name()))
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		notes = append(notes, Note{Name: name, Content: string(data)})
	}
	return notes, nil
}

func formatNotes(notes []Note, memories []*models.SearchResult) string {
	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "### Note: %s\n%s\n\n", n.Name, n.Content)
	}
	for _, r := range memories {
		fmt.Fprintf(&b, "### Memory (score %.2f)\n%s\n\n", r.Score, r.Entry.Content)
	}
	return strings.TrimSpace(b.String())
}
