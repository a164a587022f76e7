package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/monad-ai/monad-core/internal/compaction"
	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/pkg/models"
)

// Scope selects how aggressively the Context Compressor collapses history.
type Scope string

const (
	ScopeTopic Scope = "topic"
	ScopeBroad Scope = "broad"
)

const (
	keepRawMessages   = 10
	fallbackChunkSize = 10
	topicTokenBudget  = 2000
)

// Compressor summarizes older session history into a hierarchy of
// CompactificationNode records, keeping the most recent messages raw. The
// underlying message table is insert-only (immutable rows), so compaction
// never rewrites or deletes history; it records summary nodes the prompt
// builder consults in place of old raw messages beyond the raw-message
// cutoff.
type Compressor interface {
	Compress(ctx context.Context, sess *models.Session, scope Scope) error
}

// Summarizer generates a natural-language summary of a message chunk, using
// the utility model rather than the turn's primary model.
type Summarizer interface {
	Summarize(ctx context.Context, messages []*models.Message, instructions string) (string, error)
}

// DefaultCompressor implements the chunk-then-collapse strategy from the
// Chat Engine's context compression step, grounded on
// internal/agent/compaction.go's threshold-triggered flush and the
// standalone internal/compaction package's token-estimation helpers.
type DefaultCompressor struct {
	Store      *store.Store
	Summarizer Summarizer
	Log        *slog.Logger
}

// NewDefaultCompressor constructs a DefaultCompressor.
func NewDefaultCompressor(st *store.Store, summarizer Summarizer, log *slog.Logger) *DefaultCompressor {
	if log == nil {
		log = slog.Default()
	}
	return &DefaultCompressor{Store: st, Summarizer: summarizer, Log: log}
}

// Compress summarizes everything beyond the last keepRawMessages messages
// into topic-level CompactificationNode rows, then collapses them into a
// single broad summary if their combined size exceeds the topic token
// budget or scope is explicitly broad.
func (c *DefaultCompressor) Compress(ctx context.Context, sess *models.Session, scope Scope) error {
	history, err := c.Store.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		return err
	}
	if len(history) <= keepRawMessages {
		return nil
	}
	older := history[:len(history)-keepRawMessages]
	chunks := chunkByTopicBoundary(older, fallbackChunkSize)

	topicSummaries := make([]string, 0, len(chunks))
	totalTokens := 0
	for _, chunk := range chunks {
		summary, verbatim := explicitTopicSummary(chunk)
		if !verbatim {
			summary, err = c.Summarizer.Summarize(ctx, chunk,
				"Summarize this portion of the conversation concisely, preserving decisions and open threads.")
			if err != nil {
				return err
			}
		}
		tokens := estimateTokens(summary)
		if err := c.Store.AppendCompactificationNode(ctx, &models.CompactificationNode{
			SessionID:  sess.ID,
			Level:      0,
			Summary:    summary,
			TokenCount: tokens,
		}); err != nil {
			return err
		}
		topicSummaries = append(topicSummaries, summary)
		totalTokens += tokens
	}

	if totalTokens <= topicTokenBudget && scope != ScopeBroad {
		return nil
	}

	broad, err := c.Summarizer.Summarize(ctx, nil,
		"Merge these topic summaries into one coherent broad summary, preserving chronological flow:\n\n"+strings.Join(topicSummaries, "\n\n"))
	if err != nil {
		return err
	}
	return c.Store.AppendCompactificationNode(ctx, &models.CompactificationNode{
		SessionID:  sess.ID,
		Level:      1,
		Summary:    broad,
		TokenCount: estimateTokens(broad),
	})
}

// chunkByTopicBoundary splits messages on explicit mark_topic_change tool
// calls, falling back to fixed-size chunks; a tool-call message and its
// paired tool-result message are never split across chunks.
func chunkByTopicBoundary(messages []*models.Message, fallbackSize int) [][]*models.Message {
	var chunks [][]*models.Message
	var current []*models.Message

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
		}
	}

	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		current = append(current, msg)

		if hasToolCall(msg, "mark_topic_change") {
			if i+1 < len(messages) && messages[i+1].Role == models.RoleTool {
				i++
				current = append(current, messages[i])
			}
			flush()
			continue
		}

		if len(current) >= fallbackSize && msg.Role != models.RoleAssistant {
			flush()
		}
	}
	flush()
	return chunks
}

func hasToolCall(msg *models.Message, name string) bool {
	for _, tc := range msg.ToolCalls {
		if tc.Name == name {
			return true
		}
	}
	return false
}

// explicitTopicSummary returns a user-supplied summary argument from a
// mark_topic_change call within the chunk, if present, used verbatim
// instead of invoking the summarizer.
func explicitTopicSummary(chunk []*models.Message) (string, bool) {
	for _, msg := range chunk {
		for _, tc := range msg.ToolCalls {
			if tc.Name != "mark_topic_change" {
				continue
			}
			var args struct {
				Summary string `json:"summary"`
			}
			if err := json.Unmarshal(tc.Input, &args); err == nil && args.Summary != "" {
				return args.Summary, true
			}
		}
	}
	return "", false
}

func estimateTokens(s string) int {
	return compaction.EstimateTokens(s)
}
