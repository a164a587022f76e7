package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/monad-ai/monad-core/internal/parser"
	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/pkg/models"
)

// maxTurns bounds the number of LLM-stream/tool-execution round trips within
// a single user turn.
const maxTurns = 5

// deltaBufferSize is the channel buffer handed back to callers; sized so a
// burst of parser output doesn't block the streaming goroutine on a slow
// reader.
const deltaBufferSize = 64

// ErrEmptyTurn is returned when a turn carries neither a user message nor
// any tool outputs to resolve.
var ErrEmptyTurn = errors.New("turn requires a user message or at least one tool output")

// TurnRequest is the input to one Chat Engine turn.
type TurnRequest struct {
	Session     *models.Session
	Agent       *models.Agent
	UserText    string
	ToolOutputs []models.ToolResult // resolves previously-deferred client tool calls
}

// Engine runs a ReAct-style loop over an LLM provider and tool dispatcher,
// streaming deltas for one turn at a time. Directly grounded on
// internal/agent/loop.go's AgenticLoop, adapted to SPEC_FULL.md's
// provider-agnostic streaming contract and finite maxTurns bound.
type Engine struct {
	store      *store.Store
	provider   Provider
	dispatcher Dispatcher
	rag        ContextPipeline
	compressor Compressor
	log        *slog.Logger
}

// New constructs a Chat Engine.
func New(st *store.Store, provider Provider, dispatcher Dispatcher, rag ContextPipeline, compressor Compressor, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: st, provider: provider, dispatcher: dispatcher, rag: rag, compressor: compressor, log: log}
}

// Run executes one user turn and streams ChatDelta values until
// streamCompleted. The returned channel is closed once the turn ends,
// whether by completion, maxTurns exhaustion, or error.
func (e *Engine) Run(ctx context.Context, req TurnRequest) (<-chan *models.ChatDelta, error) {
	if req.Session == nil {
		return nil, errors.New("session is required")
	}
	if strings.TrimSpace(req.UserText) == "" && len(req.ToolOutputs) == 0 {
		return nil, ErrEmptyTurn
	}

	out := make(chan *models.ChatDelta, deltaBufferSize)

	go func() {
		defer close(out)
		e.runTurn(ctx, req, out)
	}()

	return out, nil
}

func (e *Engine) runTurn(ctx context.Context, req TurnRequest, out chan<- *models.ChatDelta) {
	sess := req.Session

	// Step 1: persist deferred tool outputs.
	for _, res := range req.ToolOutputs {
		msg := &models.Message{
			SessionID:   sess.ID,
			Role:        models.RoleTool,
			ToolResults: []models.ToolResult{res},
		}
		if err := e.store.AppendMessage(ctx, msg); err != nil {
			e.emitError(out, sess.ID, fmt.Errorf("persist tool output: %w", err))
			return
		}
	}

	// Step 2: persist the user message, if any.
	if strings.TrimSpace(req.UserText) != "" {
		msg := &models.Message{
			SessionID: sess.ID,
			Role:      models.RoleUser,
			Content:   req.UserText,
		}
		if err := e.store.AppendMessage(ctx, msg); err != nil {
			e.emitError(out, sess.ID, fmt.Errorf("persist user message: %w", err))
			return
		}
	}

	// Step 3: load history and aggregate tools.
	history, err := e.store.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		e.emitError(out, sess.ID, fmt.Errorf("load history: %w", err))
		return
	}
	tools, err := e.dispatcher.Tools(ctx, sess, req.Agent)
	if err != nil {
		e.emitError(out, sess.ID, fmt.Errorf("load tools: %w", err))
		return
	}

	// Step 4: context pipeline.
	ctxResult, err := e.rag.Augment(ctx, sess, req.Agent, req.UserText)
	if err != nil {
		e.emitError(out, sess.ID, fmt.Errorf("augment context: %w", err))
		return
	}
	out <- &models.ChatDelta{
		Kind:      models.DeltaGenerationContext,
		SessionID: sess.ID,
		Text:      strings.Join(ctxResult.NoteNames, ", "),
	}

	// Step 5: build the system prompt and initial messages.
	system := e.buildSystemPrompt(req.Agent, ctxResult)
	messages := historyToCompletionMessages(history)

	// compressionStage tracks how far the escalating topic->broad
	// compaction retry (spec.md §4.G step 7) has gone; it is shared by
	// both triggers that fall back to it: a context-window error from the
	// provider, and exhausting maxTurns without the loop completing.
	compressionStage := 0 // 0=none tried, 1=topic tried, 2=broad tried

	for {
		for iteration := 0; iteration < maxTurns; iteration++ {
			select {
			case <-ctx.Done():
				return
			default:
			}

			completion := CompletionRequest{
				Model:    req.Agent.Model,
				System:   system,
				Messages: messages,
				Tools:    tools,
			}

			thinking, content, toolCalls, genErr := e.streamOnce(ctx, completion, sess.ID, iteration, out)
			if genErr != nil {
				if compressionStage < 2 && isContextWindowError(genErr) {
					messages = e.compressAndReload(ctx, sess, &compressionStage, &history)
					continue
				}
				e.emitError(out, sess.ID, genErr)
				return
			}

			if len(toolCalls) > 0 {
				assistantMsg := &models.Message{
					SessionID: sess.ID,
					Role:      models.RoleAssistant,
					Content:   content,
					Thought:   thinking,
					ToolCalls: toMessageToolCalls(toolCalls),
				}
				if err := e.store.AppendMessage(ctx, assistantMsg); err != nil {
					e.emitError(out, sess.ID, fmt.Errorf("persist assistant message: %w", err))
					return
				}

				results, clientRequired := e.dispatchToolCalls(ctx, sess, assistantMsg.ToolCalls, out)

				toolMsg := &models.Message{
					SessionID:   sess.ID,
					Role:        models.RoleTool,
					ToolResults: results,
				}
				if err := e.store.AppendMessage(ctx, toolMsg); err != nil {
					e.emitError(out, sess.ID, fmt.Errorf("persist tool results: %w", err))
					return
				}

				if clientRequired {
					out <- &models.ChatDelta{Kind: models.DeltaStreamCompleted, SessionID: sess.ID}
					return
				}

				messages = append(messages,
					CompletionMessage{Role: string(models.RoleAssistant), Content: content, ToolCalls: assistantMsg.ToolCalls},
					CompletionMessage{Role: string(models.RoleTool), ToolResults: results},
				)
				continue
			}

			// No tool calls: final assistant message for this turn.
			assistantMsg := &models.Message{
				SessionID: sess.ID,
				Role:      models.RoleAssistant,
				Content:   content,
				Thought:   thinking,
			}
			if err := e.store.AppendMessage(ctx, assistantMsg); err != nil {
				e.emitError(out, sess.ID, fmt.Errorf("persist assistant message: %w", err))
				return
			}
			out <- &models.ChatDelta{Kind: models.DeltaGenerationComplete, SessionID: sess.ID, Message: assistantMsg}
			out <- &models.ChatDelta{Kind: models.DeltaStreamCompleted, SessionID: sess.ID}
			return
		}

		// maxTurns exhausted without completing. Per spec.md §4.G step 7
		// this is handled the same way as a context-window error: compress
		// (topic, then broad) and retry once each before giving up.
		if compressionStage >= 2 {
			e.emitError(out, sess.ID, fmt.Errorf("exceeded maximum of %d turns", maxTurns))
			return
		}
		messages = e.compressAndReload(ctx, sess, &compressionStage, &history)
	}
}

// compressAndReload runs the Context Compressor at the next escalation
// scope (topic, then broad), advances stage, and rebuilds the completion
// message list from the session's history as it stands after compaction.
func (e *Engine) compressAndReload(ctx context.Context, sess *models.Session, stage *int, history *[]*models.Message) []CompletionMessage {
	scope := ScopeTopic
	if *stage == 1 {
		scope = ScopeBroad
	}
	if err := e.compressor.Compress(ctx, sess, scope); err != nil {
		e.log.Warn("context compression failed", "error", err, "session_id", sess.ID, "scope", scope)
	}
	*stage++
	reloaded, err := e.store.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		e.log.Warn("reload history after compression failed", "error", err, "session_id", sess.ID)
		return historyToCompletionMessages(*history)
	}
	*history = reloaded
	return historyToCompletionMessages(reloaded)
}

// streamOnce opens one LLM stream, feeds it through the Streaming Parser,
// emitting thought/delta events live, and returns the finalized split plus
// any extracted tool calls.
func (e *Engine) streamOnce(ctx context.Context, req CompletionRequest, sessionID string, iteration int, out chan<- *models.ChatDelta) (thinking, content string, calls []parser.ToolCall, err error) {
	tokens, err := e.provider.Stream(ctx, req)
	if err != nil {
		return "", "", nil, err
	}

	p := parser.New()
	wasThinking := false

	for tok := range tokens {
		if tok.Err != nil {
			return "", "", nil, tok.Err
		}
		select {
		case <-ctx.Done():
			return "", "", nil, ctx.Err()
		default:
		}

		chunk := p.Feed(tok.Text)
		if chunk.Thinking != "" {
			wasThinking = true
			out <- &models.ChatDelta{Kind: models.DeltaThought, SessionID: sessionID, Iteration: iteration, Text: chunk.Thinking}
		}
		if chunk.Content != "" {
			if wasThinking {
				out <- &models.ChatDelta{Kind: models.DeltaThoughtCompleted, SessionID: sessionID, Iteration: iteration}
				wasThinking = false
			}
			out <- &models.ChatDelta{Kind: models.DeltaContent, SessionID: sessionID, Iteration: iteration, Text: chunk.Content}
		}
	}
	if wasThinking {
		out <- &models.ChatDelta{Kind: models.DeltaThoughtCompleted, SessionID: sessionID, Iteration: iteration}
	}

	thinking, content, calls = p.Finalize()
	for _, c := range calls {
		out <- &models.ChatDelta{
			Kind:      models.DeltaToolCall,
			SessionID: sessionID,
			Iteration: iteration,
			ToolName:  c.Name,
			ToolInput: c.Arguments,
		}
	}
	return thinking, content, calls, nil
}

// dispatchToolCalls routes each extracted tool call through the dispatcher,
// emitting toolExecution/toolCallError deltas, and reports whether any call
// requires client-side execution.
func (e *Engine) dispatchToolCalls(ctx context.Context, sess *models.Session, calls []models.ToolCall, out chan<- *models.ChatDelta) ([]models.ToolResult, bool) {
	results := make([]models.ToolResult, 0, len(calls))
	clientRequired := false

	for _, tc := range calls {
		out <- &models.ChatDelta{
			Kind: models.DeltaToolExecution, SessionID: sess.ID,
			ToolCallID: tc.ID, ToolName: tc.Name, ToolStage: models.ToolEventAttempting,
		}

		res, err := e.dispatcher.Dispatch(ctx, sess, tc)
		if err != nil {
			if errors.Is(err, ErrClientExecutionRequired) || res.ClientExecutionRequired {
				clientRequired = true
				continue
			}
			out <- &models.ChatDelta{
				Kind: models.DeltaToolCallError, SessionID: sess.ID,
				ToolCallID: tc.ID, ToolName: tc.Name, Err: err.Error(),
			}
			results = append(results, models.ToolResult{ToolCallID: tc.ID, Content: err.Error(), IsError: true})
			continue
		}
		if res.ClientExecutionRequired {
			clientRequired = true
			continue
		}

		stage := models.ToolEventSucceeded
		if res.Result.IsError {
			stage = models.ToolEventFailed
		}
		out <- &models.ChatDelta{
			Kind: models.DeltaToolExecution, SessionID: sess.ID,
			ToolCallID: tc.ID, ToolName: tc.Name, ToolStage: stage, ToolOutput: res.Result.Content,
		}
		results = append(results, res.Result)
	}

	return results, clientRequired
}

func (e *Engine) buildSystemPrompt(agent *models.Agent, ctxResult ContextResult) string {
	parts := make([]string, 0, 2)
	if agent != nil {
		if p := agent.ComposedSystemPrompt(); p != "" {
			parts = append(parts, p)
		}
	}
	if ctxResult.Notes != "" {
		parts = append(parts, "## Recalled context\n"+ctxResult.Notes)
	}
	return strings.Join(parts, "\n\n")
}

func (e *Engine) emitError(out chan<- *models.ChatDelta, sessionID string, err error) {
	out <- &models.ChatDelta{Kind: models.DeltaError, SessionID: sessionID, Err: err.Error()}
	out <- &models.ChatDelta{Kind: models.DeltaStreamCompleted, SessionID: sessionID}
}

func historyToCompletionMessages(history []*models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(history))
	for _, m := range history {
		out = append(out, CompletionMessage{
			Role:        string(m.Role),
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
		})
	}
	return out
}

func toMessageToolCalls(calls []parser.ToolCall) []models.ToolCall {
	out := make([]models.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = models.ToolCall{
			ID:    uuid.New().String(),
			Name:  c.Name,
			Input: json.RawMessage(c.Arguments),
		}
	}
	return out
}

func isContextWindowError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "context") && strings.Contains(strings.ToLower(err.Error()), "window")
}
