package chat

import (
	"context"
	"errors"

	"github.com/monad-ai/monad-core/pkg/models"
)

// ErrClientExecutionRequired signals that a dispatched tool call can't run
// on the server and must be handed to the connected client; the Chat Engine
// treats this as a control signal, not a failure.
var ErrClientExecutionRequired = errors.New("client execution required")

// DispatchResult is the outcome of routing one tool call through the Tool
// Dispatcher (§4.D, built in internal/tools).
type DispatchResult struct {
	Result                  models.ToolResult
	ClientExecutionRequired bool
}

// Dispatcher routes a tool call to its System/Workspace/Delegating
// implementation. The Chat Engine depends only on this interface so it
// never imports a concrete tool package.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess *models.Session, call models.ToolCall) (DispatchResult, error)
	// Tools returns the tool specs available to a session's agent, used to
	// advertise tools to the LLM provider.
	Tools(ctx context.Context, sess *models.Session, agent *models.Agent) ([]ToolSpec, error)
}
