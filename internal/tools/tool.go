// Package tools implements the Tool Registry & Dispatcher: the tagged
// System/Workspace/Delegating tool variant and the dispatcher that routes a
// tool call to the right one, grounded on the teacher's
// internal/agent/tool_registry.go (thread-safe map, name/param-size limits,
// policy-filtered aggregation) and internal/tools/policy (canonical names,
// pattern matching).
package tools

import (
	"context"
	"encoding/json"

	"github.com/monad-ai/monad-core/pkg/models"
)

// Tool parameter limits, carried over from the teacher to prevent resource
// exhaustion from a malformed or hostile tool call.
const (
	MaxToolNameLength  = 256
	MaxToolParamsBytes = 10 << 20
)

// Tool is a System tool implemented in-process. Workspace and Delegating
// tools don't implement this interface directly; the Dispatcher handles
// their routing itself, matching the tagged-variant design from spec.md's
// redesign notes rather than forcing every variant through one method set.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the tool's parameters as an inline JSON schema
	// document.
	Schema() json.RawMessage
	Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error)
}

func errorResult(call models.ToolCall, err error) models.ToolResult {
	return models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
}
