package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/monad-ai/monad-core/internal/workspace"
	"github.com/monad-ai/monad-core/pkg/coreerrors"
	"github.com/monad-ai/monad-core/pkg/models"
)

// These constants name the fixed set of filesystem operations advertised for
// a session's workspace, matching spec.md §4.D's "System tool: filesystem
// operations scoped to a jail root". Unlike other System tools these need a
// per-call workspace id, so they're not registered into the plain Registry;
// the Dispatcher resolves them directly against the session's workspace.
const (
	ToolReadFile   = "read_file"
	ToolWriteFile  = "write_file"
	ToolListFiles  = "list_files"
	ToolDeleteFile = "delete_file"
)

// IsWorkspaceTool reports whether name is one of the fixed filesystem
// operations dispatched against a session's workspace rather than the
// system tool registry.
func IsWorkspaceTool(name string) bool {
	switch name {
	case ToolReadFile, ToolWriteFile, ToolListFiles, ToolDeleteFile:
		return true
	default:
		return false
	}
}

func fsSchema(extra map[string]any, required ...string) json.RawMessage {
	props := map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Path relative to the workspace root.",
		},
	}
	for k, v := range extra {
		props[k] = v
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   append([]string{"path"}, required...),
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// WorkspaceToolSchema returns the parameters schema advertised for a fixed
// filesystem operation, used by the Dispatcher's Tools aggregation.
func WorkspaceToolSchema(name string) json.RawMessage {
	switch name {
	case ToolWriteFile:
		return fsSchema(map[string]any{
			"content": map[string]any{"type": "string", "description": "File content to write."},
		}, "content")
	default:
		return fsSchema(nil)
	}
}

func executeFS(ctx context.Context, v workspace.Variant, call models.ToolCall) models.ToolResult {
	switch call.Name {
	case ToolReadFile:
		var in struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(call.Input, &in); err != nil {
			return errorResult(call, fmt.Errorf("invalid parameters: %w", err))
		}
		data, err := v.ReadFile(ctx, in.Path)
		if err != nil {
			return errorResult(call, err)
		}
		return models.ToolResult{ToolCallID: call.ID, Content: string(data)}

	case ToolWriteFile:
		var in struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(call.Input, &in); err != nil {
			return errorResult(call, fmt.Errorf("invalid parameters: %w", err))
		}
		if err := v.WriteFile(ctx, in.Path, []byte(in.Content)); err != nil {
			return errorResult(call, err)
		}
		return models.ToolResult{ToolCallID: call.ID, Content: "ok"}

	case ToolListFiles:
		var in struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(call.Input, &in); err != nil {
			return errorResult(call, fmt.Errorf("invalid parameters: %w", err))
		}
		names, err := v.ListFiles(ctx, in.Path)
		if err != nil {
			return errorResult(call, err)
		}
		payload, err := json.Marshal(names)
		if err != nil {
			return errorResult(call, err)
		}
		return models.ToolResult{ToolCallID: call.ID, Content: string(payload)}

	case ToolDeleteFile:
		var in struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(call.Input, &in); err != nil {
			return errorResult(call, fmt.Errorf("invalid parameters: %w", err))
		}
		if err := v.DeleteFile(ctx, in.Path); err != nil {
			return errorResult(call, err)
		}
		return models.ToolResult{ToolCallID: call.ID, Content: "ok"}

	default:
		return errorResult(call, fmt.Errorf("%w: %s", coreerrors.ErrToolNotFound, call.Name))
	}
}
