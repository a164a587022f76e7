package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/pkg/models"
)

// JobStatusTool is the "job queue gateway" system tool from spec.md §4.D,
// letting an agent check on work it previously queued.
type JobStatusTool struct {
	store *store.Store
}

// NewJobStatusTool constructs a job_status tool backed by st.
func NewJobStatusTool(st *store.Store) *JobStatusTool {
	return &JobStatusTool{store: st}
}

func (t *JobStatusTool) Name() string { return "job_status" }

func (t *JobStatusTool) Description() string {
	return "Look up the status and result of a previously queued job by id."
}

func (t *JobStatusTool) Schema() json.RawMessage {
	return fsSchemaFor("job_id")
}

func fsSchemaFor(field string) json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			field: map[string]any{"type": "string"},
		},
		"required": []string{field},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *JobStatusTool) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	var in struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(call.Input, &in); err != nil {
		return errorResult(call, fmt.Errorf("invalid parameters: %w", err)), nil
	}
	job, err := t.store.GetJob(ctx, in.JobID)
	if err != nil {
		return errorResult(call, err), nil
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return errorResult(call, err), nil
	}
	return models.ToolResult{ToolCallID: call.ID, Content: string(payload)}, nil
}
