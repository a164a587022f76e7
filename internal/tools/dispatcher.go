package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/monad-ai/monad-core/internal/chat"
	"github.com/monad-ai/monad-core/internal/tools/policy"
	"github.com/monad-ai/monad-core/internal/workspace"
	"github.com/monad-ai/monad-core/pkg/coreerrors"
	"github.com/monad-ai/monad-core/pkg/models"
)

// AgentPolicyLookup resolves the effective tool policy for an agent id,
// supplied by whatever owns agent configuration (kept out of this package
// to avoid a dependency cycle).
type AgentPolicyLookup func(agentID string) (*policy.Policy, []string)

// Dispatcher implements chat.Dispatcher by matching a tool call against the
// System/Workspace/Delegating tagged variant from spec.md's redesign notes:
// known system tool ids execute in-process; the fixed filesystem operations
// are resolved against the session's workspace and, if the workspace is
// client-hosted, reported back as requiring client execution; any other
// name is not found.
type Dispatcher struct {
	registry   *Registry
	workspaces *workspace.Registry
	resolver   *policy.Resolver
	agentTools AgentPolicyLookup
	log        *slog.Logger
}

// NewDispatcher constructs a Dispatcher. resolver and agentTools may be nil,
// in which case every tool advertised to an agent is allowed.
func NewDispatcher(registry *Registry, workspaces *workspace.Registry, resolver *policy.Resolver, agentTools AgentPolicyLookup, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{registry: registry, workspaces: workspaces, resolver: resolver, agentTools: agentTools, log: log}
}

// Dispatch routes call per spec.md §4.D's dispatcher algorithm:
//  1. a known system tool id executes in-process;
//  2. one of the fixed filesystem operations (IsWorkspaceTool) runs against
//     the session's primary workspace; a server-hosted (Local) workspace
//     executes it directly, a client-hosted (Remote) one is reported as
//     requiring client execution;
//  3. any other name, or a filesystem operation with no resolvable
//     workspace, fails with coreerrors.ErrToolNotFound.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *models.Session, call models.ToolCall) (chat.DispatchResult, error) {
	if len(call.Name) > MaxToolNameLength {
		return chat.DispatchResult{Result: errorResult(call, fmt.Errorf("tool name exceeds %d characters", MaxToolNameLength))}, nil
	}
	if len(call.Input) > MaxToolParamsBytes {
		return chat.DispatchResult{Result: errorResult(call, fmt.Errorf("tool parameters exceed %d bytes", MaxToolParamsBytes))}, nil
	}

	name := call.Name
	if d.resolver != nil {
		name = d.resolver.CanonicalName(name)
	}

	if tool, ok := d.registry.Get(name); ok {
		result, err := tool.Execute(ctx, call)
		if err != nil {
			return chat.DispatchResult{Result: errorResult(call, err)}, nil
		}
		return chat.DispatchResult{Result: result}, nil
	}

	if IsWorkspaceTool(name) {
		return d.dispatchWorkspace(ctx, sess, call)
	}

	return chat.DispatchResult{}, fmt.Errorf("%w: %s", coreerrors.ErrToolNotFound, call.Name)
}

func (d *Dispatcher) dispatchWorkspace(ctx context.Context, sess *models.Session, call models.ToolCall) (chat.DispatchResult, error) {
	if sess == nil || sess.WorkspaceID == "" {
		return chat.DispatchResult{}, fmt.Errorf("%w: %s (no workspace attached)", coreerrors.ErrToolNotFound, call.Name)
	}
	variant, ok := d.workspaces.Get(sess.WorkspaceID)
	if !ok {
		return chat.DispatchResult{}, fmt.Errorf("%w: %s (workspace %s not loaded)", coreerrors.ErrToolNotFound, call.Name, sess.WorkspaceID)
	}

	if _, remote := variant.(*workspace.Remote); remote {
		d.log.Debug("tool call requires client execution", "tool", call.Name, "workspace_id", sess.WorkspaceID)
		return chat.DispatchResult{ClientExecutionRequired: true}, chat.ErrClientExecutionRequired
	}

	return chat.DispatchResult{Result: executeFS(ctx, variant, call)}, nil
}

// Tools returns the advertised tool specs for a session's agent: system
// tools named in the agent's tool list (filtered by policy) plus the fixed
// filesystem operations, present whenever the session has an attached
// workspace. Dynamically active context tools and per-workspace custom
// tools are not included, and the Chat Engine advertises exactly the
// specs this method returns.
func (d *Dispatcher) Tools(ctx context.Context, sess *models.Session, agent *models.Agent) ([]chat.ToolSpec, error) {
	var pol *policy.Policy
	var agentToolNames []string
	if agent != nil {
		agentToolNames = agent.Tools
	}
	if d.agentTools != nil && agent != nil {
		if p, names := d.agentTools(agent.ID); p != nil {
			pol = p
			if len(names) > 0 {
				agentToolNames = names
			}
		}
	}

	specs := d.registry.specsForAgent(agentToolNames, pol, d.resolver)

	if sess != nil && sess.WorkspaceID != "" {
		if _, ok := d.workspaces.Get(sess.WorkspaceID); ok {
			for _, name := range []string{ToolReadFile, ToolWriteFile, ToolListFiles, ToolDeleteFile} {
				if d.resolver != nil && pol != nil && !d.resolver.IsAllowed(pol, name) {
					continue
				}
				specs = append(specs, chat.ToolSpec{
					Name:        name,
					Description: fsToolDescription(name),
					Schema:      WorkspaceToolSchema(name),
				})
			}
		}
	}

	return specs, nil
}

func fsToolDescription(name string) string {
	switch name {
	case ToolReadFile:
		return "Read a file from the attached workspace."
	case ToolWriteFile:
		return "Write a file into the attached workspace, creating parent directories as needed."
	case ToolListFiles:
		return "List entries at a path in the attached workspace."
	case ToolDeleteFile:
		return "Delete a file from the attached workspace."
	default:
		return ""
	}
}
