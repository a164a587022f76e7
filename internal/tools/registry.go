package tools

import (
	"sync"

	"github.com/monad-ai/monad-core/internal/chat"
	"github.com/monad-ai/monad-core/internal/tools/policy"
)

// Registry holds System tools with thread-safe registration and lookup,
// mirroring the teacher's ToolRegistry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty system tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any existing tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// specsForAgent builds the advertised ToolSpec list for an agent: every
// system tool named in agent.Tools, filtered by resolver/policy, plus any
// workspace-declared tools (not modeled here; server-hosted workspaces in
// this core only expose the fixed filesystem operation set).
func (r *Registry) specsForAgent(agentTools []string, pol *policy.Policy, resolver *policy.Resolver) []chat.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	allowed := map[string]bool{}
	for _, name := range agentTools {
		allowed[name] = true
	}

	specs := make([]chat.ToolSpec, 0, len(r.tools))
	for name, t := range r.tools {
		if len(allowed) > 0 && !allowed[name] {
			continue
		}
		if resolver != nil && pol != nil && !resolver.IsAllowed(pol, name) {
			continue
		}
		specs = append(specs, chat.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	return specs
}
