package workspace

import (
	"context"
	"log/slog"
	"sync"

	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/pkg/models"
)

// Registry holds one Variant per workspace record, constructed at startup
// and kept available for reload/unload without restarting the process.
type Registry struct {
	store    *store.Store
	executor RemoteExecutor
	log      *slog.Logger

	mu        sync.RWMutex
	variants  map[string]Variant
}

// NewRegistry creates an empty registry; call Load to populate it.
func NewRegistry(st *store.Store, executor RemoteExecutor, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{store: st, executor: executor, log: log, variants: map[string]Variant{}}
}

// Load fetches every workspace record and constructs a variant for each,
// logging and skipping any record whose variant fails to initialize rather
// than aborting startup.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.store.ListWorkspaces(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ws := range records {
		variant, err := NewVariant(ws, r.executor)
		if err != nil {
			r.log.Warn("skipping workspace with invalid configuration", "workspace_id", ws.ID, "error", err)
			continue
		}
		r.variants[ws.ID] = variant
	}
	return nil
}

// Get returns the loaded variant for a workspace id.
func (r *Registry) Get(id string) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[id]
	return v, ok
}

// Reload re-fetches a single workspace record and rebuilds its variant.
func (r *Registry) Reload(ctx context.Context, id string) error {
	ws, err := r.store.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	variant, err := NewVariant(ws, r.executor)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.variants[id] = variant
	r.mu.Unlock()
	return nil
}

// Unload drops a workspace's variant from memory without touching its
// persisted record.
func (r *Registry) Unload(id string) {
	r.mu.Lock()
	delete(r.variants, id)
	r.mu.Unlock()
}

// Create persists a new workspace record and loads its variant.
func (r *Registry) Create(ctx context.Context, ws *models.Workspace) error {
	if err := r.store.CreateWorkspace(ctx, ws); err != nil {
		return err
	}
	variant, err := NewVariant(ws, r.executor)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.variants[ws.ID] = variant
	r.mu.Unlock()
	return nil
}
