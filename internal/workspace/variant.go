package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/monad-ai/monad-core/pkg/models"
)

// Variant is a workspace implementation: either a local filesystem root or
// one routed through the client connection manager.
type Variant interface {
	ID() string
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	ListFiles(ctx context.Context, path string) ([]string, error)
	DeleteFile(ctx context.Context, path string) error
}

// RemoteExecutor dispatches a file operation to a connected client, used by
// the Remote variant instead of touching the local filesystem.
type RemoteExecutor interface {
	ReadFile(ctx context.Context, clientIdentityID, path string) ([]byte, error)
	WriteFile(ctx context.Context, clientIdentityID, path string, data []byte) error
	ListFiles(ctx context.Context, clientIdentityID, path string) ([]string, error)
	DeleteFile(ctx context.Context, clientIdentityID, path string) error
}

// Local is a workspace jailed to a filesystem root.
type Local struct {
	id       string
	resolver Resolver
}

// NewLocal constructs a Local variant rooted at root.
func NewLocal(id, root string) *Local {
	return &Local{id: id, resolver: Resolver{Root: root}}
}

func (l *Local) ID() string { return l.id }

func (l *Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	target, err := l.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(target)
}

// WriteFile creates intermediate directories and writes atomically: the
// content lands in a sibling temp file first, then an os.Rename swaps it
// into place so a reader never observes a partial write.
func (l *Local) WriteFile(ctx context.Context, path string, data []byte) error {
	target, err := l.resolver.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	tmp := target + ".tmp-" + uuid.New().String()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (l *Local) ListFiles(ctx context.Context, path string) ([]string, error) {
	target, err := l.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (l *Local) DeleteFile(ctx context.Context, path string) error {
	target, err := l.resolver.Resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(target)
}

// Remote is a workspace whose files live on a connected client; every
// operation is routed through the client connection manager rather than the
// local filesystem.
type Remote struct {
	id               string
	clientIdentityID string
	executor         RemoteExecutor
}

// NewRemote constructs a Remote variant routed through executor.
func NewRemote(id, clientIdentityID string, executor RemoteExecutor) *Remote {
	return &Remote{id: id, clientIdentityID: clientIdentityID, executor: executor}
}

func (r *Remote) ID() string { return r.id }

func (r *Remote) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return r.executor.ReadFile(ctx, r.clientIdentityID, path)
}

func (r *Remote) WriteFile(ctx context.Context, path string, data []byte) error {
	return r.executor.WriteFile(ctx, r.clientIdentityID, path, data)
}

func (r *Remote) ListFiles(ctx context.Context, path string) ([]string, error) {
	return r.executor.ListFiles(ctx, r.clientIdentityID, path)
}

func (r *Remote) DeleteFile(ctx context.Context, path string) error {
	return r.executor.DeleteFile(ctx, r.clientIdentityID, path)
}

// ErrInvalidWorkspaceType is returned when NewVariant can't match a record's
// type to a known variant.
var ErrInvalidWorkspaceType = fmt.Errorf("invalid workspace type")

// NewVariant selects a variant implementation by the workspace record's
// type, failing with ErrInvalidWorkspaceType on mismatch.
func NewVariant(ws *models.Workspace, executor RemoteExecutor) (Variant, error) {
	switch ws.Type {
	case models.WorkspaceLocal:
		return NewLocal(ws.ID, ws.Root), nil
	case models.WorkspaceRemote:
		if executor == nil {
			return nil, fmt.Errorf("remote workspace requires a connection manager")
		}
		return NewRemote(ws.ID, ws.Root, executor), nil
	default:
		return nil, ErrInvalidWorkspaceType
	}
}
