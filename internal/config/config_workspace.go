package config

import "strings"

// WorkspaceConfig holds defaults for server-hosted workspaces. Per-workspace
// roots and types are persisted on the workspace record itself
// (pkg/models.Workspace). These values are loaded, defaulted and validated,
// but no other package reads them: a new session's workspace is always
// rooted in its own directory under the session data directory.
type WorkspaceConfig struct {
	// Enabled is a switch for implicit local workspaces; it does not stop
	// a new session from getting one.
	Enabled bool `yaml:"enabled"`

	// DefaultRoot is a fallback root for new local workspaces.
	DefaultRoot string `yaml:"default_root"`

	// MaxFileBytes is a per-file size limit; file reads and writes are not
	// capped by it.
	MaxFileBytes int `yaml:"max_file_bytes"`
}

func applyWorkspaceDefaults(cfg *WorkspaceConfig) {
	if strings.TrimSpace(cfg.DefaultRoot) == "" {
		cfg.DefaultRoot = "."
	}
	if cfg.MaxFileBytes == 0 {
		cfg.MaxFileBytes = 1 << 20 // 1 MiB
	}
}

func validateWorkspace(cfg *WorkspaceConfig) []string {
	var issues []string
	if cfg.MaxFileBytes < 0 {
		issues = append(issues, "workspace.max_file_bytes must be >= 0")
	}
	return issues
}
