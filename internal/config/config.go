// Package config loads the core's static, file-based configuration.
//
// Config persistence (a key-value blob store consulted at runtime) is out
// of scope; this package only handles the YAML file an operator hands to
// the process at startup, the way the teacher's internal/config package
// does for its much larger surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the core's top-level configuration, one nested struct per
// concern, trimmed to what the core itself consumes (server, database,
// session, workspace, RAG, tools, cron). Channel gateways, plugin
// marketplaces, and multi-provider LLM routing belong to a different
// product surface and are not modeled here.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	RAG       RAGConfig       `yaml:"rag"`
	Tools     ToolsConfig     `yaml:"tools"`
	Cron      CronConfig      `yaml:"cron"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the illustrative HTTP/WS adapter.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig configures the embedded persistence store.
type DatabaseConfig struct {
	// Path is the SQLite database file path, or ":memory:" for an
	// ephemeral in-process database.
	Path string `yaml:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path, resolves $include directives, expands environment
// variables, decodes into a Config with unknown-field rejection, applies
// env overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets a small set of deployment-critical fields be
// overridden without editing the file, matching the teacher's
// NEXUS_HOST/NEXUS_GRPC_PORT/DATABASE_URL convention.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MONAD_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("MONAD_HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_PATH")); v != "" {
		cfg.Database.Path = v
	}
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyLoggingDefaults(&cfg.Logging)
	applySessionDefaults(&cfg.Session)
	applyWorkspaceDefaults(&cfg.Workspace)
	applyRAGDefaults(&cfg.RAG)
	applyToolsDefaults(&cfg.Tools)
	applyCronDefaults(&cfg.Cron)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = "monad.db"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	var issues []string
	issues = append(issues, validateSession(&cfg.Session)...)
	issues = append(issues, validateWorkspace(&cfg.Workspace)...)
	issues = append(issues, validateTools(&cfg.Tools)...)
	issues = append(issues, validateRAG(&cfg.RAG)...)
	issues = append(issues, validateCron(&cfg.Cron)...)
	issues = append(issues, pluginValidationIssues(cfg)...)
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// ValidationError collects every config validation failure found, rather
// than stopping at the first one, so an operator can fix a config file in
// one pass.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "invalid configuration"
	}
	return "invalid configuration: " + strings.Join(e.Issues, "; ")
}

// pluginValidationIssues is the extension point for validators registered
// from outside this package, kept in its own file per the teacher's
// plugin-validation pattern.
func pluginValidationIssues(cfg *Config) []string {
	if pluginValidator == nil || cfg == nil {
		return nil
	}
	return pluginValidator(cfg)
}

// PluginValidator returns extra issue strings for a loaded Config.
type PluginValidator func(*Config) []string

var pluginValidator PluginValidator

// RegisterPluginValidator installs a validator invoked at the end of every
// Load. Only one may be registered; later calls replace earlier ones.
func RegisterPluginValidator(fn PluginValidator) {
	pluginValidator = fn
}
