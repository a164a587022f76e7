// Package main provides the CLI entry point for the monad core server: a
// long-running process that hosts chat sessions, dispatches tools, runs
// background jobs, and serves the illustrative HTTP/WS adapter.
//
// # Basic Usage
//
// Start the server:
//
//	monad serve --config monad.yaml
//
// Check persistence health:
//
//	monad status --config monad.yaml
//
// Grounded on the teacher's cmd/nexus/main.go: a cobra root command with a
// "serve" subcommand that loads config, wires every component, and blocks
// on SIGINT/SIGTERM for graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/monad-ai/monad-core/internal/chat"
	"github.com/monad-ai/monad-core/internal/clientconn"
	"github.com/monad-ai/monad-core/internal/config"
	"github.com/monad-ai/monad-core/internal/httpapi"
	"github.com/monad-ai/monad-core/internal/jobs"
	"github.com/monad-ai/monad-core/internal/rag"
	"github.com/monad-ai/monad-core/internal/session"
	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/internal/tools"
	"github.com/monad-ai/monad-core/internal/tools/policy"
	"github.com/monad-ai/monad-core/internal/workspace"
	"github.com/monad-ai/monad-core/pkg/models"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "monad",
		Short:        "monad - agent-assistant core server",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildStatusCmd(), buildMigrateCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the core server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "monad.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildStatusCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report persistence store health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st, err := store.Open(cmd.Context(), cfg.Database.Path, slog.Default())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()
			status, err := st.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "monad.yaml", "Path to YAML configuration file")
	return cmd
}

func buildMigrateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// store.Open runs every pending migration as part of opening the
			// database, so migrating is just opening and closing cleanly.
			st, err := store.Open(cmd.Context(), cfg.Database.Path, slog.Default())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			return st.Close()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "monad.yaml", "Path to YAML configuration file")
	return cmd
}

// runServe wires every component and blocks until SIGINT/SIGTERM.
func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded", "http_port", cfg.Server.HTTPPort, "database", cfg.Database.Path)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	conns := clientconn.New(0, logger)

	workspaces := workspace.NewRegistry(st, conns, logger)
	if err := workspaces.Load(ctx); err != nil {
		return fmt.Errorf("load workspaces: %w", err)
	}

	sessions := session.New(st, workspaces, cfg.Session.DataDir, logger)

	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(tools.NewJobStatusTool(st))

	resolver := policy.NewResolver()
	dispatcher := tools.NewDispatcher(toolRegistry, workspaces, resolver, nil, logger)

	// No embedding/LLM provider ships with the core (provider SDKs are out
	// of scope per the dependency boundary); an operator wires a real
	// Embedder/Provider by replacing these placeholders before deploying.
	ragPipeline := rag.New(st, unconfiguredEmbedder{}, nil, logger)
	compressor := chat.NewDefaultCompressor(st, unconfiguredSummarizer{}, logger)
	engine := chat.New(st, unconfiguredProvider{}, dispatcher, ragPipeline, compressor, logger)

	executor := jobs.NewEngineExecutor(st, sessions, engine, logger)
	runner := jobs.New(st, executor,
		jobs.WithLogger(logger),
		jobs.WithScanInterval(cfg.Tools.Jobs.ScanInterval),
		jobs.WithMaxRetries(cfg.Tools.Execution.MaxAttempts),
	)
	runner.Start(ctx)
	defer runner.Stop()

	if cfg.Cron.Enabled {
		scheduler, err := jobs.NewScheduler(st, cfg.Cron.RecurringJobs(), logger)
		if err != nil {
			return fmt.Errorf("build cron scheduler: %w", err)
		}
		go scheduler.Run(ctx, cfg.Cron.TickInterval)
	}

	server := httpapi.New(httpapi.Config{
		Host:        cfg.Server.Host,
		HTTPPort:    cfg.Server.HTTPPort,
		MetricsPort: cfg.Server.MetricsPort,
		Store:       st,
		Sessions:    sessions,
		Workspaces:  workspaces,
		Engine:      engine,
		JobRunner:   runner,
		Conns:       conns,
		Logger:      logger,
	})
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	logger.Info("monad core started", "http_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort))

	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	server.Stop(shutdownCtx)

	logger.Info("monad core stopped gracefully")
	return nil
}

var errNotConfigured = errors.New("no provider configured: replace the placeholder in cmd/monad before deploying")

// unconfiguredProvider is the out-of-the-box chat.Provider: the core never
// depends on a concrete LLM wire client, so a deployable build must supply
// its own implementation (e.g. wrapping anthropic-sdk-go or go-openai).
type unconfiguredProvider struct{}

func (unconfiguredProvider) Name() string { return "unconfigured" }
func (unconfiguredProvider) Stream(ctx context.Context, req chat.CompletionRequest) (<-chan chat.Token, error) {
	return nil, errNotConfigured
}

// unconfiguredEmbedder mirrors unconfiguredProvider for the Context/RAG
// Pipeline's embedding step.
type unconfiguredEmbedder struct{}

func (unconfiguredEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errNotConfigured
}

// unconfiguredSummarizer mirrors unconfiguredProvider for the Chat Engine's
// compaction step.
type unconfiguredSummarizer struct{}

func (unconfiguredSummarizer) Summarize(ctx context.Context, messages []*models.Message, instructions string) (string, error) {
	return "", errNotConfigured
}
