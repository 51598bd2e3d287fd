package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/finsightai/finsight/internal/agent"
	"github.com/finsightai/finsight/internal/agent/providers"
	"github.com/finsightai/finsight/internal/capabilities"
	"github.com/finsightai/finsight/internal/config"
	"github.com/finsightai/finsight/internal/conversations"
	"github.com/finsightai/finsight/internal/observability"
	"github.com/finsightai/finsight/internal/runs"
	"github.com/finsightai/finsight/internal/web"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Finsight API server",
		Long: `Start the Finsight API server.

The server loads configuration, connects storage (Postgres when DATABASE_URL
is set, in-memory otherwise), initializes the configured LLM provider and the
built-in research capabilities, and serves the chat API.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with defaults (in-memory storage)
  finsight serve

  # Start with a config file
  finsight serve --config /etc/finsight/production.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		cfg = config.Default()
		// Credentials still arrive through the environment.
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			cfg.LLM.AnthropicAPIKey = v
		}
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.LLM.OpenAIAPIKey = v
		}
		if v := os.Getenv("DATABASE_URL"); v != "" {
			cfg.Database.URL = v
		}
	}

	logger := cfg.NewLogger()
	metrics := observability.NewMetrics(nil)

	var store conversations.Store
	if cfg.Database.URL != "" {
		pg, err := conversations.NewPostgresStore(cfg.Database.URL, &conversations.PostgresConfig{
			MaxOpenConns:    cfg.Database.MaxConnections,
			MaxIdleConns:    cfg.Database.MaxConnections / 5,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectTimeout:  10 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pg.Close()
		store = pg
		logger.Info("using postgres storage")
	} else {
		store = conversations.NewMemoryStore()
		logger.Warn("using in-memory storage, history is lost on restart")
	}

	provider, err := providers.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize provider: %w", err)
	}

	registry := capabilities.NewRegistry(capabilities.RegistryDeps{
		Provider: provider,
		Model:    cfg.LLM.Model,
	})

	engine := agent.NewEngine(provider, registry, store, &agent.EngineConfig{
		MaxTurns:     cfg.Engine.MaxTurns,
		HistoryLimit: cfg.Engine.HistoryLimit,
		MaxTokens:    cfg.LLM.MaxTokens,
		Model:        cfg.LLM.Model,
		ExecutorConfig: &agent.ExecutorConfig{
			MaxConcurrency: cfg.Engine.ToolConcurrency,
			Timeout:        cfg.Engine.ToolTimeout,
			ResultBudget:   cfg.Engine.ToolResultBudget,
		},
		Logger:  logger,
		Metrics: metrics,
	})

	supervisor := runs.NewSupervisor(engine, runs.SupervisorConfig{
		ObserverBuffer:    cfg.Runs.ObserverBuffer,
		KeepAliveInterval: cfg.Runs.KeepAliveInterval,
		Logger:            logger,
		Metrics:           metrics,
	})
	direct := runs.NewDirect(engine, conversations.NewUserLocker(cfg.Runs.LockTTL), 30*time.Second)

	handler := web.NewServer(web.Config{
		Supervisor: supervisor,
		Direct:     direct,
		Store:      store,
		Logger:     logger,
		Metrics:    metrics,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "provider", provider.Name())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutting down", "reason", "context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
