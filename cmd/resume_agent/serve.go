package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-tailor/internal/config"
	"github.com/jonathan/resume-tailor/internal/db"
	"github.com/jonathan/resume-tailor/internal/enrich"
	"github.com/jonathan/resume-tailor/internal/fetch"
	"github.com/jonathan/resume-tailor/internal/llm"
	"github.com/jonathan/resume-tailor/internal/logging"
	"github.com/jonathan/resume-tailor/internal/server"
	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/task"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server and the task engine",
	Long: `Start an HTTP server that accepts tailoring tasks and the engine that runs them.
Without a database URL the server keeps everything in memory.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := llm.NewGeminiClient(ctx, cfg.LLM.ClientConfig(), cfg.LLM.APIKey, logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	fetchOpts := []fetch.Option{fetch.WithHTTPClient(&http.Client{Timeout: cfg.Fetch.Timeout})}
	if cfg.Fetch.UserAgent != "" {
		fetchOpts = append(fetchOpts, fetch.WithUserAgent(cfg.Fetch.UserAgent))
	}
	if cfg.Fetch.Browser {
		fetchOpts = append(fetchOpts, fetch.WithRenderer(fetch.ChromeRenderer(cfg.Fetch.BrowserTimeout, logger)))
	}
	fetcher := fetch.New(logger, fetchOpts...)

	pipeline := enrich.NewGemini(client, fetcher, cfg.LLM.Stages, logger)

	engine := task.New(s, pipeline, logger, cfg.Orchestrator)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	srv := server.New(cfg.Server, engine, s, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = engine.Stop(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdown(srv, engine, cfg.Server.ShutdownTimeout, logger)
	logger.Info("shutdown complete")
	return nil
}

type httpServer interface {
	Shutdown(ctx context.Context) error
}

type taskEngine interface {
	Stop(ctx context.Context) error
}

// shutdown stops the HTTP server and then the engine. Each gets its own
// timeout so a slow HTTP drain does not turn the engine drain into an
// immediate cancellation of running tasks.
func shutdown(srv httpServer, engine taskEngine, timeout time.Duration, logger *slog.Logger) {
	httpCtx, cancel := context.WithTimeout(context.Background(), timeout)
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	cancel()

	engineCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := engine.Stop(engineCtx); err != nil {
		logger.Error("engine shutdown incomplete", "error", err)
	}
}

// openStore connects to Postgres when a URL is configured and falls back to
// the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("no database configured, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}

	database, err := db.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.RunMigrations {
		if err := database.Migrate(ctx, "up"); err != nil {
			database.Close()
			return nil, nil, err
		}
	}
	return database, database.Close, nil
}
