package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/social-scraper/internal/extraction"
	"github.com/jonathan/social-scraper/internal/llm"
	"github.com/jonathan/social-scraper/internal/scraping"
	"github.com/jonathan/social-scraper/internal/server"
	"github.com/jonathan/social-scraper/internal/server/ratelimit"
	"github.com/jonathan/social-scraper/internal/sessions"
)

var (
	servePort   int
	serveMemory bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that accepts scrape jobs and serves their status and results.

With --memory, jobs and results live in process memory and no sessions exist, so jobs fail with
session_unavailable; use it to exercise the API without Postgres.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Use an in-memory store instead of Postgres")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadSettings()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if err := cfg.ValidateForServe(serveMemory); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, serveMemory)
	if err != nil {
		return err
	}
	defer store.Close()

	automation := newAutomation(cfg, logger)
	defer automation.Close() //nolint:errcheck

	llmClient, err := llm.NewClient(ctx, llmConfig(cfg), cfg.GeminiAPIKey, logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer llmClient.Close() //nolint:errcheck

	sessionStore := sessions.NewStore(store, logger)
	engine := extraction.NewEngine(llmClient, extractionConfig(cfg), logger)
	orchestrator := scraping.New(orchestratorConfig(cfg), store, sessionStore, automation, engine, logger)

	srv := server.New(server.Config{
		Port:      cfg.Port,
		APIKeys:   cfg.APIKeys,
		RateLimit: ratelimit.LoadConfig(),
		Logger:    logger,
		Jobs:      orchestrator,
		Sessions:  sessionStore,
		Catalog:   store,
		Checks: map[string]server.HealthCheck{
			"database": store.Ping,
			"browser":  automation.Health,
		},
	})
	if len(cfg.APIKeys) == 0 {
		logger.Warn("no API_KEYS configured, the API is unauthenticated")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 30*time.Second)
		defer cancel()
		if err := orchestrator.Shutdown(shutdownCtx); err != nil {
			if errors.Is(err, scraping.ErrShuttingDown) {
				logger.Warn("jobs still running at shutdown were failed")
				return nil
			}
			return err
		}
		logger.Info("all jobs finished")
		return nil
	})

	return g.Wait()
}
