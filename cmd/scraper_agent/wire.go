package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jonathan/social-scraper/internal/browser"
	"github.com/jonathan/social-scraper/internal/config"
	"github.com/jonathan/social-scraper/internal/db"
	"github.com/jonathan/social-scraper/internal/extraction"
	"github.com/jonathan/social-scraper/internal/llm"
	"github.com/jonathan/social-scraper/internal/observability"
	"github.com/jonathan/social-scraper/internal/retry"
	"github.com/jonathan/social-scraper/internal/scraping"
)

// loadSettings reads the effective configuration and builds the process logger.
func loadSettings() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openStore connects to Postgres, or returns an empty in-memory store when memory is set.
func openStore(ctx context.Context, cfg *config.Config, memory bool) (db.Store, error) {
	if memory {
		return db.NewMemoryStore(), nil
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return database, nil
}

func retryPolicy(cfg *config.Config, attempts int) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = attempts
	p.BaseDelay = cfg.RetryBaseDelay.Duration
	return p
}

func browserConfig(cfg *config.Config) browser.Config {
	return browser.Config{
		BaseURL: cfg.BrowserlessHost,
		Token:   cfg.BrowserlessToken,
		Timeout: cfg.RequestTimeout.Duration,
		Retry:   retryPolicy(cfg, cfg.MaxRetries),
	}
}

// newAutomation builds the configured browser driver.
func newAutomation(cfg *config.Config, logger *slog.Logger) browser.Automation {
	if cfg.BrowserDriver == config.DriverCDP {
		return browser.NewCDPClient(cfg.WebSocketURL(), browserConfig(cfg), logger)
	}
	return browser.NewClient(browserConfig(cfg), logger)
}

func llmConfig(cfg *config.Config) *llm.Config {
	return llm.DefaultGeminiConfig().
		WithModel(llm.TierStandard, cfg.LLMModelVision).
		WithFallback(cfg.LLMModelFallback)
}

func extractionConfig(cfg *config.Config) extraction.Config {
	ec := extraction.DefaultConfig()
	ec.Tier = llm.TierStandard
	ec.Retry = retryPolicy(cfg, cfg.ExtractionMaxAttempts)
	return ec
}

func orchestratorConfig(cfg *config.Config) scraping.Config {
	oc := scraping.DefaultConfig()
	oc.ProfileHost = cfg.ProfileHost
	oc.MaxPostsPerJob = cfg.MaxPostsPerJob
	oc.MaxInteractionsPerPost = cfg.MaxInteractionsPerPost
	oc.MaxConcurrentJobs = cfg.MaxConcurrentJobs
	oc.JobTimeout = cfg.JobTimeout.Duration
	oc.StepRetryBudget = cfg.JobRetryBudget
	oc.StepDelayMin = cfg.StepDelayMin.Duration
	oc.StepDelayMax = cfg.StepDelayMax.Duration
	oc.InteractionsViewSuffix = cfg.InteractionsViewSuffix
	return oc
}
