// Package db provides PostgreSQL storage for scrape jobs, sessions and scraped entities,
// plus an in-memory store with the same semantics for tests and local runs.
package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/social-scraper/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// ErrJobFinalized is returned when an update targets a job that is already completed or failed.
var ErrJobFinalized = errors.New("job already in a terminal state")

// ErrJobNotFound is returned when an update targets an unknown job.
var ErrJobNotFound = errors.New("job not found")

// Store is the persistence boundary used by the orchestrator, the session store and the HTTP
// layer. Getters return nil, nil when the row does not exist.
type Store interface {
	CreateJob(ctx context.Context, job *types.ScrapeJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.ScrapeJob, error)
	UpdateJob(ctx context.Context, job *types.ScrapeJob) error

	SaveResults(ctx context.Context, bundle *types.ScrapeBundle) (*types.SaveSummary, error)
	GetJobResults(ctx context.Context, jobID uuid.UUID) (*types.JobResults, error)

	GetProfile(ctx context.Context, username string) (*types.Profile, error)
	ListPosts(ctx context.Context, username string, skip, limit int) ([]types.Post, error)
	ListInteractions(ctx context.Context, username string, skip, limit int) ([]types.Interaction, error)

	CreateSession(ctx context.Context, session *types.Session) error
	ListSessions(ctx context.Context, activeOnly bool, username string) ([]types.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*types.Session, error)
	SetSessionActive(ctx context.Context, id uuid.UUID, active bool) error
	TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error

	Ping(ctx context.Context) error
	Close()
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// InitSchema creates the tables if they do not exist.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Schema returns the embedded DDL.
func Schema() string {
	return schemaSQL
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*MemoryStore)(nil)
)
