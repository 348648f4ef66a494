package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/social-scraper/internal/types"
)

// -----------------------------------------------------------------------------
// Scrape Job Methods
// -----------------------------------------------------------------------------

const jobColumns = `id, target_url, username, session_hint, status, max_posts, recent_days,
	profile_only, error_code, error_message, posts_scraped, interactions_scraped,
	created_at, started_at, completed_at`

func scanJob(row pgx.Row) (*types.ScrapeJob, error) {
	var job types.ScrapeJob
	var errorCode *string
	if err := row.Scan(&job.ID, &job.TargetURL, &job.Username, &job.SessionHint, &job.Status,
		&job.Options.MaxPosts, &job.Options.RecentDays, &job.Options.ProfileOnly, &errorCode, &job.ErrorMessage,
		&job.PostsScraped, &job.InteractionsScraped,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt); err != nil {
		return nil, err
	}
	if errorCode != nil {
		job.ErrorCode = *errorCode
	}
	return &job, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateJob inserts a new job row.
func (db *DB) CreateJob(ctx context.Context, job *types.ScrapeJob) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO scrape_jobs (id, target_url, username, session_hint, status, max_posts, recent_days,
		                          profile_only, error_code, error_message, posts_scraped, interactions_scraped,
		                          created_at, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		job.ID, job.TargetURL, job.Username, job.SessionHint, string(job.Status),
		job.Options.MaxPosts, job.Options.RecentDays, job.Options.ProfileOnly, nullableString(job.ErrorCode), job.ErrorMessage,
		job.PostsScraped, job.InteractionsScraped, job.CreatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.ScrapeJob, error) {
	job, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM scrape_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJob writes the mutable job fields. Rows already in a terminal state are never
// modified; such updates return ErrJobFinalized.
func (db *DB) UpdateJob(ctx context.Context, job *types.ScrapeJob) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE scrape_jobs
		 SET status = $2, error_code = $3, error_message = $4, posts_scraped = $5,
		     interactions_scraped = $6, started_at = $7, completed_at = $8
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		job.ID, string(job.Status), nullableString(job.ErrorCode), job.ErrorMessage,
		job.PostsScraped, job.InteractionsScraped, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	existing, err := db.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	return fmt.Errorf("%w: %s is %s", ErrJobFinalized, job.ID, existing.Status)
}
