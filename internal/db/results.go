package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/social-scraper/internal/types"
)

// -----------------------------------------------------------------------------
// Scraped Entity Methods
// -----------------------------------------------------------------------------

const (
	profileColumns = `id, username, full_name, profile_url, bio, is_private, follower_count,
		following_count, post_count, verified, last_scraped_at, created_at, updated_at`
	postColumns = `p.id, p.profile_id, p.post_url, p.caption, p.like_count, p.comment_count,
		p.posted_at, p.last_job_id, p.created_at, p.updated_at`
	interactionColumns = `i.id, i.post_id, i.profile_id, i.job_id, i.type, i.user_username, i.user_url,
		i.user_bio, i.user_is_private, i.comment_text, i.comment_likes, i.comment_replies, i.created_at`
)

var interactionCopyColumns = []string{
	"id", "post_id", "profile_id", "job_id", "type", "user_username", "user_url",
	"user_bio", "user_is_private", "comment_text", "comment_likes", "comment_replies", "created_at",
}

func scanProfile(row pgx.Row) (*types.Profile, error) {
	var p types.Profile
	if err := row.Scan(&p.ID, &p.Username, &p.FullName, &p.ProfileURL, &p.Bio, &p.IsPrivate,
		&p.FollowerCount, &p.FollowingCount, &p.PostCount, &p.Verified, &p.LastScrapedAt,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPost(row pgx.Row) (types.Post, error) {
	var p types.Post
	err := row.Scan(&p.ID, &p.ProfileID, &p.PostURL, &p.Caption, &p.LikeCount, &p.CommentCount,
		&p.PostedAt, &p.LastJobID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanInteraction(row pgx.Row) (types.Interaction, error) {
	var in types.Interaction
	var kind string
	err := row.Scan(&in.ID, &in.PostID, &in.ProfileID, &in.JobID, &kind, &in.UserUsername, &in.UserURL,
		&in.UserBio, &in.UserIsPrivate, &in.CommentText, &in.CommentLikes, &in.CommentReplies, &in.CreatedAt)
	in.Type = types.InteractionType(kind)
	return in, err
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as no limit.
func limitArg(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

// SaveResults persists one job's extraction in a single transaction: the profile is upserted
// on username, posts are upserted on post_url and interactions are appended.
func (db *DB) SaveResults(ctx context.Context, bundle *types.ScrapeBundle) (*types.SaveSummary, error) {
	if bundle.Profile.Username == "" {
		return nil, errors.New("bundle has no profile username")
	}
	now := time.Now().UTC()

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p := bundle.Profile
	summary := &types.SaveSummary{}
	err = tx.QueryRow(ctx,
		`INSERT INTO profiles (id, username, full_name, profile_url, bio, is_private, follower_count,
		                       following_count, post_count, verified, last_scraped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (username) DO UPDATE SET
		     full_name = EXCLUDED.full_name,
		     profile_url = EXCLUDED.profile_url,
		     bio = EXCLUDED.bio,
		     is_private = EXCLUDED.is_private,
		     follower_count = EXCLUDED.follower_count,
		     following_count = EXCLUDED.following_count,
		     post_count = EXCLUDED.post_count,
		     verified = EXCLUDED.verified,
		     last_scraped_at = EXCLUDED.last_scraped_at,
		     updated_at = NOW()
		 RETURNING id`,
		uuid.New(), p.Username, p.FullName, p.ProfileURL, p.Bio, p.IsPrivate, p.FollowerCount,
		p.FollowingCount, p.PostCount, p.Verified, now,
	).Scan(&summary.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}

	jobID := bundle.JobID
	seen := make(map[uuid.UUID]bool, len(bundle.Posts))
	var rows [][]interface{}

	for _, sp := range bundle.Posts {
		post := sp.Post
		var postID uuid.UUID
		err := tx.QueryRow(ctx,
			`INSERT INTO posts (id, profile_id, post_url, caption, like_count, comment_count, posted_at, last_job_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (post_url) DO UPDATE SET
			     profile_id = EXCLUDED.profile_id,
			     caption = EXCLUDED.caption,
			     like_count = EXCLUDED.like_count,
			     comment_count = EXCLUDED.comment_count,
			     posted_at = COALESCE(EXCLUDED.posted_at, posts.posted_at),
			     last_job_id = EXCLUDED.last_job_id,
			     updated_at = NOW()
			 RETURNING id`,
			uuid.New(), summary.ProfileID, post.PostURL, post.Caption, post.LikeCount, post.CommentCount,
			post.PostedAt, jobID,
		).Scan(&postID)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert post %s: %w", post.PostURL, err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO scrape_job_posts (job_id, post_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			jobID, postID); err != nil {
			return nil, fmt.Errorf("failed to link post %s: %w", post.PostURL, err)
		}
		if !seen[postID] {
			seen[postID] = true
			summary.Posts++
		}

		for _, in := range sp.Interactions {
			rows = append(rows, []interface{}{
				uuid.New(), postID, summary.ProfileID, jobID, string(in.Type), in.UserUsername, in.UserURL,
				in.UserBio, in.UserIsPrivate, in.CommentText, in.CommentLikes, in.CommentReplies, now,
			})
		}
	}

	if len(rows) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"interactions"}, interactionCopyColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return nil, fmt.Errorf("failed to insert interactions: %w", err)
		}
		summary.Interactions = int(n)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit results: %w", err)
	}
	return summary, nil
}

// GetJobResults returns the result tree for a job: its profile, the posts it wrote and the
// interactions it appended. Returns nil, nil for unknown jobs.
func (db *DB) GetJobResults(ctx context.Context, jobID uuid.UUID) (*types.JobResults, error) {
	job, err := db.GetJob(ctx, jobID)
	if err != nil || job == nil {
		return nil, err
	}

	profile, err := db.GetProfile(ctx, job.Username)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return types.BuildJobResults(job, nil, nil, nil), nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+postColumns+`
		 FROM posts p
		 JOIN scrape_job_posts jp ON jp.post_id = p.id
		 WHERE jp.job_id = $1
		 ORDER BY p.posted_at DESC NULLS LAST, p.created_at`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job posts: %w", err)
	}
	posts, err := collect(rows, scanPost)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job posts: %w", err)
	}

	rows, err = db.pool.Query(ctx,
		`SELECT `+interactionColumns+` FROM interactions i WHERE i.job_id = $1 ORDER BY i.created_at, i.id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job interactions: %w", err)
	}
	interactions, err := collect(rows, scanInteraction)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job interactions: %w", err)
	}

	return types.BuildJobResults(job, profile, posts, interactions), nil
}

// GetProfile retrieves a profile by username
func (db *DB) GetProfile(ctx context.Context, username string) (*types.Profile, error) {
	p, err := scanProfile(db.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// ListPosts lists a profile's posts, newest first.
func (db *DB) ListPosts(ctx context.Context, username string, skip, limit int) ([]types.Post, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+postColumns+`
		 FROM posts p
		 JOIN profiles pr ON pr.id = p.profile_id
		 WHERE pr.username = $1
		 ORDER BY p.posted_at DESC NULLS LAST, p.created_at DESC
		 LIMIT $2 OFFSET $3`, username, limitArg(limit), max(skip, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return collect(rows, scanPost)
}

// ListInteractions lists interactions on a profile's posts, newest first.
func (db *DB) ListInteractions(ctx context.Context, username string, skip, limit int) ([]types.Interaction, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+interactionColumns+`
		 FROM interactions i
		 JOIN profiles pr ON pr.id = i.profile_id
		 WHERE pr.username = $1
		 ORDER BY i.created_at DESC, i.id
		 LIMIT $2 OFFSET $3`, username, limitArg(limit), max(skip, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	return collect(rows, scanInteraction)
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
