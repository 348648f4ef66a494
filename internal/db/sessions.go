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
// Browser Session Methods
// -----------------------------------------------------------------------------

const sessionColumns = `id, username, storage_state, user_agent, is_active, created_at, last_used_at`

func scanSession(row pgx.Row) (*types.Session, error) {
	var s types.Session
	var state []byte
	if err := row.Scan(&s.ID, &s.Username, &state, &s.UserAgent, &s.Active, &s.CreatedAt, &s.LastUsedAt); err != nil {
		return nil, err
	}
	s.StorageState = state
	return &s, nil
}

// CreateSession stores a captured session. Missing ID and CreatedAt are filled in.
func (db *DB) CreateSession(ctx context.Context, session *types.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	state := []byte(session.StorageState)
	if len(state) == 0 {
		state = []byte(`{}`)
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO browser_sessions (id, username, storage_state, user_agent, is_active, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.Username, state, session.UserAgent, session.Active, session.CreatedAt, session.LastUsedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// ListSessions returns sessions newest first, optionally restricted to active ones and to
// one account (case-insensitive).
func (db *DB) ListSessions(ctx context.Context, activeOnly bool, username string) ([]types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM browser_sessions WHERE TRUE`
	args := []interface{}{}
	argPos := 1

	if activeOnly {
		query += " AND is_active"
	}
	if username != "" {
		query += fmt.Sprintf(" AND lower(username) = lower($%d)", argPos)
		args = append(args, username)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// GetSession retrieves a session by ID
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*types.Session, error) {
	s, err := scanSession(db.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM browser_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// SetSessionActive flips the is_active flag.
func (db *DB) SetSessionActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := db.pool.Exec(ctx, `UPDATE browser_sessions SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// TouchSession records when a session was last used.
func (db *DB) TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := db.pool.Exec(ctx, `UPDATE browser_sessions SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}
