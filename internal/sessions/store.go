// Package sessions selects stored authenticated browsing contexts for scrape jobs and exposes
// the administrative list/deactivate operations.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/social-scraper/internal/types"
)

// ErrSessionUnavailable is matched by every UnavailableError.
var ErrSessionUnavailable = errors.New("no active session available")

// ErrSessionNotFound is returned when an id does not name a stored session.
var ErrSessionNotFound = errors.New("session not found")

// UnavailableError reports that no active session satisfies a selection.
type UnavailableError struct {
	Hint string
}

func (e *UnavailableError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("no active session for account %q", e.Hint)
	}
	return "no active session for any account"
}

// Is makes errors.Is(err, ErrSessionUnavailable) hold.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrSessionUnavailable
}

// Repository is the persistence the store reads and writes. ListSessions filters by account
// when username is non-empty; GetSession returns nil, nil for unknown ids.
type Repository interface {
	ListSessions(ctx context.Context, activeOnly bool, username string) ([]types.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*types.Session, error)
	SetSessionActive(ctx context.Context, id uuid.UUID, active bool) error
	TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Store implements session selection over a Repository.
type Store struct {
	repo   Repository
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(repo Repository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, logger: logger.With("component", "sessions")}
}

// NormalizeAccount lowercases an account name and strips a leading @.
func NormalizeAccount(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

// Select returns the most recently created active session for hint's account, or, with an
// empty hint, the most recently created active session of any account.
func (s *Store) Select(ctx context.Context, hint string) (*types.Session, error) {
	account := NormalizeAccount(hint)

	candidates, err := s.repo.ListSessions(ctx, true, account)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	for i := range candidates {
		c := &candidates[i]
		if !c.Active {
			continue
		}
		if account != "" && NormalizeAccount(c.Username) != account {
			continue
		}
		return c, nil
	}
	return nil, &UnavailableError{Hint: account}
}

// List returns client-facing views, newest first.
func (s *Store) List(ctx context.Context, activeOnly bool, username string) ([]types.SessionView, error) {
	sessions, err := s.repo.ListSessions(ctx, activeOnly, NormalizeAccount(username))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	views := make([]types.SessionView, 0, len(sessions))
	for i := range sessions {
		if activeOnly && !sessions[i].Active {
			continue
		}
		views = append(views, sessions[i].View())
	}
	return views, nil
}

// Deactivate marks a session inactive. Deactivating an inactive session is a no-op.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if session == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if !session.Active {
		return nil
	}
	if err := s.repo.SetSessionActive(ctx, id, false); err != nil {
		return fmt.Errorf("failed to deactivate session %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "session deactivated", "session_id", id, "username", session.Username)
	return nil
}

// Touch records that a session was used. Failures are logged, not returned.
func (s *Store) Touch(ctx context.Context, id uuid.UUID) {
	if err := s.repo.TouchSession(ctx, id, time.Now().UTC()); err != nil {
		s.logger.WarnContext(ctx, "failed to record session use", "session_id", id, "error", err)
	}
}
