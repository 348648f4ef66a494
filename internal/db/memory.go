package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/social-scraper/internal/types"
)

// MemoryStore is an in-process Store. It applies the same uniqueness, upsert and terminal-job
// rules as the PostgreSQL store and is used by tests and the server's --memory mode.
type MemoryStore struct {
	mu           sync.RWMutex
	jobs         map[uuid.UUID]types.ScrapeJob
	sessions     map[uuid.UUID]types.Session
	profiles     map[string]types.Profile
	posts        map[string]types.Post
	jobPosts     map[uuid.UUID][]uuid.UUID
	interactions []types.Interaction
	now          func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[uuid.UUID]types.ScrapeJob),
		sessions: make(map[uuid.UUID]types.Session),
		profiles: make(map[string]types.Profile),
		posts:    make(map[string]types.Post),
		jobPosts: make(map[uuid.UUID][]uuid.UUID),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() {}

// CreateJob inserts a job. Duplicate IDs are rejected.
func (m *MemoryStore) CreateJob(_ context.Context, job *types.ScrapeJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("failed to create job: duplicate id %s", job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

// GetJob returns a copy of the job, or nil, nil.
func (m *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*types.ScrapeJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

// UpdateJob replaces the job's mutable fields unless the stored job is terminal.
func (m *MemoryStore) UpdateJob(_ context.Context, job *types.ScrapeJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.jobs[job.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	if existing.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinalized, job.ID, existing.Status)
	}
	existing.Status = job.Status
	existing.ErrorCode = job.ErrorCode
	existing.ErrorMessage = job.ErrorMessage
	existing.PostsScraped = job.PostsScraped
	existing.InteractionsScraped = job.InteractionsScraped
	existing.StartedAt = job.StartedAt
	existing.CompletedAt = job.CompletedAt
	m.jobs[job.ID] = existing
	return nil
}

// SaveResults applies the bundle atomically: validation happens before anything is written.
func (m *MemoryStore) SaveResults(_ context.Context, bundle *types.ScrapeBundle) (*types.SaveSummary, error) {
	if bundle.Profile.Username == "" {
		return nil, errors.New("bundle has no profile username")
	}
	for _, sp := range bundle.Posts {
		if sp.Post.PostURL == "" {
			return nil, errors.New("failed to upsert post: empty post_url")
		}
		for _, in := range sp.Interactions {
			if !in.Type.Valid() {
				return nil, fmt.Errorf("failed to insert interactions: invalid type %q", in.Type)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	profile, ok := m.profiles[bundle.Profile.Username]
	if !ok {
		profile = types.Profile{ID: uuid.New(), Username: bundle.Profile.Username, CreatedAt: now}
	}
	src := bundle.Profile
	profile.FullName = src.FullName
	profile.ProfileURL = src.ProfileURL
	profile.Bio = src.Bio
	profile.IsPrivate = src.IsPrivate
	profile.FollowerCount = src.FollowerCount
	profile.FollowingCount = src.FollowingCount
	profile.PostCount = src.PostCount
	profile.Verified = src.Verified
	profile.LastScrapedAt = &now
	profile.UpdatedAt = now
	m.profiles[profile.Username] = profile

	summary := &types.SaveSummary{ProfileID: profile.ID}
	jobID := bundle.JobID
	linked := make(map[uuid.UUID]bool)
	for _, id := range m.jobPosts[jobID] {
		linked[id] = true
	}
	counted := make(map[uuid.UUID]bool)

	for _, sp := range bundle.Posts {
		post, ok := m.posts[sp.Post.PostURL]
		if !ok {
			post = types.Post{ID: uuid.New(), PostURL: sp.Post.PostURL, CreatedAt: now}
		}
		post.ProfileID = profile.ID
		post.Caption = sp.Post.Caption
		post.LikeCount = sp.Post.LikeCount
		post.CommentCount = sp.Post.CommentCount
		if sp.Post.PostedAt != nil {
			post.PostedAt = sp.Post.PostedAt
		}
		post.LastJobID = &jobID
		post.UpdatedAt = now
		m.posts[post.PostURL] = post

		if !linked[post.ID] {
			linked[post.ID] = true
			m.jobPosts[jobID] = append(m.jobPosts[jobID], post.ID)
		}
		if !counted[post.ID] {
			counted[post.ID] = true
			summary.Posts++
		}

		for _, in := range sp.Interactions {
			in.ID = uuid.New()
			in.PostID = post.ID
			in.ProfileID = profile.ID
			in.JobID = &jobID
			in.CreatedAt = now
			m.interactions = append(m.interactions, in)
			summary.Interactions++
		}
	}
	return summary, nil
}

// GetJobResults mirrors DB.GetJobResults.
func (m *MemoryStore) GetJobResults(ctx context.Context, jobID uuid.UUID) (*types.JobResults, error) {
	job, _ := m.GetJob(ctx, jobID)
	if job == nil {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	profile, ok := m.profiles[job.Username]
	if !ok {
		return types.BuildJobResults(job, nil, nil, nil), nil
	}

	ids := make(map[uuid.UUID]bool)
	for _, id := range m.jobPosts[jobID] {
		ids[id] = true
	}
	var posts []types.Post
	for _, p := range m.posts {
		if ids[p.ID] {
			posts = append(posts, p)
		}
	}
	sortPosts(posts)

	var interactions []types.Interaction
	for _, in := range m.interactions {
		if in.JobID != nil && *in.JobID == jobID {
			interactions = append(interactions, in)
		}
	}
	return types.BuildJobResults(job, &profile, posts, interactions), nil
}

// GetProfile returns the profile for username, or nil, nil.
func (m *MemoryStore) GetProfile(_ context.Context, username string) (*types.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[username]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ListPosts lists a profile's posts, newest first.
func (m *MemoryStore) ListPosts(_ context.Context, username string, skip, limit int) ([]types.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	profile, ok := m.profiles[username]
	if !ok {
		return nil, nil
	}
	var posts []types.Post
	for _, p := range m.posts {
		if p.ProfileID == profile.ID {
			posts = append(posts, p)
		}
	}
	sortPosts(posts)
	return page(posts, skip, limit), nil
}

// ListInteractions lists interactions on a profile's posts, newest first.
func (m *MemoryStore) ListInteractions(_ context.Context, username string, skip, limit int) ([]types.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	profile, ok := m.profiles[username]
	if !ok {
		return nil, nil
	}
	var out []types.Interaction
	for i := len(m.interactions) - 1; i >= 0; i-- {
		if m.interactions[i].ProfileID == profile.ID {
			out = append(out, m.interactions[i])
		}
	}
	return page(out, skip, limit), nil
}

// CreateSession stores a session. Missing ID and CreatedAt are filled in.
func (m *MemoryStore) CreateSession(_ context.Context, session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = m.now()
	}
	if _, ok := m.sessions[session.ID]; ok {
		return fmt.Errorf("failed to create session: duplicate id %s", session.ID)
	}
	s := *session
	s.StorageState = append([]byte(nil), session.StorageState...)
	m.sessions[s.ID] = s
	return nil
}

// ListSessions returns sessions newest first.
func (m *MemoryStore) ListSessions(_ context.Context, activeOnly bool, username string) ([]types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Session
	for _, s := range m.sessions {
		if activeOnly && !s.Active {
			continue
		}
		if username != "" && !strings.EqualFold(s.Username, username) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetSession returns the session, or nil, nil.
func (m *MemoryStore) GetSession(_ context.Context, id uuid.UUID) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// SetSessionActive flips the active flag.
func (m *MemoryStore) SetSessionActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	s.Active = active
	m.sessions[id] = s
	return nil
}

// TouchSession records when a session was last used.
func (m *MemoryStore) TouchSession(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastUsedAt = &at
		m.sessions[id] = s
	}
	return nil
}

func sortPosts(posts []types.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i].PostedAt, posts[j].PostedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return posts[i].CreatedAt.Before(posts[j].CreatedAt)
	})
}

func page[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return nil
	}
	items = items[max(skip, 0):]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
