package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/social-scraper/internal/scraping"
	"github.com/jonathan/social-scraper/internal/server/middleware"
	"github.com/jonathan/social-scraper/internal/types"
)

// Paging bounds for the profile listings.
const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// sseKeepAlive is how often an idle event stream sends a comment.
var sseKeepAlive = 15 * time.Second

// SubmitResponse is returned by POST /api/scrape
type SubmitResponse struct {
	ID         uuid.UUID       `json:"id"`
	ProfileURL string          `json:"profile_url"`
	Status     types.JobStatus `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// StatusResponse is returned by GET /api/scrape/{id}
type StatusResponse struct {
	ID                  uuid.UUID       `json:"id"`
	ProfileURL          string          `json:"profile_url"`
	Status              types.JobStatus `json:"status"`
	ErrorCode           string          `json:"error_code,omitempty"`
	ErrorMessage        *string         `json:"error_message,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	PostsScraped        int             `json:"posts_scraped"`
	InteractionsScraped int             `json:"interactions_scraped"`
}

func newStatusResponse(job *types.ScrapeJob) StatusResponse {
	return StatusResponse{
		ID:                  job.ID,
		ProfileURL:          job.TargetURL,
		Status:              job.Status,
		ErrorCode:           job.ErrorCode,
		ErrorMessage:        job.ErrorMessage,
		CreatedAt:           job.CreatedAt,
		StartedAt:           job.StartedAt,
		CompletedAt:         job.CompletedAt,
		PostsScraped:        job.PostsScraped,
		InteractionsScraped: job.InteractionsScraped,
	}
}

// handleSubmit validates a scrape request and schedules the job
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req types.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "validation_error", "Invalid request body: "+err.Error())
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.writeError(w, r, validationError(err))
		return
	}

	submit := scraping.SubmitRequest{
		TargetURL:  req.ProfileURL,
		MaxPosts:   req.MaxPosts,
		RecentDays: req.RecentDays,
	}
	if req.SessionUsername != nil {
		submit.SessionHint = *req.SessionUsername
	}
	s.submit(w, r, submit)
}

// handleSubmitProfile schedules a job that captures only the profile
func (s *Server) handleSubmitProfile(w http.ResponseWriter, r *http.Request) {
	var req types.ProfileScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "validation_error", "Invalid request body: "+err.Error())
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.writeError(w, r, validationError(err))
		return
	}

	submit := scraping.SubmitRequest{TargetURL: req.ProfileURL, ProfileOnly: true}
	if req.SessionUsername != nil {
		submit.SessionHint = *req.SessionUsername
	}
	s.submit(w, r, submit)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, submit scraping.SubmitRequest) {
	job, err := s.jobs.Submit(r.Context(), submit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.InfoContext(r.Context(), "scrape accepted", "job_id", job.ID, "username", job.Username, "client", middleware.ClientID(r))
	w.Header().Set("Location", "/api/scrape/"+job.ID.String())
	s.jsonResponse(w, http.StatusAccepted, SubmitResponse{
		ID:         job.ID,
		ProfileURL: job.TargetURL,
		Status:     job.Status,
		CreatedAt:  job.CreatedAt,
	})
}

// validationError turns validator output into the first failing field.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := jsonFieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			return &ErrValidation{Field: field, Message: "is required"}
		case "min", "max":
			return &ErrValidation{Field: field, Message: fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())}
		default:
			return &ErrValidation{Field: field, Message: "is invalid"}
		}
	}
	return &ErrValidation{Field: "body", Message: err.Error()}
}

func jsonFieldName(field string) string {
	switch field {
	case "ProfileURL":
		return "profile_url"
	case "SessionUsername":
		return "session_username"
	case "MaxPosts":
		return "max_posts"
	case "RecentDays":
		return "recent_days"
	default:
		return strings.ToLower(field)
	}
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// handleStatus returns the stored state of a job
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	job, err := s.jobs.GetStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newStatusResponse(job))
}

// handleResults returns the result tree of a completed job
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	results, err := s.jobs.GetResults(r.Context(), id)
	if err != nil {
		var notReady *scraping.NotReadyError
		if errors.As(err, &notReady) {
			s.jsonResponse(w, http.StatusConflict, map[string]string{
				"error":  "job_not_ready",
				"status": string(notReady.Status),
			})
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, results)
}

// handleEvents streams a job's progress as Server-Sent Events until the job ends or the
// client disconnects
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	// Subscribe before reading the status so no transition falls in between
	events, cancel := s.jobs.Subscribe(id)
	defer cancel()

	job, err := s.jobs.GetStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if err := sse.WriteEvent("status", newStatusResponse(job)); err != nil {
		return
	}
	if job.Status.Terminal() {
		sse.WriteComplete(job.ID.String(), string(job.Status))
		return
	}

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sse.WriteComment("keep-alive"); err != nil {
				return
			}
		case event, open := <-events:
			if !open {
				// Closed after the terminal event; report the stored outcome
				final, err := s.jobs.GetStatus(context.WithoutCancel(r.Context()), id)
				if err != nil {
					sse.WriteError("failed to load final status")
					return
				}
				sse.WriteComplete(final.ID.String(), string(final.Status))
				return
			}
			if err := sse.WriteEvent("progress", event); err != nil {
				return
			}
		}
	}
}

// handleListSessions lists stored sessions without their credentials
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if raw := r.URL.Query().Get("active_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, &ErrValidation{Field: "active_only", Message: "must be a boolean"})
			return
		}
		activeOnly = v
	}

	views, err := s.sessions.List(r.Context(), activeOnly, r.URL.Query().Get("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if views == nil {
		views = []types.SessionView{}
	}
	s.jsonResponse(w, http.StatusOK, views)
}

// handleDeactivateSession marks a session inactive
func (s *Server) handleDeactivateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.sessions.Deactivate(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"id": id, "active": false})
}

// profile loads the profile named in the path, writing a 404 when it has never been scraped.
func (s *Server) profile(w http.ResponseWriter, r *http.Request) (*types.Profile, bool) {
	username := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(r.PathValue("username")), "@"))
	if username == "" {
		s.writeError(w, r, &ErrValidation{Field: "username", Message: "is required"})
		return nil, false
	}
	profile, err := s.catalog.GetProfile(r.Context(), username)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	if profile == nil {
		s.writeError(w, r, &ErrProfileNotFound{Username: username})
		return nil, false
	}
	return profile, true
}

// handleGetProfile returns the latest stored state of a profile
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.profile(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, profile)
}

// pageParams parses skip and limit query parameters.
func pageParams(r *http.Request) (skip, limit int, err error) {
	limit = defaultPageLimit
	q := r.URL.Query()
	if raw := q.Get("skip"); raw != "" {
		if skip, err = strconv.Atoi(raw); err != nil || skip < 0 {
			return 0, 0, &ErrValidation{Field: "skip", Message: "must be a non-negative integer"}
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 || limit > maxPageLimit {
			return 0, 0, &ErrValidation{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxPageLimit)}
		}
	}
	return skip, limit, nil
}

// handleListPosts pages through a profile's posts, newest first
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, ok := s.profile(w, r)
	if !ok {
		return
	}
	posts, err := s.catalog.ListPosts(r.Context(), profile.Username, skip, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if posts == nil {
		posts = []types.Post{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"username": profile.Username,
		"skip":     skip,
		"limit":    limit,
		"posts":    posts,
	})
}

// handleListInteractions pages through the interactions recorded on a profile's posts
func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, ok := s.profile(w, r)
	if !ok {
		return
	}
	interactions, err := s.catalog.ListInteractions(r.Context(), profile.Username, skip, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if interactions == nil {
		interactions = []types.Interaction{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"username":     profile.Username,
		"skip":         skip,
		"limit":        limit,
		"interactions": interactions,
	})
}

// handleHealth runs every dependency check concurrently and reports ok or degraded
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(s.checks))
		status = "ok"
	)
	for name, check := range s.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := "ok"
			if err := check(ctx); err != nil {
				result = "error: " + err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			checks[name] = result
			if result != "ok" {
				status = "degraded"
			}
		}()
	}
	wg.Wait()

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status": status,
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
