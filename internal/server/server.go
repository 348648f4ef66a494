// Package server provides the HTTP REST API for submitting scrape jobs and reading their results.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/social-scraper/internal/scraping"
	"github.com/jonathan/social-scraper/internal/server/middleware"
	"github.com/jonathan/social-scraper/internal/server/ratelimit"
	"github.com/jonathan/social-scraper/internal/types"
)

// Jobs is the job lifecycle the API exposes.
type Jobs interface {
	Submit(ctx context.Context, req scraping.SubmitRequest) (*types.ScrapeJob, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*types.ScrapeJob, error)
	GetResults(ctx context.Context, id uuid.UUID) (*types.JobResults, error)
	Subscribe(id uuid.UUID) (<-chan scraping.ProgressEvent, func())
}

// Sessions is the session administration the API exposes.
type Sessions interface {
	List(ctx context.Context, activeOnly bool, username string) ([]types.SessionView, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Catalog reads scraped entities across jobs.
type Catalog interface {
	GetProfile(ctx context.Context, username string) (*types.Profile, error)
	ListPosts(ctx context.Context, username string, skip, limit int) ([]types.Post, error)
	ListInteractions(ctx context.Context, username string, skip, limit int) ([]types.Interaction, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Config holds server configuration
type Config struct {
	Port      int
	APIKeys   []string
	RateLimit *ratelimit.Config
	Logger    *slog.Logger

	Jobs     Jobs
	Sessions Sessions
	Catalog  Catalog
	Checks   map[string]HealthCheck
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	jobs        Jobs
	sessions    Sessions
	catalog     Catalog
	checks      map[string]HealthCheck
	rateLimiter *ratelimit.Limiter
	validator   *validator.Validate
	logger      *slog.Logger
}

// New creates a new server instance
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		jobs:        cfg.Jobs,
		sessions:    cfg.Sessions,
		catalog:     cfg.Catalog,
		checks:      cfg.Checks,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		validator:   validator.New(),
		logger:      logger,
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/scrape", s.handleSubmit)
	api.HandleFunc("GET /api/scrape/{id}", s.handleStatus)
	api.HandleFunc("GET /api/scrape/{id}/results", s.handleResults)
	api.HandleFunc("GET /api/scrape/{id}/events", s.handleEvents)

	api.HandleFunc("GET /api/sessions", s.handleListSessions)
	api.HandleFunc("POST /api/sessions/{id}/deactivate", s.handleDeactivateSession)

	api.HandleFunc("POST /api/profiles/scrape", s.handleSubmitProfile)
	api.HandleFunc("GET /api/profiles/{username}", s.handleGetProfile)
	api.HandleFunc("GET /api/profiles/{username}/posts", s.handleListPosts)
	api.HandleFunc("GET /api/profiles/{username}/interactions", s.handleListInteractions)

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.APIKeyMiddleware(cfg.APIKeys)(api))
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: event streams stay open for the life of a job
	}

	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.rateLimiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Flush keeps event streams working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, code, message string) {
	s.jsonResponse(w, status, map[string]string{"error": code, "message": message})
}

// writeError maps err onto a status and error body. Internal errors are logged and their
// details withheld.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.errorResponse(w, status, errorCode(err), http.StatusText(status))
		return
	}
	s.errorResponse(w, status, errorCode(err), err.Error())
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; X-Forwarded-For is not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.logger.Warn("rate limit exceeded", "client", s.extractClientID(r), "path", r.URL.Path, "limit", info.Limit)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
