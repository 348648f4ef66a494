package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/social-scraper/internal/scraping"
	"github.com/jonathan/social-scraper/internal/sessions"
)

// ErrValidation indicates request validation failure at the HTTP boundary
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrProfileNotFound indicates no profile has been scraped for a username
type ErrProfileNotFound struct {
	Username string
}

func (e *ErrProfileNotFound) Error() string {
	return fmt.Sprintf("profile not found: %s", e.Username)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation *ErrValidation
		intake     *scraping.ValidationError
		notFound   *scraping.NotFoundError
		notReady   *scraping.NotReadyError
		noProfile  *ErrProfileNotFound
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation), errors.As(err, &intake):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.As(err, &noProfile), errors.Is(err, sessions.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.As(err, &notReady):
		return http.StatusConflict
	case errors.Is(err, scraping.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the machine-readable "error" field of an error response.
func errorCode(err error) string {
	var notReady *scraping.NotReadyError
	if errors.As(err, &notReady) {
		return "job_not_ready"
	}
	switch HTTPStatus(err) {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusServiceUnavailable:
		return "shutting_down"
	default:
		return "internal_error"
	}
}
