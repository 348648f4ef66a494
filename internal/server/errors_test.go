package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/social-scraper/internal/scraping"
	"github.com/jonathan/social-scraper/internal/sessions"
	"github.com/jonathan/social-scraper/internal/types"
)

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "limit", Message: "must be a number"}
	assert.Equal(t, "validation error: limit - must be a number", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	assert.Equal(t, "validation_error", errorCode(err))
}

func TestHTTPStatus(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"intake", &scraping.ValidationError{Field: "profile_url", Message: "required"}, http.StatusBadRequest, "validation_error"},
		{"job not found", &scraping.NotFoundError{ID: id}, http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("lookup: %w", &scraping.NotFoundError{ID: id}), http.StatusNotFound, "not_found"},
		{"profile", &ErrProfileNotFound{Username: "alice"}, http.StatusNotFound, "not_found"},
		{"session", fmt.Errorf("%w: %s", sessions.ErrSessionNotFound, id), http.StatusNotFound, "not_found"},
		{"not ready", &scraping.NotReadyError{ID: id, Status: types.JobRunning}, http.StatusConflict, "job_not_ready"},
		{"shutdown", scraping.ErrShuttingDown, http.StatusServiceUnavailable, "shutting_down"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.code, errorCode(tt.err))
		})
	}
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
}
