package scraping

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/social-scraper/internal/browser"
	"github.com/jonathan/social-scraper/internal/extraction"
	"github.com/jonathan/social-scraper/internal/sessions"
	"github.com/jonathan/social-scraper/internal/types"
)

// ErrJobTimeout is the cancellation cause of a job that exceeded its wall-clock limit.
var ErrJobTimeout = errors.New("job timed out")

// ErrShuttingDown is returned by Submit after Shutdown, and is the cancellation cause of jobs
// aborted by a forced shutdown.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// ValidationError rejects a submission before any job is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError reports an unknown job id.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.ID)
}

// NotReadyError reports that results were requested before the job completed.
type NotReadyError struct {
	ID     uuid.UUID
	Status types.JobStatus
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("job %s is %s", e.ID, e.Status)
}

// PersistenceError wraps a failed write of a job's results.
type PersistenceError struct {
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist results: %v", e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// classify maps a job failure to its stored error code and message. The job context is
// consulted first so that a fired deadline wins over whatever the interrupted call returned.
func classify(jobCtx context.Context, err error) (string, string) {
	if jobCtx.Err() != nil {
		cause := context.Cause(jobCtx)
		switch {
		case errors.Is(cause, ErrJobTimeout):
			return types.ErrCodeJobTimeout, "job exceeded its time limit"
		case errors.Is(cause, ErrShuttingDown):
			return types.ErrCodeInternal, "service shut down before the job finished"
		}
	}

	var transport *browser.TransportError
	var compat *browser.CompatibilityError
	var persist *PersistenceError

	switch {
	case errors.Is(err, sessions.ErrSessionUnavailable):
		return types.ErrCodeSessionUnavailable, err.Error()
	case errors.Is(err, browser.ErrLoginRequired):
		return types.ErrCodeLoginRequired, err.Error()
	case browser.IsTimeout(err):
		return types.ErrCodeAutomationTimeout, err.Error()
	case errors.As(err, &transport), errors.As(err, &compat):
		return types.ErrCodeAutomationFailed, err.Error()
	case errors.Is(err, extraction.ErrExtractionFailed):
		return types.ErrCodeExtractionFailed, err.Error()
	case errors.As(err, &persist):
		return types.ErrCodePersistenceFailed, err.Error()
	}
	return types.ErrCodeInternal, err.Error()
}
