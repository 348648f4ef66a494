// Package types provides type definitions for structured data used throughout the social-scraper system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a scrape job.
type JobStatus string

// Job statuses. completed and failed are terminal.
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job error codes recorded on failed jobs.
const (
	ErrCodeSessionUnavailable = "session_unavailable"
	ErrCodeAutomationTimeout  = "automation_timeout"
	ErrCodeAutomationFailed   = "automation_failed"
	ErrCodeLoginRequired      = "login_required"
	ErrCodeExtractionFailed   = "extraction_failed"
	ErrCodePersistenceFailed  = "persistence_failed"
	ErrCodeJobTimeout         = "job_timeout"
	ErrCodeInternal           = "internal_error"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
// pending -> running -> {completed | failed}; running is never skipped.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobRunning
	case JobRunning:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// JobOptions are per-job knobs accepted at intake.
type JobOptions struct {
	MaxPosts    int  `json:"max_posts"`
	RecentDays  int  `json:"recent_days,omitempty"`
	ProfileOnly bool `json:"profile_only,omitempty"`
}

// ScrapeJob tracks one scrape request from intake to a terminal state.
type ScrapeJob struct {
	ID                  uuid.UUID  `json:"id"`
	TargetURL           string     `json:"profile_url"`
	Username            string     `json:"username"`
	SessionHint         *string    `json:"session_username,omitempty"`
	Status              JobStatus  `json:"status"`
	Options             JobOptions `json:"options"`
	ErrorCode           string     `json:"error_code,omitempty"`
	ErrorMessage        *string    `json:"error_message,omitempty"`
	PostsScraped        int        `json:"posts_scraped"`
	InteractionsScraped int        `json:"interactions_scraped"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// ScrapeRequest is the intake payload for a new scrape job.
type ScrapeRequest struct {
	ProfileURL      string  `json:"profile_url" validate:"required"`
	SessionUsername *string `json:"session_username,omitempty" validate:"omitempty,min=1,max=255"`
	MaxPosts        int     `json:"max_posts,omitempty" validate:"omitempty,min=1,max=50"`
	RecentDays      int     `json:"recent_days,omitempty" validate:"omitempty,min=1,max=30"`
}

// ProfileScrapeRequest is the intake payload for a profile-only job.
type ProfileScrapeRequest struct {
	ProfileURL      string  `json:"profile_url" validate:"required"`
	SessionUsername *string `json:"session_username,omitempty" validate:"omitempty,min=1,max=255"`
}
