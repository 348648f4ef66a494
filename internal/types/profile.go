package types

import (
	"time"

	"github.com/google/uuid"
)

// InteractionType classifies how an account interacted with a post.
type InteractionType string

// Interaction types.
const (
	InteractionLike    InteractionType = "like"
	InteractionComment InteractionType = "comment"
	InteractionShare   InteractionType = "share"
	InteractionSave    InteractionType = "save"
)

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionLike, InteractionComment, InteractionShare, InteractionSave:
		return true
	}
	return false
}

// Profile is a scraped account, unique on Username.
type Profile struct {
	ID             uuid.UUID  `json:"id"`
	Username       string     `json:"username"`
	FullName       *string    `json:"full_name,omitempty"`
	ProfileURL     string     `json:"profile_url"`
	Bio            *string    `json:"bio,omitempty"`
	IsPrivate      bool       `json:"is_private"`
	FollowerCount  *int       `json:"follower_count,omitempty"`
	FollowingCount *int       `json:"following_count,omitempty"`
	PostCount      *int       `json:"post_count,omitempty"`
	Verified       bool       `json:"verified"`
	LastScrapedAt  *time.Time `json:"last_scraped_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Post belongs to exactly one Profile and is unique on PostURL.
type Post struct {
	ID           uuid.UUID  `json:"id"`
	ProfileID    uuid.UUID  `json:"profile_id"`
	PostURL      string     `json:"post_url"`
	Caption      *string    `json:"caption,omitempty"`
	LikeCount    int        `json:"like_count"`
	CommentCount int        `json:"comment_count"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
	LastJobID    *uuid.UUID `json:"last_job_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Interaction is an append-only record of one account acting on one post.
// Comment fields are only set when Type is InteractionComment.
type Interaction struct {
	ID             uuid.UUID       `json:"id"`
	PostID         uuid.UUID       `json:"post_id"`
	ProfileID      uuid.UUID       `json:"profile_id"`
	JobID          *uuid.UUID      `json:"job_id,omitempty"`
	Type           InteractionType `json:"type"`
	UserUsername   string          `json:"user_username"`
	UserURL        string          `json:"user_url"`
	UserBio        *string         `json:"user_bio,omitempty"`
	UserIsPrivate  bool            `json:"user_is_private"`
	CommentText    *string         `json:"comment_text,omitempty"`
	CommentLikes   *int            `json:"comment_likes,omitempty"`
	CommentReplies *int            `json:"comment_replies,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ScrapedPost is a post and its interactions as accumulated by one job, before persistence.
type ScrapedPost struct {
	Post         Post
	Interactions []Interaction
}

// ScrapeBundle is everything one job extracted; it is persisted atomically.
type ScrapeBundle struct {
	JobID   uuid.UUID
	Profile Profile
	Posts   []ScrapedPost
}

// SaveSummary reports what a persistence call actually wrote.
type SaveSummary struct {
	ProfileID    uuid.UUID
	Posts        int
	Interactions int
}
