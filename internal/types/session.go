package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is a stored authenticated browsing context for one account.
// StorageState is the browser storage-state export (cookies + origins) captured at login.
type Session struct {
	ID           uuid.UUID       `json:"id"`
	Username     string          `json:"username"`
	StorageState json.RawMessage `json:"storage_state"`
	UserAgent    string          `json:"user_agent,omitempty"`
	Active       bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	LastUsedAt   *time.Time      `json:"last_used_at,omitempty"`
}

// SessionView is the client-facing projection of a Session; it never exposes credentials.
type SessionView struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	UserAgent   string     `json:"user_agent,omitempty"`
	Active      bool       `json:"is_active"`
	CookieCount int        `json:"cookie_count"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// View projects the session for listing.
func (s *Session) View() SessionView {
	count := 0
	if state, err := ParseStorageState(s.StorageState); err == nil {
		count = len(state.Cookies)
	}
	return SessionView{
		ID:          s.ID,
		Username:    s.Username,
		UserAgent:   s.UserAgent,
		Active:      s.Active,
		CookieCount: count,
		CreatedAt:   s.CreatedAt,
		LastUsedAt:  s.LastUsedAt,
	}
}

// StorageState mirrors the browser storage-state JSON format.
type StorageState struct {
	Cookies []StoredCookie    `json:"cookies"`
	Origins []json.RawMessage `json:"origins,omitempty"`
}

// StoredCookie is one cookie in a storage-state export. Expires is a unix timestamp in
// seconds, or -1 for session cookies.
type StoredCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// ParseStorageState decodes a storage-state blob. An empty blob yields an empty state.
func ParseStorageState(raw json.RawMessage) (*StorageState, error) {
	if len(raw) == 0 {
		return &StorageState{}, nil
	}
	var state StorageState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to parse storage state: %w", err)
	}
	return &state, nil
}
