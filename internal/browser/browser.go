// Package browser drives a remote headless-browser service on behalf of scrape jobs.
//
// Two drivers implement Automation: Client speaks the service's REST API and CDPClient
// attaches to its DevTools websocket. Both fall back to a legacy request encoding when the
// deployed service rejects the preferred one.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonathan/social-scraper/internal/types"
)

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 30 * time.Second

// DefaultLoginPathMarker identifies a redirect to the target site's login wall.
const DefaultLoginPathMarker = "/accounts/login"

// Automation is the capability set the orchestrator needs from a browser.
type Automation interface {
	Navigate(ctx context.Context, url string, session *types.Session) (*Page, error)
	Screenshot(ctx context.Context, page *Page) ([]byte, error)
	HTML(ctx context.Context, page *Page) (string, error)
	Evaluate(ctx context.Context, page *Page, script string, args ...any) (json.RawMessage, error)
	Health(ctx context.Context) error
	Close() error
}

// Operation names a remote capability.
type Operation string

// Operations.
const (
	OpNavigate   Operation = "navigate"
	OpScreenshot Operation = "screenshot"
	OpHTML       Operation = "html"
	OpEvaluate   Operation = "evaluate"
)

// Encoding selects a request shape for an operation.
type Encoding int

// Encodings.
const (
	Preferred Encoding = iota
	Legacy
)

func (e Encoding) String() string {
	if e == Legacy {
		return "legacy"
	}
	return "preferred"
}

// Page is a navigated target. For the REST driver it carries what every follow-up request needs
// to reproduce the authenticated view; for the CDP driver it also owns a live tab.
type Page struct {
	URL       string
	FinalURL  string
	Title     string
	Status    int
	Cookies   []Cookie
	UserAgent string

	tab     context.Context
	release context.CancelFunc
}

// Target is the URL follow-up captures should load.
func (p *Page) Target() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// Release frees resources held by the page. Safe to call more than once.
func (p *Page) Release() {
	if p.release != nil {
		p.release()
		p.release = nil
	}
}

// Cookie is a cookie in the shape browser services accept.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// CookiesFromStorageState converts a stored session's storage state into request cookies,
// dropping cookies that expired before now. Session cookies (expires <= 0) are kept.
func CookiesFromStorageState(raw json.RawMessage, now time.Time) ([]Cookie, error) {
	state, err := types.ParseStorageState(raw)
	if err != nil {
		return nil, err
	}

	cookies := make([]Cookie, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		if c.Name == "" {
			continue
		}
		if c.Expires > 0 && int64(c.Expires) < now.Unix() {
			continue
		}
		expires := c.Expires
		if expires < 0 {
			expires = 0
		}
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
		})
	}
	return cookies, nil
}

func sessionCredentials(session *types.Session) ([]Cookie, string, error) {
	if session == nil {
		return nil, "", nil
	}
	cookies, err := CookiesFromStorageState(session.StorageState, time.Now())
	if err != nil {
		return nil, "", fmt.Errorf("session %s: %w", session.ID, err)
	}
	return cookies, session.UserAgent, nil
}
