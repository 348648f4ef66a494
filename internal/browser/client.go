package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/jonathan/social-scraper/internal/retry"
	"github.com/jonathan/social-scraper/internal/types"
)

// Config configures the REST driver.
type Config struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	Retry           retry.Policy
	LoginPathMarker string
	// WaitForSelector, when set, is passed to content requests so capture waits for the element.
	WaitForSelector string
}

// Client drives a Browserless-compatible REST API.
type Client struct {
	http        *resty.Client
	timeout     time.Duration
	policy      retry.Policy
	loginMarker string
	waitFor     string
	logger      *slog.Logger

	mu        sync.RWMutex
	preferred map[Operation]Encoding
}

// NewClient creates a REST driver for the service at cfg.BaseURL.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LoginPathMarker == "" {
		cfg.LoginPathMarker = DefaultLoginPathMarker
	}
	if logger == nil {
		logger = slog.Default()
	}

	rest := resty.New()
	rest.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	if cfg.Token != "" {
		rest.SetAuthToken(cfg.Token)
	}
	rest.SetHeader("Accept", "application/json, text/html, image/png, */*")

	return &Client{
		http:        rest,
		timeout:     cfg.Timeout,
		policy:      cfg.Retry,
		loginMarker: cfg.LoginPathMarker,
		waitFor:     cfg.WaitForSelector,
		logger:      logger.With("component", "browser"),
		preferred:   make(map[Operation]Encoding),
	}
}

func (c *Client) encodingFor(op Operation) Encoding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.preferred[op]
}

func (c *Client) remember(op Operation, enc Encoding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preferred[op] = enc
}

func (c *Client) input(target string, page *Page) callInput {
	in := callInput{URL: target, Timeout: c.timeout, WaitForSelector: c.waitFor}
	if page != nil {
		in.Cookies = page.Cookies
		in.UserAgent = page.UserAgent
	}
	return in
}

// send issues one request with one encoding under the per-call timeout.
func (c *Client) send(ctx context.Context, op Operation, enc Encoding, in callInput) (*resty.Response, error) {
	e := encodings[op][enc]

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(callCtx).
		SetBody(e.Build(in)).
		Post(e.Path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, &TransportError{
				Op:        op,
				Message:   fmt.Sprintf("no response within %s", c.timeout),
				Retryable: true,
				Cause:     ErrAutomationTimeout,
			}
		}
		return nil, &TransportError{Op: op, Message: "request failed", Retryable: true, Cause: err}
	}

	if err := classifyResponse(op, enc, resp.StatusCode(), resp.Body()); err != nil {
		return nil, err
	}
	return resp, nil
}

// call runs op through the retry policy. A compatibility rejection of the preferred encoding
// triggers exactly one legacy attempt; once legacy succeeds it is used for later calls.
func (c *Client) call(ctx context.Context, op Operation, in callInput) (*resty.Response, Encoding, error) {
	enc := c.encodingFor(op)
	fellBack := false

	var resp *resty.Response
	err := retry.Do(ctx, c.policy, isRetryable, func(ctx context.Context, attempt int) error {
		r, err := c.send(ctx, op, enc, in)

		var compat *CompatibilityError
		if errors.As(err, &compat) {
			if enc == Legacy || fellBack {
				return escalate(compat)
			}
			c.logger.WarnContext(ctx, "preferred encoding rejected, falling back to legacy",
				"op", op, "status", compat.Status, "message", compat.Message)
			enc, fellBack = Legacy, true
			r, err = c.send(ctx, op, enc, in)
			if errors.As(err, &compat) {
				return escalate(compat)
			}
		}

		if err != nil {
			if isRetryable(err) {
				c.logger.WarnContext(ctx, "browser call failed", "op", op, "attempt", attempt, "error", err)
			}
			return err
		}
		if enc == Legacy {
			c.remember(op, Legacy)
		}
		resp = r
		return nil
	})
	return resp, enc, err
}

type navigateResult struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
	Title  string `json:"title"`
}

// Navigate loads target with the session's cookies and user agent.
func (c *Client) Navigate(ctx context.Context, target string, session *types.Session) (*Page, error) {
	cookies, userAgent, err := sessionCredentials(session)
	if err != nil {
		return nil, err
	}
	page := &Page{URL: target, FinalURL: target, Cookies: cookies, UserAgent: userAgent}

	resp, enc, err := c.call(ctx, OpNavigate, c.input(target, page))
	if err != nil {
		return nil, err
	}

	if enc == Preferred {
		var nav navigateResult
		if err := json.Unmarshal(resp.Body(), &nav); err != nil {
			return nil, &TransportError{Op: OpNavigate, Message: "malformed navigation result", Cause: err}
		}
		if nav.URL != "" {
			page.FinalURL = nav.URL
		}
		page.Status = nav.Status
		page.Title = nav.Title
	} else {
		html := decodeText(resp)
		page.Status = resp.StatusCode()
		finalURL, title, loginForm := pageIdentity(html)
		if finalURL != "" {
			page.FinalURL = finalURL
		}
		page.Title = title
		if loginForm {
			return nil, fmt.Errorf("%w: login form served for %s", ErrLoginRequired, target)
		}
	}

	if isLoginURL(page.FinalURL, c.loginMarker) {
		return nil, fmt.Errorf("%w: redirected to %s", ErrLoginRequired, page.FinalURL)
	}
	return page, nil
}

// Screenshot captures the page as PNG bytes.
func (c *Client) Screenshot(ctx context.Context, page *Page) ([]byte, error) {
	resp, _, err := c.call(ctx, OpScreenshot, c.input(page.Target(), page))
	if err != nil {
		return nil, err
	}

	body := resp.Body()
	if isJSON(resp) {
		var payload struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, &TransportError{Op: OpScreenshot, Message: "malformed screenshot payload", Cause: err}
		}
		img, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			return nil, &TransportError{Op: OpScreenshot, Message: "screenshot is not base64", Cause: err}
		}
		body = img
	}
	if len(body) == 0 {
		return nil, &TransportError{Op: OpScreenshot, Message: "empty screenshot"}
	}
	return body, nil
}

// HTML returns the rendered document.
func (c *Client) HTML(ctx context.Context, page *Page) (string, error) {
	resp, _, err := c.call(ctx, OpHTML, c.input(page.Target(), page))
	if err != nil {
		return "", err
	}
	return decodeText(resp), nil
}

// Evaluate runs script, a JavaScript function expression, in the page with args and returns its
// JSON-encoded result.
func (c *Client) Evaluate(ctx context.Context, page *Page, script string, args ...any) (json.RawMessage, error) {
	in := c.input(page.Target(), page)
	in.Script = script
	in.Args = args

	resp, enc, err := c.call(ctx, OpEvaluate, in)
	if err != nil {
		return nil, err
	}

	body := bytes.TrimSpace(resp.Body())
	if enc == Legacy {
		var wrapped struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data != nil {
			return wrapped.Data, nil
		}
	}
	if len(body) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		return nil, &TransportError{Op: OpEvaluate, Message: "script result is not JSON"}
	}
	return json.RawMessage(body), nil
}

// Health checks that the service answers.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.R().SetContext(ctx).Get("/json/version")
	if err != nil {
		return fmt.Errorf("browser service unreachable: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("browser service unhealthy: HTTP %d", resp.StatusCode())
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

func isJSON(resp *resty.Response) bool {
	return strings.Contains(strings.ToLower(resp.Header().Get("Content-Type")), "application/json")
}

// decodeText unwraps {"data": "..."} replies and returns text replies unchanged.
func decodeText(resp *resty.Response) string {
	if isJSON(resp) {
		var payload struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(resp.Body(), &payload); err == nil {
			return payload.Data
		}
	}
	return resp.String()
}

// pageIdentity reads the canonical URL and title from a document, and reports whether it is a
// login form.
func pageIdentity(html string) (canonical, title string, loginForm bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", false
	}
	canonical = doc.Find(`link[rel="canonical"]`).AttrOr("href", "")
	if canonical == "" {
		canonical = doc.Find(`meta[property="og:url"]`).AttrOr("content", "")
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())
	loginForm = doc.Find(`form input[name="password"]`).Length() > 0
	return canonical, title, loginForm
}

func isLoginURL(raw, marker string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.Contains(raw, marker)
	}
	return strings.Contains(u.Path, marker)
}

var _ Automation = (*Client)(nil)
