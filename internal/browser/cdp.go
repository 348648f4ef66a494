package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/jonathan/social-scraper/internal/retry"
	"github.com/jonathan/social-scraper/internal/types"
)

// CDP error codes that mean the remote browser does not support a method or its parameters.
const (
	cdpMethodNotFound = -32601
	cdpInvalidParams  = -32602
)

// CDPClient drives the browser service over the DevTools protocol. Each Page is a tab that
// stays open until Page.Release.
type CDPClient struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	timeout     time.Duration
	policy      retry.Policy
	loginMarker string
	logger      *slog.Logger
}

// NewCDPClient attaches to the browser at wsURL (for example ws://browserless:3000?token=...).
func NewCDPClient(wsURL string, cfg Config, logger *slog.Logger) *CDPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LoginPathMarker == "" {
		cfg.LoginPathMarker = DefaultLoginPathMarker
	}
	if logger == nil {
		logger = slog.Default()
	}

	allocCtx, cancel := chromedp.NewRemoteAllocator(context.Background(), wsURL)
	return &CDPClient{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		timeout:     cfg.Timeout,
		policy:      cfg.Retry,
		loginMarker: cfg.LoginPathMarker,
		logger:      logger.With("component", "browser", "driver", "cdp"),
	}
}

// run executes actions in an already opened tab, bounded by the per-call timeout and by ctx.
// Cancelling a later Run's context leaves the tab open.
func (c *CDPClient) run(ctx context.Context, op Operation, tab context.Context, actions ...chromedp.Action) error {
	return retry.Do(ctx, c.policy, isRetryable, func(ctx context.Context, attempt int) error {
		runCtx, cancel := context.WithTimeout(tab, c.timeout)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		err := chromedp.Run(runCtx, actions...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			c.logger.WarnContext(ctx, "cdp call timed out", "op", op, "attempt", attempt)
			return &TransportError{Op: op, Message: fmt.Sprintf("no response within %s", c.timeout), Retryable: true, Cause: ErrAutomationTimeout}
		}
		var cdpErr *cdproto.Error
		if errors.As(err, &cdpErr) && (cdpErr.Code == cdpMethodNotFound || cdpErr.Code == cdpInvalidParams) {
			return &CompatibilityError{Op: op, Status: int(cdpErr.Code), Message: cdpErr.Message}
		}
		return &TransportError{Op: op, Message: "cdp call failed", Cause: err}
	})
}

// runWithFallback runs the preferred actions and, on a compatibility rejection, the legacy ones once.
func (c *CDPClient) runWithFallback(ctx context.Context, op Operation, tab context.Context, preferred, legacy []chromedp.Action) error {
	err := c.run(ctx, op, tab, preferred...)
	var compat *CompatibilityError
	if !errors.As(err, &compat) {
		return err
	}
	c.logger.WarnContext(ctx, "preferred cdp call rejected, falling back to legacy", "op", op, "message", compat.Message)

	err = c.run(ctx, op, tab, legacy...)
	if errors.As(err, &compat) {
		compat.Encoding = Legacy
		return escalate(compat)
	}
	return err
}

// openTab allocates a tab. The first chromedp.Run on a context owns the browser connection
// and target for the context's lifetime, so it runs on the untimed tab context; the call
// timeout and ctx are enforced by releasing the tab instead.
func (c *CDPClient) openTab(ctx context.Context, op Operation) (context.Context, context.CancelFunc, error) {
	tabCtx, release := chromedp.NewContext(c.allocCtx)

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx) }()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			release()
			return nil, nil, &TransportError{Op: op, Message: "failed to open browser tab", Retryable: true, Cause: err}
		}
		return tabCtx, release, nil
	case <-timer.C:
		release()
		c.logger.WarnContext(ctx, "cdp tab did not open in time", "op", op)
		return nil, nil, &TransportError{Op: op, Message: fmt.Sprintf("no tab within %s", c.timeout), Retryable: true, Cause: ErrAutomationTimeout}
	case <-ctx.Done():
		release()
		return nil, nil, ctx.Err()
	}
}

func (c *CDPClient) tab(page *Page) (context.Context, error) {
	if page == nil || page.tab == nil {
		return nil, errors.New("page has no open tab")
	}
	if page.tab.Err() != nil {
		return nil, errors.New("page tab already released")
	}
	return page.tab, nil
}

// Navigate opens a tab, installs the session's cookies and user agent, and loads target.
func (c *CDPClient) Navigate(ctx context.Context, target string, session *types.Session) (*Page, error) {
	cookies, userAgent, err := sessionCredentials(session)
	if err != nil {
		return nil, err
	}

	var tabCtx context.Context
	var release context.CancelFunc
	err = retry.Do(ctx, c.policy, isRetryable, func(ctx context.Context, _ int) error {
		var openErr error
		tabCtx, release, openErr = c.openTab(ctx, OpNavigate)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	page := &Page{URL: target, Cookies: cookies, UserAgent: userAgent, tab: tabCtx, release: release}

	setup := chromedp.ActionFunc(func(ctx context.Context) error {
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return err
			}
		}
		for _, ck := range cookies {
			params := network.SetCookie(ck.Name, ck.Value).
				WithDomain(ck.Domain).
				WithPath(ck.Path).
				WithHTTPOnly(ck.HTTPOnly).
				WithSecure(ck.Secure)
			if ck.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
				params = params.WithExpires(&expires)
			}
			if ck.SameSite != "" {
				params = params.WithSameSite(network.CookieSameSite(ck.SameSite))
			}
			if err := params.Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})

	err = c.run(ctx, OpNavigate, tabCtx,
		setup,
		chromedp.Navigate(target),
		chromedp.WaitReady("body"),
		chromedp.Location(&page.FinalURL),
		chromedp.Title(&page.Title),
	)
	if err != nil {
		page.Release()
		return nil, err
	}

	if isLoginURL(page.FinalURL, c.loginMarker) {
		page.Release()
		return nil, fmt.Errorf("%w: redirected to %s", ErrLoginRequired, page.FinalURL)
	}
	return page, nil
}

// Screenshot captures the full page, falling back to the viewport.
func (c *CDPClient) Screenshot(ctx context.Context, page *Page) ([]byte, error) {
	tab, err := c.tab(page)
	if err != nil {
		return nil, err
	}
	var buf []byte
	err = c.runWithFallback(ctx, OpScreenshot, tab,
		[]chromedp.Action{chromedp.FullScreenshot(&buf, 90)},
		[]chromedp.Action{chromedp.CaptureScreenshot(&buf)},
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// HTML returns the document's outer HTML.
func (c *CDPClient) HTML(ctx context.Context, page *Page) (string, error) {
	tab, err := c.tab(page)
	if err != nil {
		return "", err
	}
	var html string
	err = c.runWithFallback(ctx, OpHTML, tab,
		[]chromedp.Action{chromedp.OuterHTML("html", &html)},
		[]chromedp.Action{chromedp.Evaluate(`document.documentElement.outerHTML`, &html)},
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

// Evaluate runs script, a JavaScript function expression, with args in the page.
func (c *CDPClient) Evaluate(ctx context.Context, page *Page, script string, args ...any) (json.RawMessage, error) {
	tab, err := c.tab(page)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(nonNilArgs(args))
	if err != nil {
		return nil, fmt.Errorf("failed to encode script args: %w", err)
	}
	expr := fmt.Sprintf("(%s)(...%s)", strings.TrimSpace(script), encoded)

	var raw []byte
	err = c.runWithFallback(ctx, OpEvaluate, tab,
		[]chromedp.Action{chromedp.Evaluate(expr, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		})},
		[]chromedp.Action{chromedp.Evaluate(expr, &raw)},
	)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(raw), nil
}

// Health opens and closes a tab.
func (c *CDPClient) Health(ctx context.Context) error {
	_, release, err := c.openTab(ctx, OpNavigate)
	if err != nil {
		return fmt.Errorf("browser service unreachable: %w", err)
	}
	release()
	return nil
}

// Close disconnects from the remote browser.
func (c *CDPClient) Close() error {
	c.cancelAlloc()
	return nil
}

var _ Automation = (*CDPClient)(nil)
