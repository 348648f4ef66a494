package browser

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/social-scraper/internal/retry"
	"github.com/jonathan/social-scraper/internal/types"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type recordedRequest struct {
	Path   string
	Auth   string
	Body   map[string]any
	Method string
}

// fakeService records every request and answers with handler.
type fakeService struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, req recordedRequest, n int)
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	req := recordedRequest{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Method: r.Method}
	_ = json.Unmarshal(raw, &req.Body)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	f.handler(w, req, n)
}

func (f *fakeService) calls() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, req recordedRequest, n int)) (*Client, *fakeService) {
	t.Helper()
	fake := &fakeService{handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL: srv.URL,
		Token:   "test-token",
		Timeout: 2 * time.Second,
		Retry:   retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2},
	}, nil)
	return c, fake
}

func testPage() *Page {
	return &Page{
		URL:       "https://site.example/alice/",
		FinalURL:  "https://site.example/alice/",
		Cookies:   []Cookie{{Name: "sessionid", Value: "abc", Domain: ".site.example", Path: "/"}},
		UserAgent: "Mozilla/5.0 test",
	}
}

func TestScreenshot_FallsBackExactlyOnceAndRemembersLegacy(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, req recordedRequest, _ int) {
		if _, ok := req.Body["userAgent"]; ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`"userAgent" is not allowed`))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})

	img, err := c.Screenshot(t.Context(), testPage())
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img)

	calls := fake.calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Body, "userAgent")
	assert.NotContains(t, calls[1].Body, "userAgent")
	assert.Equal(t, map[string]any{"User-Agent": "Mozilla/5.0 test"}, calls[1].Body["setExtraHTTPHeaders"])
	assert.Equal(t, "Bearer test-token", calls[0].Auth)

	_, err = c.Screenshot(t.Context(), testPage())
	require.NoError(t, err)
	calls = fake.calls()
	require.Len(t, calls, 3)
	assert.NotContains(t, calls[2].Body, "userAgent")
}

func TestScreenshot_LegacyRememberedAfterRetriedSuccess(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, req recordedRequest, n int) {
		if _, ok := req.Body["userAgent"]; ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`"userAgent" is not allowed`))
			return
		}
		if n == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})

	_, err := c.Screenshot(t.Context(), testPage())
	require.NoError(t, err)
	require.Len(t, fake.calls(), 3)

	_, err = c.Screenshot(t.Context(), testPage())
	require.NoError(t, err)
	calls := fake.calls()
	require.Len(t, calls, 4, "the second call goes straight to legacy")
	assert.NotContains(t, calls[3].Body, "userAgent")
}

func TestScreenshot_LegacyRejectedEscalatesWithoutRetry(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, _ recordedRequest, _ int) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`unknown field "options"`))
	})

	_, err := c.Screenshot(t.Context(), testPage())
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.Retryable)

	var compat *CompatibilityError
	require.ErrorAs(t, err, &compat)
	assert.Equal(t, OpScreenshot, compat.Op)

	assert.Len(t, fake.calls(), 2)
}

func TestHTML_RetriesTransportFailures(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, _ recordedRequest, n int) {
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>alice</body></html>"))
	})

	html, err := c.HTML(t.Context(), testPage())
	require.NoError(t, err)
	assert.Contains(t, html, "alice")
	assert.Len(t, fake.calls(), 3)
}

func TestHTML_RetriesExhausted(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, _ recordedRequest, _ int) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.HTML(t.Context(), testPage())

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Len(t, fake.calls(), 3)
}

func TestHTML_UnwrapsJSONData(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ recordedRequest, _ int) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":"<html>wrapped</html>"}`))
	})

	html, err := c.HTML(t.Context(), testPage())
	require.NoError(t, err)
	assert.Equal(t, "<html>wrapped</html>", html)
}

func TestCall_TimeoutClassified(t *testing.T) {
	fake := &fakeService{handler: func(w http.ResponseWriter, _ recordedRequest, _ int) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL: srv.URL,
		Timeout: 20 * time.Millisecond,
		Retry:   retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	}, nil)

	_, err := c.HTML(t.Context(), testPage())
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.True(t, errors.Is(err, ErrAutomationTimeout))
	assert.Len(t, fake.calls(), 2)
}

func TestNavigate_PreferredSendsSessionCredentials(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, _ recordedRequest, _ int) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://site.example/alice/","status":200,"title":"alice"}`))
	})

	session := &types.Session{
		ID:           uuid.New(),
		Username:     "alice",
		UserAgent:    "Mozilla/5.0 session",
		StorageState: json.RawMessage(`{"cookies":[{"name":"sessionid","value":"abc","domain":".site.example","path":"/","expires":-1}]}`),
		Active:       true,
	}

	page, err := c.Navigate(t.Context(), "https://site.example/alice/", session)
	require.NoError(t, err)
	assert.Equal(t, "alice", page.Title)
	assert.Equal(t, 200, page.Status)

	calls := fake.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/function", calls[0].Path)
	ctx, ok := calls[0].Body["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Mozilla/5.0 session", ctx["userAgent"])
	assert.Len(t, ctx["cookies"], 1)
}

func TestNavigate_LoginRedirect(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ recordedRequest, _ int) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://site.example/accounts/login/?next=/alice/","status":200}`))
	})

	_, err := c.Navigate(t.Context(), "https://site.example/alice/", nil)
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestNavigate_LegacyReadsCanonicalURL(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, req recordedRequest, _ int) {
		if req.Path == "/function" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Alice</title><link rel="canonical" href="https://site.example/alice/"></head><body></body></html>`))
	})

	page, err := c.Navigate(t.Context(), "https://site.example/Alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://site.example/alice/", page.FinalURL)
	assert.Equal(t, "Alice", page.Title)

	calls := fake.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/content", calls[1].Path)
}

func TestScreenshot_JSONBase64(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ recordedRequest, _ int) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"data": base64.StdEncoding.EncodeToString(pngBytes)})
	})

	img, err := c.Screenshot(t.Context(), testPage())
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img)
}

func TestEvaluate_LegacyUnwrapsData(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, req recordedRequest, _ int) {
		if req.Path == "/function" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":["https://site.example/p/1/","https://site.example/p/2/"]}`))
	})

	raw, err := c.Evaluate(t.Context(), testPage(), "() => []", 5)
	require.NoError(t, err)

	var links []string
	require.NoError(t, json.Unmarshal(raw, &links))
	assert.Len(t, links, 2)

	calls := fake.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/execute", calls[1].Path)
	assert.Equal(t, "() => []", calls[1].Body["code"])
}

func TestHealth(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, _ recordedRequest, _ int) {
		_, _ = w.Write([]byte(`{"Browser":"HeadlessChrome"}`))
	})

	require.NoError(t, c.Health(t.Context()))
	calls := fake.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, "/json/version", calls[0].Path)
}
