package browser

import (
	"encoding/json"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/social-scraper/internal/retry"
	"github.com/jonathan/social-scraper/internal/types"
)

// silentListener accepts connections and never answers on them.
func silentListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func cdpTestConfig(timeout time.Duration) Config {
	return Config{
		Timeout: timeout,
		Retry:   retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2},
	}
}

func TestCDPNavigate_UnresponsiveServiceTimesOut(t *testing.T) {
	c := NewCDPClient("ws://"+silentListener(t), cdpTestConfig(100*time.Millisecond), nil)
	defer c.Close() //nolint:errcheck

	start := time.Now()
	page, err := c.Navigate(t.Context(), "https://site.example/alice/", nil)
	require.Error(t, err)
	assert.Nil(t, page)
	assert.True(t, IsTimeout(err), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.True(t, IsTimeout(c.Health(t.Context())))
}

func TestCDPNavigate_RefusedConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := NewCDPClient("ws://"+addr, cdpTestConfig(2*time.Second), nil)
	defer c.Close() //nolint:errcheck

	_, err = c.Navigate(t.Context(), "https://site.example/alice/", nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpNavigate, te.Op)
	assert.False(t, IsTimeout(err))
}

func TestCDPOperations_ReleasedPage(t *testing.T) {
	c := NewCDPClient("ws://127.0.0.1:1", cdpTestConfig(time.Second), nil)
	defer c.Close() //nolint:errcheck

	_, err := c.HTML(t.Context(), &Page{URL: "https://site.example/alice/"})
	assert.ErrorContains(t, err, "no open tab")
}

// TestCDPClient_LiveBrowser drives a real browser across several calls on one page. It runs
// only when CDP_TEST_WS_URL points at a DevTools endpoint.
func TestCDPClient_LiveBrowser(t *testing.T) {
	wsURL := os.Getenv("CDP_TEST_WS_URL")
	if wsURL == "" {
		t.Skip("CDP_TEST_WS_URL not set")
	}
	c := NewCDPClient(wsURL, cdpTestConfig(20*time.Second), nil)
	defer c.Close() //nolint:errcheck

	require.NoError(t, c.Health(t.Context()))

	session := &types.Session{UserAgent: "scraper-test/1.0", StorageState: json.RawMessage(`{"cookies":[]}`)}
	page, err := c.Navigate(t.Context(), `data:text/html,<title>alice</title><body><a href="/p/AAA/">a</a></body>`, session)
	require.NoError(t, err)
	defer page.Release()
	assert.Equal(t, "alice", page.Title)

	shot, err := c.Screenshot(t.Context(), page)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)

	html, err := c.HTML(t.Context(), page)
	require.NoError(t, err)
	assert.Contains(t, html, "/p/AAA/")

	raw, err := c.Evaluate(t.Context(), page, `() => navigator.userAgent`)
	require.NoError(t, err)
	var ua string
	require.NoError(t, json.Unmarshal(raw, &ua))
	assert.Equal(t, "scraper-test/1.0", ua)

	page.Release()
	_, err = c.HTML(t.Context(), page)
	assert.ErrorContains(t, err, "already released")
}
