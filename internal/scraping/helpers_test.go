package scraping

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/social-scraper/internal/browser"
	"github.com/jonathan/social-scraper/internal/extraction"
	"github.com/jonathan/social-scraper/internal/sessions"
	"github.com/jonathan/social-scraper/internal/types"
)

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		username string
		wantErr  bool
	}{
		{in: "alice", want: "https://site.example/alice/", username: "alice"},
		{in: "@Alice", want: "https://site.example/alice/", username: "alice"},
		{in: "site.example/alice", want: "https://site.example/alice/", username: "alice"},
		{in: "https://www.site.example/alice.b_c/?hl=en#top", want: "https://site.example/alice.b_c/", username: "alice.b_c"},
		{in: "http://site.example/ALICE", want: "https://site.example/alice/", username: "alice"},
		{in: "", wantErr: true},
		{in: "https://evil.example/alice/", wantErr: true},
		{in: "https://site.example/p/AAA/", wantErr: true},
		{in: "https://site.example/explore", wantErr: true},
		{in: "https://site.example/", wantErr: true},
		{in: "ftp://site.example/alice", wantErr: true},
		{in: "bad name!", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, username, err := NormalizeTarget(tt.in, host)
			if tt.wantErr {
				var invalid *ValidationError
				assert.ErrorAs(t, err, &invalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.username, username)
		})
	}
}

func TestPostURL(t *testing.T) {
	parse := func(s string) *url.URL {
		u, err := url.Parse(s)
		require.NoError(t, err)
		return u
	}
	assert.Equal(t, "https://site.example/p/AAA/", postURL(parse("https://site.example/p/AAA/?igsh=x"), host))
	assert.Equal(t, "https://site.example/reel/BBB/", postURL(parse("https://www.site.example/reel/BBB"), host))
	assert.Equal(t, "https://site.example/p/CCC/", postURL(parse("https://site.example/alice/p/CCC/"), host))
	assert.Empty(t, postURL(parse("https://site.example/alice/"), host))
	assert.Empty(t, postURL(parse("https://other.example/p/AAA/"), host))
}

func TestParsePostedAt(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"44 minutes ago", now.Add(-44 * time.Minute)},
		{"1 minute ago", now.Add(-time.Minute)},
		{"3 days ago", now.Add(-72 * time.Hour)},
		{"2h", now.Add(-2 * time.Hour)},
		{"1w", now.Add(-7 * 24 * time.Hour)},
		{"an hour ago", now.Add(-time.Hour)},
		{"just now", now},
		{"yesterday", now.Add(-24 * time.Hour)},
		{"2025-03-01T08:00:00Z", time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"March 1, 2025", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"December 24", time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParsePostedAt(tt.in, now)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}

	for _, bad := range []string{"", "sometime", "3 fortnights ago"} {
		_, ok := ParsePostedAt(bad, now)
		assert.False(t, ok, bad)
	}
}

func TestWithinDays(t *testing.T) {
	now := time.Now()
	recent, _ := ParsePostedAt("44 minutes ago", now)
	old, _ := ParsePostedAt("4 days ago", now)
	assert.True(t, withinDays(recent, now, 3))
	assert.False(t, withinDays(old, now, 3))
}

func TestInteractionSet(t *testing.T) {
	set := newInteractionSet(host)
	post := "https://site.example/p/AAA/"

	first := set.add(post, []extraction.InteractionFields{
		{Type: " Comment ", Username: "@Bob", CommentText: ptr("  hi  "), CommentReplies: ptr(1)},
		{Type: "save", Username: "carol", CommentText: ptr("ignored"), CommentLikes: ptr(4), UserIsPrivate: ptr(true)},
		{Type: "share", Username: "   "},
	})
	require.Len(t, first, 2)
	assert.Equal(t, types.InteractionComment, first[0].Type)
	assert.Equal(t, "hi", *first[0].CommentText)
	assert.Equal(t, "https://site.example/bob/", first[0].UserURL)
	assert.Nil(t, first[1].CommentText)
	assert.Nil(t, first[1].CommentLikes)
	assert.True(t, first[1].UserIsPrivate)

	again := set.add(post, []extraction.InteractionFields{{Type: "comment", Username: "bob"}})
	assert.Empty(t, again)
	assert.NotNil(t, again)

	other := set.add("https://site.example/p/BBB/", []extraction.InteractionFields{{Type: "comment", Username: "bob"}})
	assert.Len(t, other, 1)
}

func TestClassify(t *testing.T) {
	live := context.Background()
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"session", &sessions.UnavailableError{Hint: "x"}, types.ErrCodeSessionUnavailable},
		{"login", fmt.Errorf("profile: %w", browser.ErrLoginRequired), types.ErrCodeLoginRequired},
		{"timeout", &browser.TransportError{Op: browser.OpHTML, Cause: browser.ErrAutomationTimeout}, types.ErrCodeAutomationTimeout},
		{"transport", &browser.TransportError{Op: browser.OpHTML, Status: 500}, types.ErrCodeAutomationFailed},
		{"compat", &browser.CompatibilityError{Op: browser.OpHTML, Status: 400}, types.ErrCodeAutomationFailed},
		{"extraction", fmt.Errorf("post: %w", &extraction.ExtractionFailedError{Kind: extraction.KindPost, Attempts: 3}), types.ErrCodeExtractionFailed},
		{"persistence", &PersistenceError{Cause: errors.New("deadlock")}, types.ErrCodePersistenceFailed},
		{"other", errors.New("boom"), types.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := classify(live, tt.err)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, msg)
		})
	}

	expired, cancel := context.WithTimeoutCause(context.Background(), 0, ErrJobTimeout)
	defer cancel()
	<-expired.Done()
	code, _ := classify(expired, &browser.TransportError{Op: browser.OpNavigate, Cause: context.DeadlineExceeded})
	assert.Equal(t, types.ErrCodeJobTimeout, code)
}

func TestProgressHub_DropsSlowSubscribersButCloses(t *testing.T) {
	hub := newProgressHub()
	job := &types.ScrapeJob{Status: types.JobRunning}
	events, cancel := hub.subscribe(job.ID)
	defer cancel()

	for i := 0; i < 100; i++ {
		hub.publish(ProgressEvent{JobID: job.ID, Status: types.JobRunning})
	}
	hub.publish(ProgressEvent{JobID: job.ID, Status: types.JobCompleted})

	n := 0
	for range events {
		n++
	}
	assert.Equal(t, 32, n)
}
