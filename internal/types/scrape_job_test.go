//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	all := []JobStatus{JobPending, JobRunning, JobCompleted, JobFailed}
	allowed := map[JobStatus][]JobStatus{
		JobPending: {JobRunning},
		JobRunning: {JobCompleted, JobFailed},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobPending.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.False(t, JobStatus("paused").Valid())
}

func TestScrapeRequest_Validation(t *testing.T) {
	validate := validator.New()
	empty := ""

	tests := []struct {
		name    string
		request ScrapeRequest
		wantErr bool
	}{
		{name: "minimal", request: ScrapeRequest{ProfileURL: "alice"}},
		{name: "with options", request: ScrapeRequest{ProfileURL: "alice", MaxPosts: 10, RecentDays: 7}},
		{name: "missing url", request: ScrapeRequest{}, wantErr: true},
		{name: "too many posts", request: ScrapeRequest{ProfileURL: "alice", MaxPosts: 51}, wantErr: true},
		{name: "empty session hint", request: ScrapeRequest{ProfileURL: "alice", SessionUsername: &empty}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.request)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSession_ViewHidesStorageState(t *testing.T) {
	s := &Session{
		ID:           uuid.New(),
		Username:     "alice",
		StorageState: json.RawMessage(`{"cookies":[{"name":"sessionid","value":"secret"},{"name":"csrftoken","value":"x"}],"origins":[]}`),
		Active:       true,
		CreatedAt:    time.Now(),
	}

	view := s.View()
	assert.Equal(t, 2, view.CookieCount)
	assert.Equal(t, "alice", view.Username)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
}

func TestParseStorageState_Empty(t *testing.T) {
	state, err := ParseStorageState(nil)
	require.NoError(t, err)
	assert.Empty(t, state.Cookies)

	_, err = ParseStorageState(json.RawMessage(`{"cookies":`))
	assert.Error(t, err)
}

func TestBuildJobResults(t *testing.T) {
	job := &ScrapeJob{ID: uuid.New(), Status: JobCompleted}
	profile := &Profile{ID: uuid.New(), Username: "alice"}
	p1 := Post{ID: uuid.New(), ProfileID: profile.ID, PostURL: "https://site.example/p/1/"}
	p2 := Post{ID: uuid.New(), ProfileID: profile.ID, PostURL: "https://site.example/p/2/"}
	interactions := []Interaction{
		{ID: uuid.New(), PostID: p1.ID, Type: InteractionLike, UserUsername: "bob"},
		{ID: uuid.New(), PostID: p1.ID, Type: InteractionComment, UserUsername: "carol"},
		{ID: uuid.New(), PostID: uuid.New(), Type: InteractionLike, UserUsername: "orphan"},
	}

	res := BuildJobResults(job, profile, []Post{p1, p2}, interactions)

	require.NotNil(t, res.Profile)
	assert.Equal(t, 2, res.TotalPosts)
	assert.Equal(t, 2, res.TotalInteractions)
	assert.Len(t, res.Profile.Posts[0].Interactions, 2)
	assert.NotNil(t, res.Profile.Posts[1].Interactions)
	assert.Empty(t, res.Profile.Posts[1].Interactions)
}

func TestBuildJobResults_NoProfile(t *testing.T) {
	res := BuildJobResults(&ScrapeJob{ID: uuid.New(), Status: JobCompleted}, nil, nil, nil)
	assert.Nil(t, res.Profile)
	assert.Zero(t, res.TotalPosts)
}
