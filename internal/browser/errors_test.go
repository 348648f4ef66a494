package browser

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCompat bool
		wantRetry  bool
		wantTime   bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "field not allowed", status: http.StatusBadRequest, body: `"fullPage" is not allowed`, wantCompat: true},
		{name: "schema mismatch", status: http.StatusUnprocessableEntity, body: "request does not match schema", wantCompat: true},
		{name: "unknown route", status: http.StatusNotFound, wantCompat: true},
		{name: "plain bad request", status: http.StatusBadRequest, body: "url is required"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: "bad token"},
		{name: "rate limited", status: http.StatusTooManyRequests, wantRetry: true},
		{name: "server error", status: http.StatusInternalServerError, wantRetry: true},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, wantRetry: true, wantTime: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyResponse(OpScreenshot, Preferred, tt.status, []byte(tt.body))
			if tt.status == http.StatusOK {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)

			var compat *CompatibilityError
			assert.Equal(t, tt.wantCompat, errors.As(err, &compat))
			assert.Equal(t, tt.wantRetry, isRetryable(err))
			assert.Equal(t, tt.wantTime, IsTimeout(err))
		})
	}
}

func TestEscalate_NotRetryable(t *testing.T) {
	err := escalate(&CompatibilityError{Op: OpHTML, Encoding: Legacy, Status: 400, Message: "nope"})
	assert.False(t, isRetryable(err))
	assert.Contains(t, err.Error(), "no compatible request encoding")
}

func TestCookiesFromStorageState(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	raw := json.RawMessage(`{"cookies":[
		{"name":"sessionid","value":"a","domain":".site.example","path":"/","expires":1800000000,"httpOnly":true,"secure":true},
		{"name":"expired","value":"b","domain":".site.example","path":"/","expires":1600000000},
		{"name":"session_only","value":"c","domain":".site.example","path":"/","expires":-1},
		{"name":"","value":"d"}
	],"origins":[]}`)

	cookies, err := CookiesFromStorageState(raw, now)
	require.NoError(t, err)
	require.Len(t, cookies, 2)
	assert.Equal(t, "sessionid", cookies[0].Name)
	assert.True(t, cookies[0].HTTPOnly)
	assert.Equal(t, "session_only", cookies[1].Name)
	assert.Zero(t, cookies[1].Expires)
}

func TestCookiesFromStorageState_Malformed(t *testing.T) {
	_, err := CookiesFromStorageState(json.RawMessage(`not json`), time.Now())
	assert.Error(t, err)
}

func TestEncodings_CoverEveryOperation(t *testing.T) {
	in := callInput{URL: "https://site.example/alice/", UserAgent: "ua", Timeout: time.Second}
	for _, op := range []Operation{OpNavigate, OpScreenshot, OpHTML, OpEvaluate} {
		for _, enc := range []Encoding{Preferred, Legacy} {
			e, ok := encodings[op][enc]
			require.True(t, ok, "%s/%s", op, enc)
			assert.NotEmpty(t, e.Path)
			assert.NotNil(t, e.Build(in))
		}
		assert.NotContains(t, encodings[op][Legacy].Build(in), "userAgent")
	}
}
