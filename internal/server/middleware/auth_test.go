package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, keys []string, setup func(r *http.Request)) (*httptest.ResponseRecorder, string, bool) {
	t.Helper()
	called := false
	var client string
	handler := APIKeyMiddleware(keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		client = ClientID(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, client, called
}

func TestAPIKeyMiddleware_HeaderKey(t *testing.T) {
	w, client, called := serve(t, []string{"secret"}, func(r *http.Request) {
		r.Header.Set(APIKeyHeader, "secret")
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
	assert.Contains(t, client, "key:")
	assert.NotContains(t, client, "secret")
}

func TestAPIKeyMiddleware_BearerKey(t *testing.T) {
	w, _, called := serve(t, []string{"one", "two"}, func(r *http.Request) {
		r.Header.Set("Authorization", "bearer two")
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}

func TestAPIKeyMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"missing", nil},
		{"wrong key", func(r *http.Request) { r.Header.Set(APIKeyHeader, "nope") }},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic c2VjcmV0") }},
		{"empty bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _, called := serve(t, []string{"secret"}, tt.setup)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			assert.False(t, called)
			assert.Contains(t, w.Body.String(), "unauthorized")
		})
	}
}

func TestAPIKeyMiddleware_NoKeysConfigured(t *testing.T) {
	w, client, called := serve(t, []string{"  "}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
	assert.Empty(t, client)
}
