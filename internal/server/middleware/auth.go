// Package middleware provides HTTP middleware for API-key authentication.
package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// clientKey is the context key for storing the authenticated client identity.
const clientKey ContextKey = "client"

// APIKeyHeader is the header checked before Authorization.
const APIKeyHeader = "X-API-Key"

// APIKeyMiddleware creates middleware that rejects requests without one of keys, sent either
// as X-API-Key or as an Authorization bearer token. With no keys configured every request
// passes.
func APIKeyMiddleware(keys []string) func(http.Handler) http.Handler {
	hashed := make([][32]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			hashed = append(hashed, sha256.Sum256([]byte(k)))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(hashed) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := presentedKey(r)
			if key == "" {
				unauthorized(w)
				return
			}

			sum := sha256.Sum256([]byte(key))
			matched := false
			for _, h := range hashed {
				if subtle.ConstantTimeCompare(sum[:], h[:]) == 1 {
					matched = true
				}
			}
			if !matched {
				unauthorized(w)
				return
			}

			// Identify the client by a key fingerprint, never the key itself
			ctx := context.WithValue(r.Context(), clientKey, "key:"+hex.EncodeToString(sum[:6]))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientID returns the identity set by APIKeyMiddleware, or "" for unauthenticated requests.
func ClientID(r *http.Request) string {
	id, _ := r.Context().Value(clientKey).(string)
	return id
}

func presentedKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}

	// Handle case-insensitive "Bearer" prefix
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}
