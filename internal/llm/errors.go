package llm

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// rateLimitMarkers are substrings providers put in quota and throttling errors.
var rateLimitMarkers = []string{
	"resource_exhausted",
	"rate_limit_exceeded",
	"rate limit",
	"quota",
	"too many requests",
}

// StatusCode returns the HTTP status carried by a provider error, or 0.
func StatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// IsRateLimit reports whether err is a rate-limit or quota rejection.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if StatusCode(err) == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsTransient reports whether a call that failed with err may succeed if repeated.
func IsTransient(err error) bool {
	if IsRateLimit(err) {
		return true
	}
	if code := StatusCode(err); code >= 500 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unavailable") || strings.Contains(msg, "deadline exceeded")
}
