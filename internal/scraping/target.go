package scraping

import (
	"net/url"
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9._]{1,30}$`)

// Top-level paths on the profile host that are not accounts.
var reservedPaths = map[string]bool{
	"p": true, "reel": true, "reels": true, "explore": true, "accounts": true,
	"stories": true, "direct": true, "tv": true, "about": true, "legal": true,
}

// NormalizeTarget turns a bare username, "host/username" or a full profile URL on host into
// the canonical "https://<host>/<username>/" form and returns the lowercased username.
func NormalizeTarget(raw, host string) (string, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", "", &ValidationError{Field: "profile_url", Message: "is required"}
	}

	var username string
	switch {
	case strings.HasPrefix(s, "@") || !strings.ContainsAny(s, "/."):
		username = strings.TrimPrefix(s, "@")
	default:
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "", "", &ValidationError{Field: "profile_url", Message: "is not a URL"}
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", "", &ValidationError{Field: "profile_url", Message: "must use http or https"}
		}
		if !sameHost(u.Hostname(), host) {
			return "", "", &ValidationError{Field: "profile_url", Message: "must be on " + host}
		}
		segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
		if len(segments) != 1 {
			return "", "", &ValidationError{Field: "profile_url", Message: "must point at a profile"}
		}
		username = segments[0]
	}

	username = strings.ToLower(username)
	if reservedPaths[username] || !usernamePattern.MatchString(username) {
		return "", "", &ValidationError{Field: "profile_url", Message: "does not name a valid account"}
	}
	return "https://" + host + "/" + username + "/", username, nil
}

func sameHost(a, b string) bool {
	trim := func(h string) string { return strings.TrimPrefix(strings.ToLower(h), "www.") }
	return trim(a) == trim(b)
}

// postURL returns the canonical form of a post link on host, or "" when u is not a post.
func postURL(u *url.URL, host string) string {
	if !sameHost(u.Hostname(), host) {
		return ""
	}
	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	// /p/<code>/ or /<username>/p/<code>/
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "p" || segments[i] == "reel" {
			return "https://" + host + "/" + segments[i] + "/" + segments[i+1] + "/"
		}
	}
	return ""
}
