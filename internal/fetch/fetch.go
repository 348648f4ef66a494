// Package fetch provides HTML-to-text processing and link discovery for captured pages.
// Captures come from the browser service; this package only reads them.
package fetch

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxTextChars caps the page text handed to the model.
const DefaultMaxTextChars = 8000

// Error represents an error while processing a captured page.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("page error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("page error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// noiseSelectors are removed before text extraction.
const noiseSelectors = "script, style, noscript, svg, template, iframe, link, .cookie-banner, [role='dialog'] footer"

// PageText distills a captured document into prompt text: page metadata first (social sites put
// follower counts in og:description), then visible text, then the page's links. The result is
// capped at maxChars runes; maxChars <= 0 means DefaultMaxTextChars.
func PageText(html string, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = DefaultMaxTextChars
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var sb strings.Builder

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		sb.WriteString("Title: ")
		sb.WriteString(title)
		sb.WriteString("\n")
	}
	doc.Find(`meta[name="description"], meta[property="og:description"], meta[property="og:title"]`).Each(func(_ int, s *goquery.Selection) {
		if content := strings.TrimSpace(s.AttrOr("content", "")); content != "" {
			key := s.AttrOr("property", s.AttrOr("name", "meta"))
			sb.WriteString(key)
			sb.WriteString(": ")
			sb.WriteString(content)
			sb.WriteString("\n")
		}
	})

	doc.Find(noiseSelectors).Remove()

	body := doc.Find("body")
	if text := cleanWhitespace(body.Text()); text != "" {
		sb.WriteString("\n")
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	var links []string
	seen := map[string]bool{}
	body.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || seen[href] {
			return
		}
		seen[href] = true
		label := cleanWhitespace(s.Text())
		if label == "" {
			label = s.AttrOr("aria-label", "")
		}
		links = append(links, fmt.Sprintf("- %s (%s)", strings.ReplaceAll(label, "\n", " "), href))
	})
	if len(links) > 0 {
		sb.WriteString("\nLinks:\n")
		sb.WriteString(strings.Join(links, "\n"))
		sb.WriteString("\n")
	}

	return truncateRunes(sb.String(), maxChars), nil
}

// ExtractLinks returns the absolute URLs of anchors in html, resolved against baseURL, that
// match keep. Order of first appearance is preserved and duplicates are dropped.
func ExtractLinks(html, baseURL string, keep func(*url.URL) bool) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &Error{URL: baseURL, Message: "invalid base URL", Cause: err}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &Error{URL: baseURL, Message: "failed to parse HTML", Cause: err}
	}

	var out []string
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		ref, err := url.Parse(strings.TrimSpace(s.AttrOr("href", "")))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.RawQuery = ""
		abs.Fragment = ""
		if keep != nil && !keep(abs) {
			return
		}
		key := abs.String()
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, key)
	})
	return out, nil
}

// cleanWhitespace normalizes whitespace in text.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
