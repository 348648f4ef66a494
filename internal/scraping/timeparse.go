package scraping

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativePattern = regexp.MustCompile(`^(\d+|an?|one)\s*([a-z]+)(?:\s+ago)?$`)

var relativeUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "wk": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	time.DateOnly,
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2",
	"Jan 2",
}

// ParsePostedAt interprets a post timestamp as shown on the page: RFC 3339 or a date, or
// relative text such as "44 minutes ago", "3 days ago", "2h" or "1w". Dates without a year
// are placed in the most recent past year.
func ParsePostedAt(text string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return time.Time{}, false
	}

	switch s {
	case "now", "just now":
		return now, true
	case "yesterday":
		return now.Add(-24 * time.Hour), true
	}

	if m := relativePattern.FindStringSubmatch(s); m != nil {
		unit, ok := relativeUnits[m[2]]
		if !ok {
			return time.Time{}, false
		}
		n := 1
		if v, err := strconv.Atoi(m[1]); err == nil {
			n = v
		}
		return now.Add(-time.Duration(n) * unit), true
	}

	for _, layout := range absoluteLayouts {
		t, err := time.Parse(layout, strings.TrimSpace(text))
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			t = t.AddDate(now.Year(), 0, 0)
			if t.After(now) {
				t = t.AddDate(-1, 0, 0)
			}
		}
		return t, true
	}
	return time.Time{}, false
}

// withinDays reports whether t falls inside the last days days before now.
func withinDays(t, now time.Time, days int) bool {
	return !t.Before(now.Add(-time.Duration(days) * 24 * time.Hour))
}
