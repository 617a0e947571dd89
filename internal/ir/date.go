package ir

import (
	"strings"
	"time"
)

// dateLayouts are tried in order. The short forms are what an HTML
// datetime-local input produces.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate parses an ISO-8601 booking date. Values without a zone are
// interpreted in UTC so ordering never depends on the host timezone.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// When returns the parsed booking date and whether it parsed.
func (b Booking) When() (time.Time, bool) {
	return ParseDate(b.Date)
}
