package carriers

import (
	"regexp"
	"strings"
	"time"
)

// The three literal date formats observed in carrier emails.
var dateLayouts = []string{
	"02.01.2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
}

var datePattern = regexp.MustCompile(`\b(\d{2}[.-]\d{2}[.-]\d{4}|\d{4}-\d{2}-\d{2}(?: \d{2}:\d{2}:\d{2})?)\b`)

// ParseEmailDate parses a date string against the known literal formats.
func ParseEmailDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Date-only variant of the timestamp format.
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// NormalizeDate converts any recognized date string to DD.MM.YYYY. Strings
// that do not parse are returned unchanged; the pipeline accepts free-text
// dates rather than dropping them.
func NormalizeDate(s string) string {
	if t, ok := ParseEmailDate(s); ok {
		return t.Format("02.01.2006")
	}
	return strings.TrimSpace(s)
}

// FindDate returns the first date-looking token in text, normalized.
func FindDate(text string) string {
	m := datePattern.FindString(text)
	if m == "" {
		return ""
	}
	return NormalizeDate(m)
}
