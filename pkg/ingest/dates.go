package ingest

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order. ISO layouts come first so that ambiguous
// day/month strings are only read month-first when nothing else matches.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006-01",
	"2006/01",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/06",
	"1/2/06 15:04",
	"01-02-06",
	"02.01.2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"02-Jan-2006",
	"2-Jan-06",
	"Jan 2006",
	"January 2006",
	"2006",
}

// ParseDate parses a single index value.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseDates parses every index value, stopping at the first failure.
func ParseDates(values []string) ([]time.Time, int, error) {
	out := make([]time.Time, len(values))
	for i, v := range values {
		t, err := ParseDate(v)
		if err != nil {
			return nil, i, err
		}
		out[i] = t
	}
	return out, -1, nil
}
