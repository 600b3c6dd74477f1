package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseIntervalLevel parses the coverage of a forecast interval from either
// p-notation (p80, p95) or decimal notation (0.80, 0.95).
//
// Examples:
//   - "p95" → 0.95
//   - "P80" → 0.80
//   - "0.9" → 0.90
//   - "0" or "" → 0 (no interval)
//
// Levels must lie in [0, 1); a 100% interval is unbounded.
func ParseIntervalLevel(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	if rest, ok := strings.CutPrefix(strings.ToLower(s), "p"); ok {
		pct, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid p-notation %q: %w", s, err)
		}
		if pct < 0 || pct >= 100 {
			return 0, fmt.Errorf("percentile %v out of range [0, 100)", pct)
		}
		return pct / 100, nil
	}

	level, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid interval level %q: %w", s, err)
	}
	if level < 0 || level >= 1 {
		return 0, fmt.Errorf("interval level %v out of range [0, 1)", level)
	}
	return level, nil
}

// FormatIntervalLevel formats a level in p-notation, e.g. 0.95 → "p95".
func FormatIntervalLevel(level float64) string {
	if level == 0 {
		return "disabled"
	}
	pct := math.Round(level*1000) / 10
	if pct == math.Trunc(pct) {
		return fmt.Sprintf("p%d", int(pct))
	}
	return fmt.Sprintf("p%.1f", pct)
}
