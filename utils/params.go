package utils

import "strconv"

const (
	DefaultDays  = 30
	DefaultLimit = 10

	maxDays  = 365
	maxLimit = 100
)

// ParseDays parses a trailing-window size, falling back to the default on
// anything non-numeric or out of range. Retention caps the window at a year.
func ParseDays(s string) int {
	return parseBounded(s, DefaultDays, maxDays)
}

// ParseLimit parses a result cap with the same fallback behavior.
func ParseLimit(s string) int {
	return parseBounded(s, DefaultLimit, maxLimit)
}

func parseBounded(s string, def, max int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
