package schedule

import (
	"fmt"
	"strings"
)

// ParseError reports a malformed wall-clock time string.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse clock %q: %s", e.Input, e.Reason)
}

// ParseClock converts "HH:MM" or "HH:MM:SS" into minutes since midnight.
// Malformed input is an error, never a silent zero.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, &ParseError{Input: s, Reason: "want HH:MM or HH:MM:SS"}
	}
	h, err := parseTwoDigit(parts[0])
	if err != nil {
		return 0, &ParseError{Input: s, Reason: "bad hour"}
	}
	m, err := parseTwoDigit(parts[1])
	if err != nil {
		return 0, &ParseError{Input: s, Reason: "bad minute"}
	}
	if h > 23 {
		return 0, &ParseError{Input: s, Reason: "hour out of range"}
	}
	if m > 59 {
		return 0, &ParseError{Input: s, Reason: "minute out of range"}
	}
	if len(parts) == 3 {
		sec, err := parseTwoDigit(parts[2])
		if err != nil || sec > 59 {
			return 0, &ParseError{Input: s, Reason: "bad second"}
		}
	}
	return h*60 + m, nil
}

func parseTwoDigit(s string) (int, error) {
	if len(s) == 0 || len(s) > 2 {
		return 0, fmt.Errorf("want 1-2 digits, got %q", s)
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", r)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
