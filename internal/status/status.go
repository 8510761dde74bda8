// Package status defines the closed set of monitoring outcomes shared by the
// parser, the polling engine and the history log.
//
// The set is deliberately small: [None] before anything was observed,
// [Error] for transport and HTTP failures, [Invalid] for reachable endpoints
// that answered something unparseable, and [Success] / [Fail] for the two
// values the status protocol itself can carry.
package status

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is the maximum size in bytes of any status or history message.
const MaxMessageLen = 255

// Result is a monitoring outcome.
type Result uint8

const (
	// None means no result has been obtained yet.
	None Result = iota
	// Error means a network failure or a non-200 HTTP status.
	Error
	// Invalid means the endpoint answered but the body could not be understood.
	Invalid
	// Success means the endpoint reported success.
	Success
	// Fail means the endpoint explicitly reported failure.
	Fail
)

var names = [...]string{
	None:    "none",
	Error:   "error",
	Invalid: "invalid",
	Success: "success",
	Fail:    "fail",
}

var displayNames = [...]string{
	None:    "None",
	Error:   "Error",
	Invalid: "Invalid",
	Success: "Success",
	Fail:    "Fail",
}

// Valid reports whether r is one of the defined results.
func (r Result) Valid() bool {
	return int(r) < len(names)
}

// String returns the lower-case text form used in JSON and logs.
func (r Result) String() string {
	if !r.Valid() {
		return fmt.Sprintf("result(%d)", uint8(r))
	}
	return names[r]
}

// DisplayName returns the capitalised form shown to users.
func (r Result) DisplayName() string {
	if !r.Valid() {
		return "Unknown"
	}
	return displayNames[r]
}

// MarshalText implements encoding.TextMarshaler.
func (r Result) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid result %d", uint8(r))
	}
	return []byte(names[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Result) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Parse converts a text form (case-insensitive) back into a Result.
func Parse(s string) (Result, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range names {
		if name == s {
			return Result(i), nil
		}
	}
	return None, fmt.Errorf("unknown result %q", s)
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if utf8.RuneStart(s[i]) {
			if !utf8.FullRuneInString(s[i:]) {
				return s[:i]
			}
			break
		}
	}
	return s
}

// TruncateMessage applies [MaxMessageLen] to a message.
func TruncateMessage(s string) string {
	return Truncate(s, MaxMessageLen)
}
