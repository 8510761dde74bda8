// Package protocol interprets the status protocol spoken by monitored
// endpoints.
//
// Two tag dialects carry the result value:
//
//	<r>success</r>
//	<result version="2">fail</result>
//
// and an optional message element may appear anywhere in the body:
//
//	<message>database unreachable</message>
//
// This is deliberately a substring scanner and not an XML parser; bodies are
// frequently hand-written and only loosely well-formed.
package protocol

import (
	"fmt"
	"strings"

	"github.com/jpalmerr/apimonitor/internal/status"
)

const (
	shortOpen  = "<r>"
	shortClose = "</r>"
	longOpen   = "<result"
	longClose  = "</result>"
	msgOpen    = "<message>"
	msgClose   = "</message>"

	// maxResultLen bounds the raw result value before trimming.
	maxResultLen = 31
)

// Diagnostic messages returned with [status.Invalid].
const (
	MsgEmptyResponse = "Empty response"
	MsgNoResultTag   = "No result tag"
	MsgUnclosedShort = "Unclosed tag <r>"
	MsgUnclosedLong  = "Unclosed tag <result>"
	MsgMalformedLong = "Malformed tag <result>"
)

// Parse interprets a response body. It never panics and always returns a
// definite result; failures yield [status.Invalid] with a diagnostic message.
// It never returns [status.Error] or [status.None].
func Parse(raw string) (status.Result, string) {
	if raw == "" {
		return status.Invalid, MsgEmptyResponse
	}

	value, diag := extractResult(raw)
	if diag != "" {
		return status.Invalid, diag
	}

	if len(value) > maxResultLen {
		value = value[:maxResultLen]
	}
	value = strings.ToLower(strings.TrimSpace(value))

	switch value {
	case "success":
		return status.Success, extractMessage(raw)
	case "fail":
		return status.Fail, extractMessage(raw)
	default:
		return status.Invalid, status.TruncateMessage(fmt.Sprintf("unknown result value %q", value))
	}
}

// extractResult returns the raw text between the result tags, or a
// diagnostic when neither dialect is usable. The short dialect wins when
// both are present.
func extractResult(raw string) (value, diag string) {
	if start := strings.Index(raw, shortOpen); start >= 0 {
		rest := raw[start+len(shortOpen):]
		end := strings.Index(rest, shortClose)
		if end < 0 {
			return "", MsgUnclosedShort
		}
		return rest[:end], ""
	}

	start := strings.Index(raw, longOpen)
	if start < 0 {
		return "", MsgNoResultTag
	}
	tag := raw[start:]

	end := strings.Index(tag, longClose)
	if end < 0 {
		return "", MsgUnclosedLong
	}

	// attributes may sit between "<result" and ">"
	bracket := strings.IndexByte(tag, '>')
	if bracket < 0 || bracket >= end {
		return "", MsgMalformedLong
	}
	return tag[bracket+1 : end], ""
}

// extractMessage returns the message element content or "". The content is
// cut to [status.MaxMessageLen] before surrounding whitespace is trimmed.
func extractMessage(raw string) string {
	start := strings.Index(raw, msgOpen)
	if start < 0 {
		return ""
	}
	rest := raw[start+len(msgOpen):]
	end := strings.Index(rest, msgClose)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(status.TruncateMessage(rest[:end]))
}

// Detect reports whether body looks like it speaks either dialect. It is a
// presence check only and does not validate the value.
func Detect(body string) bool {
	return strings.Contains(body, longOpen) || strings.Contains(body, shortOpen)
}
