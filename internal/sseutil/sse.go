// Package sseutil provides SSE line helpers shared by the executor and stream packages.
package sseutil

import (
	"bytes"

	"github.com/tidwall/gjson"
)

var (
	doneMarker  = []byte("[DONE]")
	dataPrefix  = []byte("data:")
	eventPrefix = []byte("event:")
	colon       = []byte(":")
)

// JSONPayload extracts the JSON object carried by an SSE line.
// Returns nil for blank lines, comments, event: lines, [DONE], and anything not starting with '{'.
func JSONPayload(line []byte) []byte {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil
	}
	if bytes.HasPrefix(trimmed, eventPrefix) {
		return nil
	}
	if bytes.HasPrefix(trimmed, dataPrefix) {
		trimmed = bytes.TrimSpace(trimmed[len(dataPrefix):])
	} else if bytes.HasPrefix(trimmed, colon) {
		return nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	return trimmed
}

// IsDoneLine reports whether line is the [DONE] sentinel, bare or as data.
func IsDoneLine(line []byte) bool {
	trimmed := bytes.TrimSpace(line)
	if bytes.HasPrefix(trimmed, dataPrefix) {
		trimmed = bytes.TrimSpace(trimmed[len(dataPrefix):])
	}
	return bytes.Equal(trimmed, doneMarker)
}

// ErrorMessage returns the message of an in-band backend error payload such as
// {"error":{"message":"..."}}. ok is false for ordinary chunks.
func ErrorMessage(payload []byte) (message string, ok bool) {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return "", false
	}
	errField := gjson.GetBytes(payload, "error")
	if !errField.Exists() || errField.Type == gjson.Null {
		return "", false
	}
	if errField.IsObject() {
		if msg := errField.Get("message").String(); msg != "" {
			return msg, true
		}
		return errField.Raw, true
	}
	return errField.String(), true
}

// ExtractUsageTokens reads prompt and completion token counts from a chat-completion chunk.
func ExtractUsageTokens(payload []byte) (prompt, completion int64, ok bool) {
	usage := gjson.GetBytes(payload, "usage")
	if !usage.IsObject() {
		return 0, 0, false
	}
	return usage.Get("prompt_tokens").Int(), usage.Get("completion_tokens").Int(), true
}
