// Package correlate generates and propagates request correlation ids across
// every transport adapter.
package correlate

import (
	"github.com/google/uuid"
)

// HeaderName is the HTTP header carrying the correlation id. The websocket
// adapter uses a frame's "id" field as the trace id instead; binary wire
// frames carry no correlation id.
const HeaderName = "X-Trace-ID"

// New generates a fresh correlation id.
func New() string {
	return uuid.NewString()
}

// Resolve returns incoming if it's a well-formed id, otherwise generates a
// fresh one. This lets a caller-supplied trace id (e.g. from an upstream
// proxy) survive end to end instead of being discarded.
func Resolve(incoming string) string {
	if incoming == "" {
		return New()
	}
	if _, err := uuid.Parse(incoming); err != nil {
		return New()
	}
	return incoming
}
