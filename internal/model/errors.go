package model

import "errors"

// Error classes surfaced by the fact-check workflow. Typed errors elsewhere
// wrap one of these so callers can branch with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrConfiguration       = errors.New("configuration error")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrResponseParse       = errors.New("failed to parse AI response")
	ErrNotFound            = errors.New("not found")
	ErrStorage             = errors.New("storage error")
)
