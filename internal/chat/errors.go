package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey means no Gemini credential is configured.
	ErrMissingAPIKey = errors.New("gemini api key is not set")
	// ErrProfileNotLoaded means the profile document is still empty after a
	// reload attempt.
	ErrProfileNotLoaded = errors.New("resume data not loaded")
)

// UpstreamError wraps any failure from the generation service.
type UpstreamError struct {
	Model string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Model, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
