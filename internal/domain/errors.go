package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidStrategy   = errors.New("invalid strategy")
	ErrEmptyPrompt       = errors.New("prompt cannot be empty")
	ErrPromptTooLong     = errors.New("prompt too long")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionForbidden  = errors.New("session owned by another user")
	ErrUserNotFound      = errors.New("user not found")
	ErrNoEnabledModels   = errors.New("no enabled models available")
	ErrEmptyCompletion   = errors.New("empty completion from upstream")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrBreakerOpen       = errors.New("model circuit breaker open")
)

// UpstreamError identifies which model failed; strategies surface it so the
// boundary can distinguish backend failures from validation errors.
type UpstreamError struct {
	Model string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream model %s: %v", e.Model, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func NewUpstreamError(model string, err error) *UpstreamError {
	return &UpstreamError{Model: model, Err: err}
}

// IsUpstream reports whether any error in the chain is an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsTimeout reports whether err is caller cancellation or a deadline hit,
// which map to a timeout response rather than a generic upstream failure.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
