package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("service unavailable")
	ErrStreaming    = errors.New("streaming unsupported")
	ErrLimitTooHigh = errors.New("limit exceeds maximum")
)

// NewKind returns "op: kind".
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind returns "op: kind: cause", matching both kind and cause.
func WrapKind(op string, kind, cause error) error {
	if cause == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}

// Wrap returns "op: cause".
func Wrap(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, cause)
}
