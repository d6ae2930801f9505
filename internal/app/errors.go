package service

import "errors"

// Sentinel kinds returned by the service. Callers translate them with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("item not found")
	ErrInvalidLimit = errors.New("invalid limit")
	ErrNotStarted   = errors.New("service not started")
	// ErrPersistenceUnavailable means the click was not recorded; retry with backoff.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)
