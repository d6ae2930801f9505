package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("item not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	// ErrUnavailable marks failures of the backing store; the operation had no effect.
	ErrUnavailable = errors.New("store unavailable")
)
