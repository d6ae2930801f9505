package clickstorm

import "errors"

// Error constants.
var (
	ErrInvalidConfig = errors.New("invalid clickstorm config")
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrMismatch      = errors.New("verification failed")
)
