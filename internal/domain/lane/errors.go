package lane

import "errors"

// Sentinel error kinds for lane parsing and policy configuration.
var (
	ErrUnknownLane       = errors.New("unknown lane")
	ErrInvalidThresholds = errors.New("invalid thresholds")
)
