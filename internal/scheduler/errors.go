package scheduler

import "errors"

var (
	ErrInvalidCapacity = errors.New("invalid lane capacity")
	ErrInvalidInterval = errors.New("invalid scheduler interval")
)
