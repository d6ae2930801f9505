package catalog

import "errors"

var (
	ErrFetch         = errors.New("catalog fetch failed")
	ErrStatus        = errors.New("catalog returned an error status")
	ErrNotConfigured = errors.New("catalog url not configured")
)
