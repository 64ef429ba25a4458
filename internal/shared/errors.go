package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates a request without a verified identity.
	ErrUnauthorized = errors.New("unauthorized")
)
