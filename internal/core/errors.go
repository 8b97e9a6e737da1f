package core

import "errors"

// Sentinel errors returned by the services. Callers match them with errors.Is;
// the HTTP layer maps each to a status code.
var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("invalid request")
	ErrConflict    = errors.New("already exists")
	ErrGeneration  = errors.New("quiz generation failed")
	ErrUnavailable = errors.New("language model is not configured")
	ErrUpstream    = errors.New("language model request failed")
)
