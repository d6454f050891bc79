package service

import "errors"

// Sentinel errors the handlers translate into HTTP status codes. Anything
// else surfaces as a generic store failure; the caller decides to retry.
var (
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)
