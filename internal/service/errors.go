package service

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrInvalidInput          = errors.New("invalid input")
	ErrConflict              = errors.New("conflict")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
