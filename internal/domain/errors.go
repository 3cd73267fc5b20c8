package domain

import "errors"

var (
	// ErrValidation marks input that fails domain validation rules.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks state transitions that are no longer legal.
	ErrConflict = errors.New("conflict")
	// ErrForbidden marks access to a resource owned by another user.
	ErrForbidden = errors.New("forbidden")
)
