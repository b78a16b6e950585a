package domain

import "errors"

var (
	// Client input errors.
	ErrInvalidCategory = errors.New("invalid category")
	ErrMissingUnit     = errors.New("unit is required for notes")
	ErrValidation      = errors.New("validation error")

	// Lookup misses after the fallback search order is exhausted.
	ErrNotFound = errors.New("not found")

	// Writing one of the metadata documents failed.
	ErrPersistence = errors.New("persistence failure")

	// Identity provider or mail dispatcher unreachable or erroring.
	ErrUpstream = errors.New("upstream failure")

	ErrUnauthorized = errors.New("unauthorized")
)
