// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing or invalid identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates a valid identity without authority over the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState indicates the offer was already processed.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation indicates rejected input (empty content, non-positive amount, ...).
	ErrValidation = errors.New("validation")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnresolvable indicates the conversation registry could not converge
	// after a creation conflict. It points at a broken storage invariant.
	ErrUnresolvable = errors.New("conversation unresolvable")

	// ErrRateLimited indicates the caller is temporarily throttled.
	ErrRateLimited = errors.New("rate limited")
)
