// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Validation sentinels.
var (
	// ErrInvalidFormat indicates a malformed identifier, name or unsafe input.
	ErrInvalidFormat = errors.New("invalid format")
)

// Authorization sentinels.
var (
	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to repeated failures.
	ErrRateLimited = errors.New("rate limited")

	// ErrForbidden indicates the current principal has the wrong role for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrSessionInactive indicates no voting session is active.
	ErrSessionInactive = errors.New("session inactive")

	// ErrNotRegistered indicates the voter ID is not in the registry.
	ErrNotRegistered = errors.New("voter not registered")
)

// Conflict sentinels.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (duplicate candidate or voter).
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyVoted indicates the anonymized voter token is already in the vote log.
	ErrAlreadyVoted = errors.New("already voted")

	// ErrUnknownCandidate indicates the vote references a candidate that does not exist.
	ErrUnknownCandidate = errors.New("unknown candidate")

	// ErrCapacityExceeded indicates the voter registry is full.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrAlreadyActive indicates a session start while a session is active.
	ErrAlreadyActive = errors.New("session already active")

	// ErrNotActive indicates a session stop while no session is active.
	ErrNotActive = errors.New("session not active")
)

// Storage sentinels.
var (
	// ErrStorage indicates a durable I/O failure; the operation was not applied.
	ErrStorage = errors.New("storage failure")

	// ErrBusy indicates the caller gave up waiting for the store lock.
	ErrBusy = errors.New("store busy")
)
