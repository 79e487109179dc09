// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string) (bool, time.Duration, error)
}

// Record is the per-username state kept by Memory.
type Record struct {
	Failures    int
	LockedUntil time.Time
}

// Locked reports whether the record blocks logins at now.
func (r Record) Locked(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

// Tracker is a Limiter that also exposes its state for reporting and manual locks.
type Tracker interface {
	Limiter
	IsLocked(username string) bool
	Lock(username string, d time.Duration)
	Snapshot() map[string]Record
	Clear()
}
