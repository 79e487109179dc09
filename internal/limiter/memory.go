package limiter

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Defaults match the administrator lockout policy.
const (
	DefaultMaxFails = 3
	DefaultBlockFor = 15 * time.Minute
)

// Memory is an in-process limiter with lockout. Expired locks are cleared lazily,
// together with their failure counter, the next time the username is looked at.
type Memory struct {
	mu       sync.Mutex
	maxFails int
	blockFor time.Duration
	now      func() time.Time
	recs     map[string]Record
}

var _ Tracker = (*Memory)(nil)

// NewMemory constructs a limiter; non-positive arguments fall back to the defaults.
func NewMemory(maxFails int, blockFor time.Duration) *Memory {
	if maxFails <= 0 {
		maxFails = DefaultMaxFails
	}
	if blockFor <= 0 {
		blockFor = DefaultBlockFor
	}
	return &Memory{maxFails: maxFails, blockFor: blockFor, now: time.Now, recs: make(map[string]Record)}
}

// WithClock replaces the time source, for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

// MaxFails returns the lockout threshold.
func (m *Memory) MaxFails() int { return m.maxFails }

// BlockFor returns the lockout duration.
func (m *Memory) BlockFor() time.Duration { return m.blockFor }

// expireLocked drops an expired lock and returns the current record.
func (m *Memory) expireLocked(username string, now time.Time) Record {
	r, ok := m.recs[username]
	if !ok {
		return Record{}
	}
	if !r.LockedUntil.IsZero() && !now.Before(r.LockedUntil) {
		delete(m.recs, username)
		return Record{}
	}
	return r
}

// Allow reports whether username may attempt a login.
func (m *Memory) Allow(_ context.Context, username string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	r := m.expireLocked(username, now)
	if r.Locked(now) {
		return false, r.LockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets every failure for username.
func (m *Memory) Success(_ context.Context, username string) error {
	m.mu.Lock()
	delete(m.recs, username)
	m.mu.Unlock()
	return nil
}

// Failure counts one failed attempt. It reports true, with the block duration,
// when this attempt reached the threshold and locked the username.
func (m *Memory) Failure(_ context.Context, username string) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	r := m.expireLocked(username, now)
	if r.Locked(now) {
		return true, r.LockedUntil.Sub(now), nil
	}
	r.Failures++
	if r.Failures >= m.maxFails {
		r.LockedUntil = now.Add(m.blockFor)
		m.recs[username] = r
		return true, m.blockFor, nil
	}
	m.recs[username] = r
	return false, 0, nil
}

// IsLocked reports whether username is currently locked out.
func (m *Memory) IsLocked(username string) bool {
	ok, _, _ := m.Allow(context.Background(), username)
	return !ok
}

// Lock blocks username for d regardless of its failure count.
func (m *Memory) Lock(username string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recs[username]
	r.LockedUntil = m.now().Add(d)
	m.recs[username] = r
}

// Snapshot returns the live records; expired locks are dropped first.
func (m *Memory) Snapshot() map[string]Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for u := range m.recs {
		m.expireLocked(u, now)
	}
	return maps.Clone(m.recs)
}

// Clear forgets every record.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.recs = make(map[string]Record)
	m.mu.Unlock()
}
