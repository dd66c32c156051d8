// Package ratelimit implements in-process fixed-window admission control
// keyed by client identity.
//
// Known limitation, accepted by design: a fixed window permits up to
// 2×MaxRequests in a short span straddling a window boundary. A sliding
// window or token bucket would be stricter at higher bookkeeping cost.
package ratelimit

import (
	"sync"
	"time"
)

// Config is one route class's window/limit pair.
type Config struct {
	Window      time.Duration
	MaxRequests int
	// Message is returned to limited clients.
	Message string
}

// Route-class configs. Callers pick one per route category.
var (
	DefaultConfig = Config{
		Window:      time.Minute,
		MaxRequests: 100,
		Message:     "Too many requests. Please try again later.",
	}

	// Dispatch endpoints fan out to the SMS provider; keep them scarce.
	DispatchConfig = Config{
		Window:      time.Minute,
		MaxRequests: 10,
		Message:     "Too many dispatch requests. Please try again later.",
	}

	// Token verification is cheap but brute-forceable.
	VerifyConfig = Config{
		Window:      time.Minute,
		MaxRequests: 30,
		Message:     "Too many verification attempts. Please try again later.",
	}
)

// Decision is the outcome of one admission check.
type Decision struct {
	Limited   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, rounded
// up, for the Retry-After header.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int((d.ResetAt.Sub(now) + time.Second - 1) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// sweepInterval bounds how often expired entries are collected.
const sweepInterval = 5 * time.Minute

type windowEntry struct {
	count   int
	resetAt time.Time
}

// Store holds per-key fixed-window counters. It is an explicitly owned
// object (not a package singleton) so tests and callers can run isolated
// instances. All key state lives in one map guarded by a mutex: every
// read-then-write on a key must be atomic or concurrent increments
// under-count and let bursts through.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*windowEntry
	lastSweep time.Time
	now       func() time.Time // Injectable clock for tests
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

// NewStoreWithClock creates a Store with an injectable clock.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	s.now = now
	return s
}

// Check records one request for key under cfg and decides admission.
//
// State machine per key: no entry or expired entry starts a fresh window
// with count 1 (never limited); a live entry increments and is limited
// once count exceeds cfg.MaxRequests.
func (s *Store) Check(key string, cfg Config) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeSweepLocked(now)

	e, ok := s.entries[key]
	if !ok || !e.resetAt.After(now) {
		e = &windowEntry{count: 1, resetAt: now.Add(cfg.Window)}
		s.entries[key] = e
		return Decision{
			Limited:   false,
			Remaining: max(0, cfg.MaxRequests-1),
			ResetAt:   e.resetAt,
		}
	}

	e.count++
	return Decision{
		Limited:   e.count > cfg.MaxRequests,
		Remaining: max(0, cfg.MaxRequests-e.count),
		ResetAt:   e.resetAt,
	}
}

// Sweep removes expired entries. Intended for a periodic scheduler tick;
// Check also triggers it lazily at most once per sweepInterval so memory
// stays bounded even without a scheduler.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

// Now returns the store's current time. Callers computing Retry-After
// must use the same clock the store decided with.
func (s *Store) Now() time.Time {
	return s.now()
}

// Len reports the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) maybeSweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.sweepLocked(now)
}

func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for key, e := range s.entries {
		if !e.resetAt.After(now) {
			delete(s.entries, key)
			removed++
		}
	}
	s.lastSweep = now
	return removed
}
