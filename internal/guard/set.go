// Package guard provides the short-lived membership sets the dispatcher
// uses as processing guards: message-id deduplication and the
// session-start lock.
//
// Entries expire after a fixed window. Expiry is enforced lazily on
// access and reclaimed by a periodic sweep, rather than by per-entry
// timers whose execution is not guaranteed under load.
package guard

import (
	"context"
	"sync"
	"time"
)

// Set is an expiring membership set. Safe for concurrent use.
type Set struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry instant
}

// Option configures the Set.
type Option func(*Set)

// WithClock injects a clock, used by tests to control expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Set) {
		s.now = now
	}
}

// NewSet creates a set whose entries expire after ttl.
func NewSet(ttl time.Duration, opts ...Option) *Set {
	s := &Set{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TryAdd inserts the key and reports true, or reports false when the
// key is already present and not yet expired. This is the single
// test-and-set the dedup and lock guards rely on.
func (s *Set) TryAdd(key string) bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.entries[key]; ok && now.Before(exp) {
		return false
	}
	s.entries[key] = now.Add(s.ttl)
	return true
}

// Contains reports whether the key is present and not expired.
func (s *Set) Contains(key string) bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.entries[key]
	return ok && now.Before(exp)
}

// Remove deletes the key immediately.
func (s *Set) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Sweep drops all expired entries and returns how many were removed.
func (s *Set) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included until the
// next sweep.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartSweeping runs Sweep at the given interval until ctx is done.
func (s *Set) StartSweeping(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
