// Package session holds the volatile per-chat conversation state and
// the per-chat locks that keep event processing ordered within a chat
// without serializing across chats.
package session

import (
	"sync"

	"github.com/zapflowhq/zapflow/pkg/domain"
)

// lockEntry holds the per-chat mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Registry tracks live sessions, one per chat identity. Sessions exist
// only in memory: a restart drops them all, and the durable Lead record
// is what survives.
//
// Per-chat locks are reference counted and garbage collected when the
// last holder releases them, so the lock map stays bounded by the
// number of chats concurrently in flight.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	locks    map[string]*lockEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]domain.Session),
		locks:    make(map[string]*lockEntry),
	}
}

// acquire gets or creates a lock entry and increments its refcount.
func (r *Registry) acquire(chatID string) *lockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.locks[chatID]
	if !exists {
		entry = &lockEntry{}
		r.locks[chatID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the refcount and drops the entry at zero.
func (r *Registry) release(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.locks[chatID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(r.locks, chatID)
	}
}

// WithLock executes fn while holding the chat's lock. All session and
// lead mutations for one chat identity go through here, which gives the
// within-chat ordering guarantee without blocking other chats.
func (r *Registry) WithLock(chatID string, fn func()) {
	entry := r.acquire(chatID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		r.release(chatID)
	}()
	fn()
}

// Get returns a copy of the chat's session, if one is live.
func (r *Registry) Get(chatID string) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID]
	return s, ok
}

// Put stores (or replaces) the chat's session.
func (r *Registry) Put(s *domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ChatID] = *s
}

// Advance moves the chat's session to the given node. Returns false
// when no session is live for the chat.
func (r *Registry) Advance(chatID, nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID]
	if !ok {
		return false
	}
	s.CurrentNodeID = nodeID
	r.sessions[chatID] = s
	return true
}

// Delete destroys the chat's session.
func (r *Registry) Delete(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, chatID)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
