// Package server tracks which user owns which live connection through the
// Registry interface and its in-memory implementation.
package server

import "sync"

// Registry maps a user identifier to the identifier of its active
// connection. Exactly one entry exists per online user; a second session for
// the same user replaces the first. Implementations must be safe for
// concurrent use.
type Registry interface {
	// Register binds userID to connID, returning the connection identifier
	// it replaced, or "" if the user was previously offline.
	Register(userID, connID string) string
	// Unregister removes the entry for userID, but only if it still points
	// at connID; a disconnect from a replaced session must not evict its
	// successor. Reports whether an entry was removed. Unregistering an
	// absent user is a no-op.
	Unregister(userID, connID string) bool
	// Lookup returns the connection identifier for userID. Absence means
	// the user is offline and is an expected outcome, not an error.
	Lookup(userID string) (string, bool)
	// OnlineUsers returns the identifiers of all registered users. Order is
	// map iteration order and not stable across calls.
	OnlineUsers() []string
}

// MemoryRegistry is the single-process Registry used by the hub.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]string)}
}

func (r *MemoryRegistry) Register(userID, connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.entries[userID]
	r.entries[userID] = connID
	return previous
}

func (r *MemoryRegistry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[userID]
	if !ok || current != connID {
		return false
	}
	delete(r.entries, userID)
	return true
}

func (r *MemoryRegistry) Lookup(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.entries[userID]
	return connID, ok
}

func (r *MemoryRegistry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.entries))
	for userID := range r.entries {
		users = append(users, userID)
	}
	return users
}
