package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks active streaming responses so that a
// shutting-down server can end them instead of waiting for the upstream
// to finish. Streams are keyed by a registry-assigned number, never by a
// client-supplied id.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[uint64]context.CancelFunc),
	}
}

// Register adds an in-flight stream and returns its key. cancel is called
// by Cancel or CancelAll.
func (r *InFlightRegistry) Register(cancel context.CancelFunc) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries[r.next] = cancel
	return r.next
}

// Cancel cancels one stream and drops it. It reports false if key is not
// registered (already cancelled or never existed). Handlers call it when
// their stream ends.
func (r *InFlightRegistry) Cancel(key uint64) bool {
	r.mu.Lock()
	cancel, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// CancelAll cancels every registered stream and returns how many there
// were.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[uint64]context.CancelFunc)
	r.mu.Unlock()

	for _, cancel := range entries {
		cancel()
	}
	return len(entries)
}

// Len returns the number of registered streams.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
