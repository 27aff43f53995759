// Package memory provides an in-memory usage ledger for lightweight
// deployments. Records are lost when the process restarts. A size limit
// evicts the oldest records first.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rhuss/copilot-bridge/pkg/storage"
)

// Ledger is an in-memory storage.Ledger.
type Ledger struct {
	mu      sync.RWMutex
	ids     map[string]*list.Element
	records *list.List // front = newest, back = oldest
	maxSize int        // 0 = unlimited
}

var _ storage.Ledger = (*Ledger)(nil)

// New creates an in-memory ledger. If maxSize is 0, the ledger grows
// without limit.
func New(maxSize int) *Ledger {
	return &Ledger{
		ids:     make(map[string]*list.Element),
		records: list.New(),
		maxSize: maxSize,
	}
}

// Record stores r, evicting the oldest record when the ledger is full.
func (l *Ledger) Record(_ context.Context, r storage.Record) error {
	if r.ID == "" {
		return storage.ErrInvalidRecord
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.ids[r.ID]; exists {
		return storage.ErrConflict
	}

	if l.maxSize > 0 && l.records.Len() >= l.maxSize {
		l.evictOldest()
	}

	l.ids[r.ID] = l.records.PushFront(r)
	return nil
}

// Summary aggregates records created at or after since.
func (l *Ledger) Summary(_ context.Context, since time.Time, limit int) (*storage.Summary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sum := &storage.Summary{Since: since, Recent: []storage.Record{}}
	for e := l.records.Front(); e != nil; e = e.Next() {
		r := e.Value.(storage.Record)
		if r.CreatedAt.Before(since) {
			continue
		}
		sum.Add(&r)
		if len(sum.Recent) < limit {
			sum.Recent = append(sum.Recent, r)
		}
	}
	return sum, nil
}

// Len returns the number of retained records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records.Len()
}

// HealthCheck always returns nil for the in-memory ledger.
func (l *Ledger) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory ledger.
func (l *Ledger) Close() error {
	return nil
}

// evictOldest removes the back of the list. Caller must hold the write lock.
func (l *Ledger) evictOldest() {
	back := l.records.Back()
	if back == nil {
		return
	}
	r := l.records.Remove(back).(storage.Record)
	delete(l.ids, r.ID)
}
