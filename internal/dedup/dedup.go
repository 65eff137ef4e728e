// Package dedup filters redelivered metrics. The window is a fast path
// over recently persisted identities; the database uniqueness guard stays
// the ground truth, so evictions only cost a no-op append.
package dedup

import (
	"sync"

	"github.com/praksys/wsmonitor/internal/metric"
)

// Window remembers the last N persisted metric identities.
type Window struct {
	mu       sync.Mutex
	capacity int
	seen     map[metric.Key]struct{}
	ring     []metric.Key
	next     int
}

// NewWindow builds a window holding up to capacity identities. Capacity 0
// disables the fast path entirely.
func NewWindow(capacity int) *Window {
	return &Window{
		capacity: capacity,
		seen:     make(map[metric.Key]struct{}, capacity),
		ring:     make([]metric.Key, capacity),
	}
}

// Seen reports whether the identity was recently persisted. False only
// means "not recently seen": the caller still relies on the storage guard.
func (w *Window) Seen(k metric.Key) bool {
	if w.capacity == 0 {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[k]
	return ok
}

// Remember records a durably persisted identity, evicting the oldest entry
// once the window is full.
func (w *Window) Remember(k metric.Key) {
	if w.capacity == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[k]; ok {
		return
	}
	old := w.ring[w.next]
	if _, occupied := w.seen[old]; occupied {
		delete(w.seen, old)
	}
	w.ring[w.next] = k
	w.seen[k] = struct{}{}
	w.next = (w.next + 1) % w.capacity
}
