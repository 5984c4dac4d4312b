// Package ringbuf provides the fixed-capacity, overwrite-oldest store that
// backs the diagnostic hub.
//
// Capacity is fixed at construction. Once full, each push overwrites the
// oldest slot; capacity exhaustion is normal operation, not an error. Push
// never blocks on I/O and snapshots always observe whole records.
package ringbuf

import (
	"sync"

	"github.com/Nullpoint56/Warships2-sub000/pkg/envelope"
)

// SnapshotOptions filters a snapshot. Zero values mean no filtering.
type SnapshotOptions struct {
	// Limit keeps only the most recent N matching records. 0 keeps all.
	Limit int
	// Category keeps only records from this category.
	Category string
	// Name keeps only records with this name.
	Name string
}

// Buffer is a fixed-size slot set with a monotonic write cursor. Multiple
// producers may push concurrently; the mutex only guards the cursor bump and
// slot copy, never I/O.
type Buffer struct {
	mu     sync.Mutex
	slots  []envelope.Envelope
	cursor uint64 // total pushes since construction
}

// New creates a buffer with the given capacity. Capacities below 1 are
// clamped to 1.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{slots: make([]envelope.Envelope, capacity)}
}

// Push stores an envelope, overwriting the oldest slot when full. It never
// blocks and never fails.
func (b *Buffer) Push(env envelope.Envelope) {
	b.mu.Lock()
	b.slots[b.cursor%uint64(len(b.slots))] = env
	b.cursor++
	b.mu.Unlock()
}

// Snapshot returns a point-in-time copy of retained records in push order,
// oldest first. The result is a copy, never a live view.
func (b *Buffer) Snapshot(opts SnapshotOptions) []envelope.Envelope {
	b.mu.Lock()
	capacity := uint64(len(b.slots))
	retained := b.cursor
	if retained > capacity {
		retained = capacity
	}
	ordered := make([]envelope.Envelope, 0, retained)
	for i := uint64(0); i < retained; i++ {
		idx := (b.cursor - retained + i) % capacity
		ordered = append(ordered, b.slots[idx])
	}
	b.mu.Unlock()

	if opts.Category != "" || opts.Name != "" {
		filtered := ordered[:0]
		for _, env := range ordered {
			if opts.Category != "" && env.Category != opts.Category {
				continue
			}
			if opts.Name != "" && env.Name != opts.Name {
				continue
			}
			filtered = append(filtered, env)
		}
		ordered = filtered
	}

	if opts.Limit > 0 && len(ordered) > opts.Limit {
		ordered = ordered[len(ordered)-opts.Limit:]
	}
	return ordered
}

// Len returns the number of currently retained records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cursor > uint64(len(b.slots)) {
		return len(b.slots)
	}
	return int(b.cursor)
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.slots)
}

// Dropped returns the cumulative number of records overwritten before any
// snapshot observed them becoming the oldest slot.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cursor <= uint64(len(b.slots)) {
		return 0
	}
	return b.cursor - uint64(len(b.slots))
}
