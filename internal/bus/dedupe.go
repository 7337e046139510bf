package bus

import (
	"sync"
	"time"
)

// Dedupe is a TTL-based replay guard for clipboard event IDs.
//
// Seen() returns true if the ID was already recorded within the window.
// Entries expire after TTL and are pruned lazily on each check.
type Dedupe struct {
	mu      sync.Mutex
	entries map[string]int64 // id → unix millis
	ttl     time.Duration
	maxSize int
}

// NewDedupe creates a replay guard with the given window and size cap.
func NewDedupe(ttl time.Duration, maxSize int) *Dedupe {
	return &Dedupe{
		entries: make(map[string]int64, 256),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Contains reports whether id is recorded and unexpired, without
// recording it.
func (d *Dedupe) Contains(id string) bool {
	cutoff := time.Now().UnixMilli() - d.ttl.Milliseconds()

	d.mu.Lock()
	defer d.mu.Unlock()

	ts, ok := d.entries[id]
	return ok && ts >= cutoff
}

// Seen returns true if id was already recorded within the TTL window.
// Otherwise it records the id for future checks.
func (d *Dedupe) Seen(id string) bool {
	now := time.Now().UnixMilli()
	cutoff := now - d.ttl.Milliseconds()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, ok := d.entries[id]; ok && ts >= cutoff {
		return true
	}

	d.cleanup(cutoff)

	d.entries[id] = now
	return false
}

// cleanup removes expired entries and evicts arbitrary ones if over
// maxSize. Must be called with d.mu held.
func (d *Dedupe) cleanup(cutoff int64) {
	for k, ts := range d.entries {
		if ts < cutoff {
			delete(d.entries, k)
		}
	}

	if d.maxSize > 0 && len(d.entries) >= d.maxSize {
		excess := len(d.entries) - d.maxSize + 1
		for k := range d.entries {
			if excess <= 0 {
				break
			}
			delete(d.entries, k)
			excess--
		}
	}
}
