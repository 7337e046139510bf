package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/clipbridge/internal/clipboard"
)

// SnapshotDebouncer coalesces bursts of clipboard snapshots and flushes
// only the final one after a quiet window. The OS clipboard is a
// last-writer-wins register, so intermediate states of a burst carry no
// information worth broadcasting.
type SnapshotDebouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending *clipboard.Snapshot
	count   int
	timer   *time.Timer
	flushFn func(clipboard.Snapshot)
}

// NewSnapshotDebouncer creates a debouncer with the given quiet window
// and flush callback. If window <= 0, snapshots pass through immediately.
func NewSnapshotDebouncer(window time.Duration, flushFn func(clipboard.Snapshot)) *SnapshotDebouncer {
	return &SnapshotDebouncer{
		window:  window,
		flushFn: flushFn,
	}
}

// Push records a snapshot and restarts the quiet-window timer.
func (d *SnapshotDebouncer) Push(snap clipboard.Snapshot) {
	if d.window <= 0 {
		d.flushFn(snap)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = &snap
	d.count++

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)

	if d.count > 1 {
		slog.Debug("snapshot debounce: superseded earlier snapshot",
			"buffered", d.count, "window_ms", d.window.Milliseconds())
	}
}

// Stop flushes any pending snapshot immediately (graceful shutdown).
func (d *SnapshotDebouncer) Stop() {
	d.flush()
}

func (d *SnapshotDebouncer) flush() {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	snap := *d.pending
	dropped := d.count - 1
	d.pending = nil
	d.count = 0
	d.mu.Unlock()

	if dropped > 0 {
		slog.Debug("snapshot debounce: flushing last of burst", "dropped", dropped)
	}
	d.flushFn(snap)
}
