// Package history implements the clipboard history store: an ordered
// entry list with most-recent-first semantics, append-or-replace merge by
// entry ID, a retained-count cap and durable persistence.
package history

import (
	"errors"
	"time"

	"github.com/nextlevelbuilder/clipbridge/internal/clipboard"
)

// DefaultCap is the maximum retained entry count unless configured.
const DefaultCap = 500

// ErrNotFound is returned when an operation targets an entry ID the
// store does not hold.
var ErrNotFound = errors.New("history: entry not found")

// Options tune store behavior shared by all backends.
type Options struct {
	// Cap bounds the retained entry count. Zero means DefaultCap.
	Cap int
	// TrimExemptsPinned keeps pinned entries out of trim eviction. The
	// list may then exceed Cap when it fills up with pinned entries.
	TrimExemptsPinned bool
}

func (o Options) cap() int {
	if o.Cap <= 0 {
		return DefaultCap
	}
	return o.Cap
}

// Store is the clipboard history collaborator. The head of the list is
// the most recent entry. Implementations return entry copies; callers
// never share mutable state with the store.
type Store interface {
	// Append inserts an entry at the head and trims to the cap.
	Append(e clipboard.Entry) error
	// Upsert replaces the entry with the same ID in place, preserving
	// its list position. Unknown IDs are appended at the head.
	Upsert(e clipboard.Entry) error
	// Get returns the entry with the given ID.
	Get(id string) (clipboard.Entry, bool)
	// List returns entries most-recent-first. limit <= 0 means all.
	List(limit int) []clipboard.Entry
	// Remove deletes an entry by ID.
	Remove(id string) error
	// Clear drops all entries.
	Clear() error
	// SetPinned toggles the pinned flag on an entry.
	SetPinned(id string, pinned bool) error
	// SetSyncState records the outcome of a broadcast attempt.
	SetSyncState(id string, state clipboard.SyncState, at time.Time) error
	// PurgeOlderThan removes unpinned entries last updated before
	// cutoff, returning how many were removed.
	PurgeOlderThan(cutoff time.Time) (int, error)
	// Len reports the current entry count.
	Len() int
	Close() error
}
