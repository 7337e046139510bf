package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/nextlevelbuilder/clipbridge/internal/clipboard"
)

// FileStore keeps the entry list in memory and mirrors every mutation to
// a pretty-printed JSON array on disk, replaced atomically so a crash
// mid-write never leaves a torn file. Write failures are logged and the
// in-memory list stays authoritative until the next successful write.
type FileStore struct {
	path string
	opts Options

	mu      sync.Mutex
	entries []clipboard.Entry
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens the store at path, loading any existing history.
// A missing file yields an empty list; a corrupt file yields an empty
// list with a logged warning.
func NewFileStore(path string, opts Options) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	s := &FileStore{path: path, opts: opts}
	s.load()
	return s, nil
}

func (s *FileStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return // no history yet
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		slog.Warn("history: corrupt store file, starting empty", "path", s.path, "error", err)
		s.entries = nil
	}
}

// persist writes the full list as a pretty JSON array via temp-and-rename.
// Must be called with s.mu held.
func (s *FileStore) persist() {
	list := s.entries
	if list == nil {
		list = []clipboard.Entry{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		slog.Error("history: failed to marshal store", "error", err)
		return
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		slog.Error("history: failed to write store", "path", s.path, "error", err)
	}
}

// Append inserts an entry at the head and trims to the cap.
func (s *FileStore) Append(e clipboard.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]clipboard.Entry{e.Clone()}, s.entries...)
	s.trim()
	s.persist()
	return nil
}

// Upsert replaces the entry with the same ID in place, keeping its
// position. Unknown IDs go to the head.
func (s *FileStore) Upsert(e clipboard.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == e.ID {
			s.entries[i] = e.Clone()
			s.persist()
			return nil
		}
	}
	s.entries = append([]clipboard.Entry{e.Clone()}, s.entries...)
	s.trim()
	s.persist()
	return nil
}

func (s *FileStore) Get(id string) (clipboard.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			return s.entries[i].Clone(), true
		}
	}
	return clipboard.Entry{}, false
}

func (s *FileStore) List(limit int) []clipboard.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]clipboard.Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.entries[i].Clone())
	}
	return out
}

func (s *FileStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			s.persist()
			return nil
		}
	}
	return ErrNotFound
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.persist()
	return nil
}

func (s *FileStore) SetPinned(id string, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].Pinned = pinned
			s.persist()
			return nil
		}
	}
	return ErrNotFound
}

func (s *FileStore) SetSyncState(id string, state clipboard.SyncState, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].SyncState = state
			s.entries[i].SyncedAt = at
			s.persist()
			return nil
		}
	}
	return ErrNotFound
}

// PurgeOlderThan removes unpinned entries last updated before cutoff.
func (s *FileStore) PurgeOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if !e.Pinned && e.UpdatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed > 0 {
		s.entries = kept
		s.persist()
	}
	return removed, nil
}

func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *FileStore) Close() error { return nil }

// trim drops entries from the tail until the list fits the cap. Must be
// called with s.mu held.
func (s *FileStore) trim() {
	limit := s.opts.cap()
	trimmed := 0
	for len(s.entries) > limit {
		idx := len(s.entries) - 1
		if s.opts.TrimExemptsPinned {
			idx = -1
			for i := len(s.entries) - 1; i >= 0; i-- {
				if !s.entries[i].Pinned {
					idx = i
					break
				}
			}
			if idx < 0 {
				break // everything pinned, tolerate overflow
			}
		}
		s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		trimmed++
	}
	if trimmed > 0 {
		slog.Debug("history: trimmed to cap", "cap", limit, "removed", trimmed)
	}
}
