package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/clipbridge/internal/clipboard"
)

func testEntry(id, text string) clipboard.Entry {
	now := time.Now()
	return clipboard.Entry{
		ID:        id,
		Type:      clipboard.TypeText,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
		DeviceID:  "dev-a",
		Origin:    clipboard.OriginLocal,
		SyncState: clipboard.SyncPending,
	}
}

func newTestFileStore(t *testing.T, opts Options) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "history.json"), opts)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func ids(entries []clipboard.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestAppendHeadOrder(t *testing.T) {
	s := newTestFileStore(t, Options{})
	s.Append(testEntry("a", "first"))
	s.Append(testEntry("b", "second"))
	s.Append(testEntry("c", "third"))

	got := ids(s.List(0))
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestUpsertPreservesPosition(t *testing.T) {
	s := newTestFileStore(t, Options{})
	s.Append(testEntry("a", "first"))
	s.Append(testEntry("b", "second"))
	s.Append(testEntry("c", "third"))

	updated := testEntry("a", "first-edited")
	updated.SyncState = clipboard.SyncSynced
	if err := s.Upsert(updated); err != nil {
		t.Fatal(err)
	}

	list := s.List(0)
	if got := ids(list); got[0] != "c" || got[1] != "b" || got[2] != "a" {
		t.Fatalf("upsert moved the entry: %v", got)
	}
	if list[2].Text != "first-edited" || list[2].SyncState != clipboard.SyncSynced {
		t.Errorf("upsert did not replace content: %+v", list[2])
	}
}

func TestUpsertUnknownGoesToHead(t *testing.T) {
	s := newTestFileStore(t, Options{})
	s.Append(testEntry("a", "first"))
	s.Upsert(testEntry("b", "second"))

	if got := ids(s.List(0)); got[0] != "b" {
		t.Fatalf("upsert of unknown id should land at head, got %v", got)
	}
}

func TestTrimToCap(t *testing.T) {
	s := newTestFileStore(t, Options{Cap: 3})
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s.Append(testEntry(id, id))
	}
	got := ids(s.List(0))
	want := []string{"e", "d", "c"}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kept %v, want %v", got, want)
		}
	}
}

func TestTrimExemptsPinned(t *testing.T) {
	s := newTestFileStore(t, Options{Cap: 3, TrimExemptsPinned: true})
	pinned := testEntry("keep", "pinned")
	pinned.Pinned = true
	s.Append(pinned)
	for _, id := range []string{"b", "c", "d", "e"} {
		s.Append(testEntry(id, id))
	}

	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	if _, ok := s.Get("keep"); !ok {
		t.Fatal("pinned entry was evicted")
	}
}

func TestTrimAllPinnedOverflow(t *testing.T) {
	s := newTestFileStore(t, Options{Cap: 2, TrimExemptsPinned: true})
	for _, id := range []string{"a", "b", "c"} {
		e := testEntry(id, id)
		e.Pinned = true
		s.Append(e)
	}
	if s.Len() != 3 {
		t.Fatalf("fully pinned list should be allowed to exceed cap, len = %d", s.Len())
	}
}

func TestListLimit(t *testing.T) {
	s := newTestFileStore(t, Options{})
	for _, id := range []string{"a", "b", "c"} {
		s.Append(testEntry(id, id))
	}
	if got := s.List(2); len(got) != 2 || got[0].ID != "c" {
		t.Fatalf("List(2) = %v", ids(got))
	}
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")

	s, err := NewFileStore(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	s.Append(testEntry("a", "persisted"))
	s.Close()

	s2, err := NewFileStore(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	e, ok := s2.Get("a")
	if !ok || e.Text != "persisted" {
		t.Fatalf("reload lost entry: %+v ok=%v", e, ok)
	}
}

func TestPersistFormatPrettyArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	s, err := NewFileStore(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	s.Append(testEntry("a", "x"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := strings.TrimSpace(string(data))
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		t.Fatalf("store file is not a JSON array:\n%s", text)
	}
	if !strings.Contains(text, "\n  ") {
		t.Errorf("store file is not pretty-printed:\n%s", text)
	}
}

func TestMissingFileYieldsEmpty(t *testing.T) {
	s := newTestFileStore(t, Options{})
	if s.Len() != 0 {
		t.Fatalf("fresh store not empty: %d", s.Len())
	}
}

func TestCorruptFileYieldsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileStore(path, Options{})
	if err != nil {
		t.Fatalf("corrupt file must not be fatal: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("corrupt file should load as empty, got %d entries", s.Len())
	}
}

func TestClearWritesEmptyArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	s, _ := NewFileStore(path, Options{})
	s.Append(testEntry("a", "x"))
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("cleared store file = %q, want []", data)
	}
}

func TestRemove(t *testing.T) {
	s := newTestFileStore(t, Options{})
	s.Append(testEntry("a", "x"))
	if err := s.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Fatal("entry not removed")
	}
	if err := s.Remove("a"); err != ErrNotFound {
		t.Fatalf("Remove on missing id = %v, want ErrNotFound", err)
	}
}

func TestSetPinnedAndSyncState(t *testing.T) {
	s := newTestFileStore(t, Options{})
	s.Append(testEntry("a", "x"))

	if err := s.SetPinned("a", true); err != nil {
		t.Fatal(err)
	}
	at := time.Now()
	if err := s.SetSyncState("a", clipboard.SyncSynced, at); err != nil {
		t.Fatal(err)
	}
	e, _ := s.Get("a")
	if !e.Pinned || e.SyncState != clipboard.SyncSynced || !e.SyncedAt.Equal(at) {
		t.Fatalf("mutations lost: %+v", e)
	}

	if err := s.SetPinned("nope", true); err != ErrNotFound {
		t.Fatalf("SetPinned missing = %v, want ErrNotFound", err)
	}
	if err := s.SetSyncState("nope", clipboard.SyncFailed, at); err != ErrNotFound {
		t.Fatalf("SetSyncState missing = %v, want ErrNotFound", err)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	s := newTestFileStore(t, Options{})

	old := testEntry("old", "stale")
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	oldPinned := testEntry("old-pinned", "stale but kept")
	oldPinned.UpdatedAt = time.Now().Add(-48 * time.Hour)
	oldPinned.Pinned = true
	fresh := testEntry("fresh", "recent")

	s.Append(old)
	s.Append(oldPinned)
	s.Append(fresh)

	n, err := s.PurgeOlderThan(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if _, ok := s.Get("old"); ok {
		t.Error("stale entry survived purge")
	}
	if _, ok := s.Get("old-pinned"); !ok {
		t.Error("pinned entry purged")
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Error("recent entry purged")
	}
}

func TestStoredCopiesAreIsolated(t *testing.T) {
	s := newTestFileStore(t, Options{})
	e := testEntry("a", "x")
	e.Metadata = map[string]string{"k": "v"}
	s.Append(e)

	got, _ := s.Get("a")
	got.Metadata["k"] = "mutated"

	again, _ := s.Get("a")
	if again.Metadata["k"] != "v" {
		t.Fatal("store leaked mutable state to caller")
	}
}
