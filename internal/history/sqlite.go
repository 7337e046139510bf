package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/clipbridge/internal/clipboard"
)

// SQLiteStore persists history in a local SQLite database. Position is an
// explicit column: the head has the smallest value, so appends allocate
// min-1 and upserts keep the row's existing position.
type SQLiteStore struct {
	db   *sql.DB
	opts Options
	mu   sync.RWMutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and
// initializes the schema.
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, opts: opts}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("history store opened", "path", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'text',
			text TEXT NOT NULL DEFAULT '',
			html TEXT NOT NULL DEFAULT '',
			image_data BLOB,
			file_url TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0,
			device_id TEXT NOT NULL DEFAULT '',
			device_name TEXT NOT NULL DEFAULT '',
			origin TEXT NOT NULL DEFAULT 'local',
			pinned INTEGER NOT NULL DEFAULT 0,
			sync_state TEXT NOT NULL DEFAULT 'pending',
			synced_at INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_position ON entries(position)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_updated ON entries(updated_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}

	return nil
}

// Append inserts an entry at the head and trims to the cap.
func (s *SQLiteStore) Append(e clipboard.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var pos int64
	if err := tx.QueryRow(`SELECT COALESCE(MIN(position), 0) - 1 FROM entries`).Scan(&pos); err != nil {
		return fmt.Errorf("allocate position: %w", err)
	}
	if err := upsertRow(tx, e, pos); err != nil {
		return err
	}
	if err := s.trimTx(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Upsert replaces the entry with the same ID in place, keeping its
// position. Unknown IDs go to the head.
func (s *SQLiteStore) Upsert(e clipboard.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var pos int64
	err = tx.QueryRow(`SELECT position FROM entries WHERE id = ?`, e.ID).Scan(&pos)
	switch {
	case err == sql.ErrNoRows:
		if err := tx.QueryRow(`SELECT COALESCE(MIN(position), 0) - 1 FROM entries`).Scan(&pos); err != nil {
			return fmt.Errorf("allocate position: %w", err)
		}
		if err := upsertRow(tx, e, pos); err != nil {
			return err
		}
		if err := s.trimTx(tx); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("lookup position: %w", err)
	default:
		if err := upsertRow(tx, e, pos); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertRow(tx *sql.Tx, e clipboard.Entry, pos int64) error {
	meta := "{}"
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = string(data)
	}
	_, err := tx.Exec(`INSERT OR REPLACE INTO entries
		(id, position, content_type, text, html, image_data, file_url,
		 created_at, updated_at, device_id, device_name, origin, pinned,
		 sync_state, synced_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, pos, string(e.Type), e.Text, e.HTML, e.ImageData, e.FileURL,
		millis(e.CreatedAt), millis(e.UpdatedAt), e.DeviceID, e.DeviceName,
		string(e.Origin), boolToInt(e.Pinned), string(e.SyncState),
		millis(e.SyncedAt), meta)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// trimTx deletes tail entries beyond the cap inside the transaction.
func (s *SQLiteStore) trimTx(tx *sql.Tx) error {
	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return err
	}
	excess := count - s.opts.cap()
	if excess <= 0 {
		return nil
	}
	q := `DELETE FROM entries WHERE id IN
		(SELECT id FROM entries ORDER BY position DESC LIMIT ?)`
	if s.opts.TrimExemptsPinned {
		q = `DELETE FROM entries WHERE id IN
			(SELECT id FROM entries WHERE pinned = 0 ORDER BY position DESC LIMIT ?)`
	}
	if _, err := tx.Exec(q, excess); err != nil {
		return fmt.Errorf("trim: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (clipboard.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(selectCols+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return clipboard.Entry{}, false
	}
	return e, true
}

func (s *SQLiteStore) List(limit int) []clipboard.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.Query(selectCols+` FROM entries ORDER BY position ASC LIMIT ?`, limit)
	if err != nil {
		slog.Error("history: list query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []clipboard.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *SQLiteStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return affectOne(s.db.Exec(`DELETE FROM entries WHERE id = ?`, id))
}

func (s *SQLiteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM entries`)
	return err
}

func (s *SQLiteStore) SetPinned(id string, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return affectOne(s.db.Exec(`UPDATE entries SET pinned = ? WHERE id = ?`, boolToInt(pinned), id))
}

func (s *SQLiteStore) SetSyncState(id string, state clipboard.SyncState, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return affectOne(s.db.Exec(`UPDATE entries SET sync_state = ?, synced_at = ? WHERE id = ?`,
		string(state), millis(at), id))
}

// PurgeOlderThan removes unpinned entries last updated before cutoff.
func (s *SQLiteStore) PurgeOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM entries WHERE pinned = 0 AND updated_at < ?`, millis(cutoff))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	s.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&count)
	return count
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectCols = `SELECT id, content_type, text, html, image_data, file_url,
	created_at, updated_at, device_id, device_name, origin, pinned,
	sync_state, synced_at, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (clipboard.Entry, error) {
	var (
		e                              clipboard.Entry
		ctype, origin, syncState, meta string
		created, updated, synced       int64
		pinned                         int
	)
	err := row.Scan(&e.ID, &ctype, &e.Text, &e.HTML, &e.ImageData, &e.FileURL,
		&created, &updated, &e.DeviceID, &e.DeviceName, &origin, &pinned,
		&syncState, &synced, &meta)
	if err != nil {
		return clipboard.Entry{}, err
	}
	e.Type = clipboard.ParseContentType(ctype)
	e.Origin = clipboard.Origin(origin)
	e.Pinned = pinned != 0
	e.SyncState = clipboard.ParseSyncState(syncState)
	e.CreatedAt = time.UnixMilli(created)
	e.UpdatedAt = time.UnixMilli(updated)
	if synced != 0 {
		e.SyncedAt = time.UnixMilli(synced)
	}
	if meta != "" && meta != "{}" {
		json.Unmarshal([]byte(meta), &e.Metadata)
	}
	return e, nil
}

func affectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
