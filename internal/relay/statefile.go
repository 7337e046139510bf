package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// Record is the on-disk mirror of the connection state. Other CLI
// invocations (pair show, doctor) read it instead of talking to the
// running daemon.
type Record struct {
	Phase     string `json:"phase"`
	Token     string `json:"token,omitempty"`
	Reason    string `json:"reason,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// StateFile persists every state transition to a JSON file with atomic
// replacement, so readers never observe a partial write.
type StateFile struct {
	path string
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Write records the state. Errors are logged, not returned: the state
// file is advisory and must never take the connection down.
func (f *StateFile) Write(st State) {
	rec := Record{
		Phase:     st.Phase.String(),
		Token:     st.Token,
		Reason:    st.Reason,
		UpdatedAt: time.Now().UnixMilli(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		slog.Warn("failed to encode state file", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		slog.Warn("failed to create state dir", "error", err)
		return
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		slog.Warn("failed to write state file", "path", f.path, "error", err)
	}
}

// ReadState loads the last recorded state. A missing file means the
// daemon has never run (or cleaned up); callers get a wrapped error.
func ReadState(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read state file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse state file: %w", err)
	}
	return rec, nil
}
