// Package device manages this machine's sync identity: a stable random
// device ID generated once and reused, the display name announced to
// peers, the relay API key lookup, and the remembered-peers store.
package device

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/clipbridge/internal/config"
)

// Identity is the persisted device identity. The ID never changes once
// generated; the name follows the config override or the OS hostname.
type Identity struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

// LoadIdentity reads the identity at path, generating and persisting a
// fresh one on first run. nameOverride (from config) wins over the
// stored name; a changed hostname updates the stored name in place but
// never the ID.
func LoadIdentity(path, nameOverride string) (Identity, error) {
	id := readIdentity(path)

	name := nameOverride
	if name == "" {
		if host, err := os.Hostname(); err == nil {
			name = host
		}
	}
	name = config.NormalizeDeviceName(name)

	if id.DeviceID == "" {
		id = Identity{DeviceID: uuid.NewString(), DeviceName: name}
		if err := writeIdentity(path, id); err != nil {
			return Identity{}, err
		}
		slog.Info("device identity generated", "device_id", id.DeviceID, "device_name", id.DeviceName)
		return id, nil
	}

	if id.DeviceName != name {
		id.DeviceName = name
		if err := writeIdentity(path, id); err != nil {
			slog.Warn("device: failed to persist renamed identity", "error", err)
		}
	}
	return id, nil
}

func readIdentity(path string) Identity {
	var id Identity
	data, err := os.ReadFile(path)
	if err != nil {
		return id
	}
	if err := json.Unmarshal(data, &id); err != nil {
		slog.Warn("device: corrupt identity file, regenerating", "path", path, "error", err)
		return Identity{}
	}
	return id
}

func writeIdentity(path string, id Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}
