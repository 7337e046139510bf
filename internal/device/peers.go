package device

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Peer is a remote device seen across a sync session. Peers are
// remembered so the CLI can show who this machine has paired with even
// while no session is up.
type Peer struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	FirstSeen  int64  `json:"first_seen"` // unix millis
	LastSeen   int64  `json:"last_seen"`  // unix millis
}

type peerStore struct {
	Peers []Peer `json:"peers"`
}

// Peers is the persistent remembered-peers store. All mutations rewrite
// the JSON file; load errors fall back to an empty list.
type Peers struct {
	storePath string
	store     peerStore
	mu        sync.Mutex
}

// NewPeers opens the peer store at storePath (e.g. ~/.clipbridge/peers.json).
func NewPeers(storePath string) *Peers {
	p := &Peers{storePath: storePath}
	p.load()
	return p
}

// Remember records a sighting of a peer device, updating its display
// name and last-seen time. New devices are added.
func (p *Peers) Remember(deviceID, deviceName string) {
	if deviceID == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UnixMilli()
	for i := range p.store.Peers {
		if p.store.Peers[i].DeviceID == deviceID {
			p.store.Peers[i].DeviceName = deviceName
			p.store.Peers[i].LastSeen = now
			p.save()
			return
		}
	}

	p.store.Peers = append(p.store.Peers, Peer{
		DeviceID:   deviceID,
		DeviceName: deviceName,
		FirstSeen:  now,
		LastSeen:   now,
	})
	p.save()

	slog.Info("peer remembered", "device_id", deviceID, "device_name", deviceName)
}

// Forget removes a peer by device ID. Unknown IDs are a no-op.
func (p *Peers) Forget(deviceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, peer := range p.store.Peers {
		if peer.DeviceID == deviceID {
			p.store.Peers = append(p.store.Peers[:i], p.store.Peers[i+1:]...)
			p.save()
			slog.Info("peer forgotten", "device_id", deviceID)
			return true
		}
	}
	return false
}

// List returns remembered peers, most recently seen first.
func (p *Peers) List() []Peer {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Peer, len(p.store.Peers))
	copy(out, p.store.Peers)
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen > out[j].LastSeen })
	return out
}

func (p *Peers) load() {
	data, err := os.ReadFile(p.storePath)
	if err != nil {
		return // no peers yet
	}
	if err := json.Unmarshal(data, &p.store); err != nil {
		slog.Warn("device: corrupt peers file, starting empty", "path", p.storePath, "error", err)
		p.store = peerStore{}
	}
}

func (p *Peers) save() {
	if err := os.MkdirAll(filepath.Dir(p.storePath), 0700); err != nil {
		slog.Error("device: failed to create peers dir", "error", err)
		return
	}
	data, err := json.MarshalIndent(p.store, "", "  ")
	if err != nil {
		slog.Error("device: failed to marshal peers", "error", err)
		return
	}
	if err := os.WriteFile(p.storePath, data, 0600); err != nil {
		slog.Error("device: failed to write peers", "error", err)
	}
}
