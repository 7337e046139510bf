// Package syncer speaks the message-level sync protocol on top of a
// relay connection: handshake exchange, roster acks, and clipboard
// events. The relay client moves opaque frames; this package gives them
// meaning.
package syncer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/clipbridge/internal/bus"
	"github.com/nextlevelbuilder/clipbridge/internal/clipboard"
	"github.com/nextlevelbuilder/clipbridge/internal/relay"
	"github.com/nextlevelbuilder/clipbridge/pkg/wire"
)

// ErrNoConnection is returned by BroadcastEntry while no relay
// connection is bound or established.
var ErrNoConnection = errors.New("syncer: no connection")

// defaultDedupeSize bounds the event-id replay cache.
const defaultDedupeSize = 512

// Conn is the transport the syncer speaks through. *relay.Client
// satisfies it.
type Conn interface {
	Send(data []byte) error
	Rehandshake()
}

// Options configures a Syncer.
type Options struct {
	DeviceID     string
	DeviceName   string
	Discoverable bool
	// Host marks the roster-authoritative endpoint: it replies to every
	// peer handshake with an ack carrying the current roster.
	Host       bool
	Translator clipboard.Translator
	Bus        *bus.Bus
	DedupeSize int
}

// Syncer tracks the peer roster and translates between clipboard
// entries and wire frames. Frames arrive on the relay run-loop
// goroutine; broadcasts may come from any goroutine.
type Syncer struct {
	opts Options
	seen *lru.Cache[string, struct{}]

	mu           sync.Mutex
	conn         Conn
	deviceName   string
	discoverable bool
	roster       map[string]wire.ClientInfo
}

func New(opts Options) (*Syncer, error) {
	if opts.DedupeSize <= 0 {
		opts.DedupeSize = defaultDedupeSize
	}
	seen, err := lru.New[string, struct{}](opts.DedupeSize)
	if err != nil {
		return nil, err
	}
	return &Syncer{
		opts:         opts,
		seen:         seen,
		deviceName:   opts.DeviceName,
		discoverable: opts.Discoverable,
		roster:       make(map[string]wire.ClientInfo),
	}, nil
}

// Bind attaches the transport. Must be called before the connection
// starts delivering frames; the circular setup (the relay client needs
// the syncer's callbacks, the syncer needs the client to send) makes
// this a two-step construction.
func (s *Syncer) Bind(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// HandshakeFrame builds the handshake announcing this device, with the
// current name and discoverable flag.
func (s *Syncer) HandshakeFrame() ([]byte, error) {
	s.mu.Lock()
	payload := wire.HandshakePayload{
		DeviceID:     s.opts.DeviceID,
		DeviceName:   s.deviceName,
		Discoverable: s.discoverable,
	}
	s.mu.Unlock()

	msg, err := wire.NewMessage(wire.TypeHandshake, payload)
	if err != nil {
		return nil, err
	}
	return msg.Encode()
}

// HandleFrame dispatches one inbound frame. Malformed JSON, a missing
// type, or an unknown type is logged and ignored; the connection stays
// open.
func (s *Syncer) HandleFrame(data []byte) {
	msgType, err := wire.ParseType(data)
	if err != nil {
		slog.Warn("ignoring malformed sync frame", "error", err)
		return
	}

	var msg wire.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("ignoring malformed sync frame", "error", err)
		return
	}

	switch msgType {
	case wire.TypeHandshake:
		s.handleHandshake(&msg)
	case wire.TypeAck:
		s.handleAck(&msg)
	case wire.TypeClipboardEvent:
		s.handleClipboardEvent(&msg)
	case "":
		slog.Warn("ignoring sync frame without type")
	default:
		slog.Warn("ignoring unknown sync frame", "type", msgType)
	}
}

// HandleState reacts to connection state changes: a dead connection
// empties the roster (peers are only known while connected), and every
// transition is fanned out to bus subscribers.
func (s *Syncer) HandleState(st relay.State) {
	if st.Phase == relay.PhaseFailed || st.Phase == relay.PhaseStopped {
		s.clearRoster()
	}
	s.opts.Bus.Broadcast(bus.Event{Kind: bus.KindSessionState, Payload: st})
}

// SetDiscoverable updates the advertised flag and re-handshakes on a
// live connection. The session itself is untouched.
func (s *Syncer) SetDiscoverable(v bool) {
	s.mu.Lock()
	if s.discoverable == v {
		s.mu.Unlock()
		return
	}
	s.discoverable = v
	conn := s.conn
	s.mu.Unlock()

	slog.Info("discoverable flag changed", "discoverable", v)
	if conn != nil {
		conn.Rehandshake()
	}
}

// SetDeviceName updates the advertised name and re-handshakes, so peers
// see renames without a reconnect.
func (s *Syncer) SetDeviceName(name string) {
	s.mu.Lock()
	if name == "" || s.deviceName == name {
		s.mu.Unlock()
		return
	}
	s.deviceName = name
	conn := s.conn
	s.mu.Unlock()

	slog.Info("device name changed", "name", name)
	if conn != nil {
		conn.Rehandshake()
	}
}

// BroadcastEntry sends one clipboard entry to the session peer. The
// generated event id is pre-seeded into the replay cache so an echoed
// copy of our own event is dropped.
func (s *Syncer) BroadcastEntry(e clipboard.Entry) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNoConnection
	}

	eventID := uuid.NewString()
	payload := wire.ClipboardEventPayload{
		ID:        eventID,
		EventType: wire.EventTypeAdded,
		Payload:   s.opts.Translator.Encode(e),
	}
	msg, err := wire.NewMessage(wire.TypeClipboardEvent, payload)
	if err != nil {
		return err
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	s.seen.Add(eventID, struct{}{})
	return conn.Send(data)
}

// Roster returns the current peer list, ordered by device name.
func (s *Syncer) Roster() []wire.ClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rosterLocked()
}

func (s *Syncer) rosterLocked() []wire.ClientInfo {
	list := make([]wire.ClientInfo, 0, len(s.roster))
	for _, ci := range s.roster {
		list = append(list, ci)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].DeviceName != list[j].DeviceName {
			return list[i].DeviceName < list[j].DeviceName
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func (s *Syncer) handleHandshake(msg *wire.Message) {
	var p wire.HandshakePayload
	if err := msg.DecodePayload(&p); err != nil {
		slog.Warn("ignoring handshake with bad payload", "error", err)
		return
	}
	if p.DeviceID == "" {
		slog.Warn("ignoring handshake without device id")
		return
	}

	s.mu.Lock()
	s.roster[p.DeviceID] = wire.ClientInfo{ID: p.DeviceID, DeviceName: p.DeviceName}
	roster := s.rosterLocked()
	serverName := s.deviceName
	conn := s.conn
	host := s.opts.Host
	s.mu.Unlock()

	slog.Info("peer connected", "device", p.DeviceName, "id", p.DeviceID, "discoverable", p.Discoverable)
	s.opts.Bus.Broadcast(bus.Event{Kind: bus.KindRosterChanged, Payload: roster})

	if !host || conn == nil {
		return
	}
	ack := wire.AckPayload{ServerName: serverName, Clients: roster}
	msgOut, err := wire.NewMessage(wire.TypeAck, ack)
	if err != nil {
		slog.Warn("failed to build ack", "error", err)
		return
	}
	data, err := msgOut.Encode()
	if err != nil {
		slog.Warn("failed to encode ack", "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		slog.Warn("ack not sent", "error", err)
	}
}

func (s *Syncer) handleAck(msg *wire.Message) {
	var p wire.AckPayload
	if err := msg.DecodePayload(&p); err != nil {
		slog.Warn("ignoring ack with bad payload", "error", err)
		return
	}

	// Full replace, never a merge: an empty list clears the roster.
	s.mu.Lock()
	s.roster = make(map[string]wire.ClientInfo, len(p.Clients))
	for _, ci := range p.Clients {
		s.roster[ci.ID] = ci
	}
	roster := s.rosterLocked()
	s.mu.Unlock()

	slog.Info("roster updated", "server", p.ServerName, "peers", len(roster))
	s.opts.Bus.Broadcast(bus.Event{Kind: bus.KindRosterChanged, Payload: roster})
}

func (s *Syncer) handleClipboardEvent(msg *wire.Message) {
	var p wire.ClipboardEventPayload
	if err := msg.DecodePayload(&p); err != nil {
		slog.Warn("ignoring clipboard event with bad payload", "error", err)
		return
	}
	if p.EventType != wire.EventTypeAdded {
		slog.Warn("ignoring clipboard event with unknown event type", "eventType", p.EventType)
		return
	}
	if p.ID != "" {
		if present, _ := s.seen.ContainsOrAdd(p.ID, struct{}{}); present {
			slog.Debug("duplicate clipboard event dropped", "id", p.ID)
			return
		}
	}

	entry := s.opts.Translator.Decode(p.Payload)
	slog.Debug("clipboard event received", "id", p.ID, "entry", entry.ID, "device", entry.DeviceName)
	s.opts.Bus.PublishInbound(bus.RemoteEvent{EventID: p.ID, Entry: entry})
}

func (s *Syncer) clearRoster() {
	s.mu.Lock()
	had := len(s.roster) > 0
	s.roster = make(map[string]wire.ClientInfo)
	s.mu.Unlock()

	if had {
		s.opts.Bus.Broadcast(bus.Event{Kind: bus.KindRosterChanged, Payload: []wire.ClientInfo{}})
	}
}
