// Package wire defines the JSON message format spoken over a relay sync
// session. Messages travel as WebSocket text frames and carry a type tag,
// a millisecond timestamp and a type-specific payload. The package is
// importable by other clients of the protocol.
package wire

import (
	"encoding/json"
	"time"
)

// Message types.
const (
	TypeHandshake      = "handshake"
	TypeAck            = "ack"
	TypeClipboardEvent = "clipboard-event"
)

// EventTypeAdded is the only clipboard event kind currently defined.
const EventTypeAdded = "added"

// Message is the envelope for every frame on a sync connection.
type Message struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// HandshakePayload announces a newly connected endpoint.
type HandshakePayload struct {
	DeviceID     string `json:"deviceId"`
	DeviceName   string `json:"deviceName"`
	Discoverable bool   `json:"discoverable"`
}

// ClientInfo describes one connected peer as reported by an ack.
type ClientInfo struct {
	ID         string `json:"id"`
	DeviceName string `json:"deviceName"`
}

// AckPayload is the reply to a handshake from the roster-authoritative
// endpoint. The client list replaces the receiver's roster wholesale.
type AckPayload struct {
	ServerName string       `json:"serverName"`
	Clients    []ClientInfo `json:"clients"`
}

// ClipboardEventPayload relays one clipboard mutation.
type ClipboardEventPayload struct {
	ID        string        `json:"id"`
	EventType string        `json:"eventType"`
	Payload   EntryEnvelope `json:"payload"`
}

// EntryEnvelope is the flat wire form of a clipboard entry. Timestamps are
// unix milliseconds; image bytes travel as a base64 data URI under imageUri
// so the envelope stays text-safe. Optional fields are omitted when empty.
type EntryEnvelope struct {
	ID          string            `json:"id,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	Text        string            `json:"text,omitempty"`
	HTML        string            `json:"html,omitempty"`
	ImageURI    string            `json:"imageUri,omitempty"`
	FileURL     string            `json:"fileUrl,omitempty"`
	CreatedAt   int64             `json:"createdAt,omitempty"`
	UpdatedAt   int64             `json:"updatedAt,omitempty"`
	DeviceID    string            `json:"deviceId,omitempty"`
	DeviceName  string            `json:"deviceName,omitempty"`
	Origin      string            `json:"origin,omitempty"`
	Pinned      bool              `json:"pinned,omitempty"`
	SyncState   string            `json:"syncState,omitempty"`
	SyncedAt    int64             `json:"syncedAt,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewMessage builds a timestamped envelope around the given payload.
func NewMessage(msgType string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Payload:   raw,
	}, nil
}

// Encode serializes the message for transmission.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodePayload unmarshals the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// ParseType extracts the type tag from raw frame bytes.
func ParseType(data []byte) (string, error) {
	var raw struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	return raw.Type, nil
}
