package wire

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageShape(t *testing.T) {
	msg, err := NewMessage(TypeHandshake, HandshakePayload{
		DeviceID:     "dev-1",
		DeviceName:   "Laptop",
		Discoverable: true,
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	for _, key := range []string{"type", "timestamp", "payload"} {
		if _, ok := flat[key]; !ok {
			t.Errorf("envelope missing key %q: %s", key, data)
		}
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(flat["payload"], &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	for _, key := range []string{"deviceId", "deviceName", "discoverable"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("handshake payload missing key %q: %s", flat["payload"], key)
		}
	}
}

func TestMessageTimestampMillis(t *testing.T) {
	before := time.Now().UnixMilli()
	msg, err := NewMessage(TypeAck, AckPayload{ServerName: "relay"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	after := time.Now().UnixMilli()

	if msg.Timestamp < before || msg.Timestamp > after {
		t.Errorf("timestamp %d outside [%d, %d]", msg.Timestamp, before, after)
	}
}

func TestDecodePayloadRoundTrip(t *testing.T) {
	in := ClipboardEventPayload{
		ID:        "evt-1",
		EventType: EventTypeAdded,
		Payload: EntryEnvelope{
			ID:          "E1",
			ContentType: "text",
			Text:        "hello",
			Origin:      "local",
		},
	}
	msg, err := NewMessage(TypeClipboardEvent, in)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var out ClipboardEventPayload
	if err := back.DecodePayload(&out); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}

	if out.ID != in.ID || out.EventType != in.EventType {
		t.Errorf("event fields = %+v, want %+v", out, in)
	}
	if out.Payload.Text != "hello" || out.Payload.ID != "E1" {
		t.Errorf("entry envelope = %+v", out.Payload)
	}
}

func TestParseType(t *testing.T) {
	typ, err := ParseType([]byte(`{"type":"ack","timestamp":1,"payload":{}}`))
	if err != nil {
		t.Fatalf("ParseType: %v", err)
	}
	if typ != TypeAck {
		t.Errorf("type = %q, want ack", typ)
	}
}

func TestParseTypeMalformed(t *testing.T) {
	if _, err := ParseType([]byte("{not json")); err == nil {
		t.Error("expected error for malformed frame")
	}
}

func TestParseTypeMissing(t *testing.T) {
	typ, err := ParseType([]byte(`{"timestamp":1}`))
	if err != nil {
		t.Fatalf("ParseType: %v", err)
	}
	if typ != "" {
		t.Errorf("type = %q, want empty", typ)
	}
}

func TestAckEmptyClientsStaysPresent(t *testing.T) {
	msg, err := NewMessage(TypeAck, AckPayload{ServerName: "relay", Clients: []ClientInfo{}})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	var out AckPayload
	if err := msg.DecodePayload(&out); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if out.Clients == nil || len(out.Clients) != 0 {
		t.Errorf("clients = %v, want present empty list", out.Clients)
	}
}

func TestEntryEnvelopeOmitsEmpty(t *testing.T) {
	data, err := json.Marshal(EntryEnvelope{ID: "E1", ContentType: "text", Text: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"html", "imageUri", "fileUrl", "metadata", "syncedAt"} {
		if _, ok := flat[key]; ok {
			t.Errorf("empty field %q should be omitted: %s", key, data)
		}
	}
}
