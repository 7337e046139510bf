// Package bus routes clipboard events between the capture engine, the
// sync connection and CLI-facing subscribers.
package bus

import (
	"context"
	"sync"

	"github.com/nextlevelbuilder/clipbridge/internal/clipboard"
)

// RemoteEvent is a clipboard event received from a peer, carrying the
// sender's event ID for replay detection.
type RemoteEvent struct {
	EventID string
	Entry   clipboard.Entry
}

// Event kinds broadcast to subscribers.
const (
	KindEntryAdded    = "entry-added"
	KindEntryUpdated  = "entry-updated"
	KindRosterChanged = "roster-changed"
	KindSessionState  = "session-state"
)

// Event is a notification fanned out to subscribers.
type Event struct {
	Kind    string
	Payload any
}

// EventHandler receives broadcast events. Handlers must not block.
type EventHandler func(Event)

// Bus carries remote events from the sync connection to the engine, and
// broadcasts notifications to subscribers.
type Bus struct {
	inbound chan RemoteEvent

	subscribers map[string]EventHandler
	subMu       sync.RWMutex
}

func New() *Bus {
	return &Bus{
		inbound:     make(chan RemoteEvent, 100),
		subscribers: make(map[string]EventHandler),
	}
}

// PublishInbound queues a clipboard event received from a peer.
func (b *Bus) PublishInbound(ev RemoteEvent) {
	b.inbound <- ev
}

// ConsumeInbound blocks until a remote event is available or ctx is cancelled.
func (b *Bus) ConsumeInbound(ctx context.Context) (RemoteEvent, bool) {
	select {
	case ev := <-b.inbound:
		return ev, true
	case <-ctx.Done():
		return RemoteEvent{}, false
	}
}

// Subscribe registers an event subscriber under id.
func (b *Bus) Subscribe(id string, handler EventHandler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes an event subscriber.
func (b *Bus) Unsubscribe(id string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	delete(b.subscribers, id)
}

// Broadcast sends an event to all subscribers. Handlers run inline, so
// slow subscribers would stall the caller.
func (b *Bus) Broadcast(event Event) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	for _, handler := range b.subscribers {
		handler(event)
	}
}

// Close shuts down the inbound channel.
func (b *Bus) Close() {
	close(b.inbound)
}
