// Package engine orchestrates the sync daemon's data flow: local
// clipboard changes become history entries and broadcasts, remote
// events land in history and (optionally) the OS clipboard. All state
// mutation is serialized behind one mutex; the relay client and the
// capture source only deliver into it.
package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/clipbridge/internal/bus"
	"github.com/nextlevelbuilder/clipbridge/internal/clipboard"
	"github.com/nextlevelbuilder/clipbridge/internal/history"
	"github.com/nextlevelbuilder/clipbridge/internal/relay"
)

// Echoes of content we just wrote to the OS clipboard are suppressed
// for this long; the capture poll runs every few hundred milliseconds,
// so 10s is generous.
const (
	echoTTL       = 10 * time.Second
	echoCacheSize = 256
)

const defaultOutboxCap = 64

// Broadcaster sends one entry to the session peer. *syncer.Syncer
// satisfies it.
type Broadcaster interface {
	BroadcastEntry(e clipboard.Entry) error
}

// Options wires an Engine to its collaborators. Source and Setter may
// be nil when the platform offers no clipboard access.
type Options struct {
	DeviceID    string
	DeviceName  string
	Store       history.Store
	Bus         *bus.Bus
	Broadcaster Broadcaster
	Source      clipboard.Source
	Setter      clipboard.Setter

	// ApplyRemote writes remote text entries into the OS clipboard.
	ApplyRemote bool
	// DebounceWindow coalesces capture bursts; zero passes through.
	DebounceWindow time.Duration
	// RatePerMinute caps outbound broadcasts; zero disables the limiter.
	RatePerMinute int
	RateBurst     int
	// OutboxCap bounds entries held while disconnected; oldest dropped.
	OutboxCap int
}

// Engine drives both sync directions. Start launches the capture and
// inbound loops; session state arrives via the bus.
type Engine struct {
	opts Options
	echo *bus.Dedupe
	wg   sync.WaitGroup

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	limiter   *rate.Limiter
	connected bool
	outbox    []clipboard.Entry
	lastHash  string
}

func New(opts Options) *Engine {
	if opts.OutboxCap <= 0 {
		opts.OutboxCap = defaultOutboxCap
	}
	e := &Engine{
		opts: opts,
		echo: bus.NewDedupe(echoTTL, echoCacheSize),
	}
	e.limiter = newLimiter(opts.RatePerMinute, opts.RateBurst)
	return e
}

// Start subscribes to the bus and launches the worker loops. Safe to
// call more than once.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.mu.Unlock()

	e.opts.Bus.Subscribe("engine", e.onBusEvent)

	e.wg.Add(1)
	go e.inboundLoop(ctx)

	if e.opts.Source != nil {
		deb := bus.NewSnapshotDebouncer(e.opts.DebounceWindow, e.handleSnapshot)
		e.wg.Add(1)
		go e.captureLoop(ctx, e.opts.Source.Snapshots(), deb)
	}
	slog.Info("sync engine started", "device", e.opts.DeviceName)
}

// Stop halts the loops and waits for them. The history store stays
// open; its owner closes it.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	e.opts.Bus.Unsubscribe("engine")
	cancel()
	e.wg.Wait()
	slog.Info("sync engine stopped")
}

// SetRate swaps the broadcast limiter, for config hot reload. perMinute
// <= 0 removes the limit.
func (e *Engine) SetRate(perMinute, burst int) {
	e.mu.Lock()
	e.limiter = newLimiter(perMinute, burst)
	e.mu.Unlock()
}

// OutboxLen reports how many entries wait for the next connection.
func (e *Engine) OutboxLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.outbox)
}

func newLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

func (e *Engine) onBusEvent(ev bus.Event) {
	if ev.Kind != bus.KindSessionState {
		return
	}
	st, ok := ev.Payload.(relay.State)
	if !ok {
		return
	}
	e.handleSessionState(st)
}

// handleSessionState tracks connectivity and flushes the outbox on the
// disconnected→connected edge. The relay client queues the handshake
// before anything else on a fresh socket, so flushed events follow it
// in FIFO order.
func (e *Engine) handleSessionState(st relay.State) {
	e.mu.Lock()
	wasConnected := e.connected
	e.connected = st.Phase == relay.PhaseConnected
	var pending []clipboard.Entry
	if !wasConnected && e.connected && len(e.outbox) > 0 {
		pending = e.outbox
		e.outbox = nil
	}
	e.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	slog.Info("flushing outbox", "entries", len(pending))
	for _, entry := range pending {
		// The outbox is already bounded; flushing bypasses the limiter
		// so a reconnect never marks queued entries failed.
		e.broadcast(entry)
	}
}

func (e *Engine) captureLoop(ctx context.Context, snaps <-chan clipboard.Snapshot, deb *bus.SnapshotDebouncer) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			deb.Stop()
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			deb.Push(snap)
		}
	}
}

// handleSnapshot turns one observed clipboard change into a pending
// local entry, appends it to history and dispatches the broadcast.
func (e *Engine) handleSnapshot(snap clipboard.Snapshot) {
	if snap.Empty() {
		return
	}

	text := snap.Text
	if text == "" {
		text = snap.HTML
	}
	hash := contentHash(text, snap.ImagePNG)
	e.mu.Lock()
	unchanged := hash == e.lastHash
	if !unchanged {
		e.lastHash = hash
	}
	e.mu.Unlock()
	if unchanged {
		slog.Debug("unchanged clipboard content dropped")
		return
	}
	if e.echo.Contains(hash) {
		slog.Debug("suppressed echo of applied remote content")
		return
	}

	entry := clipboard.EntryFromSnapshot(snap, e.opts.DeviceID, e.opts.DeviceName)
	if err := e.opts.Store.Append(entry); err != nil {
		slog.Error("failed to append history entry", "entry", entry.ID, "error", err)
	}
	slog.Debug("local clipboard change captured", "entry", entry.ID, "type", entry.Type)
	e.opts.Bus.Broadcast(bus.Event{Kind: bus.KindEntryAdded, Payload: entry})
	e.dispatch(entry)
}

// dispatch routes a pending local entry: broadcast now, queue for the
// next connection, or mark failed when the rate limit bites.
func (e *Engine) dispatch(entry clipboard.Entry) {
	e.mu.Lock()
	connected := e.connected
	limiter := e.limiter
	e.mu.Unlock()

	if !connected {
		e.enqueueOutbox(entry)
		return
	}
	if limiter != nil && !limiter.Allow() {
		slog.Warn("broadcast rate limit exceeded", "entry", entry.ID)
		e.setSyncState(entry.ID, clipboard.SyncFailed)
		return
	}
	e.broadcast(entry)
}

func (e *Engine) broadcast(entry clipboard.Entry) {
	if err := e.opts.Broadcaster.BroadcastEntry(entry); err != nil {
		slog.Warn("broadcast failed", "entry", entry.ID, "error", err)
		e.setSyncState(entry.ID, clipboard.SyncFailed)
		return
	}
	e.setSyncState(entry.ID, clipboard.SyncSynced)
}

func (e *Engine) setSyncState(id string, st clipboard.SyncState) {
	err := e.opts.Store.SetSyncState(id, st, time.Now())
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			slog.Error("failed to update sync state", "entry", id, "error", err)
		}
		return
	}
	if cur, ok := e.opts.Store.Get(id); ok {
		e.opts.Bus.Broadcast(bus.Event{Kind: bus.KindEntryUpdated, Payload: cur})
	}
}

func (e *Engine) enqueueOutbox(entry clipboard.Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.outbox) >= e.opts.OutboxCap {
		dropped := e.outbox[0]
		e.outbox = e.outbox[1:]
		slog.Warn("outbox full, dropping oldest entry", "entry", dropped.ID)
	}
	e.outbox = append(e.outbox, entry)
	slog.Debug("entry queued for next connection", "entry", entry.ID, "queued", len(e.outbox))
}

func (e *Engine) inboundLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		ev, ok := e.opts.Bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		e.applyRemote(ev)
	}
}

// applyRemote merges a peer's entry into history and mirrors text
// content into the OS clipboard. The content hash is registered before
// the write so the capture loop drops the resulting echo.
func (e *Engine) applyRemote(ev bus.RemoteEvent) {
	entry := ev.Entry
	_, existed := e.opts.Store.Get(entry.ID)
	if err := e.opts.Store.Upsert(entry); err != nil {
		slog.Error("failed to upsert remote entry", "entry", entry.ID, "error", err)
	}
	kind := bus.KindEntryAdded
	if existed {
		kind = bus.KindEntryUpdated
	}
	slog.Debug("remote entry merged", "entry", entry.ID, "device", entry.DeviceName, "existed", existed)
	e.opts.Bus.Broadcast(bus.Event{Kind: kind, Payload: entry})

	if !e.opts.ApplyRemote || e.opts.Setter == nil {
		return
	}
	if entry.Type != clipboard.TypeText || entry.Text == "" {
		return
	}

	hash := contentHash(entry.Text, nil)
	e.echo.Seen(hash)
	e.mu.Lock()
	e.lastHash = hash
	e.mu.Unlock()

	if err := e.opts.Setter.SetText(entry.Text); err != nil {
		slog.Warn("failed to apply remote entry to clipboard", "entry", entry.ID, "error", err)
	}
}

// contentHash fingerprints clipboard content for duplicate and echo
// suppression. Text and image content hash into disjoint spaces.
func contentHash(text string, image []byte) string {
	h := blake3.New()
	if len(image) > 0 {
		h.Write([]byte("img:"))
		h.Write(image)
	} else {
		h.Write([]byte("txt:"))
		h.Write([]byte(text))
	}
	return hex.EncodeToString(h.Sum(nil))
}
