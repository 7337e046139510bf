package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Mode selects which end of a sync session this device is.
type Mode int

const (
	// ModeHost creates a fresh session on every (re)connect and dials
	// the host endpoint. The session token becomes the pairing code.
	ModeHost Mode = iota
	// ModeJoin dials the client endpoint of an existing session whose
	// token came from a pairing code.
	ModeJoin
)

func (m Mode) String() string {
	if m == ModeJoin {
		return "join"
	}
	return "host"
}

// ErrNotConnected is returned by Send while no socket is established.
var ErrNotConnected = errors.New("relay: not connected")

// maxWSMessageSize is the maximum allowed WebSocket message size (512KB).
// Gorilla/websocket closes the connection with ErrReadLimit if exceeded.
const maxWSMessageSize = 512 * 1024

const (
	writeTimeout  = 10 * time.Second
	readTimeout   = 60 * time.Second
	pingInterval  = 30 * time.Second
	dialTimeout   = 10 * time.Second
	sendQueueSize = 256
)

// Options wires a Client to the rest of the daemon. Handshake is asked
// for a fresh frame after every connect; OnFrame receives every inbound
// frame; OnState observes every state transition.
type Options struct {
	API       *API
	Mode      Mode
	JoinToken string // session token for ModeJoin
	Backoff   BackoffConfig
	Handshake func() ([]byte, error)
	OnFrame   func(data []byte)
	OnState   func(State)
	StateFile *StateFile // optional on-disk mirror of the state
}

// Client maintains the persistent relay connection: a single run loop
// creates the session, dials, pumps frames, and on any failure tears
// everything down and retries with backoff. Stop is the only way out.
type Client struct {
	opts   Options
	dialer *websocket.Dialer

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	state   State
	conn    *conn
}

func NewClient(opts Options) *Client {
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	return &Client{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: dialTimeout,
		},
	}
}

// Start launches the run loop. Safe to call more than once.
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	go c.run(ctx, c.done)
	slog.Info("relay client started", "mode", c.opts.Mode)
}

// Stop closes the active socket with a normal-closure frame, cancels
// any in-flight attempt or backoff sleep, and waits for the run loop to
// exit. Stopping is suppression, not failure: no reconnect follows.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	cn := c.conn
	done := c.done
	c.mu.Unlock()

	cancel()
	if cn != nil {
		cn.shutdown()
	}
	<-done
	slog.Info("relay client stopped")
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send queues a frame on the active connection. It reports only local
// conditions (not connected, queue full); a frame accepted here can
// still be lost if the socket dies, which surfaces through OnState.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	cn := c.conn
	c.mu.Unlock()
	if cn == nil {
		return ErrNotConnected
	}
	return cn.enqueue(data)
}

// Rehandshake resends the handshake frame on the live connection, used
// when the advertised identity changes (rename, discoverable toggle).
// No-op while disconnected; the next connect sends a fresh handshake
// anyway.
func (c *Client) Rehandshake() {
	c.mu.Lock()
	cn := c.conn
	c.mu.Unlock()
	if cn == nil {
		return
	}
	data, err := c.opts.Handshake()
	if err != nil {
		slog.Warn("failed to build handshake frame", "error", err)
		return
	}
	if err := cn.enqueue(data); err != nil {
		slog.Warn("re-handshake not sent", "error", err)
	}
}

// run is the connection state machine. One iteration per attempt:
// connecting -> connected -> (failure) -> failed -> sleep -> connecting.
// Session creation and dialing share the failure path, so an HTTP error
// from the relay backs off exactly like a dropped socket.
func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.setState(Stopped())

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(Connecting())

		sess, wsURL, err := c.establish(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.setState(Failed(err.Error()))
			slog.Warn("relay session unavailable", "error", err)
			if !c.sleep(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		ws, _, err := c.dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			reason := fmt.Sprintf("dial relay: %v", err)
			c.setState(Failed(reason))
			slog.Warn("relay dial failed", "url", wsURL, "error", err)
			if !c.sleep(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		cn := newConn(ws)
		c.mu.Lock()
		if !c.running {
			// Stop won the race before this connection was installed;
			// it never saw the socket, so close it here.
			c.mu.Unlock()
			ws.Close()
			return
		}
		c.conn = cn
		c.mu.Unlock()
		c.setState(Connected(sess.Token))
		slog.Info("relay connected", "mode", c.opts.Mode, "token", sess.Token)
		attempt = 0

		err = c.serve(cn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		cn.shutdown()

		if ctx.Err() != nil {
			return
		}
		c.handleSocketFailure(err)
		if !c.sleep(ctx, attempt) {
			return
		}
		attempt++
	}
}

// establish resolves the WebSocket URL for this attempt. Hosts mint a
// brand-new session per attempt; joiners re-derive the endpoint from
// the fixed token.
func (c *Client) establish(ctx context.Context) (*Session, string, error) {
	if c.opts.Mode == ModeJoin {
		u, err := DeriveClientURL(c.opts.API.BaseURL(), c.opts.JoinToken)
		if err != nil {
			return nil, "", err
		}
		return &Session{Token: c.opts.JoinToken, ClientURL: u}, u, nil
	}
	sess, err := c.opts.API.CreateSession(ctx)
	if err != nil {
		return nil, "", err
	}
	return sess, sess.HostURL, nil
}

// serve sends the handshake, then pumps frames until the socket dies.
// The write pump starts first so the socket always has an owner that
// closes it, whatever goes wrong after.
func (c *Client) serve(cn *conn) error {
	go cn.writePump()

	data, err := c.opts.Handshake()
	if err != nil {
		return fmt.Errorf("build handshake frame: %w", err)
	}
	if err := cn.enqueue(data); err != nil {
		return err
	}

	readErr := cn.readLoop(c.opts.OnFrame)
	if werr := cn.writeError(); werr != nil {
		return werr
	}
	return readErr
}

// handleSocketFailure is the single funnel for read and write errors on
// an established connection: the session is discarded and the state
// drops to failed before the reconnect sleep.
func (c *Client) handleSocketFailure(err error) {
	reason := "connection closed"
	if err != nil {
		reason = err.Error()
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		slog.Warn("relay connection lost", "error", err)
	} else {
		slog.Info("relay connection closed", "reason", reason)
	}
	c.setState(Failed(reason))
}

// sleep waits out the backoff delay, returning false if the client was
// stopped meanwhile.
func (c *Client) sleep(ctx context.Context, attempt int) bool {
	delay := c.opts.Backoff.delay(attempt)
	slog.Info("relay reconnect scheduled", "delay", delay, "attempt", attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) setState(st State) {
	c.mu.Lock()
	if c.state == st {
		c.mu.Unlock()
		return
	}
	c.state = st
	c.mu.Unlock()

	if c.opts.StateFile != nil {
		c.opts.StateFile.Write(st)
	}
	if c.opts.OnState != nil {
		c.opts.OnState(st)
	}
}

// conn wraps one live WebSocket with a buffered send queue and the
// read/write pump pair. A conn is used for exactly one connection
// lifetime and discarded on failure.
type conn struct {
	ws   *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	closed   bool
	writeErr error
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
	}
}

// enqueue hands a frame to the write pump without blocking.
func (cn *conn) enqueue(data []byte) error {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return ErrNotConnected
	}
	select {
	case cn.send <- data:
		return nil
	default:
		return errors.New("relay: send queue full")
	}
}

// shutdown closes the send queue, which lets the write pump flush what
// is buffered, emit a normal-closure frame, and close the socket. Safe
// to call more than once and concurrently with enqueue.
func (cn *conn) shutdown() {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	if cn.closed {
		return
	}
	cn.closed = true
	close(cn.send)
}

// writePump is the sole writer on the socket. It drains the send queue,
// emits keepalive pings, and closes the socket on exit so the read loop
// unblocks.
func (cn *conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		cn.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-cn.send:
			if !ok {
				cn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
				cn.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			cn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				cn.setWriteError(err)
				return
			}

		case <-ticker.C:
			cn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				cn.setWriteError(err)
				return
			}
		}
	}
}

// readLoop delivers inbound frames until the socket errors. The read
// deadline is refreshed by both pongs and data so an idle-but-alive
// connection never times out.
func (cn *conn) readLoop(onFrame func([]byte)) error {
	cn.ws.SetReadLimit(maxWSMessageSize)
	cn.ws.SetReadDeadline(time.Now().Add(readTimeout))
	cn.ws.SetPongHandler(func(string) error {
		cn.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			return err
		}
		cn.ws.SetReadDeadline(time.Now().Add(readTimeout))
		if onFrame != nil {
			onFrame(data)
		}
	}
}

func (cn *conn) setWriteError(err error) {
	cn.mu.Lock()
	if cn.writeErr == nil {
		cn.writeErr = err
	}
	cn.mu.Unlock()
}

func (cn *conn) writeError() error {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	return cn.writeErr
}
