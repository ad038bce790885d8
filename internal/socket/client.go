// Package socket is the agent side of the /ws channel: one shared
// connection that is opened on first use and reconnects forever.
package socket

import (
	"context"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ghosthq/internal/model"
)

const (
	// DefaultReconnectDelay is the pause between a drop and the next dial.
	DefaultReconnectDelay = 3 * time.Second

	writeWait = 10 * time.Second
)

// State is the connection lifecycle of a Client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Open
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "disconnected"
	}
}

// Handler receives every decoded envelope payload.
type Handler func(model.Payload)

// Config tunes a Client. Zero values are replaced with defaults.
type Config struct {
	ReconnectDelay time.Duration
	Logger         *log.Logger
	Dialer         *websocket.Dialer
	Header         http.Header
}

// Client owns the shared connection and the set of registered handlers.
type Client struct {
	url string
	cfg Config

	mu       sync.Mutex
	handlers map[uint64]Handler
	nextID   uint64
	conn     *websocket.Conn
	closed   bool
	started  bool

	writeMu sync.Mutex
	state   atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a client for url. No connection is made until the first
// Subscribe.
func NewClient(url string, cfg Config) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:      url,
		cfg:      cfg,
		handlers: make(map[uint64]Handler),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Subscribe registers h and starts the connection loop if it is not running
// yet. The returned func removes h; it never closes the connection.
func (c *Client) Subscribe(h Handler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	start := !c.started && !c.closed
	c.started = c.started || start
	c.mu.Unlock()

	if start {
		go c.run()
	}

	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Send writes v as JSON when the connection is open. It reports whether the
// frame was written; nothing is queued while disconnected.
func (c *Client) Send(v any) bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || c.State() != Open {
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		c.cfg.Logger.Printf("[Socket] ❌ Send failed: %v", err)
		return false
	}
	return true
}

// Close stops reconnecting and closes the current connection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	started := c.started
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		conn.Close()
	}
	if started {
		<-c.done
	}
	return nil
}

func (c *Client) run() {
	defer close(c.done)

	for {
		c.state.Store(int32(Connecting))
		conn, _, err := c.cfg.Dialer.DialContext(c.ctx, c.url, c.cfg.Header)
		if err != nil {
			c.cfg.Logger.Printf("[Socket] ⚠️  Dial %s failed: %v", c.url, err)
		} else if c.attach(conn) {
			c.cfg.Logger.Printf("[Socket] ✅ Connected to %s", c.url)
			c.read(conn)
			c.detach()
			c.cfg.Logger.Printf("[Socket] Disconnected, reconnecting in %s", c.cfg.ReconnectDelay)
		}
		c.state.Store(int32(Disconnected))

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return false
	}
	c.conn = conn
	c.state.Store(int32(Open))
	return true
}

func (c *Client) detach() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// read dispatches frames until the connection fails. Frames that are not
// valid envelopes are logged and skipped.
func (c *Client) read(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		p, err := model.ParseEnvelope(raw)
		if err != nil {
			c.cfg.Logger.Printf("[Socket] ⚠️  Dropping malformed frame: %v", err)
			continue
		}
		c.dispatch(p)
	}
}

func (c *Client) dispatch(p model.Payload) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(p)
	}
}
