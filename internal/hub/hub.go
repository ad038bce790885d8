// Package hub fans every authoritative write out to the open WebSocket
// connections.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ghosthq/internal/model"
)

const (
	// DefaultBuffer is the number of envelopes that may wait for delivery.
	DefaultBuffer = 100

	writeWait = 10 * time.Second
)

// Conn is the part of *websocket.Conn the hub writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type queued struct {
	payload model.Payload
	data    []byte
}

// Hub owns the set of open connections
type Hub struct {
	mu        sync.RWMutex
	clients   map[Conn]bool
	listeners []func(model.Payload)

	queue  chan queued
	logger *log.Logger
}

// New creates a hub whose queue holds up to buffer pending envelopes.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		clients: make(map[Conn]bool),
		queue:   make(chan queued, buffer),
		logger:  log.Default(),
	}
}

// SetLogger replaces the hub logger.
func (h *Hub) SetLogger(l *log.Logger) {
	if l != nil {
		h.logger = l
	}
}

// Add registers c and returns the new connection count.
func (h *Hub) Add(c Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	return len(h.clients)
}

// Remove forgets c and returns the remaining connection count.
func (h *Hub) Remove(c Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	return len(h.clients)
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Listen registers fn to be called with every delivered payload.
func (h *Hub) Listen(fn func(model.Payload)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Broadcast queues p for every open connection without waiting for delivery.
// It returns false when p was dropped.
func (h *Hub) Broadcast(p model.Payload) bool {
	env, err := model.NewEnvelope(p)
	if err != nil {
		h.logger.Printf("[WebSocket] ❌ Failed to encode %s envelope: %v", p.EnvelopeType(), err)
		return false
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Printf("[WebSocket] ❌ Failed to encode %s envelope: %v", p.EnvelopeType(), err)
		return false
	}

	select {
	case h.queue <- queued{payload: p, data: data}:
		return true
	default:
		h.logger.Printf("[WebSocket] ⚠️  Broadcast queue full, dropping %s envelope", p.EnvelopeType())
		return false
	}
}

// Run delivers queued envelopes in order until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-h.queue:
			sent := h.deliver(item.data)
			h.logger.Printf("[WebSocket] 📢 Broadcast %s to %d clients", item.payload.EnvelopeType(), sent)
			h.notify(item.payload)
		}
	}
}

// deliver writes data once to every connection and returns how many writes
// succeeded. Connections whose write fails are closed and removed.
func (h *Hub) deliver(data []byte) int {
	// clients マップをスナップショットしてからロックを外すことで、
	// range 中に delete して "concurrent map iteration and map write"
	// が発生するのを防ぐ
	h.mu.RLock()
	snapshot := make([]Conn, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range snapshot {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			c.Close()
			remaining := h.Remove(c)
			h.logger.Printf("[WebSocket] Dropped client after write error: %v. Total clients: %d", err, remaining)
			continue
		}
		sent++
	}
	return sent
}

func (h *Hub) notify(p model.Payload) {
	h.mu.RLock()
	listeners := make([]func(model.Payload), len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.RUnlock()

	for _, fn := range listeners {
		fn(p)
	}
}

// CloseAll closes and forgets every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.clients
	h.clients = make(map[Conn]bool)
	h.mu.Unlock()

	for c := range conns {
		c.Close()
	}
}
