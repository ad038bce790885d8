package socket

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ghosthq/internal/hub"
	"ghosthq/internal/model"
)

var quiet = log.New(io.Discard, "", 0)

// newHubServer serves /ws from a hub, discarding client frames.
func newHubServer(t *testing.T) (*hub.Hub, string) {
	t.Helper()

	h := hub.New(16)
	h.SetLogger(quiet)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		h.Add(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.Remove(conn)
				return
			}
		}
	}))
	t.Cleanup(func() {
		cancel()
		h.CloseAll()
		server.Close()
	})

	return h, strings.Replace(server.URL, "http://", "ws://", 1)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func expectChat(t *testing.T, got <-chan model.Payload, text string) {
	t.Helper()
	select {
	case p := <-got:
		msg, ok := p.(model.ChatMessage)
		if !ok || msg.Text != text {
			t.Fatalf("expected chat %q, got %#v", text, p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no chat %q received", text)
	}
}

func TestLazyStart(t *testing.T) {
	h, url := newHubServer(t)
	c := NewClient(url, Config{Logger: quiet})
	defer c.Close()

	time.Sleep(50 * time.Millisecond)
	if h.Len() != 0 || c.State() != Disconnected {
		t.Fatalf("client connected before Subscribe (state %s)", c.State())
	}

	c.Subscribe(func(model.Payload) {})
	waitFor(t, "connection", func() bool { return h.Len() == 1 && c.State() == Open })

	// a second subscriber shares the connection
	c.Subscribe(func(model.Payload) {})
	time.Sleep(50 * time.Millisecond)
	if h.Len() != 1 {
		t.Errorf("expected one shared connection, got %d", h.Len())
	}
}

func TestReconnectKeepsSubscribers(t *testing.T) {
	h, url := newHubServer(t)
	c := NewClient(url, Config{ReconnectDelay: 50 * time.Millisecond, Logger: quiet})
	defer c.Close()

	got := make(chan model.Payload, 8)
	c.Subscribe(func(p model.Payload) { got <- p })
	waitFor(t, "connection", func() bool { return h.Len() == 1 && c.State() == Open })

	h.Broadcast(model.ChatMessage{ID: "1", Text: "before"})
	expectChat(t, got, "before")

	// drop every server-side connection
	h.CloseAll()
	waitFor(t, "reconnect", func() bool { return h.Len() == 1 && c.State() == Open })

	h.Broadcast(model.ChatMessage{ID: "2", Text: "after"})
	expectChat(t, got, "after")
}

func TestUnsubscribe(t *testing.T) {
	h, url := newHubServer(t)
	c := NewClient(url, Config{Logger: quiet})
	defer c.Close()

	removed := make(chan model.Payload, 1)
	kept := make(chan model.Payload, 1)
	unsubscribe := c.Subscribe(func(p model.Payload) { removed <- p })
	c.Subscribe(func(p model.Payload) { kept <- p })
	waitFor(t, "connection", func() bool { return h.Len() == 1 })

	unsubscribe()
	h.Broadcast(model.ChatMessage{ID: "1", Text: "hello"})
	expectChat(t, kept, "hello")

	select {
	case p := <-removed:
		t.Errorf("removed handler still called with %#v", p)
	default:
	}
	if c.State() != Open {
		t.Errorf("unsubscribe should not close the connection, state %s", c.State())
	}
}

func TestMalformedFramesAreSkipped(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"poltergeist","data":{}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","data":{"id":"1","userId":"u","text":"ok","isCommand":false,"timestamp":"2026-01-01T00:00:00Z"}}`))
		conn.ReadMessage()
	}))
	defer server.Close()

	c := NewClient(strings.Replace(server.URL, "http://", "ws://", 1), Config{Logger: quiet})
	defer c.Close()

	got := make(chan model.Payload, 4)
	c.Subscribe(func(p model.Payload) { got <- p })
	expectChat(t, got, "ok")

	select {
	case p := <-got:
		t.Errorf("unexpected extra payload %#v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", Config{ReconnectDelay: time.Hour, Logger: quiet})
	defer c.Close()

	if c.Send(map[string]string{"type": "ping"}) {
		t.Error("Send should report false before any connection")
	}
	c.Subscribe(func(model.Payload) {})
	waitFor(t, "failed dial", func() bool { return c.State() == Disconnected })
	if c.Send(map[string]string{"type": "ping"}) {
		t.Error("Send should report false while disconnected")
	}
}

func TestSendWhenOpen(t *testing.T) {
	h, url := newHubServer(t)
	c := NewClient(url, Config{Logger: quiet})
	defer c.Close()

	c.Subscribe(func(model.Payload) {})
	waitFor(t, "connection", func() bool { return h.Len() == 1 && c.State() == Open })

	if !c.Send(map[string]string{"type": "ping"}) {
		t.Error("Send should succeed while open")
	}
}

func TestCloseStopsReconnecting(t *testing.T) {
	h, url := newHubServer(t)
	c := NewClient(url, Config{ReconnectDelay: 10 * time.Millisecond, Logger: quiet})

	c.Subscribe(func(model.Payload) {})
	waitFor(t, "connection", func() bool { return h.Len() == 1 })

	c.Close()
	waitFor(t, "server-side removal", func() bool { return h.Len() == 0 })
	time.Sleep(50 * time.Millisecond)
	if h.Len() != 0 {
		t.Errorf("client reconnected after Close")
	}
}
