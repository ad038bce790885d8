package handler

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// createUpgrader creates a WebSocket upgrader with the given allowed origins.
// Requests without an Origin header come from non-browser agents and are let through.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowedMap["*"] {
				return true
			}
			return allowedMap[origin]
		},
	}
}

// HandleWebSocket handles GET /ws
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := createUpgrader(h.Config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] ❌ Upgrade error: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	totalClients := h.Hub.Add(conn)
	log.Printf("[WebSocket] New connection from %s. Total clients: %d", r.RemoteAddr, totalClients)

	// サーバーはプッシュ専用。クライアントからのフレームは読み捨てる（切断検知用）
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			remainingClients := h.Hub.Remove(conn)
			log.Printf("[WebSocket] Client disconnected. Total clients: %d", remainingClients)
			break
		}
	}
}
