package handler

import (
	"log"
	"net/http"
	"strings"

	"ghosthq/internal/model"
)

// chatLimit は GET /api/chat で返す最大件数
const chatLimit = 100

type chatRequest struct {
	UserID      string `json:"userId"`
	Text        string `json:"text"`
	IsCommand   bool   `json:"isCommand"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
}

// GetChatMessages handles GET /api/chat
func (h *Handler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Store.GetChatMessages(r.Context(), chatLimit)
	if err != nil {
		log.Printf("[GET /api/chat] ❌ Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch chat messages")
		return
	}

	log.Printf("[GET /api/chat] ✅ Returned %d messages", len(msgs))
	writeJSON(w, http.StatusOK, msgs)
}

// CreateChatMessage handles POST /api/chat
func (h *Handler) CreateChatMessage(w http.ResponseWriter, r *http.Request) {
	log.Printf("[POST /api/chat] Request received from %s", r.RemoteAddr)

	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		log.Printf("[POST /api/chat] ❌ Bad Request: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	msg, err := h.Store.CreateChatMessage(r.Context(), model.ChatMessage{
		UserID:      req.UserID,
		Text:        req.Text,
		IsCommand:   req.IsCommand,
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		log.Printf("[POST /api/chat] ❌ Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create chat message")
		return
	}

	h.Hub.Broadcast(*msg)
	log.Printf("[POST /api/chat] ✅ Created message: ID=%s, Text=%q", msg.ID, msg.Text)

	writeJSON(w, http.StatusCreated, msg)
}
