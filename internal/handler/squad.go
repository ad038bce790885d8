package handler

import (
	"log"
	"net/http"
	"strings"

	"ghosthq/internal/model"
)

// GetSquadStatus handles GET /api/squad
func (h *Handler) GetSquadStatus(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.GetSquadStatus(r.Context())
	if err != nil {
		log.Printf("[GET /api/squad] ❌ Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch squad status")
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

// UpdateSquadStatus handles POST /api/squad/status
// 既存の行に指定フィールドだけをマージする
func (h *Handler) UpdateSquadStatus(w http.ResponseWriter, r *http.Request) {
	log.Printf("[POST /api/squad/status] Request received from %s", r.RemoteAddr)

	var upd model.SquadStatusUpdate
	if err := decodeBody(w, r, &upd); err != nil {
		log.Printf("[POST /api/squad/status] ❌ Bad Request: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(upd.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	status, err := h.Store.UpdateSquadStatus(r.Context(), upd)
	if err != nil {
		log.Printf("[POST /api/squad/status] ❌ Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update squad status")
		return
	}

	h.Hub.Broadcast(*status)
	log.Printf("[POST /api/squad/status] ✅ Updated status for %s (dead=%t)", status.UserID, status.IsDead)

	writeJSON(w, http.StatusOK, status)
}
