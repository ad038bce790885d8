package handler

import (
	"log"
	"net/http"
	"strings"

	"ghosthq/internal/model"
)

type evidenceRequest struct {
	UserID      string `json:"userId"`
	Evidence    string `json:"evidence"`
	DisplayName string `json:"displayName"`
}

// GetEvidence handles GET /api/evidence
func (h *Handler) GetEvidence(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.GetEvidence(r.Context())
	if err != nil {
		log.Printf("[GET /api/evidence] ❌ Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch evidence")
		return
	}

	writeJSON(w, http.StatusOK, items)
}

// CreateEvidence handles POST /api/evidence
func (h *Handler) CreateEvidence(w http.ResponseWriter, r *http.Request) {
	log.Printf("[POST /api/evidence] Request received from %s", r.RemoteAddr)

	var req evidenceRequest
	if err := decodeBody(w, r, &req); err != nil {
		log.Printf("[POST /api/evidence] ❌ Bad Request: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if strings.TrimSpace(req.Evidence) == "" {
		writeError(w, http.StatusBadRequest, "evidence is required")
		return
	}

	item, err := h.Store.CreateEvidence(r.Context(), model.Evidence{
		UserID:      req.UserID,
		Evidence:    req.Evidence,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		log.Printf("[POST /api/evidence] ❌ Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create evidence")
		return
	}

	h.Hub.Broadcast(*item)
	log.Printf("[POST /api/evidence] ✅ Logged evidence: ID=%s, Evidence=%q", item.ID, item.Evidence)

	writeJSON(w, http.StatusCreated, item)
}

// ClearEvidence handles DELETE /api/evidence
func (h *Handler) ClearEvidence(w http.ResponseWriter, r *http.Request) {
	log.Printf("[DELETE /api/evidence] Request received from %s", r.RemoteAddr)

	if err := h.Store.ClearEvidence(r.Context()); err != nil {
		log.Printf("[DELETE /api/evidence] ❌ Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear evidence")
		return
	}

	h.Hub.Broadcast(model.EvidenceCleared{})
	log.Printf("[DELETE /api/evidence] ✅ Cleared all evidence")

	w.WriteHeader(http.StatusNoContent)
}
