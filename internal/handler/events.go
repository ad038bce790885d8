package handler

import (
	"fmt"
	"log"
	"math/rand"
	"net/http"

	"ghosthq/internal/model"
)

// eventLimit は GET /api/events で返す最大件数
const eventLimit = 50

type eventRequest struct {
	Type        model.EventType `json:"type"`
	Intensity   *int            `json:"intensity"`
	TriggeredBy *string         `json:"triggeredBy"`
}

// GetGhostEvents handles GET /api/events
func (h *Handler) GetGhostEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Store.GetGhostEvents(r.Context(), eventLimit)
	if err != nil {
		log.Printf("[GET /api/events] ❌ Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch ghost events")
		return
	}

	log.Printf("[GET /api/events] ✅ Returned %d events", len(events))
	writeJSON(w, http.StatusOK, events)
}

// CreateGhostEvent handles POST /api/events
func (h *Handler) CreateGhostEvent(w http.ResponseWriter, r *http.Request) {
	log.Printf("[POST /api/events] Request received from %s", r.RemoteAddr)

	var req eventRequest
	if err := decodeBody(w, r, &req); err != nil {
		log.Printf("[POST /api/events] ❌ Bad Request: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Type.Valid() {
		log.Printf("[POST /api/events] ❌ Bad Request: unknown type %q", req.Type)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid event type: %q", req.Type))
		return
	}

	// 強度未指定なら1〜5のランダム
	intensity := rand.Intn(model.MaxIntensity-model.MinIntensity+1) + model.MinIntensity
	if req.Intensity != nil {
		if *req.Intensity < model.MinIntensity || *req.Intensity > model.MaxIntensity {
			writeError(w, http.StatusBadRequest, "intensity must be between 1 and 5")
			return
		}
		intensity = *req.Intensity
	}

	event, err := h.Store.CreateGhostEvent(r.Context(), model.GhostEvent{
		Type:        req.Type,
		Intensity:   intensity,
		Message:     req.Type.Message(),
		TriggeredBy: req.TriggeredBy,
	})
	if err != nil {
		log.Printf("[POST /api/events] ❌ Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create ghost event")
		return
	}

	h.Hub.Broadcast(*event)
	log.Printf("[POST /api/events] 👻 Triggered %s (intensity %d)", event.Type, event.Intensity)

	writeJSON(w, http.StatusCreated, event)
}
