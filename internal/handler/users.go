package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"ghosthq/internal/model"
	"ghosthq/internal/store"
)

type userRequest struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoUrl"`
}

// GetUser handles GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	user, err := h.Store.GetUser(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[GET /api/users/%s] ❌ Not Found", id)
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Printf("[GET /api/users/%s] ❌ Store error: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// SaveUser handles POST /api/users
// 未登録なら作成(201)、登録済みなら更新(200)
func (h *Handler) SaveUser(w http.ResponseWriter, r *http.Request) {
	log.Printf("[POST /api/users] Request received from %s", r.RemoteAddr)

	var req userRequest
	if err := decodeBody(w, r, &req); err != nil {
		log.Printf("[POST /api/users] ❌ Bad Request: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		writeError(w, http.StatusBadRequest, "displayName is required")
		return
	}

	_, err := h.Store.GetUser(r.Context(), req.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		u := model.User{ID: req.ID, DisplayName: req.DisplayName}
		if req.PhotoURL != nil {
			u.PhotoURL = *req.PhotoURL
		}
		created, err := h.Store.CreateUser(r.Context(), u)
		if err != nil {
			log.Printf("[POST /api/users] ❌ Store error: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to create user")
			return
		}
		log.Printf("[POST /api/users] ✅ Created user: ID=%s", created.ID)
		writeJSON(w, http.StatusCreated, created)

	case err != nil:
		log.Printf("[POST /api/users] ❌ Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")

	default:
		updated, err := h.Store.UpdateUser(r.Context(), req.ID, model.UserUpdate{
			DisplayName: req.DisplayName,
			PhotoURL:    req.PhotoURL,
		})
		if err != nil {
			log.Printf("[POST /api/users] ❌ Store error: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to create user")
			return
		}
		log.Printf("[POST /api/users] ✅ Updated user: ID=%s", updated.ID)
		writeJSON(w, http.StatusOK, updated)
	}
}
