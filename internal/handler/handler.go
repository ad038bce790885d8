package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"ghosthq/internal/config"
	"ghosthq/internal/hub"
	"ghosthq/internal/store"
)

// maxBodyBytes はリクエストボディの上限（1MB）
const maxBodyBytes = 1 << 20

// Handler holds application dependencies
type Handler struct {
	Store  store.Store
	Hub    *hub.Hub
	Config config.Config
}

// New creates a new Handler with the given dependencies
func New(s store.Store, h *hub.Hub, cfg config.Config) *Handler {
	return &Handler{
		Store:  s,
		Hub:    h,
		Config: cfg,
	}
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// REST API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chat", h.GetChatMessages).Methods("GET")
	api.HandleFunc("/chat", h.CreateChatMessage).Methods("POST")
	api.HandleFunc("/events", h.GetGhostEvents).Methods("GET")
	api.HandleFunc("/events", h.CreateGhostEvent).Methods("POST")
	api.HandleFunc("/evidence", h.GetEvidence).Methods("GET")
	api.HandleFunc("/evidence", h.CreateEvidence).Methods("POST")
	api.HandleFunc("/evidence", h.ClearEvidence).Methods("DELETE")
	api.HandleFunc("/squad", h.GetSquadStatus).Methods("GET")
	api.HandleFunc("/squad/status", h.UpdateSquadStatus).Methods("POST")
	api.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	api.HandleFunc("/users", h.SaveUser).Methods("POST")

	// 招待・ヘルスチェック
	r.HandleFunc("/qr", h.HandleQR).Methods("GET")
	r.HandleFunc("/healthz", h.HandleHealth).Methods("GET")

	// WebSocket
	r.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads a JSON body of at most maxBodyBytes into dst
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}
