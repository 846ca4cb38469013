package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/timer/protocol"
	"github.com/jdev09/woodshed/internal/timer/session"
)

// Handler serves the WebSocket upgrade and the session REST endpoints.
type Handler struct {
	manager           *session.Manager
	connectionManager *ConnectionManager
}

// NewHandler creates the gateway HTTP handler.
func NewHandler(manager *session.Manager, cm *ConnectionManager) *Handler {
	return &Handler{manager: manager, connectionManager: cm}
}

// RegisterRoutes attaches gateway routes to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/session", h.handleSessionSocket)
	mux.HandleFunc("GET /ws/stats", h.handleStats)
	mux.HandleFunc("POST /api/sessions", h.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}/state", h.handleSessionState)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.handleCloseSession)
	log.Info().Msg("gateway routes registered")
}

// handleSessionSocket upgrades a client onto a session's event stream.
func (h *Handler) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.URL.Query().Get("session_id"))
	if err != nil {
		http.Error(w, "valid session_id is required", http.StatusBadRequest)
		return
	}
	if _, ok := h.manager.Get(sessionID); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err := h.connectionManager.UpgradeConnection(w, r, sessionID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to upgrade WebSocket connection")
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	conns, sessions := h.connectionManager.Stats()
	writeJSON(w, http.StatusOK, map[string]int{
		"total_connections": conns,
		"active_sessions":   sessions,
		"live_sessions":     h.manager.Count(),
	})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var patch *protocol.SettingsPatch
	if r.ContentLength != 0 {
		patch = &protocol.SettingsPatch{}
		if err := json.NewDecoder(r.Body).Decode(patch); err != nil {
			http.Error(w, fmt.Sprintf("bad settings payload: %v", err), http.StatusBadRequest)
			return
		}
	}

	s, err := h.manager.Create(r.Context(), patch)
	if err != nil {
		log.Error().Err(err).Msg("failed to create session")
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *Handler) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	s, ok := h.manager.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	h.manager.Close(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
