package settings

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/timer/protocol"
)

// Service exposes timer settings over HTTP.
type Service struct {
	app *App
}

// NewService creates a new settings Service
func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes mounts the settings endpoints on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/settings", s.handleGet)
	mux.HandleFunc("PUT /api/settings", s.handleUpdate)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	current, err := s.app.GetSettings(r.Context(), DefaultProfile)
	if err != nil {
		log.Error().Err(err).Msg("failed to get settings")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch protocol.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	merged, err := s.app.UpdateSettings(r.Context(), DefaultProfile, patch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
