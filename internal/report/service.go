package report

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service exposes report creation and token-gated reads over HTTP.
type Service struct {
	app *App
}

// NewService creates a new report Service
func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes mounts the report endpoints on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/reports", s.handleCreate)
	mux.HandleFunc("GET /api/reports/{token}", s.handleGet)
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rep, err := s.app.CreateReport(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	rep, err := s.app.GetReport(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			http.Error(w, "report not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Msg("failed to get report")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
