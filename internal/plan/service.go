package plan

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service exposes plan CRUD over HTTP.
type Service struct {
	app *App
}

// NewService creates a new plan Service
func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes mounts the plan endpoints on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/plans", s.handleCreate)
	mux.HandleFunc("GET /api/plans", s.handleList)
	mux.HandleFunc("GET /api/plans/{id}", s.handleGet)
	mux.HandleFunc("PUT /api/plans/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /api/plans/{id}", s.handleDelete)
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := s.app.CreatePlan(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	plans, err := s.app.ListPlans(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list plans")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if plans == nil {
		plans = []Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}

	p, err := s.app.GetPlan(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("plan_id", id.String()).Msg("failed to get plan")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}

	var req UpdatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := s.app.UpdatePlan(r.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrPlanNotFound):
			http.Error(w, "plan not found", http.StatusNotFound)
		case errors.Is(err, ErrRevisionConflict):
			http.Error(w, "revision conflict", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}

	if err := s.app.DeletePlan(r.Context(), id); err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("plan_id", id.String()).Msg("failed to delete plan")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
