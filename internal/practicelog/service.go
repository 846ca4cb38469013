package practicelog

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Default window when the client sends no range: the trailing 30 days.
const defaultRangeDays = 30

// Service exposes the practice log over HTTP.
type Service struct {
	repo *Repository
}

// NewService creates a new practice log Service
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// RegisterRoutes mounts the log endpoints on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/log", s.handleList)
	mux.HandleFunc("GET /api/log/summary", s.handleSummary)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := s.repo.ListRange(r.Context(), from, to)
	if err != nil {
		log.Error().Err(err).Msg("failed to list practice log")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Service) handleSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	days, err := s.repo.DailySummary(r.Context(), from, to)
	if err != nil {
		log.Error().Err(err).Msg("failed to summarize practice log")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if days == nil {
		days = []DaySummary{}
	}
	writeJSON(w, http.StatusOK, days)
}

// parseRange reads from/to query params as RFC 3339 timestamps. to is
// exclusive.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -defaultRangeDays)
	to := now

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
