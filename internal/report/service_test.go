package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	reports map[string]*Report
}

func (r *stubRepo) InsertReport(ctx context.Context, tx pgx.Tx, rep *Report) error {
	return errors.New("not implemented")
}

func (r *stubRepo) GetByToken(ctx context.Context, token string) (*Report, error) {
	rep, ok := r.reports[token]
	if !ok {
		return nil, ErrReportNotFound
	}
	return rep, nil
}

func newTestService(reports map[string]*Report) *http.ServeMux {
	app := NewApp(nil, &stubRepo{reports: reports}, nil, nil, nil, clockwork.NewFakeClock())
	mux := http.NewServeMux()
	NewService(app).RegisterRoutes(mux)
	return mux
}

func TestGetReportByToken(t *testing.T) {
	t.Parallel()
	rep := &Report{
		ID:       uuid.New(),
		Token:    "fGk3qkGpRLvN29XaPmhLNg",
		Title:    "March recital prep",
		Snapshot: []byte(`{"title":"March recital prep"}`),
	}
	mux := newTestService(map[string]*Report{rep.Token: rep})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/reports/"+rep.Token, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var got Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, rep.Token, got.Token)
	assert.Equal(t, rep.Title, got.Title)
}

func TestGetReportUnknownTokenIsNotFound(t *testing.T) {
	t.Parallel()
	mux := newTestService(nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/reports/no-such-token", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
}
