package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/toyoshi/solo-block-report-bot/internal/scheduler"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeStats struct{ st scheduler.Stats }

func (f fakeStats) Stats() scheduler.Stats { return f.st }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHTTP_HealthAndReadiness(t *testing.T) {
	h := NewHTTPHandler(fakePinger{}, fakeStats{}, zap.NewNop())
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)

	down := NewHTTPHandler(fakePinger{err: errors.New("closed")}, fakeStats{}, zap.NewNop())
	assert.Equal(t, http.StatusOK, get(t, down, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, down, "/readyz").Code)
	assert.Equal(t, http.StatusNotFound, get(t, down, "/nope").Code)
}

func TestHTTP_Stats(t *testing.T) {
	st := scheduler.Stats{
		Running:      true,
		HitCheckRuns: 3,
		LastHitCheck: &scheduler.CycleResult{TickID: "abc", Workers: 2, Alerts: 1},
	}
	rec := get(t, NewHTTPHandler(fakePinger{}, fakeStats{st: st}, zap.NewNop()), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["running"])
	assert.EqualValues(t, 3, got["hit_check_runs"])
	last, ok := got["last_hit_check"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abc", last["tick_id"])
	assert.NotContains(t, got, "last_digest")
}
