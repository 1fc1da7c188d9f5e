package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLimit(t *testing.T) {
	for query, want := range map[string]int{
		"":            defaultLimit,
		"?limit=10":   10,
		"?limit=-3":   defaultLimit,
		"?limit=abc":  defaultLimit,
		"?limit=9999": maxLimit,
	} {
		r := httptest.NewRequest(http.MethodGet, "/api/opportunities/recent"+query, nil)
		assert.Equal(t, want, parseLimit(r), query)
	}
}

func TestHealthReportsUptime(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := NewHealthHandler(started)
	h.now = func() time.Time { return started.Add(90*time.Second + 300*time.Millisecond) }

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body healthBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1m30s", body.Uptime)
	assert.EqualValues(t, 90, body.UptimeSec)
}

func TestWriteJSONEncodingFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, math.Inf(1))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
