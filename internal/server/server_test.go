package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/server/handler"
)

type memStore struct {
	latest *domain.IterationResult
	opps   []domain.Opportunity
}

func (m *memStore) SaveIteration(_ context.Context, res domain.IterationResult) error {
	m.latest = &res
	m.opps = append(res.Ranked, m.opps...)
	return nil
}

func (m *memStore) LatestIteration(context.Context) (domain.IterationResult, error) {
	if m.latest == nil {
		return domain.IterationResult{}, domain.ErrNotFound
	}
	return *m.latest, nil
}

func (m *memStore) ListRecentOpportunities(_ context.Context, limit int) ([]domain.Opportunity, error) {
	return m.opps[:min(limit, len(m.opps))], nil
}

type countingLimiter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls == nil {
		l.calls = map[string]int{}
	}
	l.calls[key]++
	return l.calls[key] <= limit, nil
}

func (l *countingLimiter) Wait(context.Context, string, int, time.Duration) error { return nil }

func newTestServer(t *testing.T, cfg Config, store domain.IterationStore, limiter domain.RateLimiter) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})
	srv := NewServer(cfg, Handlers{
		Health:     handler.NewHealthHandler(time.Now()),
		Status:     handler.NewStatusHandler("server", "bellman_ford", []string{"binance"}, nil),
		Iterations: handler.NewIterationHandler(nil, store, logger),
		Metrics:    metrics,
	}, nil, limiter, logger)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, path, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	h := newTestServer(t, Config{APIKey: "secret"}, &memStore{}, nil)

	rec := do(t, h, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	rec = do(t, h, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestProtectedRoutesRequireKey(t *testing.T) {
	h := newTestServer(t, Config{APIKey: "secret"}, &memStore{}, nil)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, "/api/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, "/api/status", "wrong").Code)

	rec := do(t, h, "/api/status", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "server", body["mode"])
	assert.Equal(t, "bellman_ford", body["strategy"])
	assert.NotContains(t, body, "phase")

	req := httptest.NewRequest(http.MethodGet, "/api/status?api_key=secret", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLatestIterationFromStore(t *testing.T) {
	store := &memStore{}
	h := newTestServer(t, Config{}, store, nil)

	assert.Equal(t, http.StatusNotFound, do(t, h, "/api/iterations/latest", "").Code)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := domain.IterationResult{
		ID:        "it-1",
		Seq:       1,
		StartedAt: now,
		PerExchange: map[domain.ExchangeID]domain.Outcome{
			"binance": {Kind: domain.OutcomeSuccess},
		},
		Ranked: []domain.Opportunity{
			{ID: "o1", Exchange: "binance", Path: []domain.Currency{"BTC", "ETH", "USDT", "BTC"}, Hops: 3, NetProfit: 0.01, Rank: 1},
			{ID: "o2", Exchange: "binance", Path: []domain.Currency{"BTC", "BNB", "BTC"}, Hops: 2, NetProfit: 0.002, Rank: 2},
		},
	}
	require.NoError(t, store.SaveIteration(context.Background(), res))

	rec := do(t, h, "/api/iterations/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.IterationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "it-1", got.ID)
	assert.Len(t, got.Ranked, 2)

	rec = do(t, h, "/api/opportunities/recent?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var opps []domain.Opportunity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opps))
	require.Len(t, opps, 1)
	assert.Equal(t, "o1", opps[0].ID)
}

func TestRecentOpportunitiesWithoutSourcesIsEmptyList(t *testing.T) {
	h := newTestServer(t, Config{}, nil, nil)

	rec := do(t, h, "/api/opportunities/recent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRateLimitAppliesToProtectedRoutesOnly(t *testing.T) {
	limiter := &countingLimiter{}
	h := newTestServer(t, Config{RateLimit: 2, RateWindow: 10 * time.Second}, &memStore{}, limiter)

	assert.Equal(t, http.StatusOK, do(t, h, "/api/status", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, "/api/status", "").Code)

	rec := do(t, h, "/api/status", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))

	for range 5 {
		assert.Equal(t, http.StatusOK, do(t, h, "/api/health", "").Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, Config{CORSOrigins: []string{"https://dash.example.com"}}, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}
