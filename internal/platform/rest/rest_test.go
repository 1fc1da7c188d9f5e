package rest

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

func TestGetJSONDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/x", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("a"))
		_, _ = w.Write([]byte(`{"name":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient("test", srv.URL+"/", time.Second)
	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/api/x", map[string][]string{"a": {"1"}}, &out))
	assert.Equal(t, "ok", out.Name)
}

func TestGetJSONStatusKinds(t *testing.T) {
	cases := []struct {
		status   int
		kind     domain.FetchKind
		sentinel error
	}{
		{http.StatusUnauthorized, domain.FetchTerminal, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.FetchTerminal, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.FetchTransient, domain.ErrRateLimited},
		{http.StatusBadGateway, domain.FetchTransient, nil},
		{http.StatusNotFound, domain.FetchTerminal, nil},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			err := NewClient("test", srv.URL, time.Second).GetJSON(context.Background(), "/", nil, &struct{}{})
			var fe *domain.FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tc.kind, fe.Kind)
			assert.Equal(t, domain.ExchangeID("test"), fe.Exchange)
			if tc.sentinel != nil {
				assert.ErrorIs(t, err, tc.sentinel)
			}
			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tc.status, se.Code)
		})
	}
}

func TestGetJSONTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	err := NewClient("test", srv.URL, 20*time.Millisecond).GetJSON(context.Background(), "/", nil, &struct{}{})
	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Transient())
}

func TestGetJSONMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	err := NewClient("test", srv.URL, time.Second).GetJSON(context.Background(), "/", nil, &struct{}{})
	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.FetchTransient, fe.Kind)
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, 0.0, ParseNumber(""))
	assert.Equal(t, 0.0, ParseNumber("null"))
	assert.Equal(t, 61234.5, ParseNumber("61234.50000000"))
	assert.True(t, math.IsNaN(ParseNumber("abc")))
}
