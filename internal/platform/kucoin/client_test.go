package kucoin

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

func newServer(t *testing.T, tickers string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/symbols", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"200000","data":[
			{"symbol":"BTC-USDT","baseCurrency":"BTC","quoteCurrency":"USDT","enableTrading":true},
			{"symbol":"ETH-BTC","baseCurrency":"ETH","quoteCurrency":"BTC","enableTrading":false}]}`))
	})
	mux.HandleFunc("GET /api/v1/market/allTickers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tickers))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadMarkets(t *testing.T) {
	c := NewClient("kucoin", newServer(t, "").URL, time.Second)

	set, err := c.LoadMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, set.Pairs, 2)
	assert.Equal(t, "BTC-USDT", set.Pairs[0].Symbol)
	assert.Equal(t, "ETH/BTC", set.Pairs[1].Key())
	assert.False(t, set.Pairs[1].Active)
}

func TestFetchTickers(t *testing.T) {
	body := `{"code":"200000","data":{"time":1700000000000,"ticker":[
		{"symbol":"BTC-USDT","buy":"60000.1","sell":"60000.2","vol":"12","volValue":"720000"},
		{"symbol":"ETH-BTC","buy":null,"sell":"0.05","vol":"1","volValue":"0.05"},
		{"symbol":"DOGE-USDT","buy":"bad","sell":"0.1","vol":"1","volValue":"1"}]}}`
	c := NewClient("kucoin", newServer(t, body).URL, time.Second)

	quotes, err := c.FetchTickers(context.Background(), []string{"BTC-USDT", "ETH-BTC", "DOGE-USDT"})
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	assert.Equal(t, 60000.1, quotes["BTC-USDT"].Bid)
	assert.Equal(t, time.UnixMilli(1700000000000), quotes["BTC-USDT"].Timestamp)
	assert.Equal(t, 0.0, quotes["ETH-BTC"].Bid, "null side is missing")
	assert.True(t, math.IsNaN(quotes["DOGE-USDT"].Bid), "malformed side is NaN")
}

func TestFetchTickersAPICode(t *testing.T) {
	c := NewClient("kucoin", newServer(t, `{"code":"429000","msg":"too many requests"}`).URL, time.Second)

	_, err := c.FetchTickers(context.Background(), []string{"BTC-USDT"})
	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Transient())
}
