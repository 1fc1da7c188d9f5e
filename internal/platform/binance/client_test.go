package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

const exchangeInfoBody = `{"symbols":[
 {"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"},
 {"symbol":"ETHBTC","status":"TRADING","baseAsset":"ETH","quoteAsset":"BTC"},
 {"symbol":"LUNAUSDT","status":"BREAK","baseAsset":"LUNA","quoteAsset":"USDT"}
]}`

const tickerBody = `[
 {"symbol":"BTCUSDT","bidPrice":"60000.10","askPrice":"60000.20","volume":"10","quoteVolume":"600000","closeTime":1700000000000},
 {"symbol":"ETHBTC","bidPrice":"0.05","askPrice":"0.0501","volume":"100","quoteVolume":"5","closeTime":1700000000000},
 {"symbol":"XRPUSDT","bidPrice":"0.5","askPrice":"0.51","volume":"1","quoteVolume":"1","closeTime":1700000000000}
]`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(exchangeInfoBody))
	})
	mux.HandleFunc("GET /api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tickerBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadMarkets(t *testing.T) {
	c := NewClient("binance", newServer(t).URL, time.Second)

	set, err := c.LoadMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, set.Pairs, 3)
	assert.Equal(t, domain.ExchangeID("binance"), set.Exchange)
	assert.Equal(t, "BTC/USDT", set.Pairs[0].Key())
	assert.True(t, set.Pairs[0].Active)
	assert.False(t, set.Pairs[2].Active)
}

func TestFetchTickersFiltersRequested(t *testing.T) {
	c := NewClient("binance", newServer(t).URL, time.Second)

	quotes, err := c.FetchTickers(context.Background(), []string{"BTCUSDT", "ETHBTC"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	q := quotes["BTCUSDT"]
	assert.Equal(t, 60000.10, q.Bid)
	assert.Equal(t, 60000.20, q.Ask)
	assert.Equal(t, 600000.0, q.QuoteVolume)
	assert.Equal(t, time.UnixMilli(1700000000000), q.Timestamp)
}

func TestFetchTickersUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient("binance", srv.URL, time.Second).FetchTickers(context.Background(), []string{"BTCUSDT"})
	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.FetchTerminal, fe.Kind)
}
