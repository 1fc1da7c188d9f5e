package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type message struct{ title, body string }

type fakeSender struct {
	name string
	err  error
	sent []message
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(_ context.Context, title, body string) error {
	f.sent = append(f.sent, message{title, body})
	return f.err
}

func iteration(net float64) domain.IterationResult {
	return domain.IterationResult{
		Seq: 3,
		PerExchange: map[domain.ExchangeID]domain.Outcome{
			"binance": {Kind: domain.OutcomeSuccess},
			"kucoin":  {Kind: domain.OutcomeTimedOut, Stage: domain.StageDetect, Reason: "detection timed out"},
		},
		Ranked: []domain.Opportunity{{
			Exchange:  "binance",
			Path:      []domain.Currency{"BTC", "ETH", "USDT", "BTC"},
			Hops:      3,
			NetProfit: net,
			Rank:      1,
		}},
	}
}

func TestAlertSinkSendsCycleAndFailure(t *testing.T) {
	s := &fakeSender{name: "fake"}
	sink := NewAlertSink(NewNotifier([]Sender{s}, nil, discard), 0.01)

	require.NoError(t, sink.Emit(context.Background(), iteration(0.02)))

	require.Len(t, s.sent, 2)
	assert.Equal(t, "Cycle 2.000% on binance", s.sent[0].title)
	assert.Contains(t, s.sent[0].body, "#1 binance BTC>ETH>USDT>BTC")
	assert.Contains(t, s.sent[1].title, "1 exchange(s) failed")
	assert.Contains(t, s.sent[1].body, "kucoin: timed_out (detect)")
}

func TestAlertSinkRespectsThresholdAndFilter(t *testing.T) {
	s := &fakeSender{name: "fake"}
	sink := NewAlertSink(NewNotifier([]Sender{s}, []string{EventCycleDetected}, discard), 0.05)

	require.NoError(t, sink.Emit(context.Background(), iteration(0.02)))
	assert.Empty(t, s.sent)
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("down")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard)

	err := n.Notify(context.Background(), EventCycleDetected, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, good.sent, 1)
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Title", "body"))
	assert.Equal(t, "**Title**\nbody", got["content"])
}

func TestTelegramSenderReportsStatus(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.apiBase = srv.URL
	err := s.Send(context.Background(), "t", "m")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 401")
	assert.Equal(t, "/bottok/sendMessage", path)
}
