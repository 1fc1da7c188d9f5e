package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingSink struct {
	name  string
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (s *countingSink) Name() string { return s.name }

func (s *countingSink) Emit(context.Context, domain.IterationResult) error {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	return s.err
}

func result() domain.IterationResult {
	return domain.IterationResult{
		ID:  "it-1",
		Seq: 1,
		Ranked: []domain.Opportunity{{
			Exchange:  "binance",
			Path:      []domain.Currency{"BTC", "ETH", "USDT", "BTC"},
			Hops:      3,
			NetProfit: 0.01,
			Rank:      1,
		}},
	}
}

func TestFanoutDeliversToAll(t *testing.T) {
	a, b := &countingSink{name: "a"}, &countingSink{name: "b"}
	f := NewFanout(time.Second, discard, a, b)

	require.NoError(t, f.Emit(context.Background(), result()))
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, 2, f.Len())
}

func TestFanoutIsolatesFailures(t *testing.T) {
	bad := &countingSink{name: "bad", err: errors.New("boom")}
	good := &countingSink{name: "good"}
	f := NewFanout(time.Second, discard, bad, good)

	err := f.Emit(context.Background(), result())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, int32(1), good.calls.Load())
}

func TestFanoutAbandonsSlowSink(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := &countingSink{name: "slow", block: release}
	good := &countingSink{name: "good"}
	f := NewFanout(50*time.Millisecond, discard, slow, good)

	start := time.Now()
	err := f.Emit(context.Background(), result())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow: timed out")
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), good.calls.Load())
}

func TestFanoutEmpty(t *testing.T) {
	assert.NoError(t, NewFanout(0, discard).Emit(context.Background(), result()))
}

func TestJSONSinkWritesLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONSink(&buf, false)

	require.NoError(t, s.Emit(context.Background(), result()))
	assert.Contains(t, buf.String(), `"id":"it-1"`)
	assert.Contains(t, buf.String(), `"net_profit":0.01`)
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, s.Emit(context.Background(), result()))
	assert.Contains(t, buf.String(), `"path":"BTC>ETH>USDT>BTC"`)
	assert.Contains(t, buf.String(), `"component":"log_sink"`)
}

type memStore struct{ saved []domain.IterationResult }

func (m *memStore) SaveIteration(_ context.Context, res domain.IterationResult) error {
	m.saved = append(m.saved, res)
	return nil
}

func (m *memStore) LatestIteration(context.Context) (domain.IterationResult, error) {
	if len(m.saved) == 0 {
		return domain.IterationResult{}, domain.ErrNotFound
	}
	return m.saved[len(m.saved)-1], nil
}

func (m *memStore) ListRecentOpportunities(context.Context, int) ([]domain.Opportunity, error) {
	return nil, nil
}

func TestStoreSink(t *testing.T) {
	st := &memStore{}
	s := NewStoreSink("postgres", st)

	require.NoError(t, s.Emit(context.Background(), result()))
	assert.Equal(t, "postgres", s.Name())
	require.Len(t, st.saved, 1)
	assert.Equal(t, "it-1", st.saved[0].ID)
}
