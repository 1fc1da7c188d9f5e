package executor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func opp(ex domain.ExchangeID, path ...domain.Currency) domain.Opportunity {
	return domain.Opportunity{Exchange: ex, Path: path, Hops: len(path) - 1, NetProfit: 0.01}
}

func TestDedupWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	assert.False(t, d.Seen("k"))
	now = now.Add(30 * time.Second)
	assert.True(t, d.Seen("k"))

	now = now.Add(31 * time.Second)
	assert.False(t, d.Seen("k"), "repeats do not extend the window")
	assert.False(t, d.Seen("other"))
	assert.Equal(t, 2, d.Prune())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, d.Prune())
}

func TestDedupDisabled(t *testing.T) {
	d := NewDedup(0)
	assert.False(t, d.Seen("k"))
	assert.False(t, d.Seen("k"))
	assert.Equal(t, 0, d.Prune())
}

func TestLogExecutorSkipsRotations(t *testing.T) {
	x := NewLogExecutor(time.Minute, discard)
	ctx := context.Background()

	require.NoError(t, x.Submit(ctx, []domain.Opportunity{
		opp("binance", "A", "B", "C", "A"),
		opp("kucoin", "A", "B", "C", "A"),
	}))
	require.NoError(t, x.Submit(ctx, []domain.Opportunity{
		opp("binance", "B", "C", "A", "B"),
	}))

	accepted, skipped := x.Stats()
	assert.Equal(t, uint64(2), accepted)
	assert.Equal(t, uint64(1), skipped)
}

func TestLogExecutorWithoutDedup(t *testing.T) {
	x := NewLogExecutor(0, discard)
	o := opp("binance", "A", "B", "C", "A")

	require.NoError(t, x.Submit(context.Background(), []domain.Opportunity{o, o}))
	accepted, skipped := x.Stats()
	assert.Equal(t, uint64(2), accepted)
	assert.Zero(t, skipped)
}

func TestLogExecutorHonoursContext(t *testing.T) {
	x := NewLogExecutor(time.Minute, discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := x.Submit(ctx, []domain.Opportunity{opp("binance", "A", "B", "C", "A")})
	assert.ErrorIs(t, err, context.Canceled)
}
