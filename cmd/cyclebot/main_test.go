package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevelIgnoresCase(t *testing.T) {
	ctx := context.Background()

	assert.True(t, newLogger(io.Discard, "DEBUG").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger(io.Discard, "Warn").Enabled(ctx, slog.LevelInfo))
	assert.True(t, newLogger(io.Discard, "Warn").Enabled(ctx, slog.LevelWarn))
	assert.False(t, newLogger(io.Discard, "").Enabled(ctx, slog.LevelDebug))
}
