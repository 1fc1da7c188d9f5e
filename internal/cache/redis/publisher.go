package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// IterationPublisher is an iteration sink that broadcasts each result on a
// pub/sub channel and appends it to a stream for late readers.
type IterationPublisher struct {
	bus     domain.SignalBus
	channel string
	stream  string
}

var _ domain.IterationSink = (*IterationPublisher)(nil)

// NewIterationPublisher creates a publisher. An empty channel or stream
// disables that half.
func NewIterationPublisher(bus domain.SignalBus, channel, stream string) *IterationPublisher {
	return &IterationPublisher{bus: bus, channel: channel, stream: stream}
}

func (p *IterationPublisher) Name() string { return "redis" }

// Emit publishes res as JSON.
func (p *IterationPublisher) Emit(ctx context.Context, res domain.IterationResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("redis: marshal iteration %s: %w", res.ID, err)
	}
	if p.channel != "" {
		if err := p.bus.Publish(ctx, p.channel, payload); err != nil {
			return err
		}
	}
	if p.stream != "" {
		if err := p.bus.StreamAppend(ctx, p.stream, payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadIterations returns up to count iteration results appended to the
// stream after lastID, together with the ID of the last entry read.
// Undecodable entries are skipped.
func ReadIterations(ctx context.Context, bus domain.SignalBus, stream, lastID string, count int) ([]domain.IterationResult, string, error) {
	msgs, err := bus.StreamRead(ctx, stream, lastID, count)
	if err != nil {
		return nil, lastID, err
	}
	out := make([]domain.IterationResult, 0, len(msgs))
	for _, m := range msgs {
		lastID = m.ID
		var res domain.IterationResult
		if err := json.Unmarshal(m.Payload, &res); err != nil {
			continue
		}
		out = append(out, res)
	}
	return out, lastID, nil
}
