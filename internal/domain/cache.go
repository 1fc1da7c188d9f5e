package domain

import (
	"context"
	"time"
)

// MarketCache shares exchange market listings across iterations and
// processes. GetMarkets returns ErrNotFound on a miss.
type MarketCache interface {
	GetMarkets(ctx context.Context, exchange ExchangeID) (MarketSet, error)
	SetMarkets(ctx context.Context, markets MarketSet, ttl time.Duration) error
}

// RateLimiter admits at most limit calls per key within any sliding window.
// Wait blocks until admitted or ctx ends.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager grants a lock to one holder at a time. Acquire fails with
// ErrLockHeld when another holder has it; unlock is idempotent.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one entry read back from a result stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus moves serialized iteration results between processes. Published
// messages reach only live subscribers; stream entries persist up to a cap
// and can be read from any ID onward.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
