package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// MarketCache implements domain.MarketCache. Each exchange's listing is one
// JSON string value so that restarts and sibling processes skip the market
// load call while the entry lives.
//
// Key schema:
//
//	markets:{exchange} - JSON encoded domain.MarketSet
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.rdb}
}

func marketsKey(exchange domain.ExchangeID) string { return "markets:" + string(exchange) }

// SetMarkets stores the listing with the given TTL.
func (mc *MarketCache) SetMarkets(ctx context.Context, markets domain.MarketSet, ttl time.Duration) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal markets %s: %w", markets.Exchange, err)
	}
	if err := mc.rdb.Set(ctx, marketsKey(markets.Exchange), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set markets %s: %w", markets.Exchange, err)
	}
	return nil
}

// GetMarkets returns the cached listing or domain.ErrNotFound.
func (mc *MarketCache) GetMarkets(ctx context.Context, exchange domain.ExchangeID) (domain.MarketSet, error) {
	data, err := mc.rdb.Get(ctx, marketsKey(exchange)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketSet{}, domain.ErrNotFound
		}
		return domain.MarketSet{}, fmt.Errorf("redis: get markets %s: %w", exchange, err)
	}

	var set domain.MarketSet
	if err := json.Unmarshal(data, &set); err != nil {
		return domain.MarketSet{}, fmt.Errorf("redis: unmarshal markets %s: %w", exchange, err)
	}
	return set, nil
}

// Invalidate removes the cached listing for exchange.
func (mc *MarketCache) Invalidate(ctx context.Context, exchange domain.ExchangeID) error {
	if err := mc.rdb.Del(ctx, marketsKey(exchange)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate markets %s: %w", exchange, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
