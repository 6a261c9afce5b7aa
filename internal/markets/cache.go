package markets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/polyagent/sim-engine/internal/model"
)

// CachedProvider wraps a Provider with a Redis read-through cache. Gamma
// responses are slow-moving relative to request traffic, so short TTLs cut
// most upstream calls. On any cache failure it falls through to the
// upstream provider.
type CachedProvider struct {
	upstream Provider
	rdb      *redis.Client
	ttl      time.Duration
}

// NewCachedProvider creates a cached wrapper around an upstream provider.
func NewCachedProvider(upstream Provider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		rdb:      rdb,
		ttl:      ttl,
	}
}

func (c *CachedProvider) ActiveMarkets(ctx context.Context, limit int) ([]model.Market, error) {
	key := activeKey(limit)
	if ms, ok := c.getMarkets(ctx, key); ok {
		return ms, nil
	}

	ms, err := c.upstream.ActiveMarkets(ctx, limit)
	if err != nil {
		return nil, err
	}
	c.setMarkets(ctx, key, ms)
	return ms, nil
}

func (c *CachedProvider) Search(ctx context.Context, query string, limit int) ([]model.Market, error) {
	key := searchKey(query, limit)
	if ms, ok := c.getMarkets(ctx, key); ok {
		return ms, nil
	}

	ms, err := c.upstream.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	c.setMarkets(ctx, key, ms)
	return ms, nil
}

func (c *CachedProvider) MarketByID(ctx context.Context, id string) (*model.Market, error) {
	data, err := c.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := c.upstream.MarketByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(m); err == nil {
		c.rdb.Set(ctx, marketKey(id), data, c.ttl)
	}
	return m, nil
}

// Prices is never cached: refreshed marks must reflect the market, not the
// cache.
func (c *CachedProvider) Prices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	return c.upstream.Prices(ctx, ids)
}

// --- Cache helpers ---

func (c *CachedProvider) getMarkets(ctx context.Context, key string) ([]model.Market, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var ms []model.Market
	if json.Unmarshal(data, &ms) != nil {
		return nil, false
	}
	return ms, true
}

func (c *CachedProvider) setMarkets(ctx context.Context, key string, ms []model.Market) {
	if data, err := json.Marshal(ms); err == nil {
		c.rdb.Set(ctx, key, data, c.ttl)
	}
}

func activeKey(limit int) string           { return fmt.Sprintf("markets:active:%d", limit) }
func searchKey(q string, limit int) string { return fmt.Sprintf("markets:search:%d:%s", limit, q) }
func marketKey(id string) string           { return fmt.Sprintf("markets:byid:%s", id) }
