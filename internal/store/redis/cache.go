package redis

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"trading-overlays/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// OverlayKey builds the cache key of one overlay. The key pins the newest
// candle time, the window size and a content fingerprint of the window, so
// both appended and corrected candles bypass stale entries.
//
//	ovl:{symbol}:{tf}s:{specName}:{lastTS}:{n}:{fingerprint hex}
func OverlayKey(symbol string, tf int, specName string, last model.Time, n int, fp uint64) string {
	return "ovl:" + model.SeriesKey(symbol, tf) + ":" + specName + ":" +
		model.Itoa(int(last)) + ":" + model.Itoa(n) + ":" + strconv.FormatUint(fp, 16)
}

// Cache stores computed overlay JSON in Redis with a TTL. Every call runs
// through the circuit breaker; errors are logged and reported as misses.
type Cache struct {
	client *goredis.Client
	cb     *CircuitBreaker
	ttl    time.Duration
}

// NewCache creates an overlay cache on client.
func NewCache(client *goredis.Client, cb *CircuitBreaker, ttl time.Duration) *Cache {
	return &Cache{client: client, cb: cb, ttl: ttl}
}

// Get returns the cached bytes for key, or false on a miss or Redis fault.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	var data []byte
	err := c.cb.Execute(func() error {
		b, err := c.client.Get(ctx, key).Bytes()
		data = b
		return err
	})
	switch {
	case err == nil:
		return data, true
	case errors.Is(err, goredis.Nil), errors.Is(err, ErrCircuitOpen):
		return nil, false
	default:
		slog.Warn("overlay cache get failed", "key", key, "error", err)
		return nil, false
	}
}

// Set stores data under key. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, key string, data []byte) {
	err := c.cb.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl).Err()
	})
	if err != nil && !errors.Is(err, ErrCircuitOpen) {
		slog.Warn("overlay cache set failed", "key", key, "error", err)
	}
}

// NopCache is used when Redis is not configured. Every lookup misses.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (NopCache) Set(context.Context, string, []byte)         {}

var (
	_ model.OverlayCache = (*Cache)(nil)
	_ model.OverlayCache = NopCache{}
)
