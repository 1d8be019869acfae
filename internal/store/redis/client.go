package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trading-overlays/internal/metrics"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a Redis client and pings the server.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", cfg.Addr)
	return client, nil
}

// NewBreaker returns the circuit breaker shared by the cache and publisher,
// reporting its state to m when m is non-nil.
func NewBreaker(m *metrics.Metrics) *CircuitBreaker {
	cb := NewCircuitBreaker(5, 10*time.Second)
	cb.IsFailure = isRedisFault
	cb.OnStateChange = func(from, to State) {
		slog.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
		if m == nil {
			return
		}
		m.RedisCircuitBreakerState.Set(float64(to))
		if to == StateOpen {
			m.RedisCircuitBreakerTrips.Inc()
		}
	}
	return cb
}

// isRedisFault reports whether err indicates Redis itself is unhealthy.
func isRedisFault(err error) bool {
	return err != nil && err != goredis.Nil
}
