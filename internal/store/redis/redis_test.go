package redis

import (
	"context"
	"testing"
	"time"

	"trading-overlays/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadClient points at a port nothing listens on, so every command fails fast.
func deadClient(t *testing.T) *goredis.Client {
	t.Helper()
	c := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOverlayKey(t *testing.T) {
	assert.Equal(t, "ovl:BTCUSD:60s:BB_20_2:1700000000:500:beef",
		OverlayKey("BTCUSD", 60, "BB_20_2", 1700000000, 500, 0xbeef))
}

func TestCandlesChannel_RoundTrip(t *testing.T) {
	ch := CandlesChannel("NSE:INFY", 300)
	assert.Equal(t, "pub:candles:NSE:INFY:300s", ch)

	symbol, tf, ok := ParseCandlesChannel(ch)
	require.True(t, ok)
	assert.Equal(t, "NSE:INFY", symbol)
	assert.Equal(t, 300, tf)
}

func TestParseCandlesChannel_Rejects(t *testing.T) {
	for _, ch := range []string{
		"pub:ind:SMA_9:60s:NSE:1",
		"pub:candles:",
		"pub:candles:BTCUSD",
		"pub:candles:BTCUSD:xs",
		"pub:candles::60s",
		"pub:candles:BTCUSD:0s",
	} {
		_, _, ok := ParseCandlesChannel(ch)
		assert.False(t, ok, ch)
	}
}

func TestDecodeUpdate_ChannelWins(t *testing.T) {
	upd, ok := decodeUpdate("pub:candles:ETHUSD:60s", `{"symbol":"OTHER","tf":5,"last":120}`)
	require.True(t, ok)
	assert.Equal(t, CandlesUpdate{Symbol: "ETHUSD", TF: 60, Last: 120}, upd)

	_, ok = decodeUpdate("pub:candles:ETHUSD:60s", `not json`)
	assert.False(t, ok)
}

func TestNopCache_AlwaysMisses(t *testing.T) {
	var c NopCache
	c.Set(context.Background(), "k", []byte("v"))
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestCache_OutageDegradesToMiss(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	cb.IsFailure = isRedisFault
	c := NewCache(deadClient(t), cb, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, ok := c.Get(ctx, OverlayKey("X", 60, "SMA_5", 1, 10, 0))
		assert.False(t, ok)
	}
	assert.Equal(t, StateOpen, cb.CurrentState())

	// Sets are swallowed while open.
	c.Set(ctx, "k", []byte("v"))
}

func TestPublisher_HoldsWhileOpen(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	p := NewPublisher(context.Background(), deadClient(t), cb)
	ctx := context.Background()

	// First call reaches Redis and trips the breaker.
	assert.Error(t, p.NotifyCandles(ctx, "BTCUSD", 60, 100))
	require.Equal(t, StateOpen, cb.CurrentState())

	require.NoError(t, p.NotifyCandles(ctx, "BTCUSD", 60, 160))
	require.NoError(t, p.NotifyCandles(ctx, "BTCUSD", 60, 220))
	require.NoError(t, p.NotifyCandles(ctx, "ETHUSD", 60, 220))
	assert.Equal(t, 2, p.PendingCount())

	p.mu.Lock()
	assert.Equal(t, model.Time(220), p.pending["BTCUSD:60s"].Last)
	p.mu.Unlock()
}
