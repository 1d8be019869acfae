package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"trading-overlays/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.db")

	w, err := New(WriterConfig{DBPath: path})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

func candles(start model.Time, closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{Time: start + model.Time(i*60), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 5}
	}
	return out
}

func TestWriteRead_RoundTripAscending(t *testing.T) {
	w, r := openStore(t)
	ctx := context.Background()

	require.NoError(t, w.WriteCandles(ctx, "BTCUSD", 60, candles(1000, 1, 2, 3, 4, 5)))

	got, err := r.ReadCandles(ctx, "BTCUSD", 60, 100)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, model.Time(1000), got[0].Time)
	assert.Equal(t, model.Time(1240), got[4].Time)
	assert.Equal(t, 5.0, got[4].Close)
	assert.Equal(t, 6.0, got[4].High)
}

func TestReadCandles_LimitKeepsNewest(t *testing.T) {
	w, r := openStore(t)
	ctx := context.Background()
	require.NoError(t, w.WriteCandles(ctx, "ETHUSD", 300, candles(0, 10, 11, 12, 13, 14, 15)))

	got, err := r.ReadCandles(ctx, "ETHUSD", 300, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{13, 14, 15}, []float64{got[0].Close, got[1].Close, got[2].Close})
}

func TestWriteCandles_UpsertReplaces(t *testing.T) {
	w, r := openStore(t)
	ctx := context.Background()
	require.NoError(t, w.WriteCandles(ctx, "EURUSD", 60, candles(0, 1, 2)))
	require.NoError(t, w.WriteCandles(ctx, "EURUSD", 60, candles(60, 9, 10)))

	got, err := r.ReadCandles(ctx, "EURUSD", 60, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 9.0, got[1].Close)
	assert.Equal(t, 10.0, got[2].Close)
}

func TestReadCandles_SeriesAreIsolated(t *testing.T) {
	w, r := openStore(t)
	ctx := context.Background()
	require.NoError(t, w.WriteCandles(ctx, "BTCUSD", 60, candles(0, 1, 2)))
	require.NoError(t, w.WriteCandles(ctx, "BTCUSD", 3600, candles(0, 7)))

	got, err := r.ReadCandles(ctx, "BTCUSD", 3600, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 7.0, got[0].Close)

	none, err := r.ReadCandles(ctx, "NOPE", 60, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSymbols_PrefixSearch(t *testing.T) {
	w, r := openStore(t)
	ctx := context.Background()
	require.NoError(t, w.WriteCandles(ctx, "BTCUSD", 60, candles(0, 1, 2, 3)))
	require.NoError(t, w.WriteCandles(ctx, "BTCEUR", 60, candles(0, 1)))
	require.NoError(t, w.WriteCandles(ctx, "ETHUSD", 60, candles(0, 1)))

	got, err := r.Symbols(ctx, "btc", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BTCEUR", got[0].Symbol)
	assert.Equal(t, "BTCUSD", got[1].Symbol)
	assert.Equal(t, 3, got[1].Count)
	assert.Equal(t, model.Time(120), got[1].LastTime)

	all, err := r.Symbols(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// LIKE wildcards in the query are literal.
	none, err := r.Symbols(ctx, "%", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWriteCandles_EmptyBatchIsNoop(t *testing.T) {
	w, _ := openStore(t)
	assert.NoError(t, w.WriteCandles(context.Background(), "X", 60, nil))
}
