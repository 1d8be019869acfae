package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the overlay service from concrete storage
// implementations (SQLite, Redis). Each implementation satisfies one or more.

// SymbolInfo describes one stored candle series, used by symbol search.
type SymbolInfo struct {
	Symbol   string `json:"symbol"`
	TF       int    `json:"tf"`
	Count    int    `json:"count"`
	LastTime Time   `json:"last_time"`
}

// CandleReader reads candle windows for overlay computation.
type CandleReader interface {
	// ReadCandles returns the newest limit candles of a series in ascending time order.
	ReadCandles(ctx context.Context, symbol string, tf, limit int) ([]Candle, error)

	// Symbols lists stored series whose symbol starts with query (case-insensitive).
	Symbols(ctx context.Context, query string, limit int) ([]SymbolInfo, error)
}

// CandleWriter persists candles.
type CandleWriter interface {
	// WriteCandles upserts candles of one series in a single batch.
	WriteCandles(ctx context.Context, symbol string, tf int, candles []Candle) error
}

// OverlayCache stores encoded overlays keyed by series, spec and window.
// Implementations must degrade to misses rather than fail.
type OverlayCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte)
}

// UpdateNotifier announces that new candles landed for a series.
type UpdateNotifier interface {
	NotifyCandles(ctx context.Context, symbol string, tf int, last Time) error
}
