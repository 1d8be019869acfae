package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"trading-overlays/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to stored candle series.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection pool for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	slog.Info("sqlite reader opened", "path", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles returns the newest limit candles of a series, ordered by
// timestamp ascending so indicators see them in chart order.
func (r *Reader) ReadCandles(ctx context.Context, symbol string, tf, limit int) ([]model.Candle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND tf = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, symbol, tf, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	candles := make([]model.Candle, 0, limit)
	for rows.Next() {
		var c model.Candle
		var ts int64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.Time = model.Time(ts)
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Symbols lists stored series whose symbol starts with query. An empty query
// lists everything. SQLite LIKE is case-insensitive for ASCII.
func (r *Reader) Symbols(ctx context.Context, query string, limit int) ([]model.SymbolInfo, error) {
	pattern := likeEscaper.Replace(strings.TrimSpace(query)) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, tf, COUNT(*), MAX(ts)
		FROM candles
		WHERE symbol LIKE ? ESCAPE '\'
		GROUP BY symbol, tf
		ORDER BY symbol ASC, tf ASC
		LIMIT ?
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []model.SymbolInfo
	for rows.Next() {
		var s model.SymbolInfo
		var last int64
		if err := rows.Scan(&s.Symbol, &s.TF, &s.Count, &last); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		s.LastTime = model.Time(last)
		out = append(out, s)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
