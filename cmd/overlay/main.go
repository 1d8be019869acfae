// cmd/overlay computes indicator overlays for one stored series, or for a JSON
// candle file, and prints them as JSON, for checking indicators against a
// chart without the server.
//
// Usage:
//
//	go run ./cmd/overlay -symbol=BTCUSD -tf=60 -ind=SMA:20,RSI:14 -window=500
//	go run ./cmd/overlay -symbol=BTCUSD -tf=60 -preset=momentum -omit-candles
//	go run ./cmd/overlay -candles=btc_1m.json -ind=MACD:12:26:9
package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"trading-overlays/internal/indicator"
	"trading-overlays/internal/logger"
	"trading-overlays/internal/model"
	"trading-overlays/internal/overlay"
	sqlitestore "trading-overlays/internal/store/sqlite"
)

// fileSymbol names the series when candles come from -candles and no
// -symbol is given.
const fileSymbol = "FILE"

type options struct {
	symbol      string
	tf          int
	ind         string
	preset      string
	presetsFile string
	window      int
	dbPath      string
	candlesFile string
	omitCandles bool
}

func main() {
	var opts options
	flag.StringVar(&opts.symbol, "symbol", "", "Series symbol (required with -db)")
	flag.IntVar(&opts.tf, "tf", 60, "Timeframe in seconds")
	flag.StringVar(&opts.ind, "ind", "", "Indicator specs: TYPE[:P1[:P2...]],... e.g. SMA:20,BB:20:2")
	flag.StringVar(&opts.preset, "preset", "", "Preset name from -presets")
	flag.StringVar(&opts.presetsFile, "presets", "presets.yaml", "Presets YAML file")
	flag.IntVar(&opts.window, "window", 500, "Number of newest candles to compute over")
	flag.StringVar(&opts.dbPath, "db", "data/candles.db", "Path to SQLite database")
	flag.StringVar(&opts.candlesFile, "candles", "", "JSON file holding a candle array; replaces -db")
	flag.BoolVar(&opts.omitCandles, "omit-candles", false, "Leave the candle window out of the output")
	flag.Parse()

	// stdout carries the JSON result
	slog.SetDefault(logger.New(os.Stderr, "overlay", logger.ParseLevel(os.Getenv("LOG_LEVEL")), "text"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		slog.Error("overlay failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	specs, err := indicator.ParseSpecs(opts.ind)
	if err != nil {
		return err
	}
	if len(specs) == 0 && opts.preset == "" {
		return errors.New("nothing to compute: pass -ind or -preset")
	}

	presets, err := overlay.LoadPresets(opts.presetsFile)
	if err != nil {
		return err
	}

	var reader model.CandleReader
	if opts.candlesFile != "" {
		if opts.symbol == "" {
			opts.symbol = fileSymbol
		}
		fr, err := loadCandleFile(opts.candlesFile)
		if err != nil {
			return err
		}
		reader = fr
	} else {
		if opts.symbol == "" {
			return errors.New("-symbol is required")
		}
		sr, err := sqlitestore.NewReader(opts.dbPath)
		if err != nil {
			return err
		}
		defer sr.Close()
		reader = sr
	}

	svc := overlay.New(overlay.Deps{
		Reader:        reader,
		Engine:        indicator.NewEngine(4),
		Presets:       presets,
		DefaultWindow: opts.window,
		MaxWindow:     opts.window,
	})
	resp, err := svc.Overlays(ctx, overlay.Request{
		Symbol: opts.symbol,
		TF:     opts.tf,
		Specs:  specs,
		Preset: opts.preset,
		Window: opts.window,
	})
	if err != nil {
		return err
	}
	if opts.omitCandles {
		resp.Candles = nil
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// fileReader serves one candle series decoded from a JSON file, whatever
// symbol or timeframe is asked for.
type fileReader struct {
	candles []model.Candle
}

func loadCandleFile(path string) (*fileReader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candle file: %w", err)
	}
	var candles []model.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("decode candle file %s: %w", path, err)
	}
	slices.SortStableFunc(candles, func(a, b model.Candle) int { return cmp.Compare(a.Time, b.Time) })
	return &fileReader{candles: candles}, nil
}

func (f *fileReader) ReadCandles(_ context.Context, _ string, _, limit int) ([]model.Candle, error) {
	c := f.candles
	if limit > 0 && len(c) > limit {
		c = c[len(c)-limit:]
	}
	return slices.Clone(c), nil
}

func (f *fileReader) Symbols(context.Context, string, int) ([]model.SymbolInfo, error) {
	return []model.SymbolInfo{}, nil
}
