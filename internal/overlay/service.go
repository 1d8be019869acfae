// Package overlay serves indicator overlays for stored candle series.
// It reads a window from the candle store, consults the overlay cache per
// spec, computes misses through the indicator engine and fills the cache.
package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"trading-overlays/internal/indicator"
	"trading-overlays/internal/logger"
	"trading-overlays/internal/metrics"
	"trading-overlays/internal/model"
	"trading-overlays/internal/resample"
	redisstore "trading-overlays/internal/store/redis"
)

var (
	// ErrNoCandles is returned when the requested series has no stored candles.
	ErrNoCandles = errors.New("no candles for series")
	// ErrUnknownPreset is returned for a preset name not in the presets file.
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrInvalidRequest is returned for a missing symbol, timeframe or candles.
	ErrInvalidRequest = errors.New("invalid request")
)

// Deps wires the Service.
type Deps struct {
	Reader  model.CandleReader
	Writer  model.CandleWriter
	Cache   model.OverlayCache // nil disables caching
	Engine  *indicator.Engine
	Presets *PresetFile // nil uses DefaultPresets
	Metrics *metrics.Metrics

	DefaultWindow int
	MaxWindow     int
}

// Service computes overlays on demand and ingests candles.
type Service struct {
	reader  model.CandleReader
	writer  model.CandleWriter
	cache   model.OverlayCache
	engine  *indicator.Engine
	presets *PresetFile
	prom    *metrics.Metrics

	defaultWindow int
	maxWindow     int

	notifiers []model.UpdateNotifier
}

// New creates a Service.
func New(d Deps) *Service {
	svc := &Service{
		reader:        d.Reader,
		writer:        d.Writer,
		cache:         d.Cache,
		engine:        d.Engine,
		presets:       d.Presets,
		prom:          d.Metrics,
		defaultWindow: d.DefaultWindow,
		maxWindow:     d.MaxWindow,
	}
	if svc.cache == nil {
		svc.cache = redisstore.NopCache{}
	}
	if svc.engine == nil {
		svc.engine = indicator.NewEngine(1)
	}
	if svc.presets == nil {
		svc.presets = DefaultPresets()
	}
	if svc.defaultWindow <= 0 {
		svc.defaultWindow = 500
	}
	if svc.maxWindow < svc.defaultWindow {
		svc.maxWindow = svc.defaultWindow
	}
	if svc.prom != nil {
		prom := svc.prom
		svc.engine.OnCompute = func(spec indicator.Spec, took time.Duration) {
			prom.OverlayComputeDur.WithLabelValues(string(spec.Kind)).Observe(took.Seconds())
		}
	}
	return svc
}

// AddNotifier registers a listener for ingested candles. Not safe to call
// concurrently with Ingest.
func (svc *Service) AddNotifier(n model.UpdateNotifier) {
	svc.notifiers = append(svc.notifiers, n)
}

// Presets returns the loaded presets.
func (svc *Service) Presets() *PresetFile { return svc.presets }

// Request asks for overlays over the newest Window candles of a series.
// Preset specs come first, followed by Specs; duplicates are dropped.
type Request struct {
	Symbol string
	TF     int
	Specs  []indicator.Spec
	Preset string
	Window int
}

// Response carries the candle window and one overlay per resolved spec, in
// request order.
type Response struct {
	Symbol   string              `json:"symbol"`
	TF       int                 `json:"tf"`
	Candles  []model.Candle      `json:"candles"`
	Overlays []indicator.Overlay `json:"overlays"`
}

// Window clamps a requested window size: non-positive means the default,
// anything above the maximum is capped.
func (svc *Service) Window(n int) int {
	switch {
	case n <= 0:
		return svc.defaultWindow
	case n > svc.maxWindow:
		return svc.maxWindow
	default:
		return n
	}
}

// ResolveSpecs expands the request's preset and merges it with explicit specs.
func (svc *Service) ResolveSpecs(req Request) ([]indicator.Spec, error) {
	var specs []indicator.Spec
	if req.Preset != "" {
		p, ok := svc.presets.Lookup(req.Preset)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownPreset, req.Preset)
		}
		ps, err := p.Specs()
		if err != nil {
			return nil, err
		}
		specs = append(specs, ps...)
	}
	specs = append(specs, req.Specs...)

	seen := make(map[string]bool, len(specs))
	out := specs[:0]
	for _, s := range specs {
		if name := s.Name(); !seen[name] {
			seen[name] = true
			out = append(out, s)
		}
	}
	return out, nil
}

// Overlays reads the candle window and returns every requested overlay.
func (svc *Service) Overlays(ctx context.Context, req Request) (*Response, error) {
	if req.Symbol == "" || req.TF <= 0 {
		return nil, fmt.Errorf("%w: symbol and tf are required", ErrInvalidRequest)
	}
	specs, err := svc.ResolveSpecs(req)
	if err != nil {
		return nil, err
	}
	window := svc.Window(req.Window)

	start := time.Now()
	candles, err := svc.reader.ReadCandles(ctx, req.Symbol, req.TF, window)
	if err != nil {
		return nil, fmt.Errorf("read candles %s: %w", model.SeriesKey(req.Symbol, req.TF), err)
	}
	if svc.prom != nil {
		svc.prom.SQLiteReadDur.Observe(time.Since(start).Seconds())
		svc.prom.CandlesPerRequest.Observe(float64(len(candles)))
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoCandles, model.SeriesKey(req.Symbol, req.TF))
	}

	overlays, err := svc.compute(ctx, req.Symbol, req.TF, candles, specs)
	if err != nil {
		return nil, err
	}

	slog.Debug("overlays served",
		append(logger.LogWithTrace(ctx),
			"series", model.SeriesKey(req.Symbol, req.TF),
			"candles", len(candles),
			"overlays", len(overlays),
		)...)

	return &Response{Symbol: req.Symbol, TF: req.TF, Candles: candles, Overlays: overlays}, nil
}

// compute fills overlays from the cache and computes the misses in one batch.
func (svc *Service) compute(ctx context.Context, symbol string, tf int, candles []model.Candle, specs []indicator.Spec) ([]indicator.Overlay, error) {
	out := make([]indicator.Overlay, len(specs))
	keys := make([]string, len(specs))
	last := model.LastTime(candles)
	fp := model.Fingerprint(candles)

	var missIdx []int
	var missSpecs []indicator.Spec
	for i, spec := range specs {
		keys[i] = redisstore.OverlayKey(symbol, tf, spec.Name(), last, len(candles), fp)
		if data, ok := svc.cache.Get(ctx, keys[i]); ok && json.Unmarshal(data, &out[i]) == nil {
			svc.countCache(true)
			continue
		}
		svc.countCache(false)
		missIdx = append(missIdx, i)
		missSpecs = append(missSpecs, spec)
	}
	if len(missSpecs) == 0 {
		return out, nil
	}

	computed, err := svc.engine.ComputeAll(ctx, candles, missSpecs)
	if err != nil {
		return nil, err
	}
	for j, ov := range computed {
		i := missIdx[j]
		out[i] = ov
		if svc.prom != nil {
			svc.prom.OverlaysTotal.WithLabelValues(string(ov.Kind)).Inc()
			if ov.Empty() {
				svc.prom.EmptyOverlays.WithLabelValues(string(ov.Kind)).Inc()
			}
		}
		if data, err := json.Marshal(ov); err == nil {
			svc.cache.Set(ctx, keys[i], data)
		}
	}
	return out, nil
}

func (svc *Service) countCache(hit bool) {
	if svc.prom == nil {
		return
	}
	if hit {
		svc.prom.CacheHits.Inc()
	} else {
		svc.prom.CacheMisses.Inc()
	}
}

// Symbols searches stored series by symbol prefix.
func (svc *Service) Symbols(ctx context.Context, query string, limit int) ([]model.SymbolInfo, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	infos, err := svc.reader.Symbols(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	if infos == nil {
		infos = []model.SymbolInfo{}
	}
	return infos, nil
}

// Ingest stores candles for a series and notifies listeners. Candles are
// stored in time order; a later candle with a duplicate time replaces the
// earlier one. Each derive timeframe (a larger multiple of tf) is rebuilt for
// the buckets the batch touched and stored as its own series. Notifier
// failures are logged, not returned.
func (svc *Service) Ingest(ctx context.Context, symbol string, tf int, candles []model.Candle, derive ...int) (int, error) {
	if symbol == "" || tf <= 0 {
		return 0, fmt.Errorf("%w: symbol and tf are required", ErrInvalidRequest)
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("%w: no candles", ErrInvalidRequest)
	}
	for _, target := range derive {
		if err := resample.Validate(tf, target); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if svc.writer == nil {
		return 0, errors.New("candle store is read-only")
	}

	batch := dedupeByTime(candles)
	if err := svc.store(ctx, symbol, tf, batch); err != nil {
		return 0, err
	}
	for _, target := range derive {
		if err := svc.derive(ctx, symbol, tf, target, batch); err != nil {
			return len(batch), err
		}
	}

	slog.Info("candles ingested",
		append(logger.LogWithTrace(ctx), "series", model.SeriesKey(symbol, tf), "count", len(batch), "derived", derive)...)
	return len(batch), nil
}

// store writes one series batch, records metrics and notifies listeners.
func (svc *Service) store(ctx context.Context, symbol string, tf int, batch []model.Candle) error {
	start := time.Now()
	if err := svc.writer.WriteCandles(ctx, symbol, tf, batch); err != nil {
		return fmt.Errorf("write candles %s: %w", model.SeriesKey(symbol, tf), err)
	}
	if svc.prom != nil {
		svc.prom.SQLiteWriteDur.Observe(time.Since(start).Seconds())
		svc.prom.CandlesIngested.Add(float64(len(batch)))
	}

	last := model.LastTime(batch)
	for _, n := range svc.notifiers {
		if err := n.NotifyCandles(ctx, symbol, tf, last); err != nil {
			slog.Warn("candle notification failed",
				append(logger.LogWithTrace(ctx), "series", model.SeriesKey(symbol, tf), "error", err)...)
		}
	}
	return nil
}

// derive rebuilds the target-timeframe buckets touched by batch from the
// stored base series. The read-back covers the newest candles, so batches
// at the tail of the series (the normal append case) are rebuilt in full.
func (svc *Service) derive(ctx context.Context, symbol string, tf, target int, batch []model.Candle) error {
	touched := resample.Touched(batch, target)
	limit := len(batch) + 2*target/tf
	base, err := svc.reader.ReadCandles(ctx, symbol, tf, limit)
	if err != nil {
		return fmt.Errorf("read back %s: %w", model.SeriesKey(symbol, tf), err)
	}

	in := make(map[model.Time]bool, len(touched))
	for _, b := range touched {
		in[b] = true
	}
	var window []model.Candle
	for _, c := range base {
		if in[resample.Bucket(c.Time, target)] {
			window = append(window, c)
		}
	}

	derived := resample.Resample(window, target)
	if len(derived) == 0 {
		return nil
	}
	return svc.store(ctx, symbol, target, derived)
}

// dedupeByTime returns a time-sorted copy keeping the last candle per time.
func dedupeByTime(candles []model.Candle) []model.Candle {
	sorted := slices.Clone(candles)
	slices.SortStableFunc(sorted, func(a, b model.Candle) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	out := sorted[:0]
	for _, c := range sorted {
		if n := len(out); n > 0 && out[n-1].Time == c.Time {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}
