package indicator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trading-overlays/internal/model"

	"golang.org/x/sync/errgroup"
)

// Kind names a supported indicator.
type Kind string

const (
	KindSMA   Kind = "SMA"
	KindEMA   Kind = "EMA"
	KindBB    Kind = "BB"
	KindRSI   Kind = "RSI"
	KindMACD  Kind = "MACD"
	KindATR   Kind = "ATR"
	KindStoch Kind = "STOCH"
)

// ErrInvalidSpec is returned when an indicator spec cannot be parsed.
var ErrInvalidSpec = errors.New("invalid indicator spec")

// KindInfo describes a supported indicator for the chart's indicator panel.
type KindInfo struct {
	Kind     Kind     `json:"kind"`
	Title    string   `json:"title"`
	Params   []string `json:"params"`
	Defaults string   `json:"defaults"`
	Pane     string   `json:"pane"` // "price" overlays the candles, "oscillator" gets its own pane
}

var catalog = []KindInfo{
	{Kind: KindSMA, Title: "Simple Moving Average", Params: []string{"period"}, Defaults: "SMA:20", Pane: "price"},
	{Kind: KindEMA, Title: "Exponential Moving Average", Params: []string{"period"}, Defaults: "EMA:20", Pane: "price"},
	{Kind: KindBB, Title: "Bollinger Bands", Params: []string{"period", "multiplier"}, Defaults: "BB:20:2", Pane: "price"},
	{Kind: KindRSI, Title: "Relative Strength Index", Params: []string{"period"}, Defaults: "RSI:14", Pane: "oscillator"},
	{Kind: KindMACD, Title: "MACD", Params: []string{"fast", "slow", "signal"}, Defaults: "MACD:12:26:9", Pane: "oscillator"},
	{Kind: KindATR, Title: "Average True Range", Params: []string{"period"}, Defaults: "ATR:14", Pane: "oscillator"},
	{Kind: KindStoch, Title: "Stochastic Oscillator", Params: []string{"periodK", "smoothK", "smoothD"}, Defaults: "STOCH:14:3:3", Pane: "oscillator"},
}

var aliases = map[string]Kind{
	"BOLL":       KindBB,
	"BBANDS":     KindBB,
	"STOCHASTIC": KindStoch,
}

// Catalog lists every supported indicator kind.
func Catalog() []KindInfo {
	out := make([]KindInfo, len(catalog))
	copy(out, catalog)
	return out
}

func lookup(k Kind) (KindInfo, bool) {
	for _, info := range catalog {
		if info.Kind == k {
			return info, true
		}
	}
	return KindInfo{}, false
}

// Spec is one parsed indicator request, e.g. "BB:20:2" or "MACD:12:26:9".
type Spec struct {
	Kind       Kind
	Periods    []int
	Multiplier float64 // Bollinger Bands only
}

// ParseSpec parses "TYPE[:P1[:P2...]]". Omitted parameters take the kind's defaults.
func ParseSpec(s string) (Spec, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	name := strings.ToUpper(strings.TrimSpace(parts[0]))
	kind := Kind(name)
	if alias, ok := aliases[name]; ok {
		kind = alias
	}
	info, ok := lookup(kind)
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q: unknown kind", ErrInvalidSpec, s)
	}

	params := parts[1:]
	if len(params) == 0 {
		return ParseSpec(info.Defaults)
	}
	if len(params) != len(info.Params) {
		return Spec{}, fmt.Errorf("%w: %q: want %d parameters (%s)",
			ErrInvalidSpec, s, len(info.Params), strings.Join(info.Params, ", "))
	}

	spec := Spec{Kind: kind}
	for i, p := range params {
		p = strings.TrimSpace(p)
		if kind == KindBB && i == 1 {
			m, err := strconv.ParseFloat(p, 64)
			if err != nil || m <= 0 {
				return Spec{}, fmt.Errorf("%w: %q: bad multiplier %q", ErrInvalidSpec, s, p)
			}
			spec.Multiplier = m
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return Spec{}, fmt.Errorf("%w: %q: bad %s %q", ErrInvalidSpec, s, info.Params[i], p)
		}
		spec.Periods = append(spec.Periods, n)
	}
	return spec, nil
}

// ParseSpecs parses a comma-separated list of specs.
func ParseSpecs(s string) ([]Spec, error) {
	var specs []Spec
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		spec, err := ParseSpec(part)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Name returns a stable identifier such as "SMA_20" or "BB_20_2".
func (s Spec) Name() string {
	var b strings.Builder
	b.WriteString(string(s.Kind))
	for _, p := range s.Periods {
		b.WriteByte('_')
		b.WriteString(model.Itoa(p))
	}
	if s.Kind == KindBB {
		b.WriteByte('_')
		b.WriteString(strconv.FormatFloat(s.Multiplier, 'f', -1, 64))
	}
	return b.String()
}

// String returns the spec in its parseable "TYPE:P1:P2" form.
func (s Spec) String() string {
	return strings.ReplaceAll(s.Name(), "_", ":")
}

// Warmup returns how many candles the spec needs before its first point.
func (s Spec) Warmup() int {
	p := s.period(0)
	switch s.Kind {
	case KindRSI, KindATR:
		return p + 2
	case KindMACD:
		return max(s.period(0), s.period(1), s.period(2))
	case KindStoch:
		if k := s.period(1); k > 1 {
			return p + k - 1
		}
		return p
	default:
		return p
	}
}

func (s Spec) period(i int) int {
	if i < len(s.Periods) {
		return s.Periods[i]
	}
	return 0
}

// Overlay is the uniform, JSON-ready result of one spec over a candle window.
type Overlay struct {
	Name      string                       `json:"name"`
	Kind      Kind                         `json:"kind"`
	Lines     map[string][]model.LinePoint `json:"lines"`
	Histogram []model.HistogramPoint       `json:"histogram,omitempty"`
}

// Empty reports whether the overlay has no points at all.
func (o Overlay) Empty() bool {
	for _, l := range o.Lines {
		if len(l) > 0 {
			return false
		}
	}
	return len(o.Histogram) == 0
}

// Engine evaluates specs over candle windows. It holds no per-call state, so
// one Engine may be shared by every request goroutine.
type Engine struct {
	workers int

	// OnCompute, when set, observes the wall time of every ComputeAll spec.
	OnCompute func(spec Spec, took time.Duration)
}

// NewEngine creates an engine that evaluates up to workers specs in parallel.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{workers: workers}
}

// Compute evaluates a single spec.
func (e *Engine) Compute(spec Spec, candles []model.Candle) Overlay {
	ov := Overlay{Name: spec.Name(), Kind: spec.Kind}
	switch spec.Kind {
	case KindSMA:
		ov.Lines = map[string][]model.LinePoint{"value": SMA(candles, spec.period(0))}
	case KindEMA:
		ov.Lines = map[string][]model.LinePoint{"value": EMA(candles, spec.period(0))}
	case KindRSI:
		ov.Lines = map[string][]model.LinePoint{"value": RSI(candles, spec.period(0))}
	case KindATR:
		ov.Lines = map[string][]model.LinePoint{"value": ATR(candles, spec.period(0))}
	case KindBB:
		b := BollingerBands(candles, spec.period(0), spec.Multiplier)
		ov.Lines = map[string][]model.LinePoint{"upper": b.Upper, "middle": b.Middle, "lower": b.Lower}
	case KindMACD:
		m := MACDSeries(candles, spec.period(0), spec.period(1), spec.period(2))
		ov.Lines = map[string][]model.LinePoint{"macd": m.Line, "signal": m.Signal}
		ov.Histogram = m.Histogram
	case KindStoch:
		st := StochasticOscillator(candles, spec.period(0), spec.period(1), spec.period(2))
		ov.Lines = map[string][]model.LinePoint{"k": st.K, "d": st.D}
	default:
		ov.Lines = map[string][]model.LinePoint{}
	}
	return ov
}

// ComputeAll evaluates specs concurrently and returns overlays in spec order.
// It only fails if ctx is cancelled.
func (e *Engine) ComputeAll(ctx context.Context, candles []model.Candle, specs []Spec) ([]Overlay, error) {
	out := make([]Overlay, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			out[i] = e.Compute(spec, candles)
			if e.OnCompute != nil {
				e.OnCompute(spec, time.Since(start))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
