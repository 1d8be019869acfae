package indicator

import (
	"math"
	"testing"

	"trading-overlays/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

const t0 = model.Time(1_700_000_000)

func timeAt(i int) model.Time { return t0 + model.Time(i*60) }

// series builds one-minute candles from closes with a ±0.5 high/low spread.
func series(closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{Time: timeAt(i), Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 10}
	}
	return out
}

func flat(n int, price float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{Time: timeAt(i), Open: price, High: price, Low: price, Close: price}
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertTimes(t *testing.T, label string, pts []model.LinePoint, first, last int) {
	t.Helper()
	if len(pts) == 0 {
		t.Fatalf("%s: empty series", label)
	}
	if pts[0].Time != timeAt(first) {
		t.Errorf("%s: first time = %d, want candle %d (%d)", label, pts[0].Time, first, timeAt(first))
	}
	if pts[len(pts)-1].Time != timeAt(last) {
		t.Errorf("%s: last time = %d, want candle %d (%d)", label, pts[len(pts)-1].Time, last, timeAt(last))
	}
	if want := last - first + 1; len(pts) != want {
		t.Errorf("%s: len = %d, want %d", label, len(pts), want)
	}
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_Scenario(t *testing.T) {
	data := series(10, 11, 12, 13, 14)
	got := SMA(data, 3)

	want := []model.LinePoint{
		{Time: timeAt(2), Value: 11},
		{Time: timeAt(3), Value: 12},
		{Time: timeAt(4), Value: 13},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSMA_Constant(t *testing.T) {
	for _, p := range SMA(flat(30, 42.5), 7) {
		assertClose(t, "SMA constant", p.Value, 42.5, 1e-12)
	}
}

func TestSMA_InsufficientData(t *testing.T) {
	if got := SMA(series(1, 2), 3); len(got) != 0 {
		t.Errorf("expected empty SMA, got %v", got)
	}
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): alpha = 2/(3+1) = 0.5
	// Prices: 100, 102, 104, 103, 105
	//
	// Seed at candle 3 = (100+102+104)/3 = 102.0 (emitted as-is)
	// Candle 4: (103-102)*0.5 + 102   = 102.5
	// Candle 5: (105-102.5)*0.5 + 102.5 = 103.75
	got := EMA(series(100, 102, 104, 103, 105), 3)
	assertTimes(t, "EMA(3)", got, 2, 4)

	expected := []float64{102.0, 102.5, 103.75}
	for i, want := range expected {
		assertClose(t, "EMA(3)", got[i].Value, want, 1e-9)
	}
}

func TestEMA_Correctness_Period5(t *testing.T) {
	// EMA(5): alpha = 1/3
	// Seed = (44+44.25+44.50+43.75+44.50)/5 = 44.20
	// Candle 6 (44.25): 44.25/3 + 44.20*2/3
	// Candle 7 (44.00): 44.00/3 + prev*2/3
	got := EMA(series(44, 44.25, 44.50, 43.75, 44.50, 44.25, 44.00), 5)
	mult := 2.0 / 6.0
	seed := (44.0 + 44.25 + 44.50 + 43.75 + 44.50) / 5.0
	e6 := 44.25*mult + seed*(1-mult)
	e7 := 44.00*mult + e6*(1-mult)

	assertTimes(t, "EMA(5)", got, 4, 6)
	assertClose(t, "EMA(5) seed", got[0].Value, seed, 1e-9)
	assertClose(t, "EMA(5) candle 6", got[1].Value, e6, 1e-9)
	assertClose(t, "EMA(5) candle 7", got[2].Value, e7, 1e-9)
}

func TestEMA_Constant(t *testing.T) {
	for _, p := range EMA(flat(40, 17), 9) {
		assertClose(t, "EMA constant", p.Value, 17, 1e-12)
	}
}

func TestEMAStep_Fold(t *testing.T) {
	// One step from a known accumulator: (110-100)*0.25 + 100 = 102.5
	assertClose(t, "emaStep", emaStep(100, 110, 0.25), 102.5, 1e-12)
	// Wilder: (3*2 + 6)/3 = 4
	assertClose(t, "wilderStep", wilderStep(3, 6, 3), 4, 1e-12)
}

// ────────────────────────────────────────────────────────────
// Bollinger Bands
// ────────────────────────────────────────────────────────────

func TestBollinger_KnownWindow(t *testing.T) {
	// Closes 2,4,4,4,5,5,7,9: mean 5, population sigma 2.
	b := BollingerBands(series(2, 4, 4, 4, 5, 5, 7, 9), 8, 2)
	if len(b.Middle) != 1 || len(b.Upper) != 1 || len(b.Lower) != 1 {
		t.Fatalf("expected one point per band, got %d/%d/%d", len(b.Upper), len(b.Middle), len(b.Lower))
	}
	assertClose(t, "middle", b.Middle[0].Value, 5, 1e-12)
	assertClose(t, "upper", b.Upper[0].Value, 9, 1e-12)
	assertClose(t, "lower", b.Lower[0].Value, 1, 1e-12)
	if b.Upper[0].Time != timeAt(7) {
		t.Errorf("time = %d, want %d", b.Upper[0].Time, timeAt(7))
	}
}

func TestBollinger_Constant(t *testing.T) {
	b := BollingerBands(flat(25, 64), 20, 2)
	for i := range b.Middle {
		if b.Upper[i].Value != 64 || b.Middle[i].Value != 64 || b.Lower[i].Value != 64 {
			t.Fatalf("point %d: upper=%v middle=%v lower=%v, want all 64",
				i, b.Upper[i].Value, b.Middle[i].Value, b.Lower[i].Value)
		}
		if b.Upper[i].Time != b.Middle[i].Time || b.Lower[i].Time != b.Middle[i].Time {
			t.Fatalf("point %d: band times diverge", i)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_KnownValues(t *testing.T) {
	// Closes 10, 11, 10, 12, 11 → changes +1, -1, +2, -1
	// i=2: window [+1, -1] → avgGain 0.5, avgLoss 0.5 → RSI 50, tagged candle 2
	// i=3: window [-1, +2] → avgGain 1.0, avgLoss 0.5 → RSI 66.67, tagged candle 3
	got := RSI(series(10, 11, 10, 12, 11), 2)
	assertTimes(t, "RSI(2)", got, 2, 3)
	assertClose(t, "RSI(2) candle 2", got[0].Value, 50, 1e-9)
	assertClose(t, "RSI(2) candle 3", got[1].Value, 100-100.0/3, 1e-9)
}

func TestRSI_AllUp_Is100(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	got := RSI(series(closes...), 3)
	// 9 changes, windows i = 3..8
	assertTimes(t, "RSI all up", got, 3, 8)
	for _, p := range got {
		if p.Value != 100 {
			t.Errorf("RSI all up: got %v at %d, want 100", p.Value, p.Time)
		}
	}
}

func TestRSI_AllDown_Is0(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	for _, p := range RSI(series(closes...), 4) {
		assertClose(t, "RSI all down", p.Value, 0, 1e-12)
	}
}

func TestRSI_Flat_NoNaN(t *testing.T) {
	data := series(1, 1, 1, 1, 1)
	for period := 1; period <= 5; period++ {
		for _, p := range RSI(data, period) {
			if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
				t.Fatalf("period %d: got non-finite RSI %v", period, p.Value)
			}
			if p.Value != 100 {
				t.Fatalf("period %d: got %v, want literal 100", period, p.Value)
			}
		}
	}
}

func TestRSI_InsufficientData(t *testing.T) {
	// n = period+1 passes the length guard but has no full window before the last change.
	if got := RSI(series(1, 2, 3, 4), 3); len(got) != 0 {
		t.Errorf("expected empty RSI, got %v", got)
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_JoinsOnTime(t *testing.T) {
	data := series(10, 12, 11, 13, 15, 14, 16, 18, 17, 19)
	m := MACDSeries(data, 3, 5, 2)

	// Slow EMA(5) starts at candle 4; the MACD line inherits that start.
	assertTimes(t, "MACD line", m.Line, 4, 9)
	// Signal EMA(2) over the line starts one line point later.
	assertTimes(t, "MACD signal", m.Signal, 5, 9)
	if len(m.Histogram) != len(m.Signal) {
		t.Fatalf("histogram len %d != signal len %d", len(m.Histogram), len(m.Signal))
	}

	fast := EMA(data, 3)
	slow := EMA(data, 5)
	// fast[2] and slow[0] are both candle 4.
	assertClose(t, "MACD first", m.Line[0].Value, fast[2].Value-slow[0].Value, 1e-12)

	for i, h := range m.Histogram {
		if h.Time != m.Signal[i].Time {
			t.Errorf("histogram %d time %d != signal time %d", i, h.Time, m.Signal[i].Time)
		}
		assertClose(t, "histogram", h.Value, m.Line[i+1].Value-m.Signal[i].Value, 1e-12)
	}
}

func TestMACD_HistogramColorMatchesSign(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/6)
	}
	m := MACDSeries(series(closes...), 12, 26, 9)
	if len(m.Histogram) == 0 {
		t.Fatal("expected histogram points")
	}
	var pos, neg int
	for _, h := range m.Histogram {
		if (h.Value >= 0) != (h.Color == model.GainColor) {
			t.Fatalf("value %v has colour %q", h.Value, h.Color)
		}
		if h.Value < 0 && h.Color != model.LossColor {
			t.Fatalf("negative value %v has colour %q", h.Value, h.Color)
		}
		if h.Value >= 0 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		t.Errorf("expected both signs on an oscillating series, got pos=%d neg=%d", pos, neg)
	}
}

func TestMACD_InsufficientData(t *testing.T) {
	m := MACDSeries(series(1, 2, 3), 12, 26, 9)
	if len(m.Line) != 0 || len(m.Signal) != 0 || len(m.Histogram) != 0 {
		t.Errorf("expected empty MACD, got %+v", m)
	}
}

// ────────────────────────────────────────────────────────────
// ATR
// ────────────────────────────────────────────────────────────

func TestATR_KnownValues(t *testing.T) {
	data := []model.Candle{
		{Time: timeAt(0), High: 10, Low: 8, Close: 9},
		{Time: timeAt(1), High: 11, Low: 9, Close: 10},  // TR 2
		{Time: timeAt(2), High: 12, Low: 10, Close: 11}, // TR 2
		{Time: timeAt(3), High: 15, Low: 11, Close: 14}, // TR 4
		{Time: timeAt(4), High: 14, Low: 13, Close: 13}, // TR max(1, 0, 1) = 1
	}
	// Seed = (2+2)/2 = 2 (not emitted)
	// Candle 3: (2*1 + 4)/2 = 3
	// Candle 4: (3*1 + 1)/2 = 2
	got := ATR(data, 2)
	assertTimes(t, "ATR(2)", got, 3, 4)
	assertClose(t, "ATR(2) candle 3", got[0].Value, 3, 1e-12)
	assertClose(t, "ATR(2) candle 4", got[1].Value, 2, 1e-12)
}

func TestATR_Flat_IsZero(t *testing.T) {
	got := ATR(flat(10, 50), 3)
	// 9 true ranges, smoothed from TR index 3 → candles 4..9
	assertTimes(t, "ATR flat", got, 4, 9)
	for _, p := range got {
		if p.Value != 0 {
			t.Errorf("ATR flat: got %v, want 0", p.Value)
		}
	}
}

func TestTrueRanges_GapUsesPreviousClose(t *testing.T) {
	data := []model.Candle{
		{Time: timeAt(0), High: 10, Low: 9, Close: 9.5},
		{Time: timeAt(1), High: 13, Low: 12, Close: 12.5}, // gap up: |13-9.5| = 3.5
	}
	tr := TrueRanges(data)
	if len(tr) != 1 {
		t.Fatalf("len = %d, want 1", len(tr))
	}
	assertClose(t, "TR gap", tr[0], 3.5, 1e-12)
}

// ────────────────────────────────────────────────────────────
// Stochastic
// ────────────────────────────────────────────────────────────

func TestStochastic_KnownValue(t *testing.T) {
	data := []model.Candle{
		{Time: timeAt(0), High: 10, Low: 5, Close: 8},
		{Time: timeAt(1), High: 12, Low: 6, Close: 11},
		{Time: timeAt(2), High: 11, Low: 7, Close: 9.5},
	}
	st := StochasticOscillator(data, 3, 1, 1)
	assertTimes(t, "%K", st.K, 2, 2)
	// (9.5-5)/(12-5)*100
	assertClose(t, "%K", st.K[0].Value, 4.5/7*100, 1e-9)
	assertClose(t, "%D", st.D[0].Value, st.K[0].Value, 1e-12)
}

func TestStochastic_Flat_Is50(t *testing.T) {
	st := StochasticOscillator(flat(20, 33), 5, 3, 3)
	for _, p := range st.K {
		if p.Value != 50 {
			t.Errorf("%%K flat: got %v, want 50", p.Value)
		}
	}
	for _, p := range st.D {
		if p.Value != 50 {
			t.Errorf("%%D flat: got %v, want 50", p.Value)
		}
	}
}

func TestStochastic_Alignment(t *testing.T) {
	data := series(1, 3, 2, 5, 4, 6, 8, 7, 9, 10)

	// periodK=3 → raw %K on candles 2..9; smoothK=2 shifts to 3..9; smoothD=2 → %D on 4..9.
	st := StochasticOscillator(data, 3, 2, 2)
	assertTimes(t, "%K smoothed", st.K, 3, 9)
	assertTimes(t, "%D smoothed", st.D, 4, 9)

	// smoothK=1 passes raw %K through unshifted.
	raw := StochasticOscillator(data, 3, 1, 3)
	assertTimes(t, "%K raw", raw.K, 2, 9)
	assertTimes(t, "%D raw", raw.D, 4, 9)
	assertClose(t, "%D raw mean", raw.D[0].Value, (raw.K[0].Value+raw.K[1].Value+raw.K[2].Value)/3, 1e-12)
}
