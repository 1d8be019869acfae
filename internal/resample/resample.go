// Package resample aggregates candles of one timeframe into a coarser one.
// Candle times must be unix seconds; buckets are aligned to multiples of the
// target timeframe (bucket = ts - ts%tf).
package resample

import (
	"fmt"

	"trading-overlays/internal/model"
)

// Bucket returns the start of the tf bucket containing t.
func Bucket(t model.Time, tf int) model.Time {
	tf64 := model.Time(tf)
	b := t - t%tf64
	if t < 0 && t%tf64 != 0 {
		b -= tf64
	}
	return b
}

// Validate checks that target is a strict multiple of the source timeframe.
func Validate(fromTF, toTF int) error {
	if fromTF <= 0 || toTF <= fromTF || toTF%fromTF != 0 {
		return fmt.Errorf("cannot resample %ds into %ds: target must be a larger multiple", fromTF, toTF)
	}
	return nil
}

// Resample folds time-ordered candles into tf buckets: open of the first,
// max high, min low, close of the last, summed volume. Each output candle is
// stamped with its bucket start. A candle older than the bucket being built
// is skipped rather than reopening a closed bucket.
func Resample(candles []model.Candle, tf int) []model.Candle {
	out := make([]model.Candle, 0, len(candles)/2+1)
	if tf <= 0 {
		return out
	}

	started := false
	var cur model.Candle
	for _, c := range candles {
		bucket := Bucket(c.Time, tf)
		switch {
		case started && bucket < cur.Time:
			continue
		case started && bucket == cur.Time:
			cur.High = max(cur.High, c.High)
			cur.Low = min(cur.Low, c.Low)
			cur.Close = c.Close
			cur.Volume += c.Volume
			continue
		case started:
			out = append(out, cur)
		}
		cur = model.Candle{Time: bucket, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
		started = true
	}
	if started {
		out = append(out, cur)
	}
	return out
}

// Touched returns the distinct tf buckets covered by candles, ascending when
// candles are time-ordered.
func Touched(candles []model.Candle, tf int) []model.Time {
	var out []model.Time
	for _, c := range candles {
		b := Bucket(c.Time, tf)
		if n := len(out); n == 0 || out[n-1] != b {
			out = append(out, b)
		}
	}
	return out
}
