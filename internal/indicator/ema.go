package indicator

import "trading-overlays/internal/model"

// EMA returns the exponential moving average of closes.
//
// The seed is the simple mean of the first period closes and is emitted as-is
// at data[period-1]; each later point applies one smoothing step with
// alpha = 2/(period+1).
func EMA(data []model.Candle, period int) []model.LinePoint {
	if period <= 0 || len(data) < period {
		return lines(0)
	}
	alpha := 2.0 / float64(period+1)

	seed := 0.0
	for _, c := range data[:period] {
		seed += c.Close
	}
	seed /= float64(period)

	out := lines(len(data) - period + 1)
	out = append(out, model.LinePoint{Time: data[period-1].Time, Value: seed})

	ema := seed
	for _, c := range data[period:] {
		ema = emaStep(ema, c.Close, alpha)
		out = append(out, model.LinePoint{Time: c.Time, Value: ema})
	}
	return out
}
