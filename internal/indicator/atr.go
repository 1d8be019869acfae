package indicator

import (
	"math"

	"trading-overlays/internal/model"
)

// trLead is the offset from a true-range index to its candle: true range i
// needs the previous close, so it belongs to data[i+1].
const trLead = 1

// TrueRanges returns the true range of every candle after the first.
func TrueRanges(data []model.Candle) []float64 {
	if len(data) <= trLead {
		return []float64{}
	}
	out := make([]float64, len(data)-trLead)
	for i := range out {
		cur, prevClose := data[i+trLead], data[i].Close
		out[i] = math.Max(cur.High-cur.Low,
			math.Max(math.Abs(cur.High-prevClose), math.Abs(cur.Low-prevClose)))
	}
	return out
}

// ATR returns the Wilder-smoothed average true range. The seed (mean of the
// first period true ranges) is consumed internally; the first emitted point
// is one smoothing step past it.
func ATR(data []model.Candle, period int) []model.LinePoint {
	if period <= 0 || len(data) < period+trLead {
		return lines(0)
	}
	tr := TrueRanges(data)

	atr := 0.0
	for _, v := range tr[:period] {
		atr += v
	}
	atr /= float64(period)

	out := lines(len(tr) - period)
	for i := period; i < len(tr); i++ {
		atr = wilderStep(atr, tr[i], period)
		out = append(out, model.LinePoint{Time: data[i+trLead].Time, Value: atr})
	}
	return out
}
