// Package indicator computes technical indicator overlays over candle windows.
//
// Every function is pure over its arguments: it reads the candle slice,
// allocates its own output and retains neither past the call, so calls are
// safe to run concurrently. A window too short for the requested period (or a
// non-positive period) yields empty series rather than an error; callers treat
// an empty result as "not yet computable".
package indicator

import "trading-overlays/internal/model"

// emaStep applies one exponential smoothing step to prev.
func emaStep(prev, x, alpha float64) float64 {
	return (x-prev)*alpha + prev
}

// wilderStep applies one Wilder smoothing step to prev.
func wilderStep(prev, x float64, period int) float64 {
	return (prev*float64(period-1) + x) / float64(period)
}

// trailingSum sums vals[i-width+1..i], walking backwards from i.
func trailingSum(vals []float64, i, width int) float64 {
	sum := 0.0
	for j := 0; j < width; j++ {
		sum += vals[i-j]
	}
	return sum
}

// trailingMeans returns the mean of every full trailing window of vals.
// Element k of the result belongs to vals[k+width-1].
func trailingMeans(vals []float64, width int) []float64 {
	if width <= 0 || len(vals) < width {
		return []float64{}
	}
	out := make([]float64, 0, len(vals)-width+1)
	for i := width - 1; i < len(vals); i++ {
		sum := 0.0
		for j := i - (width - 1); j <= i; j++ {
			sum += vals[j]
		}
		out = append(out, sum/float64(width))
	}
	return out
}

func closes(data []model.Candle) []float64 {
	out := make([]float64, len(data))
	for i := range data {
		out[i] = data[i].Close
	}
	return out
}

// lines allocates an output series sized for n points.
func lines(n int) []model.LinePoint {
	if n < 0 {
		n = 0
	}
	return make([]model.LinePoint, 0, n)
}

// firstByTime indexes a series by time. Duplicate times keep the earliest point.
func firstByTime(series []model.LinePoint) map[model.Time]float64 {
	m := make(map[model.Time]float64, len(series))
	for _, p := range series {
		if _, ok := m[p.Time]; !ok {
			m[p.Time] = p.Value
		}
	}
	return m
}
