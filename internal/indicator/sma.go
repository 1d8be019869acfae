package indicator

import "trading-overlays/internal/model"

// SMA returns the simple moving average of closes over a trailing window.
// The first point is tagged with data[period-1].Time.
func SMA(data []model.Candle, period int) []model.LinePoint {
	if period <= 0 || len(data) < period {
		return lines(0)
	}
	cl := closes(data)
	out := lines(len(data) - period + 1)
	for i := period - 1; i < len(data); i++ {
		out = append(out, model.LinePoint{
			Time:  data[i].Time,
			Value: trailingSum(cl, i, period) / float64(period),
		})
	}
	return out
}
