package indicator

import "trading-overlays/internal/model"

// MACDSeries returns the MACD line (fast EMA minus slow EMA), its signal line
// (EMA of the MACD line) and the histogram between the two.
//
// Series of different lengths are joined on Time rather than position: the
// fast EMA starts earlier than the slow one, and the signal later than both.
func MACDSeries(data []model.Candle, fast, slow, signal int) model.MACD {
	res := model.MACD{Line: lines(0), Signal: lines(0), Histogram: []model.HistogramPoint{}}
	if fast <= 0 || slow <= 0 || signal <= 0 || len(data) < max(fast, slow, signal) {
		return res
	}

	fastByTime := firstByTime(EMA(data, fast))
	slowEMA := EMA(data, slow)

	res.Line = lines(len(slowEMA))
	pseudo := make([]model.Candle, 0, len(slowEMA))
	for _, s := range slowEMA {
		f, ok := fastByTime[s.Time]
		if !ok {
			continue
		}
		v := f - s.Value
		res.Line = append(res.Line, model.LinePoint{Time: s.Time, Value: v})
		pseudo = append(pseudo, model.Candle{Time: s.Time, Open: v, High: v, Low: v, Close: v})
	}

	signalEMA := EMA(pseudo, signal)
	lineByTime := firstByTime(res.Line)

	res.Signal = lines(len(signalEMA))
	res.Histogram = make([]model.HistogramPoint, 0, len(signalEMA))
	for _, sg := range signalEMA {
		m, ok := lineByTime[sg.Time]
		if !ok {
			continue
		}
		res.Signal = append(res.Signal, sg)
		h := m - sg.Value
		res.Histogram = append(res.Histogram, model.HistogramPoint{
			Time:  sg.Time,
			Value: h,
			Color: model.HistogramColor(h),
		})
	}
	return res
}
