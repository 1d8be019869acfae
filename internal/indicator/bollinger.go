package indicator

import (
	"math"

	"trading-overlays/internal/model"
)

// BollingerBands returns SMA(period) with an envelope of multiplier population
// standard deviations of the same trailing closes.
func BollingerBands(data []model.Candle, period int, multiplier float64) model.Bands {
	if period <= 0 || len(data) < period {
		return model.Bands{Upper: lines(0), Middle: lines(0), Lower: lines(0)}
	}
	cl := closes(data)
	n := len(data) - period + 1
	bands := model.Bands{Upper: lines(n), Middle: lines(n), Lower: lines(n)}

	for i := period - 1; i < len(data); i++ {
		mean := trailingSum(cl, i, period) / float64(period)

		sq := 0.0
		for j := 0; j < period; j++ {
			d := cl[i-j] - mean
			sq += d * d
		}
		sigma := math.Sqrt(sq / float64(period))

		t := data[i].Time
		bands.Upper = append(bands.Upper, model.LinePoint{Time: t, Value: mean + sigma*multiplier})
		bands.Middle = append(bands.Middle, model.LinePoint{Time: t, Value: mean})
		bands.Lower = append(bands.Lower, model.LinePoint{Time: t, Value: mean - sigma*multiplier})
	}
	return bands
}
