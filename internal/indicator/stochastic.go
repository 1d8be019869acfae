package indicator

import (
	"math"

	"trading-overlays/internal/model"
)

// StochasticOscillator returns %K, the close's position within the trailing
// periodK high-low range (50 when the range is empty), optionally smoothed by
// an SMA of width smoothK, and %D, an SMA of width smoothD over %K.
func StochasticOscillator(data []model.Candle, periodK, smoothK, smoothD int) model.Stochastic {
	res := model.Stochastic{K: lines(0), D: lines(0)}
	if periodK <= 0 || len(data) < periodK {
		return res
	}

	rawK := make([]float64, 0, len(data)-periodK+1)
	for i := periodK - 1; i < len(data); i++ {
		hh, ll := math.Inf(-1), math.Inf(1)
		for j := i - (periodK - 1); j <= i; j++ {
			hh = math.Max(hh, data[j].High)
			ll = math.Min(ll, data[j].Low)
		}
		if hh == ll {
			rawK = append(rawK, 50)
			continue
		}
		rawK = append(rawK, (data[i].Close-ll)/(hh-ll)*100)
	}

	// lag maps an index into the (smoothed) %K slice back to its candle.
	lag := periodK - 1
	k := rawK
	if smoothK > 1 {
		k = trailingMeans(rawK, smoothK)
		lag += smoothK - 1
	}

	res.K = lines(len(k))
	for i, v := range k {
		res.K = append(res.K, model.LinePoint{Time: data[i+lag].Time, Value: v})
	}

	d := trailingMeans(k, smoothD)
	res.D = lines(len(d))
	for i, v := range d {
		res.D = append(res.D, model.LinePoint{Time: data[i+smoothD-1+lag].Time, Value: v})
	}
	return res
}
