package indicator

import "trading-overlays/internal/model"

// rsiLead maps a difference index to the candle closing it: changes[j] is
// close[j+1]-close[j]. A window changes[i-period..i-1] therefore ends on
// candle i, which tags the output.
const rsiLead = 1

// RSI returns the relative strength index from simple averages of gains and
// losses over each window of period consecutive close differences.
//
// Windows start at i = period and stop at the last full window before the
// final difference, so the newest candle never carries a value. A window with
// no losses yields exactly 100.
func RSI(data []model.Candle, period int) []model.LinePoint {
	if period <= 0 || len(data) < period+1 {
		return lines(0)
	}
	changes := make([]float64, len(data)-rsiLead)
	for j := range changes {
		changes[j] = data[j+rsiLead].Close - data[j].Close
	}

	out := lines(len(changes) - period)
	for i := period; i < len(changes); i++ {
		gains, losses := 0.0, 0.0
		for j := i - period; j < i; j++ {
			if changes[j] >= 0 {
				gains += changes[j]
			} else {
				losses -= changes[j]
			}
		}
		avgGain := gains / float64(period)
		avgLoss := losses / float64(period)

		value := 100.0
		if avgLoss != 0 {
			value = 100 - 100/(1+avgGain/avgLoss)
		}
		out = append(out, model.LinePoint{Time: data[i-1+rsiLead].Time, Value: value})
	}
	return out
}
