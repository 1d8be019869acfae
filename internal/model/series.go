package model

// Rendering hints attached to MACD histogram bars.
const (
	GainColor = "rgba(76, 175, 80, 0.5)"
	LossColor = "rgba(255, 82, 82, 0.5)"
)

// LinePoint is one scalar output sample aligned to a source candle's Time.
type LinePoint struct {
	Time  Time    `json:"time"`
	Value float64 `json:"value"`
}

// HistogramPoint is a scalar sample plus a colour hint signalling its sign.
type HistogramPoint struct {
	Time  Time    `json:"time"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// Bands holds three parallel series that share the same Time values.
type Bands struct {
	Upper  []LinePoint `json:"upper"`
	Middle []LinePoint `json:"middle"`
	Lower  []LinePoint `json:"lower"`
}

// MACD holds the MACD line, its signal line and the histogram between them.
type MACD struct {
	Line      []LinePoint      `json:"macd"`
	Signal    []LinePoint      `json:"signal"`
	Histogram []HistogramPoint `json:"histogram"`
}

// Stochastic holds the %K and %D lines of the stochastic oscillator.
type Stochastic struct {
	K []LinePoint `json:"k"`
	D []LinePoint `json:"d"`
}

// HistogramColor returns the colour hint for a histogram value.
func HistogramColor(v float64) string {
	if v >= 0 {
		return GainColor
	}
	return LossColor
}
