package model

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Time is an opaque, non-decreasing ordinal attached to a candle: unix seconds
// for calendar data or a bar index for synthetic series. It is only ever
// compared for equality and order, never combined arithmetically.
type Time int64

// Candle is one OHLCV sample. Prices are float64 because every indicator works
// in float space; the low <= open,close <= high invariant is assumed, not checked.
type Candle struct {
	Time   Time    `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume,omitempty"`
}

// Fingerprint hashes the time and OHLCV of every candle in order. Two windows
// with the same fingerprint produce the same overlays.
func Fingerprint(candles []Candle) uint64 {
	d := xxhash.New()
	var buf [48]byte
	for _, c := range candles {
		binary.LittleEndian.PutUint64(buf[0:], uint64(c.Time))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(c.Open))
		binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(c.High))
		binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(c.Low))
		binary.LittleEndian.PutUint64(buf[32:], math.Float64bits(c.Close))
		binary.LittleEndian.PutUint64(buf[40:], math.Float64bits(c.Volume))
		d.Write(buf[:])
	}
	return d.Sum64()
}

// SeriesKey identifies a candle series: "symbol:{tf}s".
func SeriesKey(symbol string, tf int) string {
	return symbol + ":" + Itoa(tf) + "s"
}

// LastTime returns the time of the newest candle, or 0 for an empty window.
func LastTime(candles []Candle) Time {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Time
}
