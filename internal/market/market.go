// Package market defines the tick and bar payloads shared between data
// ingestion, strategies, and the engines.
package market

import "time"

// Tick models a single trade event from the exchange stream.
type Tick struct {
	Market string
	Price  float64
	Volume float64
	Ts     time.Time
}

// Bar is an immutable 1-minute OHLCV record. Start is minute-floored UTC.
type Bar struct {
	Start  time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// FloorMinute normalizes a timestamp to the start of its minute in UTC.
func FloorMinute(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Minute)
}

// Closes extracts the close-price series from a bar window.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// Highs extracts the high series from a bar window.
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].High
	}
	return out
}

// Lows extracts the low series from a bar window.
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Low
	}
	return out
}

// Opens extracts the open series from a bar window.
func Opens(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Open
	}
	return out
}
