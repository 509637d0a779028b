package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/anc5557/upbit-auto/internal/market"
)

// MACDVWAPConfig parameterizes the MACD crossover + session VWAP strategy.
type MACDVWAPConfig struct {
	MACDFast      int
	MACDSlow      int
	MACDSignal    int
	TPPct         float64 // 0 disables the take-profit
	SLPct         float64
	SwingLookback int
	MinHistRatio  float64 // require |hist|/price >= this on entry, 0 disables
	CooldownBars  int     // block re-entry within N bars of the last exit
	MinVWAPDev    float64 // require (close-vwap)/vwap >= this on entry, 0 disables
}

// DefaultMACDVWAPConfig is the standard 12/26/9 setup with a 1% stop.
func DefaultMACDVWAPConfig() MACDVWAPConfig {
	return MACDVWAPConfig{
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		SLPct:         0.01,
		SwingLookback: 10,
	}
}

func (c MACDVWAPConfig) validate() error {
	if c.MACDFast < 1 || c.MACDSlow <= c.MACDFast {
		return fmt.Errorf("macd-vwap: need 1 <= fast < slow, got %d/%d", c.MACDFast, c.MACDSlow)
	}
	if c.MACDSignal < 1 {
		return fmt.Errorf("macd-vwap: signal period must be >= 1, got %d", c.MACDSignal)
	}
	if c.SwingLookback < 1 {
		return fmt.Errorf("macd-vwap: swing lookback must be >= 1, got %d", c.SwingLookback)
	}
	if c.CooldownBars < 0 {
		return fmt.Errorf("macd-vwap: cooldown bars must be >= 0, got %d", c.CooldownBars)
	}
	return nil
}

// MACDVWAP enters when price crosses above the session VWAP on the same bar
// as a MACD golden cross with a positive histogram, and exits when the
// histogram flips negative, price crosses back below VWAP, or the stop or
// take-profit is hit.
type MACDVWAP struct {
	cfg MACDVWAPConfig
}

// NewMACDVWAP validates the config up front.
func NewMACDVWAP(cfg MACDVWAPConfig) (*MACDVWAP, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &MACDVWAP{cfg: cfg}, nil
}

func (s *MACDVWAP) Name() string { return "macd-vwap" }

func (s *MACDVWAP) Signals(bars []market.Bar) []int {
	closes := market.Closes(bars)
	lows := market.Lows(bars)
	macdLine, sigLine, hist := MACD(closes, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal)
	vw := SessionVWAP(bars)

	sig := make([]int, len(bars))
	inPos := false
	var tp, sl float64
	lastExit := math.MinInt32

	for i := range closes {
		if !inPos {
			if !crossUp(closes, vw, i) || !crossUp(macdLine, sigLine, i) || !(hist[i] > 0) {
				continue
			}
			if i-lastExit < s.cfg.CooldownBars {
				continue
			}
			dev := (closes[i] - vw[i]) / (vw[i] + indicatorEpsilon)
			if s.cfg.MinVWAPDev > 0 && dev < s.cfg.MinVWAPDev {
				continue
			}
			ratio := math.Abs(hist[i]) / (closes[i] + indicatorEpsilon)
			if s.cfg.MinHistRatio > 0 && ratio < s.cfg.MinHistRatio {
				continue
			}
			sig[i] = 1
			inPos = true
			entry := closes[i]
			tp = math.Inf(1)
			if s.cfg.TPPct > 0 {
				tp = entry * (1.0 + s.cfg.TPPct)
			}
			sl = math.Min(entry*(1.0-s.cfg.SLPct), s.swingLow(lows, closes, i))
			continue
		}
		exit := hist[i] < 0 ||
			crossDown(closes, vw, i) ||
			closes[i] <= sl ||
			closes[i] >= tp
		if exit {
			sig[i] = -1
			inPos = false
			lastExit = i
		}
	}
	return sig
}

// swingLow is the lowest low over the lookback before bar i, falling back to
// a fixed percentage under the close when no prior bars exist.
func (s *MACDVWAP) swingLow(lows, closes []float64, i int) float64 {
	if i == 0 {
		return closes[i] * (1.0 - s.cfg.SLPct)
	}
	from := i - s.cfg.SwingLookback
	if from < 0 {
		from = 0
	}
	swing := lows[from]
	for j := from + 1; j < i; j++ {
		if lows[j] < swing {
			swing = lows[j]
		}
	}
	return swing
}

// RequiredBars covers the slow EMA, the signal EMA, and one cross bar.
func (s *MACDVWAP) RequiredBars() int {
	return s.cfg.MACDSlow + s.cfg.MACDSignal + 1
}

func (s *MACDVWAP) Inspect(bars []market.Bar) map[string]any {
	if len(bars) == 0 {
		return map[string]any{}
	}
	closes := market.Closes(bars)
	last := len(closes) - 1
	macdLine, sigLine, hist := MACD(closes, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal)
	vw := SessionVWAP(bars)
	return map[string]any{
		"macd":   macdLine[last],
		"signal": sigLine[last],
		"hist":   hist[last],
		"vwap":   vw[last],
	}
}

// SessionVWAP is the volume weighted average of typical price, cumulative
// within each UTC day and reset at the day boundary.
func SessionVWAP(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	var cumPV, cumV float64
	var day time.Time
	for i, b := range bars {
		d := b.Start.UTC().Truncate(24 * time.Hour)
		if i == 0 || !d.Equal(day) {
			day = d
			cumPV, cumV = 0, 0
		}
		typical := (b.High + b.Low + b.Close) / 3.0
		cumPV += typical * b.Volume
		cumV += b.Volume
		out[i] = cumPV / (cumV + indicatorEpsilon)
	}
	return out
}
