package strategy

import (
	"fmt"
	"math"

	"github.com/anc5557/upbit-auto/internal/market"
)

// BBRSIConfig parameterizes the Bollinger + short-RSI mean reversion setup.
type BBRSIConfig struct {
	BBPeriod            int
	BBK                 float64
	RSIPeriod           int
	RSIBuyLevel         float64
	RSISellLevel        float64
	RequireStrongCandle bool
	ExitToMid           bool // exit at the middle band instead of the upper
	TPPct               float64
	SLPct               float64
	SwingLookback       int
	StopBufferPct       float64
}

// DefaultBBRSIConfig matches the documented BB(20,2) + RSI(4) setup.
func DefaultBBRSIConfig() BBRSIConfig {
	return BBRSIConfig{
		BBPeriod:            20,
		BBK:                 2.0,
		RSIPeriod:           4,
		RSIBuyLevel:         20,
		RSISellLevel:        80,
		RequireStrongCandle: true,
		SLPct:               0.01,
		SwingLookback:       10,
		StopBufferPct:       0.001,
	}
}

func (c BBRSIConfig) validate() error {
	if c.BBPeriod < 2 {
		return fmt.Errorf("bb-rsi: bollinger period must be >= 2, got %d", c.BBPeriod)
	}
	if c.BBK <= 0 {
		return fmt.Errorf("bb-rsi: bollinger k must be positive, got %v", c.BBK)
	}
	if c.RSIPeriod < 2 {
		return fmt.Errorf("bb-rsi: rsi period must be >= 2, got %d", c.RSIPeriod)
	}
	if c.RSIBuyLevel >= c.RSISellLevel {
		return fmt.Errorf("bb-rsi: buy level %v must be below sell level %v", c.RSIBuyLevel, c.RSISellLevel)
	}
	return nil
}

// BBRSI buys lower-band touches confirmed by an RSI recovery and exits at
// the opposite band, RSI exhaustion, or TP/SL.
type BBRSI struct {
	cfg BBRSIConfig
}

// NewBBRSI validates the config up front.
func NewBBRSI(cfg BBRSIConfig) (*BBRSI, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &BBRSI{cfg: cfg}, nil
}

func (s *BBRSI) Name() string { return "bb-rsi" }

func (s *BBRSI) Signals(bars []market.Bar) []int {
	closes := market.Closes(bars)
	opens := market.Opens(bars)
	highs := market.Highs(bars)
	lows := market.Lows(bars)
	lower, mid, upper := Bollinger(closes, s.cfg.BBPeriod, s.cfg.BBK)
	rsi := RSI(closes, s.cfg.RSIPeriod)

	sig := make([]int, len(bars))
	inPos := false
	var tp, sl float64

	for i := range closes {
		if !inPos {
			touched := lows[i] <= lower[i]
			confirmed := crossAbove(rsi, s.cfg.RSIBuyLevel, i)
			if touched && confirmed && s.strongCandle(opens[i], highs[i], lows[i], closes[i]) {
				sig[i] = 1
				inPos = true
				entry := closes[i]
				tp = 0
				if s.cfg.TPPct > 0 {
					tp = entry * (1.0 + s.cfg.TPPct)
				}
				sl = s.stopLevel(lows, closes, i)
			}
			continue
		}
		target := upper[i]
		if s.cfg.ExitToMid {
			target = mid[i]
		}
		exit := closes[i] >= target ||
			rsi[i] >= s.cfg.RSISellLevel ||
			(tp > 0 && closes[i] >= tp) ||
			closes[i] <= sl
		if exit {
			sig[i] = -1
			inPos = false
		}
	}
	return sig
}

// strongCandle requires a green bar whose body covers at least half the range.
func (s *BBRSI) strongCandle(open, high, low, close float64) bool {
	if !s.cfg.RequireStrongCandle {
		return true
	}
	rng := high - low
	if rng <= 0 {
		return close > open
	}
	return close > open && (close-open) >= 0.5*rng
}

func (s *BBRSI) stopLevel(lows, closes []float64, i int) float64 {
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
	return swing * (1.0 - s.cfg.StopBufferPct)
}

// RequiredBars covers the Bollinger window and the RSI warm-up.
func (s *BBRSI) RequiredBars() int {
	n := s.cfg.BBPeriod
	if s.cfg.RSIPeriod+1 > n {
		n = s.cfg.RSIPeriod + 1
	}
	return n + 1
}

func (s *BBRSI) Inspect(bars []market.Bar) map[string]any {
	if len(bars) == 0 {
		return map[string]any{}
	}
	closes := market.Closes(bars)
	last := len(closes) - 1
	lower, mid, upper := Bollinger(closes, s.cfg.BBPeriod, s.cfg.BBK)
	rsi := RSI(closes, s.cfg.RSIPeriod)
	out := map[string]any{"close": closes[last], "rsi": rsi[last]}
	if !math.IsNaN(mid[last]) {
		out["bb_lower"] = lower[last]
		out["bb_mid"] = mid[last]
		out["bb_upper"] = upper[last]
	}
	return out
}
