package strategy

import (
	"fmt"

	"github.com/anc5557/upbit-auto/internal/market"
)

// EMARSIConfig parameterizes the EMA crossover + RSI confirmation strategy.
type EMARSIConfig struct {
	EMAFast       int
	EMASlow       int
	RSIPeriod     int
	RSIBuyLevel   float64
	RSISellLevel  float64
	ConfirmWindow int // RSI buy-cross may precede the EMA cross by this many bars
	TPPct         float64
	SLPct         float64
	SwingLookback int
	StopBufferPct float64
}

// DefaultEMARSIConfig matches the documented 9/21 EMA + RSI(14) setup.
func DefaultEMARSIConfig() EMARSIConfig {
	return EMARSIConfig{
		EMAFast:       9,
		EMASlow:       21,
		RSIPeriod:     14,
		RSIBuyLevel:   30,
		RSISellLevel:  70,
		ConfirmWindow: 3,
		TPPct:         0.0075,
		SLPct:         0.01,
		SwingLookback: 14,
		StopBufferPct: 0.001,
	}
}

func (c EMARSIConfig) validate() error {
	if c.EMAFast < 1 || c.EMASlow <= c.EMAFast {
		return fmt.Errorf("ema-rsi: need 1 <= fast < slow, got %d/%d", c.EMAFast, c.EMASlow)
	}
	if c.RSIPeriod < 2 {
		return fmt.Errorf("ema-rsi: rsi period must be >= 2, got %d", c.RSIPeriod)
	}
	if c.RSIBuyLevel >= c.RSISellLevel {
		return fmt.Errorf("ema-rsi: buy level %v must be below sell level %v", c.RSIBuyLevel, c.RSISellLevel)
	}
	if c.ConfirmWindow < 1 {
		return fmt.Errorf("ema-rsi: confirm window must be >= 1, got %d", c.ConfirmWindow)
	}
	return nil
}

// EMARSI enters on an EMA golden cross confirmed by a recent RSI recovery
// and exits on take-profit, stop, RSI exhaustion, or a cross down.
type EMARSI struct {
	cfg EMARSIConfig
}

// NewEMARSI validates the config up front.
func NewEMARSI(cfg EMARSIConfig) (*EMARSI, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &EMARSI{cfg: cfg}, nil
}

func (s *EMARSI) Name() string { return "ema-rsi" }

func (s *EMARSI) Signals(bars []market.Bar) []int {
	closes := market.Closes(bars)
	lows := market.Lows(bars)
	emaF := EMA(closes, s.cfg.EMAFast)
	emaS := EMA(closes, s.cfg.EMASlow)
	rsi := RSI(closes, s.cfg.RSIPeriod)

	sig := make([]int, len(bars))
	inPos := false
	var tp, sl float64
	lastRSIUp := -1

	for i := range closes {
		if crossAbove(rsi, s.cfg.RSIBuyLevel, i) {
			lastRSIUp = i
		}
		if !inPos {
			confirmed := lastRSIUp >= 0 && i-lastRSIUp <= s.cfg.ConfirmWindow
			if crossUp(emaF, emaS, i) && confirmed {
				sig[i] = 1
				inPos = true
				entry := closes[i]
				tp = entry * (1.0 + s.cfg.TPPct)
				sl = s.stopLevel(lows, closes, i)
			}
			continue
		}
		exit := closes[i] >= tp ||
			closes[i] <= sl ||
			rsi[i] >= s.cfg.RSISellLevel ||
			crossDown(emaF, emaS, i)
		if exit {
			sig[i] = -1
			inPos = false
		}
	}
	return sig
}

// stopLevel places the stop under the recent swing low, falling back to a
// fixed percentage when no prior bars exist.
func (s *EMARSI) stopLevel(lows, closes []float64, i int) float64 {
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

// RequiredBars covers the slow EMA, the RSI window, and one cross bar.
func (s *EMARSI) RequiredBars() int {
	n := s.cfg.EMASlow
	if s.cfg.RSIPeriod+1 > n {
		n = s.cfg.RSIPeriod + 1
	}
	return n + 1
}

func (s *EMARSI) Inspect(bars []market.Bar) map[string]any {
	if len(bars) == 0 {
		return map[string]any{}
	}
	closes := market.Closes(bars)
	last := len(closes) - 1
	emaF := EMA(closes, s.cfg.EMAFast)
	emaS := EMA(closes, s.cfg.EMASlow)
	rsi := RSI(closes, s.cfg.RSIPeriod)
	return map[string]any{
		"ema_fast": emaF[last],
		"ema_slow": emaS[last],
		"rsi":      rsi[last],
	}
}
