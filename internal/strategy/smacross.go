package strategy

import (
	"fmt"
	"math"

	"github.com/anc5557/upbit-auto/internal/market"
)

// SMACrossConfig parameterizes the moving-average crossover strategy.
type SMACrossConfig struct {
	Fast int
	Slow int
}

// DefaultSMACrossConfig mirrors the documented 10/20 defaults.
func DefaultSMACrossConfig() SMACrossConfig {
	return SMACrossConfig{Fast: 10, Slow: 20}
}

func (c SMACrossConfig) validate() error {
	if c.Fast < 1 {
		return fmt.Errorf("sma-crossover: fast must be >= 1, got %d", c.Fast)
	}
	if c.Slow <= c.Fast {
		return fmt.Errorf("sma-crossover: slow (%d) must be greater than fast (%d)", c.Slow, c.Fast)
	}
	return nil
}

// SMACross buys golden crosses and sells death crosses of two SMAs.
type SMACross struct {
	cfg SMACrossConfig
}

// NewSMACross validates the config up front.
func NewSMACross(cfg SMACrossConfig) (*SMACross, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SMACross{cfg: cfg}, nil
}

func (s *SMACross) Name() string { return "sma-crossover" }

func (s *SMACross) Signals(bars []market.Bar) []int {
	closes := market.Closes(bars)
	maF := SMA(closes, s.cfg.Fast)
	maS := SMA(closes, s.cfg.Slow)
	sig := make([]int, len(bars))
	for i := range bars {
		switch {
		case crossUp(maF, maS, i):
			sig[i] = 1
		case crossDown(maF, maS, i):
			sig[i] = -1
		}
	}
	return sig
}

// RequiredBars needs the slow window plus one prior bar for the crossover.
func (s *SMACross) RequiredBars() int {
	return s.cfg.Slow + 1
}

func (s *SMACross) Inspect(bars []market.Bar) map[string]any {
	if len(bars) == 0 {
		return map[string]any{}
	}
	closes := market.Closes(bars)
	maF := SMA(closes, s.cfg.Fast)
	maS := SMA(closes, s.cfg.Slow)
	last := len(bars) - 1
	out := map[string]any{}
	if !math.IsNaN(maF[last]) {
		out["ma_fast"] = maF[last]
	}
	if !math.IsNaN(maS[last]) {
		out["ma_slow"] = maS[last]
	}
	if !math.IsNaN(maF[last]) && !math.IsNaN(maS[last]) {
		switch {
		case maF[last] > maS[last]:
			out["ma_relation"] = "above"
		case maF[last] < maS[last]:
			out["ma_relation"] = "below"
		default:
			out["ma_relation"] = "equal"
		}
	}
	return out
}
