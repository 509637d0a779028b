package strategy

import (
	"fmt"
	"math"

	"github.com/anc5557/upbit-auto/internal/market"
)

// Regime labels produced by the router's classifier.
const (
	regimeRange = 0
	regimeTrend = 1
)

// RegimeRouterConfig parameterizes the trend/range classifier.
type RegimeRouterConfig struct {
	ADXPeriod      int
	ADXThresh      float64
	BBPeriod       int
	BBK            float64
	BBWidthLow     float64
	BBWidthHigh    float64
	EMATrendPeriod int
	SlopeWindow    int
	SlopeThresh    float64
}

// DefaultRegimeRouterConfig matches the tuned classifier defaults.
func DefaultRegimeRouterConfig() RegimeRouterConfig {
	return RegimeRouterConfig{
		ADXPeriod:      14,
		ADXThresh:      20,
		BBPeriod:       20,
		BBK:            2.0,
		BBWidthLow:     0.015,
		BBWidthHigh:    0.03,
		EMATrendPeriod: 200,
		SlopeWindow:    10,
	}
}

func (c RegimeRouterConfig) validate() error {
	if c.ADXPeriod < 2 {
		return fmt.Errorf("regime-router: adx period must be >= 2, got %d", c.ADXPeriod)
	}
	if c.BBPeriod < 2 {
		return fmt.Errorf("regime-router: bollinger period must be >= 2, got %d", c.BBPeriod)
	}
	if c.BBWidthLow > c.BBWidthHigh {
		return fmt.Errorf("regime-router: width low %v above width high %v", c.BBWidthLow, c.BBWidthHigh)
	}
	if c.EMATrendPeriod < 10 {
		return fmt.Errorf("regime-router: ema trend period must be >= 10, got %d", c.EMATrendPeriod)
	}
	if c.SlopeWindow < 1 {
		return fmt.Errorf("regime-router: slope window must be >= 1, got %d", c.SlopeWindow)
	}
	return nil
}

// RegimeRouter classifies each bar as trending or ranging and dispatches to
// the matching child strategy. The engines only ever see the single Signals
// contract; the switching is internal.
type RegimeRouter struct {
	cfg    RegimeRouterConfig
	trend  Strategy
	ranged Strategy
}

// NewRegimeRouter wires a classifier around two child strategies.
func NewRegimeRouter(cfg RegimeRouterConfig, trend, ranged Strategy) (*RegimeRouter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if trend == nil || ranged == nil {
		return nil, fmt.Errorf("regime-router: both child strategies are required")
	}
	return &RegimeRouter{cfg: cfg, trend: trend, ranged: ranged}, nil
}

func (r *RegimeRouter) Name() string { return "regime-router" }

// regimes labels every bar, carrying the previous label forward when neither
// classifier condition fires; unlabeled leading bars default to range.
func (r *RegimeRouter) regimes(bars []market.Bar) []int {
	closes := market.Closes(bars)
	highs := market.Highs(bars)
	lows := market.Lows(bars)
	_, _, adx := ADX(highs, lows, closes, r.cfg.ADXPeriod)
	lower, mid, upper := Bollinger(closes, r.cfg.BBPeriod, r.cfg.BBK)
	ema := EMA(closes, r.cfg.EMATrendPeriod)

	out := make([]int, len(bars))
	current := regimeRange
	for i := range bars {
		width := math.NaN()
		if !math.IsNaN(mid[i]) {
			width = (upper[i] - lower[i]) / (mid[i] + indicatorEpsilon)
		}
		slope := math.NaN()
		if j := i - r.cfg.SlopeWindow; j >= 0 && !math.IsNaN(ema[j]) && !math.IsNaN(ema[i]) {
			slope = (ema[i] - ema[j]) / (ema[j] + indicatorEpsilon)
		}
		trendBase := adx[i] >= r.cfg.ADXThresh && closes[i] > ema[i] && slope > r.cfg.SlopeThresh
		trendWide := width >= r.cfg.BBWidthHigh
		rangeNarrow := width <= r.cfg.BBWidthLow && adx[i] < r.cfg.ADXThresh
		switch {
		case trendBase || trendWide:
			current = regimeTrend
		case rangeNarrow:
			current = regimeRange
		}
		out[i] = current
	}
	return out
}

func (r *RegimeRouter) Signals(bars []market.Bar) []int {
	if len(bars) == 0 {
		return nil
	}
	regimes := r.regimes(bars)
	trendSig := r.trend.Signals(bars)
	rangeSig := r.ranged.Signals(bars)
	sig := make([]int, len(bars))
	for i := range bars {
		if regimes[i] == regimeTrend {
			sig[i] = trendSig[i]
		} else {
			sig[i] = rangeSig[i]
		}
	}
	return sig
}

// RequiredBars is the deepest warm-up across the classifier and children.
func (r *RegimeRouter) RequiredBars() int {
	n := r.cfg.EMATrendPeriod
	if r.cfg.BBPeriod > n {
		n = r.cfg.BBPeriod
	}
	if r.cfg.ADXPeriod > n {
		n = r.cfg.ADXPeriod
	}
	n += 2
	if c := RequiredBars(r.trend); c > n {
		n = c
	}
	if c := RequiredBars(r.ranged); c > n {
		n = c
	}
	return n
}

func (r *RegimeRouter) Inspect(bars []market.Bar) map[string]any {
	if len(bars) == 0 {
		return map[string]any{}
	}
	closes := market.Closes(bars)
	highs := market.Highs(bars)
	lows := market.Lows(bars)
	last := len(bars) - 1
	_, _, adx := ADX(highs, lows, closes, r.cfg.ADXPeriod)
	lower, mid, upper := Bollinger(closes, r.cfg.BBPeriod, r.cfg.BBK)
	out := map[string]any{"close": closes[last]}
	if !math.IsNaN(adx[last]) {
		out["adx"] = adx[last]
	}
	if !math.IsNaN(mid[last]) {
		out["bb_width"] = (upper[last] - lower[last]) / (mid[last] + indicatorEpsilon)
	}
	regimes := r.regimes(bars)
	if regimes[last] == regimeTrend {
		out["regime"] = "trend"
	} else {
		out["regime"] = "range"
	}
	return out
}
