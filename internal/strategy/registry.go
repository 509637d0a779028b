package strategy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Params carries CLI/config strategy overrides as numeric key=value pairs.
type Params map[string]float64

func (p Params) intOr(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

func (p Params) floatOr(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

func (p Params) boolOr(key string, def bool) bool {
	if v, ok := p[key]; ok {
		return v != 0
	}
	return def
}

// Builder constructs a strategy from overrides, rejecting invalid values.
type Builder func(params Params) (Strategy, error)

// Registry maps strategy names to builders. It is an explicit value passed
// into the engines at construction, never process-wide state.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register installs a builder under a name, replacing any previous one.
func (r *Registry) Register(name string, b Builder) {
	r.builders[strings.ToLower(strings.TrimSpace(name))] = b
}

// New builds the named strategy with the given overrides.
func (r *Registry) New(name string, params Params) (Strategy, error) {
	b, ok := r.builders[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q, available: %s", name, strings.Join(r.Names(), ", "))
	}
	return b(params)
}

// Names lists registered strategies, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.builders))
	for name := range r.builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry registers every strategy this module ships.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("sma-crossover", func(p Params) (Strategy, error) {
		cfg := DefaultSMACrossConfig()
		cfg.Fast = p.intOr("fast", cfg.Fast)
		cfg.Slow = p.intOr("slow", cfg.Slow)
		return NewSMACross(cfg)
	})
	r.Register("ema-rsi", func(p Params) (Strategy, error) {
		cfg := DefaultEMARSIConfig()
		cfg.EMAFast = p.intOr("ema_fast", cfg.EMAFast)
		cfg.EMASlow = p.intOr("ema_slow", cfg.EMASlow)
		cfg.RSIPeriod = p.intOr("rsi_period", cfg.RSIPeriod)
		cfg.RSIBuyLevel = p.floatOr("rsi_buy", cfg.RSIBuyLevel)
		cfg.RSISellLevel = p.floatOr("rsi_sell", cfg.RSISellLevel)
		cfg.ConfirmWindow = p.intOr("confirm_window", cfg.ConfirmWindow)
		cfg.TPPct = p.floatOr("tp_pct", cfg.TPPct)
		cfg.SLPct = p.floatOr("sl_pct", cfg.SLPct)
		cfg.SwingLookback = p.intOr("swing_lookback", cfg.SwingLookback)
		return NewEMARSI(cfg)
	})
	r.Register("bb-rsi", func(p Params) (Strategy, error) {
		cfg := DefaultBBRSIConfig()
		cfg.BBPeriod = p.intOr("bb_period", cfg.BBPeriod)
		cfg.BBK = p.floatOr("bb_k", cfg.BBK)
		cfg.RSIPeriod = p.intOr("rsi_period", cfg.RSIPeriod)
		cfg.RSIBuyLevel = p.floatOr("rsi_buy", cfg.RSIBuyLevel)
		cfg.RSISellLevel = p.floatOr("rsi_sell", cfg.RSISellLevel)
		cfg.RequireStrongCandle = p.boolOr("strong_candle", cfg.RequireStrongCandle)
		cfg.ExitToMid = p.boolOr("exit_to_mid", cfg.ExitToMid)
		cfg.TPPct = p.floatOr("tp_pct", cfg.TPPct)
		cfg.SLPct = p.floatOr("sl_pct", cfg.SLPct)
		return NewBBRSI(cfg)
	})
	r.Register("macd-vwap", func(p Params) (Strategy, error) {
		cfg := DefaultMACDVWAPConfig()
		cfg.MACDFast = p.intOr("macd_fast", cfg.MACDFast)
		cfg.MACDSlow = p.intOr("macd_slow", cfg.MACDSlow)
		cfg.MACDSignal = p.intOr("macd_signal", cfg.MACDSignal)
		cfg.TPPct = p.floatOr("tp_pct", cfg.TPPct)
		cfg.SLPct = p.floatOr("sl_pct", cfg.SLPct)
		cfg.SwingLookback = p.intOr("swing_lookback", cfg.SwingLookback)
		cfg.MinHistRatio = p.floatOr("min_hist_ratio", cfg.MinHistRatio)
		cfg.CooldownBars = p.intOr("cooldown_bars", cfg.CooldownBars)
		cfg.MinVWAPDev = p.floatOr("min_vwap_dev", cfg.MinVWAPDev)
		return NewMACDVWAP(cfg)
	})
	r.Register("regime-router", func(p Params) (Strategy, error) {
		trend, err := NewEMARSI(DefaultEMARSIConfig())
		if err != nil {
			return nil, err
		}
		ranged, err := NewBBRSI(DefaultBBRSIConfig())
		if err != nil {
			return nil, err
		}
		cfg := DefaultRegimeRouterConfig()
		cfg.ADXPeriod = p.intOr("adx_period", cfg.ADXPeriod)
		cfg.ADXThresh = p.floatOr("adx_thresh", cfg.ADXThresh)
		cfg.BBPeriod = p.intOr("bb_period", cfg.BBPeriod)
		cfg.BBK = p.floatOr("bb_k", cfg.BBK)
		cfg.BBWidthLow = p.floatOr("bb_width_low", cfg.BBWidthLow)
		cfg.BBWidthHigh = p.floatOr("bb_width_high", cfg.BBWidthHigh)
		cfg.EMATrendPeriod = p.intOr("ema_trend_period", cfg.EMATrendPeriod)
		cfg.SlopeWindow = p.intOr("slope_window", cfg.SlopeWindow)
		cfg.SlopeThresh = p.floatOr("slope_thresh", cfg.SlopeThresh)
		return NewRegimeRouter(cfg, trend, ranged)
	})
	return r
}

// ParseParams turns key=value strings into Params, rejecting malformed
// pairs so bad values fail before a run starts.
func ParseParams(pairs []string) (Params, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(Params, len(pairs))
	for _, pair := range pairs {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed strategy param %q, want key=value", pair)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("strategy param %q: %v", pair, err)
		}
		out[key] = f
	}
	return out, nil
}
