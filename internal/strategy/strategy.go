// Package strategy defines the pluggable decision function contract, the
// indicator kit, and the concrete strategies shipped with the bot.
package strategy

import "github.com/anc5557/upbit-auto/internal/market"

// Strategy produces a discrete signal series aligned to a bar window:
// 1 enter, -1 exit, 0 hold.
type Strategy interface {
	Name() string
	Signals(bars []market.Bar) []int
}

// BarRequirer is an optional capability: the minimum warm-up window a
// strategy needs before its signals are meaningful.
type BarRequirer interface {
	RequiredBars() int
}

// Inspector is an optional capability: diagnostics for the latest bar.
type Inspector interface {
	Inspect(bars []market.Bar) map[string]any
}

// RequiredBars resolves the warm-up requirement, zero when undeclared.
func RequiredBars(s Strategy) int {
	if br, ok := s.(BarRequirer); ok {
		return br.RequiredBars()
	}
	return 0
}

// Inspect resolves diagnostics, nil when the strategy offers none.
func Inspect(s Strategy, bars []market.Bar) map[string]any {
	if in, ok := s.(Inspector); ok {
		return in.Inspect(bars)
	}
	return nil
}

// LastSignal returns the signal attached to the newest bar, zero for an
// empty series.
func LastSignal(s Strategy, bars []market.Bar) int {
	sigs := s.Signals(bars)
	if len(sigs) == 0 {
		return 0
	}
	return sigs[len(sigs)-1]
}
