package engine

import (
	"github.com/rs/zerolog"

	"github.com/anc5557/upbit-auto/internal/market"
	"github.com/anc5557/upbit-auto/internal/strategy"
)

// RunBacktest evaluates a strategy over historical bars with the shared
// accounting model. Risk extensions (max fraction, cooldown, drawdown stop)
// stay at their neutral defaults unless set on cfg.
func RunBacktest(bars []market.Bar, strat strategy.Strategy, cfg Config) Result {
	signals := strat.Signals(bars)
	return SimulateLongOnly(market.Closes(bars), signals, cfg, zerolog.Nop())
}

// RunPaper is the backtest path with live-style risk settings applied and
// order lifecycle events logged.
func RunPaper(bars []market.Bar, strat strategy.Strategy, cfg Config, log zerolog.Logger) Result {
	signals := strat.Signals(bars)
	return SimulateLongOnly(market.Closes(bars), signals, cfg, log)
}
