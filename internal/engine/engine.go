// Package engine implements the deterministic long-only execution and
// accounting model shared by backtest and paper modes.
package engine

import (
	"math"

	"github.com/rs/zerolog"
)

// Halt reasons reported in Result.StoppedReason.
const (
	StoppedCompleted = "completed"
	StoppedRisk      = "risk_violation"
)

const sharpeEpsilon = 1e-12

// Config carries the accounting parameters of a simulation.
type Config struct {
	Cash         float64
	Fee          float64
	Slippage     float64
	MaxFraction  float64 // capital fraction per entry, defaults to 1.0
	CooldownBars int
	StopDrawdown float64 // fraction of starting cash; 0 disables the stop
}

func (c Config) normalized() Config {
	if c.MaxFraction <= 0 {
		c.MaxFraction = 1.0
	}
	return c
}

// Result is the metrics record of one simulation run.
type Result struct {
	EquityFinal    float64   `json:"equity_final"`
	ReturnPct      float64   `json:"return_pct"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	WinRatePct     float64   `json:"win_rate_pct"`
	Trades         int       `json:"trades"`
	AvgTradePct    float64   `json:"avg_trade_pct"`
	Sharpe         float64   `json:"sharpe"`
	StoppedReason  string    `json:"stopped_reason"`
	EquityCurve    []float64 `json:"-"`
	TradeReturns   []float64 `json:"-"`
}

// SimulateLongOnly walks a close-price series against an aligned signal
// series (1 buy, -1 sell, 0 hold) and returns the resulting trades and
// metrics. It is strictly deterministic: identical inputs produce identical
// outputs, with no clock or randomness involved.
func SimulateLongOnly(closes []float64, signals []int, cfg Config, log zerolog.Logger) Result {
	cfg = cfg.normalized()

	equity := make([]float64, 0, len(closes)+1)
	var trades []float64
	wins := 0
	position := 0.0
	entryPrice := 0.0
	cash := cfg.Cash
	lastTradeBar := math.MinInt32

	stopped := ""
	for i, price := range closes {
		sig := 0
		if i < len(signals) {
			sig = signals[i]
		}

		// mark-to-market before any trade on this bar
		eq := cash + position*price
		equity = append(equity, eq)

		if cfg.StopDrawdown > 0 && cfg.Cash > 0 && (eq-cfg.Cash)/cfg.Cash <= -cfg.StopDrawdown {
			log.Warn().
				Str("event", "risk_violation").
				Str("type", "max_daily_loss").
				Float64("drawdown", (eq-cfg.Cash)/cfg.Cash).
				Float64("threshold", -cfg.StopDrawdown).
				Int("bar", i).
				Msg("risk.violation")
			stopped = StoppedRisk
			break
		}

		switch {
		case sig == 1 && position == 0 && i-lastTradeBar >= cfg.CooldownBars:
			buyPrice := price * (1.0 + cfg.Slippage)
			if buyPrice <= 0 {
				continue
			}
			budget := cash * cfg.MaxFraction
			qty := budget / buyPrice
			if qty <= 0 {
				continue
			}
			notional := qty * buyPrice
			feeAmt := notional * cfg.Fee
			position = qty
			cash -= notional + feeAmt
			entryPrice = buyPrice
			lastTradeBar = i
			log.Info().Str("event", "position_opened").Str("side", "buy").
				Float64("price", buyPrice).Float64("qty", qty).Float64("fee", feeAmt).Int("bar", i).
				Msg("position.opened")

		case sig == -1 && position > 0 && i-lastTradeBar >= cfg.CooldownBars:
			var ret float64
			cash, ret = closePosition(cash, position, entryPrice, price, cfg)
			trades = append(trades, ret)
			if ret > 0 {
				wins++
			}
			position = 0
			entryPrice = 0
			lastTradeBar = i
			log.Info().Str("event", "position_closed").Str("side", "sell").
				Float64("pnl_pct", ret).Int("bar", i).
				Msg("position.closed")
		}
	}

	// force-close any open position at the last price
	if position > 0 && len(closes) > 0 {
		var ret float64
		cash, ret = closePosition(cash, position, entryPrice, closes[len(closes)-1], cfg)
		trades = append(trades, ret)
		if ret > 0 {
			wins++
		}
		equity = append(equity, cash)
	}

	if stopped == "" {
		stopped = StoppedCompleted
	}
	return buildResult(equity, trades, wins, cfg.Cash, stopped)
}

func closePosition(cash, position, entryPrice, price float64, cfg Config) (newCash, tradeRetPct float64) {
	sellPrice := price * (1.0 - cfg.Slippage)
	notional := position * sellPrice
	feeAmt := notional * cfg.Fee
	proceeds := notional - feeAmt
	// percent return relative to entry, net of both fee legs
	ret := (sellPrice-entryPrice)/entryPrice*100.0 - 2.0*cfg.Fee*100.0
	return cash + proceeds, ret
}

func buildResult(equity, trades []float64, wins int, startCash float64, stopped string) Result {
	res := Result{
		EquityCurve:   equity,
		TradeReturns:  trades,
		Trades:        len(trades),
		StoppedReason: stopped,
	}
	if len(equity) > 0 {
		res.EquityFinal = equity[len(equity)-1]
	} else {
		res.EquityFinal = startCash
	}
	if startCash > 0 {
		res.ReturnPct = (res.EquityFinal - startCash) / startCash * 100.0
	}
	res.MaxDrawdownPct = maxDrawdownPct(equity)
	if len(trades) > 0 {
		res.WinRatePct = float64(wins) / float64(len(trades)) * 100.0
		res.AvgTradePct = mean(trades)
	}
	res.Sharpe = sharpe(equity)
	return res
}

// maxDrawdownPct is the worst peak-to-trough decline of the equity curve,
// expressed as a negative percentage (0 when the curve never declines).
func maxDrawdownPct(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	worst := 0.0
	for _, eq := range equity {
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			if dd := (eq - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst * 100.0
}

// sharpe annualizes per-bar percentage equity changes by sqrt(252), with an
// epsilon on the deviation to guard division by zero.
func sharpe(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1.0)
	}
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	var variance float64
	for _, r := range returns {
		variance += (r - m) * (r - m)
	}
	std := math.Sqrt(variance / float64(len(returns)-1))
	return math.Sqrt(252) * m / (std + sharpeEpsilon)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
