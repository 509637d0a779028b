package live

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/anc5557/upbit-auto/internal/market"
	"github.com/anc5557/upbit-auto/internal/metrics"
	"github.com/anc5557/upbit-auto/internal/report"
	"github.com/anc5557/upbit-auto/internal/risk"
	"github.com/anc5557/upbit-auto/internal/strategy"
	"github.com/anc5557/upbit-auto/internal/upbit"
)

// Recorder receives the run's event stream. *report.JSONLRecorder satisfies
// it; a nil recorder drops everything.
type Recorder interface {
	Record(ev report.Event)
}

const (
	// barWindowCap bounds the rolling bar history a trader retains.
	barWindowCap = 2000

	// defaultPrefetchBars seeds history when neither the config nor the
	// strategy declares a warm-up requirement.
	defaultPrefetchBars = 300

	// dustQty is the smallest holding treated as a real position.
	dustQty = 1e-10

	orderPollAttempts = 5
	orderPollInterval = 300 * time.Millisecond
)

// TraderConfig fixes one market's decision loop parameters.
type TraderConfig struct {
	Market         string
	CandleUnit     int
	ATRTrailMult   float64 // 0 disables the trailing stop
	ATRPeriod      int
	PartialTPPct   float64 // 0 disables partial take-profit
	PartialTPRatio float64
	Hours          []HourWindow
	PrefetchBars   int // 0 defers to the strategy's warm-up, then the default
}

// Trader is the per-market decision state machine. All of its mutable state
// is owned by the single goroutine that feeds it ticks, so it needs no
// locking of its own; the shared Balances and risk.State handle their own.
type Trader struct {
	cfg   TraderConfig
	strat strategy.Strategy
	risk  *risk.State
	ex    Exchange
	pool  *Pool
	bal   *Balances
	rec   Recorder
	log   zerolog.Logger

	agg  *market.Aggregator
	bars []market.Bar

	barIndex      int
	lastTradeBar  int
	entryPrice    float64
	trailStop     float64 // 0 while unset
	partialTPDone bool

	limits upbit.MarketLimits

	sleep func(ctx context.Context, d time.Duration)
}

// NewTrader wires a trader over shared session-level collaborators.
func NewTrader(cfg TraderConfig, strat strategy.Strategy, rs *risk.State, ex Exchange, pool *Pool, bal *Balances, log zerolog.Logger) *Trader {
	if cfg.CandleUnit <= 0 {
		cfg.CandleUnit = 1
	}
	return &Trader{
		cfg:          cfg,
		strat:        strat,
		risk:         rs,
		ex:           ex,
		pool:         pool,
		bal:          bal,
		log:          log.With().Str("market", cfg.Market).Logger(),
		agg:          market.NewAggregator(),
		lastTradeBar: math.MinInt32,
		sleep:        sleepCtx,
	}
}

// prefetchCount resolves how much history to warm up with: explicit config,
// else the strategy's declared minimum, else the default, clamped to the
// window cap.
func (t *Trader) prefetchCount() int {
	n := t.cfg.PrefetchBars
	if n <= 0 {
		n = strategy.RequiredBars(t.strat)
	}
	if n <= 0 {
		n = defaultPrefetchBars
	}
	if n > barWindowCap {
		n = barWindowCap
	}
	return n
}

// Prefetch seeds the bar window from REST history and caches market limits
// so entry sizing never blocks on a limits lookup later.
func (t *Trader) Prefetch(ctx context.Context) error {
	limits, err := t.ex.MarketLimits(ctx, t.cfg.Market)
	if err != nil {
		return err
	}
	t.limits = limits

	bars, err := t.ex.MinuteCandles(ctx, t.cfg.Market, t.cfg.CandleUnit, t.prefetchCount())
	if err != nil {
		return err
	}
	t.bars = bars
	t.barIndex = len(bars)
	if len(bars) > 0 {
		t.bal.SetLastClose(t.cfg.Market, bars[len(bars)-1].Close)
	}
	t.log.Info().Int("bars", len(bars)).Float64("min_total", limits.MinTotal).Msg("trader.prefetched")
	return nil
}

// OnTick feeds one trade into the aggregator and runs the decision pipeline
// when a bar closes.
func (t *Trader) OnTick(ctx context.Context, tick market.Tick) {
	t.bal.SetLastClose(t.cfg.Market, tick.Price)
	if bar, ok := t.agg.Update(tick.Ts, tick.Price, tick.Volume); ok {
		t.OnBar(ctx, bar)
	}
}

// OnBar appends a finalized bar and evaluates, in order: trailing stop,
// exits, partial take-profit, entry. Exits run even while the portfolio is
// halted; entries never do.
func (t *Trader) OnBar(ctx context.Context, bar market.Bar) {
	t.bars = append(t.bars, bar)
	if len(t.bars) > barWindowCap {
		t.bars = t.bars[len(t.bars)-barWindowCap:]
	}
	t.barIndex++
	metrics.BarsTotal.WithLabelValues(t.cfg.Market).Inc()

	sig := strategy.LastSignal(t.strat, t.bars)
	qty := t.bal.Qty(t.cfg.Market)
	long := qty > dustQty
	t.record("bar", map[string]any{
		"open": bar.Open, "high": bar.High, "low": bar.Low,
		"close": bar.Close, "volume": bar.Volume, "signal": sig,
	})

	if long {
		t.updateTrailStop(bar.Close)
	}

	if long && t.shouldExit(sig, bar.Close) {
		t.exit(ctx, qty, bar.Close)
		return
	}

	if long && sig != -1 {
		t.maybePartialTP(ctx, qty, bar.Close)
		return
	}

	if !long && sig == 1 {
		t.maybeEnter(ctx, bar)
	}
}

// updateTrailStop ratchets the ATR stop upward, never down.
func (t *Trader) updateTrailStop(close float64) {
	if t.cfg.ATRTrailMult <= 0 || t.cfg.ATRPeriod <= 0 {
		return
	}
	atr := strategy.ATR(market.Highs(t.bars), market.Lows(t.bars), market.Closes(t.bars), t.cfg.ATRPeriod)
	last := atr[len(atr)-1]
	if math.IsNaN(last) {
		return
	}
	candidate := close - t.cfg.ATRTrailMult*last
	if candidate > t.trailStop {
		t.trailStop = candidate
	}
}

func (t *Trader) shouldExit(sig int, close float64) bool {
	if t.trailStop > 0 && close <= t.trailStop {
		t.log.Info().Float64("close", close).Float64("stop", t.trailStop).Msg("trade.trail_stop_hit")
		return true
	}
	return sig == -1
}

// exit market-sells the whole position, refreshes balances from the
// exchange, and resets per-position state and the cooldown counter.
func (t *Trader) exit(ctx context.Context, qty, close float64) {
	var placeErr error
	err := t.pool.Do(ctx, func() {
		placeErr = t.placeAndConfirm(ctx, upbit.OrderRequest{
			Side:      upbit.SideAsk,
			Market:    t.cfg.Market,
			Volume:    qty,
			OrderType: upbit.OrderTypeMarketSell,
		})
	})
	if err == nil {
		err = placeErr
	}
	if err != nil {
		t.log.Error().Err(err).Msg("trade.exit_not_submitted")
		return
	}
	t.refreshBalances(ctx)
	t.trailStop = 0
	t.partialTPDone = false
	t.entryPrice = 0
	t.lastTradeBar = t.barIndex
	t.log.Info().Float64("close", close).Msg("trade.exit")
	t.record("order", map[string]any{"side": "sell", "event": "exit", "qty": qty, "close": close})
	metrics.OrdersTotal.WithLabelValues(t.cfg.Market, "sell").Inc()
}

// maybePartialTP sells a fraction once per position when unrealized return
// crosses the threshold.
func (t *Trader) maybePartialTP(ctx context.Context, qty, close float64) {
	if t.partialTPDone || t.cfg.PartialTPPct <= 0 || t.cfg.PartialTPRatio <= 0 || t.entryPrice <= 0 {
		return
	}
	unrealized := (close - t.entryPrice) / t.entryPrice
	if unrealized < t.cfg.PartialTPPct {
		return
	}
	sellQty := qty * t.cfg.PartialTPRatio
	var placeErr error
	err := t.pool.Do(ctx, func() {
		placeErr = t.placeAndConfirm(ctx, upbit.OrderRequest{
			Side:      upbit.SideAsk,
			Market:    t.cfg.Market,
			Volume:    sellQty,
			OrderType: upbit.OrderTypeMarketSell,
		})
	})
	if err == nil {
		err = placeErr
	}
	if err != nil {
		t.log.Error().Err(err).Msg("trade.partial_tp_not_submitted")
		return
	}
	t.partialTPDone = true
	t.refreshBalances(ctx)
	t.log.Info().Float64("unrealized", unrealized).Float64("qty", sellQty).Msg("trade.partial_tp")
	t.record("order", map[string]any{"side": "sell", "event": "partial_tp", "qty": sellQty, "unrealized": unrealized})
	metrics.OrdersTotal.WithLabelValues(t.cfg.Market, "sell").Inc()
}

// maybeEnter submits a notional market buy when every gate passes: risk not
// halted, inside allowed hours, cooldown satisfied, budget above the
// market's minimum notional.
func (t *Trader) maybeEnter(ctx context.Context, bar market.Bar) {
	if !t.risk.AllowEntry() {
		t.log.Debug().Msg("trade.entry_blocked_halt")
		return
	}
	// the gate is checked at the bar's end, the moment the decision is
	// actually made, rather than at its open
	barEnd := bar.Start.Add(time.Duration(t.cfg.CandleUnit) * time.Minute)
	if !InWindows(t.cfg.Hours, barEnd) {
		t.log.Debug().Time("at", barEnd).Msg("trade.entry_outside_hours")
		return
	}
	if t.barIndex-t.lastTradeBar < t.risk.CooldownBars() {
		t.log.Debug().Int("bars_since", t.barIndex-t.lastTradeBar).Msg("trade.entry_in_cooldown")
		return
	}
	budget := t.risk.Budget(t.bal.Cash())
	if t.limits.MinTotal > 0 && budget < t.limits.MinTotal {
		t.log.Warn().Float64("budget", budget).Float64("min_total", t.limits.MinTotal).Msg("trade.entry_below_min_total")
		return
	}
	notional := upbit.QuantizePrice(budget, t.limits.PriceUnit)
	if notional <= 0 {
		return
	}
	var placeErr error
	err := t.pool.Do(ctx, func() {
		placeErr = t.placeAndConfirm(ctx, upbit.OrderRequest{
			Side:      upbit.SideBid,
			Market:    t.cfg.Market,
			Price:     notional,
			OrderType: upbit.OrderTypeMarketBuy,
		})
	})
	if err == nil {
		err = placeErr
	}
	if err != nil {
		t.log.Error().Err(err).Msg("trade.entry_not_submitted")
		return
	}
	t.entryPrice = bar.Close
	t.trailStop = 0
	t.partialTPDone = false
	t.lastTradeBar = t.barIndex
	t.refreshBalances(ctx)
	ev := t.log.Info().Float64("notional", notional).Float64("close", bar.Close)
	if diag := strategy.Inspect(t.strat, t.bars); len(diag) > 0 {
		ev = ev.Fields(diag)
	}
	ev.Msg("trade.entry")
	t.record("order", map[string]any{"side": "buy", "event": "entry", "notional": notional, "close": bar.Close})
	metrics.OrdersTotal.WithLabelValues(t.cfg.Market, "buy").Inc()
}

// placeAndConfirm submits an order and polls its status a bounded number of
// times. A poll that never confirms is an unknown outcome: it is logged,
// nil is returned, and the next authoritative balance refresh is trusted
// over any assumption about the fill. A failed submission is returned so
// the caller keeps its position state; the loop itself carries on since one
// bad order must not stop market monitoring.
func (t *Trader) placeAndConfirm(ctx context.Context, req upbit.OrderRequest) error {
	order, err := t.ex.PlaceOrder(ctx, req)
	if err != nil {
		t.log.Error().Err(err).Str("side", req.Side).Msg("order.place_failed")
		return err
	}
	for attempt := 0; attempt < orderPollAttempts; attempt++ {
		got, err := t.ex.Order(ctx, order.UUID)
		if err == nil && (got.State == "done" || got.State == "cancel") {
			t.log.Info().Str("uuid", got.UUID).Str("state", got.State).Msg("order.confirmed")
			return nil
		}
		t.sleep(ctx, orderPollInterval)
		if ctx.Err() != nil {
			break
		}
	}
	t.log.Warn().Str("uuid", order.UUID).Msg("order.outcome_unknown")
	return nil
}

func (t *Trader) record(kind string, fields map[string]any) {
	if t.rec == nil {
		return
	}
	t.rec.Record(report.Event{
		Ts:     time.Now().UTC(),
		Kind:   kind,
		Market: t.cfg.Market,
		Fields: fields,
	})
}

func (t *Trader) refreshBalances(ctx context.Context) {
	if err := t.bal.Refresh(ctx, t.ex); err != nil {
		t.log.Error().Err(err).Msg("balances.refresh_failed")
	}
}
