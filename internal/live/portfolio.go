package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/anc5557/upbit-auto/internal/market"
	"github.com/anc5557/upbit-auto/internal/report"
	"github.com/anc5557/upbit-auto/internal/risk"
	"github.com/anc5557/upbit-auto/internal/strategy"
)

// defaultPoolSize caps concurrent REST calls across all traders.
const defaultPoolSize = 4

// tickBuffer absorbs bursts per market without reordering; within one
// market ticks stay FIFO.
const tickBuffer = 256

// Reasons a portfolio run can end with.
const (
	ReasonCompleted     = "completed"
	ReasonRiskViolation = "risk_violation"
)

// PortfolioConfig assembles one coordinated multi-market run.
type PortfolioConfig struct {
	Session  SessionConfig
	Trader   TraderConfig // Market field is overridden per market
	Markets  []string
	Risk     risk.Config
	PoolSize int
	Recorder Recorder // optional run event stream
}

// PortfolioResult summarizes a finished session.
type PortfolioResult struct {
	Reason      string  `json:"reason"`
	StartEquity float64 `json:"start_equity"`
	FinalEquity float64 `json:"final_equity"`
}

// Portfolio owns one trader per market, a single streaming session, and the
// shared risk state. The session goroutine dispatches each tick to its
// market's trader goroutine over a dedicated channel, so per-market order is
// preserved while markets progress independently.
type Portfolio struct {
	cfg     PortfolioConfig
	session *Session
	traders map[string]*Trader
	ex      Exchange
	risk    *risk.State
	bal     *Balances
	log     zerolog.Logger

	lastEquity float64
	equityMu   sync.Mutex
}

// NewPortfolio builds traders for every configured market around a shared
// exchange client, balance store, and worker pool. The strategy factory is
// invoked once per market so stateful strategies never share state.
func NewPortfolio(cfg PortfolioConfig, newStrategy func() (strategy.Strategy, error), ex Exchange, log zerolog.Logger) (*Portfolio, error) {
	if len(cfg.Markets) == 0 {
		return nil, fmt.Errorf("live: no markets configured")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	cfg.Session.Markets = cfg.Markets

	bal := NewBalances()
	pool := NewPool(cfg.PoolSize)
	traders := make(map[string]*Trader, len(cfg.Markets))
	for _, m := range cfg.Markets {
		strat, err := newStrategy()
		if err != nil {
			return nil, fmt.Errorf("live: build strategy for %s: %w", m, err)
		}
		tc := cfg.Trader
		tc.Market = m
		tr := NewTrader(tc, strat, nil, ex, pool, bal, log)
		tr.rec = cfg.Recorder
		traders[m] = tr
	}
	return &Portfolio{
		cfg:     cfg,
		session: NewSession(cfg.Session, log),
		traders: traders,
		ex:      ex,
		bal:     bal,
		log:     log,
	}, nil
}

// Run prefetches history, captures the session-start equity baseline, and
// drives the streaming session until the context is cancelled. A risk halt
// does not stop the run: the latch blocks entries everywhere while the
// session keeps processing so open positions can exit on later bars.
func (p *Portfolio) Run(ctx context.Context) (PortfolioResult, error) {
	if err := p.bal.Refresh(ctx, p.ex); err != nil {
		return PortfolioResult{}, fmt.Errorf("live: initial balance refresh: %w", err)
	}
	for _, t := range p.traders {
		if err := t.Prefetch(ctx); err != nil {
			return PortfolioResult{}, fmt.Errorf("live: prefetch %s: %w", t.cfg.Market, err)
		}
	}

	startEquity := p.bal.Equity("", 0)
	p.risk = risk.NewState(startEquity, p.cfg.Risk)
	for _, t := range p.traders {
		t.risk = p.risk
	}
	p.setLastEquity(startEquity)
	p.log.Info().Float64("start_equity", startEquity).Int("markets", len(p.traders)).Msg("portfolio.started")

	chans := make(map[string]chan market.Tick, len(p.traders))
	var wg sync.WaitGroup
	for m, t := range p.traders {
		ch := make(chan market.Tick, tickBuffer)
		chans[m] = ch
		wg.Add(1)
		go func(t *Trader, ch <-chan market.Tick) {
			defer wg.Done()
			for tick := range ch {
				t.OnTick(ctx, tick)
			}
		}(t, ch)
	}

	err := p.session.Run(ctx, func(tick market.Tick) {
		equity := p.bal.Equity(tick.Market, tick.Price)
		p.setLastEquity(equity)
		if p.risk.CheckEquity(equity) {
			p.log.Error().Float64("equity", equity).Float64("start", startEquity).Msg("risk.violation")
			if p.cfg.Recorder != nil {
				p.cfg.Recorder.Record(report.Event{
					Ts:   time.Now().UTC(),
					Kind: "halt",
					Fields: map[string]any{
						"reason": p.risk.Reason(), "equity": equity, "start_equity": startEquity,
					},
				})
			}
		}
		if ch, ok := chans[tick.Market]; ok {
			ch <- tick
		}
	})
	for _, ch := range chans {
		close(ch)
	}
	wg.Wait()

	result := PortfolioResult{
		Reason:      ReasonCompleted,
		StartEquity: startEquity,
		FinalEquity: p.LastEquity(),
	}
	if p.risk.Halted() {
		result.Reason = ReasonRiskViolation
	}
	if err != nil && ctx.Err() == nil {
		return result, err
	}
	return result, nil
}

func (p *Portfolio) setLastEquity(v float64) {
	p.equityMu.Lock()
	p.lastEquity = v
	p.equityMu.Unlock()
}

// LastEquity returns the most recent portfolio equity estimate.
func (p *Portfolio) LastEquity() float64 {
	p.equityMu.Lock()
	defer p.equityMu.Unlock()
	return p.lastEquity
}

// Risk exposes the shared risk state, nil before Run.
func (p *Portfolio) Risk() *risk.State { return p.risk }
