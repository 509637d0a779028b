package live

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/anc5557/upbit-auto/internal/market"
	"github.com/anc5557/upbit-auto/internal/risk"
	"github.com/anc5557/upbit-auto/internal/strategy"
	"github.com/anc5557/upbit-auto/internal/upbit"
)

// prefetchBars is the warm-up history served by the fake exchange: one bar
// closing at 100, which seeds the last known price.
func prefetchBars() []market.Bar {
	return []market.Bar{testBar(0, 100)}
}

func TestPortfolioHaltKeepsProcessing(t *testing.T) {
	ex := &fakeExchange{
		snapshots: [][]upbit.Account{{krw("1000"), btc("1")}},
		candles:   prefetchBars(),
	}

	newStrategy := func() (strategy.Strategy, error) {
		return &script{sigs: []int{0, 0, 0, 0}}, nil
	}
	p, err := NewPortfolio(PortfolioConfig{
		Markets: []string{"KRW-BTC"},
		Risk:    risk.Config{MaxFraction: 1, MaxDailyLoss: 0.05},
		Trader:  TraderConfig{PrefetchBars: 1},
	}, newStrategy, ex, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPortfolio: %v", err)
	}

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	conn := &fakeConn{frames: []frame{
		// equity 1000 + 1*10 = 1010, under the 1045 daily-loss floor
		{data: tickFrame(t, "KRW-BTC", 10, 1, base.Add(5*time.Second))},
		// the session must keep processing after the halt
		{data: tickFrame(t, "KRW-BTC", 11, 1, base.Add(10*time.Second))},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	p.session = newScriptedSession(cancel, []*fakeConn{conn})

	result, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Reason != ReasonRiskViolation {
		t.Fatalf("reason = %q, want %q", result.Reason, ReasonRiskViolation)
	}
	if result.StartEquity != 1100 {
		t.Fatalf("start equity = %v, want 1100", result.StartEquity)
	}
	if !p.Risk().Halted() || p.Risk().Reason() != risk.ReasonDailyLoss {
		t.Fatalf("risk state not latched: halted=%v reason=%q", p.Risk().Halted(), p.Risk().Reason())
	}
	// the tick after the halt was still dispatched to the trader
	if got := p.bal.lastClose["KRW-BTC"]; got != 11 {
		t.Fatalf("last close = %v, want 11 from the post-halt tick", got)
	}
	if result.FinalEquity != 1011 {
		t.Fatalf("final equity = %v, want 1011", result.FinalEquity)
	}
}

func TestPortfolioCompletedWithoutHalt(t *testing.T) {
	ex := &fakeExchange{
		snapshots: [][]upbit.Account{{krw("1000"), btc("1")}},
		candles:   prefetchBars(),
	}
	newStrategy := func() (strategy.Strategy, error) {
		return &script{sigs: []int{0}}, nil
	}
	p, err := NewPortfolio(PortfolioConfig{
		Markets: []string{"KRW-BTC"},
		Risk:    risk.Config{MaxFraction: 1, MaxDailyLoss: 0.5},
		Trader:  TraderConfig{PrefetchBars: 1},
	}, newStrategy, ex, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPortfolio: %v", err)
	}

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	conn := &fakeConn{frames: []frame{
		{data: tickFrame(t, "KRW-BTC", 99, 1, base.Add(5*time.Second))},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	p.session = newScriptedSession(cancel, []*fakeConn{conn})

	result, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Reason != ReasonCompleted {
		t.Fatalf("reason = %q, want %q", result.Reason, ReasonCompleted)
	}
}

func TestNewPortfolioRequiresMarkets(t *testing.T) {
	_, err := NewPortfolio(PortfolioConfig{}, func() (strategy.Strategy, error) {
		return &script{}, nil
	}, &fakeExchange{}, zerolog.Nop())
	if err == nil {
		t.Fatalf("expected error for empty market list")
	}
}
