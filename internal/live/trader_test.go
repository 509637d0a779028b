package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/anc5557/upbit-auto/internal/market"
	"github.com/anc5557/upbit-auto/internal/report"
	"github.com/anc5557/upbit-auto/internal/risk"
	"github.com/anc5557/upbit-auto/internal/upbit"
)

// fakeExchange records orders and serves scripted balances. Each balance
// refresh pops the next snapshot; the last one repeats.
type fakeExchange struct {
	mu            sync.Mutex
	snapshots     [][]upbit.Account
	accountsCalls int
	orders        []upbit.OrderRequest
	limits        upbit.MarketLimits
	candles       []market.Bar
}

func (f *fakeExchange) Accounts(ctx context.Context) ([]upbit.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountsCalls++
	if len(f.snapshots) == 0 {
		return nil, nil
	}
	snap := f.snapshots[0]
	if len(f.snapshots) > 1 {
		f.snapshots = f.snapshots[1:]
	}
	return snap, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req upbit.OrderRequest) (upbit.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	return upbit.Order{UUID: "o-1", State: "wait"}, nil
}

func (f *fakeExchange) Order(ctx context.Context, id string) (upbit.Order, error) {
	return upbit.Order{UUID: id, State: "done"}, nil
}

func (f *fakeExchange) MarketLimits(ctx context.Context, marketCode string) (upbit.MarketLimits, error) {
	return f.limits, nil
}

func (f *fakeExchange) MinuteCandles(ctx context.Context, marketCode string, unit, maxCandles int) ([]market.Bar, error) {
	return f.candles, nil
}

func (f *fakeExchange) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func krw(balance string) upbit.Account {
	return upbit.Account{Currency: "KRW", Balance: balance}
}

func btc(balance string) upbit.Account {
	return upbit.Account{Currency: "BTC", Balance: balance}
}

// script emits one pre-planned signal per Signals call, attached to the
// newest bar.
type script struct {
	sigs []int
	i    int
}

func (s *script) Name() string { return "script" }

func (s *script) Signals(bars []market.Bar) []int {
	out := make([]int, len(bars))
	if len(out) == 0 {
		return out
	}
	v := 0
	if s.i < len(s.sigs) {
		v = s.sigs[s.i]
		s.i++
	}
	out[len(out)-1] = v
	return out
}

func testBar(minute int, close float64) market.Bar {
	start := time.Date(2026, 3, 2, 9, minute, 0, 0, time.UTC)
	return market.Bar{Start: start, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func newTestTrader(t *testing.T, ex *fakeExchange, strat *script, rc risk.Config, cfg TraderConfig) (*Trader, *Balances) {
	t.Helper()
	if cfg.Market == "" {
		cfg.Market = "KRW-BTC"
	}
	bal := NewBalances()
	if err := bal.Refresh(context.Background(), ex); err != nil {
		t.Fatalf("seed balances: %v", err)
	}
	rs := risk.NewState(bal.Cash(), rc)
	tr := NewTrader(cfg, strat, rs, ex, NewPool(2), bal, zerolog.Nop())
	tr.sleep = func(ctx context.Context, d time.Duration) {}
	return tr, bal
}

func TestEntryPlacesNotionalBuy(t *testing.T) {
	ex := &fakeExchange{
		snapshots: [][]upbit.Account{
			{krw("1000000")},
			{krw("0"), btc("0.01")},
		},
		limits: upbit.MarketLimits{PriceUnit: 1000, MinTotal: 5000},
	}
	tr, bal := newTestTrader(t, ex, &script{sigs: []int{1}}, risk.Config{MaxFraction: 0.5}, TraderConfig{})
	tr.limits = ex.limits

	tr.OnBar(context.Background(), testBar(0, 100))

	if got := ex.orderCount(); got != 1 {
		t.Fatalf("got %d orders, want 1", got)
	}
	order := ex.orders[0]
	if order.Side != upbit.SideBid || order.OrderType != upbit.OrderTypeMarketBuy {
		t.Fatalf("unexpected order: %+v", order)
	}
	// budget 500000 is already a tick multiple
	if order.Price != 500000 {
		t.Fatalf("notional = %v, want 500000", order.Price)
	}
	if bal.Qty("KRW-BTC") != 0.01 {
		t.Fatalf("balances not refreshed after fill: qty = %v", bal.Qty("KRW-BTC"))
	}
	if tr.entryPrice != 100 {
		t.Fatalf("entry price = %v, want the latest close", tr.entryPrice)
	}
}

func TestEntryRejectedBelowMinTotal(t *testing.T) {
	ex := &fakeExchange{
		snapshots: [][]upbit.Account{{krw("4000")}},
		limits:    upbit.MarketLimits{MinTotal: 5000},
	}
	tr, _ := newTestTrader(t, ex, &script{sigs: []int{1}}, risk.Config{MaxFraction: 1}, TraderConfig{})
	tr.limits = ex.limits

	tr.OnBar(context.Background(), testBar(0, 100))

	if got := ex.orderCount(); got != 0 {
		t.Fatalf("order placed below the minimum notional")
	}
}

func TestEntryOutsideAllowedHours(t *testing.T) {
	windows, err := ParseHourWindows("13:00-15:00")
	if err != nil {
		t.Fatalf("ParseHourWindows: %v", err)
	}
	ex := &fakeExchange{snapshots: [][]upbit.Account{{krw("1000000")}}}
	tr, _ := newTestTrader(t, ex, &script{sigs: []int{1}}, risk.Config{MaxFraction: 1}, TraderConfig{Hours: windows})

	// bar closes at 09:01, outside the window
	tr.OnBar(context.Background(), testBar(0, 100))

	if got := ex.orderCount(); got != 0 {
		t.Fatalf("entry ignored the allowed-hours gate")
	}
}

func TestCooldownBlocksThenAllows(t *testing.T) {
	// snapshots: seed, after entry, after exit, after re-entry
	ex := &fakeExchange{
		snapshots: [][]upbit.Account{
			{krw("1000000")},
			{krw("0"), btc("0.01")},
			{krw("1000000"), btc("0")},
			{krw("0"), btc("0.01")},
		},
	}
	strat := &script{sigs: []int{1, -1, 1, 1, 1}}
	tr, _ := newTestTrader(t, ex, strat, risk.Config{MaxFraction: 1, CooldownBars: 3}, TraderConfig{})

	ctx := context.Background()
	tr.OnBar(ctx, testBar(0, 100)) // entry, lastTradeBar=1
	tr.OnBar(ctx, testBar(1, 101)) // exit, lastTradeBar=2
	tr.OnBar(ctx, testBar(2, 100)) // buy 1 bar after trade: blocked
	tr.OnBar(ctx, testBar(3, 100)) // 2 bars after: blocked
	if got := ex.orderCount(); got != 2 {
		t.Fatalf("cooldown leaked an order: %d orders", got)
	}
	tr.OnBar(ctx, testBar(4, 100)) // 3 bars after: allowed
	if got := ex.orderCount(); got != 3 {
		t.Fatalf("entry after cooldown not placed: %d orders", got)
	}
	if ex.orders[2].Side != upbit.SideBid {
		t.Fatalf("third order is not a buy: %+v", ex.orders[2])
	}
}

func TestRiskHaltBlocksEntriesAllowsExits(t *testing.T) {
	// flat market: entry must be refused while halted
	exFlat := &fakeExchange{snapshots: [][]upbit.Account{{krw("1000000")}}}
	flat, _ := newTestTrader(t, exFlat, &script{sigs: []int{1}}, risk.Config{MaxFraction: 1}, TraderConfig{})
	flat.risk.Halt(risk.ReasonDailyLoss)
	flat.OnBar(context.Background(), testBar(0, 100))
	if got := exFlat.orderCount(); got != 0 {
		t.Fatalf("halted portfolio still opened a position")
	}

	// long market: the sell-signal exit still executes under the same halt
	exLong := &fakeExchange{
		snapshots: [][]upbit.Account{
			{krw("0"), btc("0.5")},
			{krw("50000"), btc("0")},
		},
	}
	long, bal := newTestTrader(t, exLong, &script{sigs: []int{-1}}, risk.Config{MaxFraction: 1}, TraderConfig{})
	long.risk.Halt(risk.ReasonDailyLoss)
	long.OnBar(context.Background(), testBar(0, 100))
	if got := exLong.orderCount(); got != 1 {
		t.Fatalf("halted portfolio blocked an exit: %d orders", got)
	}
	order := exLong.orders[0]
	if order.Side != upbit.SideAsk || order.OrderType != upbit.OrderTypeMarketSell || order.Volume != 0.5 {
		t.Fatalf("unexpected exit order: %+v", order)
	}
	if bal.Qty("KRW-BTC") != 0 {
		t.Fatalf("balances not refreshed after exit")
	}
}

func TestPartialTakeProfitFiresOnce(t *testing.T) {
	ex := &fakeExchange{
		snapshots: [][]upbit.Account{
			{krw("0"), btc("1")},
			{krw("51000"), btc("0.5")},
		},
	}
	strat := &script{sigs: []int{0, 0, 0}}
	tr, _ := newTestTrader(t, ex, strat, risk.Config{MaxFraction: 1}, TraderConfig{
		PartialTPPct:   0.01,
		PartialTPRatio: 0.5,
	})
	tr.entryPrice = 100

	ctx := context.Background()
	tr.OnBar(ctx, testBar(0, 100.5)) // +0.5%, below threshold
	if got := ex.orderCount(); got != 0 {
		t.Fatalf("partial TP fired below threshold")
	}
	tr.OnBar(ctx, testBar(1, 102)) // +2%, fires
	if got := ex.orderCount(); got != 1 {
		t.Fatalf("partial TP did not fire: %d orders", got)
	}
	order := ex.orders[0]
	if order.OrderType != upbit.OrderTypeMarketSell || order.Volume != 0.5 {
		t.Fatalf("unexpected partial TP order: %+v", order)
	}
	tr.OnBar(ctx, testBar(2, 110)) // even deeper in profit: must not re-fire
	if got := ex.orderCount(); got != 1 {
		t.Fatalf("partial TP fired twice")
	}
}

func TestTrailingStopMonotonicAndExit(t *testing.T) {
	ex := &fakeExchange{
		snapshots: [][]upbit.Account{
			{krw("0"), btc("1")},
			{krw("100000"), btc("0")},
		},
	}
	strat := &script{sigs: []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}}
	tr, _ := newTestTrader(t, ex, strat, risk.Config{MaxFraction: 1}, TraderConfig{
		ATRTrailMult: 2,
		ATRPeriod:    3,
	})
	tr.entryPrice = 100

	ctx := context.Background()
	var prevStop float64
	for i, close := range []float64{100, 101, 102, 103, 104, 105} {
		tr.OnBar(ctx, testBar(i, close))
		if tr.trailStop < prevStop {
			t.Fatalf("trailing stop loosened: %v -> %v", prevStop, tr.trailStop)
		}
		prevStop = tr.trailStop
	}
	if prevStop <= 0 {
		t.Fatalf("trailing stop never armed")
	}
	if got := ex.orderCount(); got != 0 {
		t.Fatalf("stop fired while price was above it")
	}

	// drop through the stop
	tr.OnBar(ctx, testBar(6, prevStop-1))
	if got := ex.orderCount(); got != 1 {
		t.Fatalf("stop hit did not exit: %d orders", got)
	}
	if tr.trailStop != 0 || tr.partialTPDone {
		t.Fatalf("per-position state not cleared after exit")
	}
}

func TestPrefetchCountResolution(t *testing.T) {
	ex := &fakeExchange{}
	tr, _ := newTestTrader(t, ex, &script{}, risk.Config{MaxFraction: 1}, TraderConfig{})
	if got := tr.prefetchCount(); got != defaultPrefetchBars {
		t.Fatalf("default prefetch = %d, want %d", got, defaultPrefetchBars)
	}

	tr2, _ := newTestTrader(t, ex, &script{}, risk.Config{MaxFraction: 1}, TraderConfig{PrefetchBars: 5000})
	if got := tr2.prefetchCount(); got != barWindowCap {
		t.Fatalf("prefetch not clamped to window cap: %d", got)
	}

	tr3, _ := newTestTrader(t, ex, &script{}, risk.Config{MaxFraction: 1}, TraderConfig{PrefetchBars: 42})
	if got := tr3.prefetchCount(); got != 42 {
		t.Fatalf("explicit prefetch override ignored: %d", got)
	}
}

func TestOnTickFinalizesBarsThroughAggregator(t *testing.T) {
	ex := &fakeExchange{snapshots: [][]upbit.Account{{krw("1000000")}}}
	strat := &script{sigs: []int{0}}
	tr, bal := newTestTrader(t, ex, strat, risk.Config{MaxFraction: 1}, TraderConfig{})

	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tr.OnTick(ctx, market.Tick{Market: "KRW-BTC", Price: 100, Volume: 1, Ts: base.Add(10 * time.Second)})
	tr.OnTick(ctx, market.Tick{Market: "KRW-BTC", Price: 104, Volume: 1, Ts: base.Add(50 * time.Second)})
	if len(tr.bars) != 0 {
		t.Fatalf("bar finalized early")
	}
	tr.OnTick(ctx, market.Tick{Market: "KRW-BTC", Price: 103, Volume: 1, Ts: base.Add(70 * time.Second)})
	if len(tr.bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(tr.bars))
	}
	if tr.bars[0].High != 104 || tr.bars[0].Close != 104 {
		t.Fatalf("unexpected bar: %+v", tr.bars[0])
	}
	if bal.lastClose["KRW-BTC"] != 103 {
		t.Fatalf("last close not tracked from ticks: %v", bal.lastClose["KRW-BTC"])
	}
}

// captureRecorder keeps events in memory for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	events []report.Event
}

func (c *captureRecorder) Record(ev report.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func TestTraderRecordsBarAndOrderEvents(t *testing.T) {
	ex := &fakeExchange{
		snapshots: [][]upbit.Account{
			{krw("1000000")},
			{krw("0"), btc("0.01")},
			{krw("990000")},
		},
		limits: upbit.MarketLimits{PriceUnit: 1000, MinTotal: 5000},
	}
	tr, _ := newTestTrader(t, ex, &script{sigs: []int{1, -1}}, risk.Config{MaxFraction: 0.5}, TraderConfig{})
	tr.limits = ex.limits
	rec := &captureRecorder{}
	tr.rec = rec

	tr.OnBar(context.Background(), testBar(0, 100))
	tr.OnBar(context.Background(), testBar(1, 110))

	kinds := make([]string, 0, len(rec.events))
	for _, ev := range rec.events {
		kinds = append(kinds, ev.Kind)
	}
	want := []string{"bar", "order", "bar", "order"}
	if len(kinds) != len(want) {
		t.Fatalf("got events %v, want kinds %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d kind = %q, want %q (all: %v)", i, kinds[i], want[i], kinds)
		}
	}
	buy, sell := rec.events[1], rec.events[3]
	if buy.Market != "KRW-BTC" || buy.Fields["side"] != "buy" || buy.Fields["event"] != "entry" {
		t.Fatalf("unexpected entry event: %+v", buy)
	}
	if sell.Fields["side"] != "sell" || sell.Fields["event"] != "exit" {
		t.Fatalf("unexpected exit event: %+v", sell)
	}
}
