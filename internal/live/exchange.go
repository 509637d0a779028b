package live

import (
	"context"
	"strings"
	"sync"

	"github.com/anc5557/upbit-auto/internal/market"
	"github.com/anc5557/upbit-auto/internal/upbit"
)

// Exchange is the slice of the REST client the live loop needs. *upbit.Client
// satisfies it; tests substitute fakes.
type Exchange interface {
	Accounts(ctx context.Context) ([]upbit.Account, error)
	PlaceOrder(ctx context.Context, req upbit.OrderRequest) (upbit.Order, error)
	Order(ctx context.Context, id string) (upbit.Order, error)
	MarketLimits(ctx context.Context, marketCode string) (upbit.MarketLimits, error)
	MinuteCandles(ctx context.Context, marketCode string, unit, maxCandles int) ([]market.Bar, error)
}

// Balances mirrors the exchange's authoritative view of cash and holdings.
// It is refreshed after every fill rather than projected locally, so partial
// fills never cause drift. Traders and the portfolio share one instance.
type Balances struct {
	mu        sync.Mutex
	cash      float64
	qty       map[string]float64 // by base currency, e.g. "BTC"
	lastClose map[string]float64 // by market code, e.g. "KRW-BTC"
}

// NewBalances returns an empty store.
func NewBalances() *Balances {
	return &Balances{
		qty:       make(map[string]float64),
		lastClose: make(map[string]float64),
	}
}

// baseCurrency extracts "BTC" from "KRW-BTC".
func baseCurrency(marketCode string) string {
	if _, base, ok := strings.Cut(marketCode, "-"); ok {
		return base
	}
	return marketCode
}

// Refresh replaces the store with the exchange's current balances.
func (b *Balances) Refresh(ctx context.Context, ex Exchange) error {
	accounts, err := ex.Accounts(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cash = 0
	b.qty = make(map[string]float64, len(accounts))
	for _, a := range accounts {
		if a.Currency == "KRW" {
			b.cash = a.BalanceValue()
			continue
		}
		b.qty[a.Currency] = a.BalanceValue()
	}
	return nil
}

// Cash returns the quote-currency balance.
func (b *Balances) Cash() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash
}

// Qty returns the held quantity for a market.
func (b *Balances) Qty(marketCode string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.qty[baseCurrency(marketCode)]
}

// SetLastClose records the most recently observed price for a market.
func (b *Balances) SetLastClose(marketCode string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastClose[marketCode] = price
}

// Equity estimates portfolio value as cash plus every holding priced at the
// tick price for the market that just ticked and the last known close for
// all others. Holdings with no observed price yet contribute nothing.
func (b *Balances) Equity(tickMarket string, tickPrice float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	eq := b.cash
	for marketCode, price := range b.lastClose {
		if marketCode == tickMarket {
			price = tickPrice
		}
		eq += b.qty[baseCurrency(marketCode)] * price
	}
	if _, seen := b.lastClose[tickMarket]; !seen && tickMarket != "" {
		eq += b.qty[baseCurrency(tickMarket)] * tickPrice
	}
	return eq
}
