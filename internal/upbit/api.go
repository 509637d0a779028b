package upbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// Order sides and types as the exchange spells them.
const (
	SideBid = "bid"
	SideAsk = "ask"

	// OrderTypeLimit is a price+volume limit order.
	OrderTypeLimit = "limit"
	// OrderTypeMarketBuy spends a notional amount at market ("price" order).
	OrderTypeMarketBuy = "price"
	// OrderTypeMarketSell sells a quantity at market.
	OrderTypeMarketSell = "market"
)

// Account is one currency balance row.
type Account struct {
	Currency    string `json:"currency"`
	Balance     string `json:"balance"`
	Locked      string `json:"locked"`
	AvgBuyPrice string `json:"avg_buy_price"`
}

// BalanceValue parses the balance into a float, zero on malformed input.
func (a Account) BalanceValue() float64 {
	v, err := strconv.ParseFloat(a.Balance, 64)
	if err != nil {
		return 0
	}
	return v
}

// OrderRequest describes a placement. Identifier is the idempotency token;
// when empty, PlaceOrder generates one before the retry loop so every retry
// of the same logical order carries the same token.
type OrderRequest struct {
	Side       string  // "buy" or "sell"
	Market     string  // e.g. KRW-BTC
	Volume     float64 // quantity, for limit and market sells
	Price      float64 // unit price for limit, notional for market buys
	OrderType  string  // limit | price | market
	Identifier string
}

// Order is the exchange's view of an order.
type Order struct {
	UUID            string `json:"uuid"`
	Side            string `json:"side"`
	OrdType         string `json:"ord_type"`
	State           string `json:"state"`
	Market          string `json:"market"`
	Price           string `json:"price"`
	Volume          string `json:"volume"`
	RemainingVolume string `json:"remaining_volume"`
	ExecutedVolume  string `json:"executed_volume"`
	PaidFee         string `json:"paid_fee"`
	Identifier      string `json:"identifier"`
}

// MarketLimits carries per-market order constraints from orders/chance.
type MarketLimits struct {
	PriceUnit float64 // tick size, 0 when unknown
	MinTotal  float64 // minimum order notional, 0 when unknown
}

// Accounts fetches all balances.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	if err := c.requireKeys(); err != nil {
		return nil, err
	}
	body, err := c.request(ctx, http.MethodGet, "/accounts", nil, true)
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return accounts, nil
}

// PlaceOrder submits an order and returns the exchange's record of it.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if err := c.requireKeys(); err != nil {
		return Order{}, err
	}
	side := SideAsk
	if req.Side == "buy" || req.Side == SideBid {
		side = SideBid
	}
	params := url.Values{}
	params.Set("market", req.Market)
	params.Set("side", side)
	params.Set("ord_type", req.OrderType)
	switch req.OrderType {
	case OrderTypeLimit:
		if req.Volume <= 0 || req.Price <= 0 {
			return Order{}, errors.New("upbit: limit orders need volume and price")
		}
		params.Set("volume", formatFloat(req.Volume))
		params.Set("price", formatFloat(req.Price))
	case OrderTypeMarketBuy:
		if req.Price <= 0 {
			return Order{}, errors.New("upbit: market buys need a notional price")
		}
		params.Set("price", formatFloat(req.Price))
	case OrderTypeMarketSell:
		if req.Volume <= 0 {
			return Order{}, errors.New("upbit: market sells need a volume")
		}
		params.Set("volume", formatFloat(req.Volume))
	default:
		return Order{}, fmt.Errorf("upbit: unknown order type %q", req.OrderType)
	}
	if req.Identifier == "" {
		req.Identifier = uuid.NewString()
	}
	params.Set("identifier", req.Identifier)

	body, err := c.request(ctx, http.MethodPost, "/orders", params, true)
	if err != nil {
		return Order{}, err
	}
	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	return order, nil
}

// Order looks up an order by exchange uuid.
func (c *Client) Order(ctx context.Context, id string) (Order, error) {
	if err := c.requireKeys(); err != nil {
		return Order{}, err
	}
	params := url.Values{}
	params.Set("uuid", id)
	body, err := c.request(ctx, http.MethodGet, "/order", params, true)
	if err != nil {
		return Order{}, err
	}
	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	return order, nil
}

// CancelOrder cancels an order by exchange uuid.
func (c *Client) CancelOrder(ctx context.Context, id string) (Order, error) {
	if err := c.requireKeys(); err != nil {
		return Order{}, err
	}
	params := url.Values{}
	params.Set("uuid", id)
	body, err := c.request(ctx, http.MethodDelete, "/order", params, true)
	if err != nil {
		return Order{}, err
	}
	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	return order, nil
}

type orderChance struct {
	Market struct {
		Bid struct {
			PriceUnit string `json:"price_unit"`
		} `json:"bid"`
		Ask struct {
			PriceUnit string `json:"price_unit"`
		} `json:"ask"`
	} `json:"market"`
	MarketBid struct {
		MinTotal string `json:"min_total"`
	} `json:"market_bid"`
	BidAccount struct {
		MinTotal string `json:"min_total"`
	} `json:"bid_account"`
}

// MarketLimits resolves tick size and minimum notional from orders/chance.
// Fields the payload omits stay zero; callers treat zero as unknown.
func (c *Client) MarketLimits(ctx context.Context, marketCode string) (MarketLimits, error) {
	if err := c.requireKeys(); err != nil {
		return MarketLimits{}, err
	}
	params := url.Values{}
	params.Set("market", marketCode)
	body, err := c.request(ctx, http.MethodGet, "/orders/chance", params, true)
	if err != nil {
		return MarketLimits{}, err
	}
	var chance orderChance
	if err := json.Unmarshal(body, &chance); err != nil {
		return MarketLimits{}, fmt.Errorf("decode orders/chance: %w", err)
	}
	var limits MarketLimits
	if v, err := strconv.ParseFloat(chance.Market.Bid.PriceUnit, 64); err == nil {
		limits.PriceUnit = v
	} else if v, err := strconv.ParseFloat(chance.Market.Ask.PriceUnit, 64); err == nil {
		limits.PriceUnit = v
	}
	if v, err := strconv.ParseFloat(chance.MarketBid.MinTotal, 64); err == nil {
		limits.MinTotal = v
	} else if v, err := strconv.ParseFloat(chance.BidAccount.MinTotal, 64); err == nil {
		limits.MinTotal = v
	}
	return limits, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
