package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/anc5557/upbit-auto/internal/market"
)

const candlePageSize = 200

type restCandle struct {
	Market       string  `json:"market"`
	OpeningPrice float64 `json:"opening_price"`
	HighPrice    float64 `json:"high_price"`
	LowPrice     float64 `json:"low_price"`
	TradePrice   float64 `json:"trade_price"`
	AccVolume    float64 `json:"candle_acc_trade_volume"`
	Timestamp    int64   `json:"timestamp"`
}

// MinuteCandles fetches up to maxCandles recent minute candles, oldest first,
// paginating backwards with the "to" cursor. Public endpoint, no signing.
func (c *Client) MinuteCandles(ctx context.Context, marketCode string, unit, maxCandles int) ([]market.Bar, error) {
	if maxCandles <= 0 {
		return nil, nil
	}
	path := fmt.Sprintf("/candles/minutes/%d", unit)
	var acc []restCandle
	var to time.Time
	remaining := maxCandles
	for remaining > 0 {
		take := remaining
		if take > candlePageSize {
			take = candlePageSize
		}
		params := url.Values{}
		params.Set("market", marketCode)
		params.Set("count", strconv.Itoa(take))
		if !to.IsZero() {
			params.Set("to", to.UTC().Format(time.RFC3339))
		}
		body, err := c.request(ctx, http.MethodGet, path, params, false)
		if err != nil {
			return nil, err
		}
		var batch []restCandle
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("decode candles: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		acc = append(acc, batch...)
		// batches arrive reverse-chronological; cursor moves past the oldest
		oldest := batch[len(batch)-1]
		to = time.UnixMilli(oldest.Timestamp).UTC().Add(-time.Millisecond)
		remaining -= len(batch)
	}

	bars := make([]market.Bar, len(acc))
	for i, row := range acc {
		bars[i] = market.Bar{
			Start:  market.FloorMinute(time.UnixMilli(row.Timestamp)),
			Open:   row.OpeningPrice,
			High:   row.HighPrice,
			Low:    row.LowPrice,
			Close:  row.TradePrice,
			Volume: row.AccVolume,
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Start.Before(bars[j].Start) })
	return bars, nil
}
