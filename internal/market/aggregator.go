package market

import "time"

// Aggregator folds trade ticks into 1-minute OHLCV bars. It keeps exactly one
// open bucket; minutes with no trades simply produce no bar.
type Aggregator struct {
	bucket *Bar
}

// NewAggregator returns an aggregator with no open bucket.
func NewAggregator() *Aggregator { return &Aggregator{} }

// Update folds one tick into the open bucket. When the tick starts a new
// minute the previous bucket is returned finalized and ok is true.
func (a *Aggregator) Update(ts time.Time, price, volume float64) (bar Bar, ok bool) {
	key := FloorMinute(ts)
	if a.bucket == nil {
		a.bucket = seed(key, price, volume)
		return Bar{}, false
	}
	if key.After(a.bucket.Start) {
		done := *a.bucket
		a.bucket = seed(key, price, volume)
		return done, true
	}
	b := a.bucket
	if price > b.High {
		b.High = price
	}
	if price < b.Low {
		b.Low = price
	}
	b.Close = price
	b.Volume += volume
	return Bar{}, false
}

// Finalize force-emits the in-progress bucket, used at shutdown.
func (a *Aggregator) Finalize() (bar Bar, ok bool) {
	if a.bucket == nil {
		return Bar{}, false
	}
	done := *a.bucket
	a.bucket = nil
	return done, true
}

func seed(start time.Time, price, volume float64) *Bar {
	return &Bar{Start: start, Open: price, High: price, Low: price, Close: price, Volume: volume}
}
