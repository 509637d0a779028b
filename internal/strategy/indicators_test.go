package strategy

import (
	"math"
	"testing"
)

func TestSMAWarmupAndValues(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	got := SMA(xs, 3)
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Fatalf("expected NaN during warm-up, got %v", got[:2])
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if math.Abs(got[i+2]-w) > 1e-9 {
			t.Fatalf("SMA[%d] = %v, want %v", i+2, got[i+2], w)
		}
	}
}

func TestEMAConvergesToConstant(t *testing.T) {
	xs := make([]float64, 50)
	for i := range xs {
		xs[i] = 10
	}
	got := EMA(xs, 5)
	if math.Abs(got[49]-10) > 1e-9 {
		t.Fatalf("EMA of constant series = %v, want 10", got[49])
	}
	if !math.IsNaN(got[2]) {
		t.Fatalf("expected NaN during warm-up")
	}
}

func TestRSIBounds(t *testing.T) {
	// monotonically rising closes push RSI toward 100
	xs := make([]float64, 40)
	for i := range xs {
		xs[i] = 100 + float64(i)
	}
	rsi := RSI(xs, 14)
	last := rsi[len(rsi)-1]
	if math.IsNaN(last) || last < 90 {
		t.Fatalf("rising series RSI = %v, want > 90", last)
	}

	// falling closes push it toward 0
	for i := range xs {
		xs[i] = 200 - float64(i)
	}
	rsi = RSI(xs, 14)
	last = rsi[len(rsi)-1]
	if math.IsNaN(last) || last > 10 {
		t.Fatalf("falling series RSI = %v, want < 10", last)
	}
}

func TestBollingerBandsBracketMean(t *testing.T) {
	xs := []float64{10, 12, 11, 13, 12, 14, 13, 15, 14, 16}
	lower, mid, upper := Bollinger(xs, 5, 2)
	last := len(xs) - 1
	if math.IsNaN(mid[last]) {
		t.Fatalf("mid band NaN after warm-up")
	}
	if !(lower[last] < mid[last] && mid[last] < upper[last]) {
		t.Fatalf("bands out of order: %v %v %v", lower[last], mid[last], upper[last])
	}
}

func TestATRPositiveAndWarmedUp(t *testing.T) {
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 102 + float64(i%3)
		lows[i] = 98 - float64(i%2)
		closes[i] = 100
	}
	atr := ATR(highs, lows, closes, 14)
	if !math.IsNaN(atr[5]) {
		t.Fatalf("expected NaN during warm-up")
	}
	if last := atr[n-1]; math.IsNaN(last) || last <= 0 {
		t.Fatalf("ATR = %v, want positive", last)
	}
}

func TestADXStrongTrendReadsHigh(t *testing.T) {
	n := 80
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + 2*float64(i)
		highs[i] = base + 1
		lows[i] = base - 1
		closes[i] = base
	}
	_, _, adx := ADX(highs, lows, closes, 14)
	if last := adx[n-1]; math.IsNaN(last) || last < 25 {
		t.Fatalf("ADX of a steady trend = %v, want >= 25", last)
	}
}

func TestCrossHelpers(t *testing.T) {
	a := []float64{1, 3}
	b := []float64{2, 2}
	if !crossUp(a, b, 1) {
		t.Fatalf("expected cross up")
	}
	if crossDown(a, b, 1) {
		t.Fatalf("unexpected cross down")
	}
	if crossUp(a, b, 0) {
		t.Fatalf("index 0 can never cross")
	}
	r := []float64{25, 35}
	if !crossAbove(r, 30, 1) {
		t.Fatalf("expected cross above level")
	}
}

func TestMACDSignalLineSeedsAfterWarmup(t *testing.T) {
	xs := make([]float64, 40)
	for i := range xs {
		xs[i] = 100
	}
	macd, sig, hist := MACD(xs, 12, 26, 9)
	if !math.IsNaN(macd[24]) || math.Abs(macd[25]) > 1e-9 {
		t.Fatalf("macd warmup wrong: macd[24]=%v macd[25]=%v", macd[24], macd[25])
	}
	if !math.IsNaN(sig[32]) {
		t.Fatalf("signal defined too early: sig[32]=%v", sig[32])
	}
	if math.IsNaN(sig[33]) || math.Abs(sig[33]) > 1e-9 {
		t.Fatalf("signal not seeded past warmup: sig[33]=%v", sig[33])
	}
	if math.IsNaN(hist[39]) || math.Abs(hist[39]) > 1e-9 {
		t.Fatalf("flat series histogram = %v, want 0", hist[39])
	}

	// a rising tail pulls the macd line above its own smoothing
	for i := 30; i < 40; i++ {
		xs[i] = 100 + 2*float64(i-29)
	}
	_, _, hist = MACD(xs, 12, 26, 9)
	if last := hist[39]; math.IsNaN(last) || last <= 0 {
		t.Fatalf("rising series histogram = %v, want > 0", last)
	}
}
