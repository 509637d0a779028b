package strategy

import "math"

// Indicator helpers over plain float slices. Warm-up positions are NaN so
// comparisons against them are false, the same convention strategies rely on.

const indicatorEpsilon = 1e-12

// SMA is a simple moving average, NaN before the window fills.
func SMA(xs []float64, period int) []float64 {
	out := nanSlice(len(xs))
	if period <= 0 || len(xs) < period {
		return out
	}
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= period {
			sum -= xs[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA is an exponential moving average with k=2/(span+1), seeded at the
// first value; the first span-1 positions are NaN.
func EMA(xs []float64, span int) []float64 {
	return smooth(xs, 2.0/(float64(span)+1.0), span)
}

// wilder applies Wilder's smoothing (alpha=1/period).
func wilder(xs []float64, period int) []float64 {
	return smooth(xs, 1.0/float64(period), period)
}

func smooth(xs []float64, alpha float64, minPeriods int) []float64 {
	out := nanSlice(len(xs))
	if len(xs) == 0 {
		return out
	}
	prev := xs[0]
	for i, x := range xs {
		if i > 0 {
			prev = x*alpha + prev*(1.0-alpha)
		}
		if i >= minPeriods-1 {
			out[i] = prev
		}
	}
	return out
}

// RSI is Wilder's relative strength index.
func RSI(xs []float64, period int) []float64 {
	n := len(xs)
	up := make([]float64, n)
	down := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := xs[i] - xs[i-1]
		if delta > 0 {
			up[i] = delta
		} else {
			down[i] = -delta
		}
	}
	// the smoothed averages need one extra bar for the first delta
	rollUp := wilder(up, period+1)
	rollDown := wilder(down, period+1)
	out := nanSlice(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(rollUp[i]) || math.IsNaN(rollDown[i]) {
			continue
		}
		rs := rollUp[i] / (rollDown[i] + indicatorEpsilon)
		out[i] = 100.0 - 100.0/(1.0+rs)
	}
	return out
}

// MACD returns the MACD line, signal line, and histogram. The signal EMA
// seeds from the first defined MACD value, not the NaN warm-up prefix.
func MACD(xs []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	emaF := EMA(xs, fast)
	emaS := EMA(xs, slow)
	n := len(xs)
	macd = nanSlice(n)
	for i := range xs {
		macd[i] = emaF[i] - emaS[i]
	}
	sig = nanSlice(n)
	if start := slow - 1; start >= 0 && start < n {
		copy(sig[start:], EMA(macd[start:], signal))
	}
	hist = nanSlice(n)
	for i := range xs {
		hist[i] = macd[i] - sig[i]
	}
	return macd, sig, hist
}

// Bollinger returns lower, middle, and upper bands (population std dev).
func Bollinger(xs []float64, period int, k float64) (lower, mid, upper []float64) {
	mid = SMA(xs, period)
	lower = nanSlice(len(xs))
	upper = nanSlice(len(xs))
	for i := period - 1; i < len(xs); i++ {
		m := mid[i]
		if math.IsNaN(m) {
			continue
		}
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			variance += (xs[j] - m) * (xs[j] - m)
		}
		sd := math.Sqrt(variance / float64(period))
		lower[i] = m - k*sd
		upper[i] = m + k*sd
	}
	return lower, mid, upper
}

// TrueRange computes per-bar true range.
func TrueRange(highs, lows, closes []float64) []float64 {
	n := len(closes)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := highs[i] - lows[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// ATR is the Wilder-smoothed average true range.
func ATR(highs, lows, closes []float64, period int) []float64 {
	return wilder(TrueRange(highs, lows, closes), period)
}

// ADX returns +DI, -DI, and the average directional index.
func ADX(highs, lows, closes []float64, period int) (plusDI, minusDI, adx []float64) {
	n := len(closes)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	atr := wilder(TrueRange(highs, lows, closes), period)
	smPlus := wilder(plusDM, period)
	smMinus := wilder(minusDM, period)
	plusDI = nanSlice(n)
	minusDI = nanSlice(n)
	dx := nanSlice(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) || math.IsNaN(smPlus[i]) || math.IsNaN(smMinus[i]) {
			continue
		}
		plusDI[i] = 100.0 * smPlus[i] / (atr[i] + indicatorEpsilon)
		minusDI[i] = 100.0 * smMinus[i] / (atr[i] + indicatorEpsilon)
		dx[i] = math.Abs(plusDI[i]-minusDI[i]) / (plusDI[i] + minusDI[i] + indicatorEpsilon) * 100.0
	}
	adx = wilderNaN(dx, period)
	return plusDI, minusDI, adx
}

// wilderNaN smooths a series whose head is NaN, starting at the first
// finite value.
func wilderNaN(xs []float64, period int) []float64 {
	out := nanSlice(len(xs))
	start := -1
	for i, x := range xs {
		if !math.IsNaN(x) {
			start = i
			break
		}
	}
	if start < 0 {
		return out
	}
	alpha := 1.0 / float64(period)
	prev := xs[start]
	for i := start; i < len(xs); i++ {
		if i > start {
			prev = xs[i]*alpha + prev*(1.0-alpha)
		}
		if i >= start+period-1 {
			out[i] = prev
		}
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// crossUp reports a at i rising through b at i.
func crossUp(a, b []float64, i int) bool {
	if i < 1 {
		return false
	}
	return a[i] > b[i] && a[i-1] <= b[i-1]
}

// crossDown reports a at i falling through b at i.
func crossDown(a, b []float64, i int) bool {
	if i < 1 {
		return false
	}
	return a[i] < b[i] && a[i-1] >= b[i-1]
}

// crossAbove reports series a rising through level at i.
func crossAbove(a []float64, level float64, i int) bool {
	if i < 1 {
		return false
	}
	return a[i] > level && a[i-1] <= level
}
