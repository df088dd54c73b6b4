package regime

import "math"

// trueRange returns the per-candle true range. The first element has no
// previous close, so it degrades to high minus low.
func trueRange(high, low, closes []float64) []float64 {
	n := len(closes)
	tr := make([]float64, n)
	tr[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-closes[i-1]),
				math.Abs(low[i]-closes[i-1])))
	}
	return tr
}

// emaSpan applies span-style exponential smoothing with alpha equal to
// 2/(span+1), seeded from the first value. Output is aligned with the
// input.
func emaSpan(values []float64, span int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = values[0]
	for i := 1; i < n; i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// atrSeries returns the exponentially smoothed average true range
func atrSeries(high, low, closes []float64, period int) []float64 {
	return emaSpan(trueRange(high, low, closes), period)
}
