package regime

import "math"

// adxSeries returns aligned ADX, +DI, and -DI series. Directional
// movement and true range are smoothed with the same span-style EMA as
// ATR rather than the classic Wilder average, so all three indicators
// share one smoothing convention.
func adxSeries(high, low, closes []float64, period int) (adx, plusDI, minusDI []float64) {
	n := len(closes)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < n; i++ {
		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	atr := emaSpan(trueRange(high, low, closes), period)
	smoothPlus := emaSpan(plusDM, period)
	smoothMinus := emaSpan(minusDM, period)

	plusDI = make([]float64, n)
	minusDI = make([]float64, n)
	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if atr[i] != 0 {
			plusDI[i] = 100 * smoothPlus[i] / atr[i]
			minusDI[i] = 100 * smoothMinus[i] / atr[i]
		}
		if diSum := plusDI[i] + minusDI[i]; diSum != 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / diSum
		}
	}

	adx = emaSpan(dx, period)
	return adx, plusDI, minusDI
}
