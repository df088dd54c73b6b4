package regime

// lastRSI returns the RSI of the most recent candle. Gains and losses
// use a simple rolling mean over the period rather than Wilder
// smoothing.
func lastRSI(closes []float64, period int) float64 {
	n := len(closes)
	if n < period+1 {
		return 50.0
	}

	var gainSum, lossSum float64
	for i := n - period; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}
