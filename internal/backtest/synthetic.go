package backtest

import (
	"math"
	"math/rand"
	"time"

	"github.com/AbhayRathi/AlphaWEEX/internal/market"
)

// SyntheticCandles generates a 15 minute candle history with a gentle
// uptrend and gaussian noise, for replays when no cached history is
// available. The same seed always produces the same series.
func SyntheticCandles(n int, seed int64, end time.Time) []market.Candle {
	if n <= 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- Non-cryptographic use: reproducible synthetic market data
	start := end.Add(-time.Duration(n) * 15 * time.Minute)

	const basePrice = 40000.0
	const totalTrend = 5000.0

	candles := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		trend := totalTrend * float64(i) / float64(n)
		closePrice := basePrice + trend + rng.NormFloat64()*500
		openPrice := closePrice + rng.NormFloat64()*100
		high := math.Max(openPrice, closePrice) + math.Abs(rng.NormFloat64()*150)
		low := math.Min(openPrice, closePrice) - math.Abs(rng.NormFloat64()*150)

		candles[i] = market.Candle{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      openPrice,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    100 + math.Abs(rng.NormFloat64()*50),
		}
	}
	return candles
}
