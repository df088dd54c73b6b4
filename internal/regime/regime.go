// Package regime classifies a candle window into one of four market
// regimes using ADX for trend strength and ATR for volatility.
package regime

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/market"
)

// MinCandles is the smallest window the classifier accepts
const MinCandles = 30

// Regime identifies a market regime
type Regime string

const (
	TrendingUp    Regime = "TRENDING_UP"
	TrendingDown  Regime = "TRENDING_DOWN"
	RangeVolatile Regime = "RANGE_VOLATILE"
	RangeQuiet    Regime = "RANGE_QUIET"
)

// Metrics holds the regime classification and the indicator values that
// produced it.
type Metrics struct {
	Regime           Regime  `json:"regime"`
	ADX              float64 `json:"adx"`
	PlusDI           float64 `json:"plus_di"`
	MinusDI          float64 `json:"minus_di"`
	ATR              float64 `json:"atr"`
	RSI              float64 `json:"rsi"`
	InsufficientData bool    `json:"insufficient_data,omitempty"`
}

// Analyzer classifies candle windows. It is pure and deterministic; the
// same window always yields the same metrics.
type Analyzer struct {
	period       int
	adxThreshold float64
}

// NewAnalyzer creates an analyzer. Zero arguments select the 14-period,
// ADX-25 defaults.
func NewAnalyzer(period int, adxThreshold float64) *Analyzer {
	if period <= 0 {
		period = 14
	}
	if adxThreshold <= 0 {
		adxThreshold = 25
	}
	return &Analyzer{period: period, adxThreshold: adxThreshold}
}

// Analyze classifies a candle window. Windows shorter than MinCandles
// yield RANGE_QUIET with InsufficientData set and neutral indicator
// values.
func (a *Analyzer) Analyze(candles []market.Candle) *Metrics {
	if len(candles) < MinCandles {
		log.Warn().Int("candles", len(candles)).Int("required", MinCandles).
			Msg("Window too small for regime detection")
		return &Metrics{
			Regime:           RangeQuiet,
			RSI:              50.0,
			InsufficientData: true,
		}
	}

	high, low, closes := splitOHLC(candles)
	adx, plusDI, minusDI := adxSeries(high, low, closes, a.period)
	atr := atrSeries(high, low, closes, a.period)
	n := len(candles)

	m := &Metrics{
		ADX:     adx[n-1],
		PlusDI:  plusDI[n-1],
		MinusDI: minusDI[n-1],
		ATR:     atr[n-1],
		RSI:     lastRSI(closes, a.period),
	}
	m.Regime = a.classify(m, median(atr))

	log.Debug().
		Str("regime", string(m.Regime)).
		Float64("adx", m.ADX).
		Float64("plus_di", m.PlusDI).
		Float64("minus_di", m.MinusDI).
		Float64("atr", m.ATR).
		Float64("rsi", m.RSI).
		Msg("Regime detected")
	return m
}

// classify applies the regime rule: ADX above the threshold is trending
// with the direction taken from the DI comparison; otherwise the window
// is ranging and ATR against its median separates volatile from quiet.
func (a *Analyzer) classify(m *Metrics, atrMedian float64) Regime {
	if m.ADX > a.adxThreshold {
		if m.PlusDI > m.MinusDI {
			return TrendingUp
		}
		return TrendingDown
	}
	if m.ATR > atrMedian {
		return RangeVolatile
	}
	return RangeQuiet
}

func splitOHLC(candles []market.Candle) (high, low, closes []float64) {
	n := len(candles)
	high = make([]float64, n)
	low = make([]float64, n)
	closes = make([]float64, n)
	for i, c := range candles {
		high[i] = c.High
		low[i] = c.Low
		closes[i] = c.Close
	}
	return high, low, closes
}

// median returns the interpolated middle of a series
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
