package supervisor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/adversary"
	"github.com/AbhayRathi/AlphaWEEX/internal/ledger"
	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
	"github.com/AbhayRathi/AlphaWEEX/internal/state"
)

const (
	rsiPeriod     = 14
	lowWindowSize = 5
	lowWindows    = 3
)

func (s *Supervisor) predatorLoop(ctx context.Context) error {
	log.Info().
		Dur("interval", s.cfg.PredatorInterval).
		Msg("Predator cycle started")

	for {
		if err := s.predatorCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Predator cycle failed")
			metrics.RecordError("cycle", "predator")
		}
		if err := sleep(ctx, s.cfg.PredatorInterval); err != nil {
			return err
		}
	}
}

// predatorCycle reads the market's mood, asks the adversary which
// archetype is driving it, and books a prediction for the auditor to
// score later.
func (s *Supervisor) predatorCycle(ctx context.Context) error {
	series, err := s.comp.Market.FetchOHLCV(ctx, s.cfg.Symbol, s.cfg.Timeframe, s.cfg.CandleLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch candles: %w", err)
	}
	candles := series.Candles
	if len(candles) == 0 {
		return fmt.Errorf("market returned no candles for %s", s.cfg.Symbol)
	}

	window := lastCloses(candles, closeWindow)
	price := window[len(window)-1]
	priceChange := 0.0
	if window[0] != 0 {
		priceChange = (price - window[0]) / window[0] * 100
	}

	data := adversary.MarketData{
		Price:          price,
		RSI:            simpleRSI(window, rsiPeriod),
		Volume:         candles[len(candles)-1].Volume,
		PriceChangePct: priceChange,
		Volatility:     realizedVolatility(window),
		RecentLows:     recentLows(candles),
	}

	snapshot := s.comp.Shared.Snapshot()
	analysis := s.comp.Adversary.Analyze(ctx, data, sentimentLabel(snapshot), narrativeLabel(snapshot))

	// UNKNOWN is the analyst's own failure mode, not a read on the
	// market; recording it would only poison the accountability scores.
	if analysis.DetectedArchetype == adversary.ArchetypeNeutral ||
		analysis.DetectedArchetype == adversary.ArchetypeUnknown {
		log.Debug().
			Str("archetype", analysis.DetectedArchetype).
			Msg("No actionable archetype this cycle")
		return nil
	}

	id, err := s.comp.Ledger.Record(ctx, &ledger.Prediction{
		PredictedBias:     analysis.PredictedBias,
		PredictedOutcome:  analysis.PredictedOutcome,
		Confidence:        analysis.Confidence,
		MarketRegime:      string(analysis.MarketRegime),
		Archetype:         analysis.DetectedArchetype,
		Signal:            analysis.Signal,
		PriceAtPrediction: price,
	})
	if err != nil {
		return fmt.Errorf("failed to record prediction: %w", err)
	}

	log.Info().
		Int64("prediction_id", id).
		Str("archetype", analysis.DetectedArchetype).
		Str("bias", analysis.PredictedBias).
		Float64("confidence", analysis.Confidence).
		Str("mode", analysis.Mode).
		Msg("Psychology prediction recorded")
	return nil
}

// simpleRSI is the plain average-gain over average-loss reading used
// for the psychology snapshot. The strategy indicators carry the full
// smoothed variant; this one only has to describe the window's mood.
func simpleRSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}
	window := closes[len(closes)-period-1:]

	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// recentLows collects the swing low of each of the last three
// five-candle windows, most recent first.
func recentLows(candles []market.Candle) []float64 {
	out := make([]float64, 0, lowWindows)
	for i := 0; i < lowWindows; i++ {
		end := len(candles) - i*lowWindowSize
		start := end - lowWindowSize
		if start < 0 {
			break
		}
		low := candles[start].Low
		for _, c := range candles[start+1 : end] {
			if c.Low < low {
				low = c.Low
			}
		}
		out = append(out, low)
	}
	return out
}

// sentimentLabel pulls the label the sentiment producer stored next to
// its multiplier, defaulting to neutral when none is present yet.
func sentimentLabel(snapshot state.Snapshot) string {
	if label, ok := snapshot.SentimentPayload["sentiment"].(string); ok && label != "" {
		return label
	}
	return "Neutral"
}

func narrativeLabel(snapshot state.Snapshot) string {
	if snapshot.WhaleDumpRisk {
		return "Large exchange inflows flagged, whale dump risk active"
	}
	return ""
}
