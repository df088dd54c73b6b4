package reasoning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
	"github.com/AbhayRathi/AlphaWEEX/internal/regime"
	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

const (
	analysisWindow   = 20
	volumeSpikeRatio = 1.5

	// Confidence is bounded by the regime adjustment; a reading under
	// the suggestion threshold asks the architect for an evolution.
	suggestionThreshold = 0.6
	minConfidence       = 0.4
	maxConfidence       = 0.8
	alignedBonus        = 0.05
	counterPenalty      = 0.10

	fetchTimeout = 10 * time.Second
	errorBackoff = time.Minute
)

// MarketSource provides the candle window each cycle analyzes
type MarketSource interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error)
}

// Tracer appends reasoning traces to the durable trace log
type Tracer interface {
	Record(source, prompt, response string, metadata map[string]interface{}) error
}

// EventSink publishes analyses to process observers
type EventSink interface {
	Publish(ctx context.Context, eventType, source string, payload interface{}) error
}

// Config sets the loop cadence and market window
type Config struct {
	Symbol      string
	Timeframe   string
	Interval    time.Duration
	CandleLimit int
}

// Loop periodically analyzes the market and publishes the latest
// Analysis. It is the single writer; everything else reads through
// Latest.
type Loop struct {
	cfg      Config
	source   MarketSource
	analyzer *regime.Analyzer
	trace    Tracer
	events   EventSink

	mu     sync.RWMutex
	latest *Analysis

	now func() time.Time
}

// NewLoop creates a reasoning loop over the given market source
func NewLoop(cfg Config, source MarketSource, analyzer *regime.Analyzer) *Loop {
	if cfg.Timeframe == "" {
		cfg.Timeframe = "15m"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 100
	}
	if analyzer == nil {
		analyzer = regime.NewAnalyzer(0, 0)
	}
	return &Loop{cfg: cfg, source: source, analyzer: analyzer, now: time.Now}
}

// SetSinks attaches optional trace and event outputs for published
// analyses. Call before Run.
func (l *Loop) SetSinks(trace Tracer, events EventSink) {
	l.trace = trace
	l.events = events
}

// Latest returns the most recent published analysis, or nil before the
// first cycle completes. The returned value is never mutated after
// publication.
func (l *Loop) Latest() *Analysis {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest
}

// Run cycles until the context ends. A failed cycle backs off for a
// minute and continues; the loop itself only stops with the context.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().
		Str("symbol", l.cfg.Symbol).
		Dur("interval", l.cfg.Interval).
		Msg("Reasoning loop started")

	for {
		if err := l.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Reasoning cycle failed")
			metrics.RecordError("cycle", "reasoning")
			if err := sleep(ctx, errorBackoff); err != nil {
				return err
			}
			continue
		}
		if err := sleep(ctx, l.cfg.Interval); err != nil {
			return err
		}
	}
}

// Cycle runs one fetch-analyze-publish pass
func (l *Loop) Cycle(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	series, err := l.source.FetchOHLCV(fetchCtx, l.cfg.Symbol, l.cfg.Timeframe, l.cfg.CandleLimit)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to fetch candles: %w", err)
	}

	rm := l.analyzer.Analyze(series.Candles)
	analysis := l.analyze(series.Candles, rm)

	l.mu.Lock()
	l.latest = analysis
	l.mu.Unlock()

	metrics.RecordAnalysis(analysis.Signal, analysis.Confidence, string(analysis.Regime))
	log.Info().
		Str("signal", analysis.Signal).
		Float64("confidence", analysis.Confidence).
		Str("regime", string(analysis.Regime)).
		Str("reasoning", analysis.Reasoning).
		Bool("evolution_suggested", analysis.EvolutionSuggestion != nil).
		Msg("Analysis published")

	l.publish(ctx, analysis)
	return nil
}

// publish forwards the analysis to the optional trace and event sinks.
// Sink failures never fail the cycle.
func (l *Loop) publish(ctx context.Context, a *Analysis) {
	if l.trace != nil {
		response := fmt.Sprintf(`Analysis Result:
- Signal: %s
- Confidence: %.1f%%
- Regime: %s

<thought>
Analyzing market conditions in %s regime.
Current price action suggests %s with confidence %.1f%%.
Reasoning: %s
</thought>

Final Decision: %s`,
			a.Signal, a.Confidence*100, a.Regime,
			a.Regime, a.Signal, a.Confidence*100, a.Reasoning, a.Signal)

		metadata := map[string]interface{}{
			"signal":     a.Signal,
			"confidence": a.Confidence,
			"regime":     string(a.Regime),
		}
		if err := l.trace.Record("reasoning_loop", "", response, metadata); err != nil {
			log.Warn().Err(err).Msg("Failed to record reasoning trace")
		}
	}

	if l.events != nil {
		if err := l.events.Publish(ctx, "analysis", "reasoning_loop", a); err != nil {
			log.Warn().Err(err).Msg("Failed to publish analysis event")
		}
	}
}

// analyze runs the signal heuristic over the candle window
func (l *Loop) analyze(candles []market.Candle, rm *regime.Metrics) *Analysis {
	now := l.now().UTC()
	if len(candles) < 2 {
		return &Analysis{
			Timestamp:  now,
			Symbol:     l.cfg.Symbol,
			Signal:     strategy.ActionHold,
			Confidence: 0,
			Reasoning:  "Insufficient data for analysis",
			Regime:     rm.Regime,
		}
	}

	window := candles
	if len(window) > analysisWindow {
		window = window[len(window)-analysisWindow:]
	}
	closes := make([]float64, len(window))
	volumes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	current := closes[len(closes)-1]
	prev := closes[len(closes)-2]
	change := 0.0
	if prev > 0 {
		change = (current - prev) / prev
	}

	shortStart := len(closes) - 5
	if shortStart < 0 {
		shortStart = 0
	}
	smaShort := mean(closes[shortStart:])
	smaLong := mean(closes)

	avgVolume := mean(volumes)
	spike := volumes[len(volumes)-1] > avgVolume*volumeSpikeRatio

	signal := strategy.ActionHold
	confidence := 0.5
	var reasons []string

	switch {
	case current > smaLong && current > smaShort:
		if change > 0.01 && spike {
			signal, confidence = strategy.ActionBuy, 0.75
			reasons = append(reasons, "Strong uptrend with volume confirmation")
		} else if change > 0.005 {
			signal, confidence = strategy.ActionBuy, 0.65
			reasons = append(reasons, "Moderate uptrend detected")
		}
	case current < smaLong && current < smaShort:
		if change < -0.01 && spike {
			signal, confidence = strategy.ActionSell, 0.75
			reasons = append(reasons, "Strong downtrend with volume confirmation")
		} else if change < -0.005 {
			signal, confidence = strategy.ActionSell, 0.65
			reasons = append(reasons, "Moderate downtrend detected")
		}
	default:
		reasons = append(reasons, "Mixed signals, maintaining current position")
	}

	confidence, reasons = regimeAdjust(signal, confidence, rm, reasons)

	var suggestion *EvolutionSuggestion
	if confidence < suggestionThreshold {
		suggestion = &EvolutionSuggestion{
			Reason:     "Low confidence in current logic",
			Suggestion: "Consider adding RSI and MACD indicators for better signal quality",
		}
	}

	return &Analysis{
		Timestamp:  now,
		Symbol:     l.cfg.Symbol,
		Signal:     signal,
		Confidence: confidence,
		Reasoning:  strings.Join(reasons, " | "),
		Regime:     rm.Regime,
		Metrics: AnalysisMetrics{
			CurrentPrice: current,
			PriceChange:  change,
			SMAShort:     smaShort,
			SMALong:      smaLong,
			VolumeSpike:  spike,
			ADX:          rm.ADX,
			RSI:          rm.RSI,
		},
		EvolutionSuggestion: suggestion,
	}
}

// regimeAdjust biases confidence toward trend-aligned signals and away
// from counter-trend or choppy-range ones, then clamps to the bounds.
func regimeAdjust(signal string, confidence float64, rm *regime.Metrics, reasons []string) (float64, []string) {
	if rm != nil && !rm.InsufficientData && signal != strategy.ActionHold {
		switch rm.Regime {
		case regime.TrendingUp, regime.TrendingDown:
			aligned := (rm.Regime == regime.TrendingUp && signal == strategy.ActionBuy) ||
				(rm.Regime == regime.TrendingDown && signal == strategy.ActionSell)
			if aligned {
				confidence += alignedBonus
				reasons = append(reasons, fmt.Sprintf("%s regime supports the signal", rm.Regime))
			} else {
				confidence -= counterPenalty
				reasons = append(reasons, fmt.Sprintf("Signal runs against the %s regime", rm.Regime))
			}
		case regime.RangeVolatile:
			confidence -= counterPenalty
			reasons = append(reasons, "Choppy range reduces conviction")
		}
	}
	if confidence < minConfidence {
		confidence = minConfidence
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	return confidence, reasons
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
