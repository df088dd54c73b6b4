// Package sentiment turns the crowd fear/greed index and news headlines
// into the position-size multiplier the architect applies. Outages read
// as neutral so sizing never swings on missing data.
package sentiment

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/state"
)

// Sentiment labels
const (
	LabelEuphoric = "Euphoric"
	LabelNeutral  = "Neutral"
	LabelPanicked = "Panicked"
)

const (
	defaultInterval = time.Hour
	headlineCount   = 5
	skewStep        = 0.1

	fetchTimeout = 10 * time.Second
)

var (
	positiveKeywords = []string{"bullish", "growth", "gains", "surge", "rally", "positive", "integration"}
	negativeKeywords = []string{"crash", "plunge", "bearish", "decline", "losses", "fear", "volatility"}
)

// NewsSource provides the sentiment inputs
type NewsSource interface {
	FetchFearGreed(ctx context.Context) (*market.FearGreed, error)
	FetchHeadlines(ctx context.Context, n int) (*market.Headlines, error)
}

// Config sets the poll cadence
type Config struct {
	Interval time.Duration
}

// Assessment is one sentiment read
type Assessment struct {
	Sentiment      string  `json:"sentiment"`
	Multiplier     float64 `json:"multiplier"`
	Reasoning      string  `json:"reasoning"`
	FearGreedValue int     `json:"fear_greed_value"`
}

// Producer polls the index and headlines and writes the multiplier
type Producer struct {
	cfg    Config
	source NewsSource
	shared *state.SharedState
	now    func() time.Time
}

// New creates a sentiment producer
func New(cfg Config, source NewsSource, shared *state.SharedState) *Producer {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Producer{cfg: cfg, source: source, shared: shared, now: time.Now}
}

// Run polls until the context ends, starting with an immediate update
func (p *Producer) Run(ctx context.Context) error {
	log.Info().Dur("interval", p.cfg.Interval).Msg("Sentiment producer started")
	for {
		if _, err := p.Update(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.Interval):
		}
	}
}

// Update fetches the inputs, assesses them, and writes the multiplier
// to shared state. Any fetch trouble degrades to a neutral 1.0; only a
// context error is returned.
func (p *Producer) Update(ctx context.Context) (float64, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	fg, err := p.source.FetchFearGreed(fetchCtx)
	if err != nil {
		return p.neutralFallback(ctx, err)
	}
	headlines, err := p.source.FetchHeadlines(fetchCtx, headlineCount)
	if err != nil {
		return p.neutralFallback(ctx, err)
	}

	assessment := assess(fg.Value, headlines.Items)
	payload := map[string]interface{}{
		"sentiment":  assessment.Sentiment,
		"multiplier": assessment.Multiplier,
		"reasoning":  assessment.Reasoning,
		"fear_greed": map[string]interface{}{
			"value":          fg.Value,
			"classification": fg.Classification,
			"source":         fg.Source,
		},
		"headlines": headlines.Items,
		"timestamp": p.now().UTC().Format(time.RFC3339),
	}
	p.shared.SetSentiment(assessment.Multiplier, payload)

	log.Info().
		Str("sentiment", assessment.Sentiment).
		Float64("multiplier", assessment.Multiplier).
		Str("reasoning", assessment.Reasoning).
		Msg("Sentiment updated")
	return assessment.Multiplier, nil
}

func (p *Producer) neutralFallback(ctx context.Context, cause error) (float64, error) {
	if ctx.Err() != nil {
		return state.SentimentNeutral, ctx.Err()
	}
	log.Error().Err(cause).Msg("Sentiment inputs unavailable, defaulting to neutral")
	p.shared.SetSentiment(state.SentimentNeutral, map[string]interface{}{
		"sentiment":  LabelNeutral,
		"multiplier": state.SentimentNeutral,
		"reasoning":  fmt.Sprintf("Error fallback: %v", cause),
		"timestamp":  p.now().UTC().Format(time.RFC3339),
	})
	return state.SentimentNeutral, nil
}

// assess maps the index value through the classification table and
// skews the multiplier by headline keyword balance
func assess(fngValue int, headlines []string) Assessment {
	var (
		sentiment  string
		multiplier float64
		reasoning  string
	)
	switch {
	case fngValue >= 75:
		sentiment = LabelEuphoric
		multiplier = 0.6
		reasoning = fmt.Sprintf("Extreme Greed (FNG: %d) - reducing position sizes", fngValue)
	case fngValue >= 55:
		sentiment = LabelNeutral
		multiplier = 1.0
		reasoning = fmt.Sprintf("Greed (FNG: %d) - normal positioning", fngValue)
	case fngValue >= 45:
		sentiment = LabelNeutral
		multiplier = 1.0
		reasoning = fmt.Sprintf("Neutral (FNG: %d) - normal positioning", fngValue)
	case fngValue >= 25:
		sentiment = LabelNeutral
		multiplier = 0.9
		reasoning = fmt.Sprintf("Fear (FNG: %d) - slightly cautious", fngValue)
	default:
		sentiment = LabelPanicked
		multiplier = 0.7
		reasoning = fmt.Sprintf("Extreme Fear (FNG: %d) - reducing position sizes", fngValue)
	}

	text := strings.ToLower(strings.Join(headlines, " "))
	positive := countPresent(text, positiveKeywords)
	negative := countPresent(text, negativeKeywords)

	if positive > negative+1 {
		multiplier = math.Min(multiplier+skewStep, state.SentimentMax)
		reasoning += " | Positive news sentiment"
	} else if negative > positive+1 {
		multiplier = math.Max(multiplier-skewStep, state.SentimentMin)
		reasoning += " | Negative news sentiment"
	}

	return Assessment{
		Sentiment:      sentiment,
		Multiplier:     math.Round(multiplier*100) / 100,
		Reasoning:      reasoning,
		FearGreedValue: fngValue,
	}
}

// countPresent counts keywords that appear at least once
func countPresent(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}
