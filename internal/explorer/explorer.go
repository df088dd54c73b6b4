// Package explorer hosts the stochastic alpha explorer, a
// high-temperature creative agent that proposes novel trading
// hypotheses on a slow cadence while steering around parameter sets
// the evolution memory has already blacklisted.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/llm"
	"github.com/AbhayRathi/AlphaWEEX/internal/memory"
	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
	"github.com/AbhayRathi/AlphaWEEX/internal/regime"
)

// Hypothesis sources
const (
	SourceAPI      = "api"
	SourceFallback = "fallback"
)

const (
	defaultInterval     = 6 * time.Hour
	defaultTemperature  = 1.3
	defaultFailureCount = 5

	exploreTimeout     = 30 * time.Second
	fallbackConfidence = 0.65
)

const explorerSystemPrompt = `You are a creative quantitative strategist. Generate novel trading hypotheses that avoid previously failed approaches. Output as JSON with keys hypothesis, confidence, reasoning, suggested_indicators, implementation_hints.`

// Reasoner is the slice of the LLM client the explorer uses
type Reasoner interface {
	Complete(ctx context.Context, system, user string, opts *llm.CallOptions) (*llm.Completion, error)
}

// FailureMemory supplies recently blacklisted parameter sets
type FailureMemory interface {
	RecentBlacklisted(count int) []memory.BlacklistEntry
}

// Tracer receives a reasoning trace for each generated hypothesis
type Tracer interface {
	Record(source, prompt, response string, metadata map[string]interface{}) error
}

// Config tunes exploration cadence and creativity
type Config struct {
	Interval     time.Duration `mapstructure:"interval"`
	Temperature  float64       `mapstructure:"temperature"`
	FailureCount int           `mapstructure:"failure_count"`
}

// Hypothesis is one generated strategy idea
type Hypothesis struct {
	Timestamp           time.Time     `json:"timestamp"`
	Regime              regime.Regime `json:"regime"`
	Text                string        `json:"hypothesis"`
	Confidence          float64       `json:"confidence"`
	Reasoning           string        `json:"reasoning"`
	SuggestedIndicators []string      `json:"suggested_indicators"`
	ImplementationHints []string      `json:"implementation_hints"`
	Temperature         float64       `json:"temperature"`
	FailuresAnalyzed    int           `json:"failed_strategies_analyzed"`
	Source              string        `json:"source"`
}

// Explorer generates hypotheses on a fixed cadence
type Explorer struct {
	cfg    Config
	client Reasoner
	mem    FailureMemory
	trace  Tracer

	mu      sync.RWMutex
	latest  *Hypothesis
	history []Hypothesis

	now func() time.Time
}

// New builds an explorer. A nil client skips the LLM and serves the
// canned per-regime hypothesis on every cycle.
func New(cfg Config, client Reasoner, mem FailureMemory) *Explorer {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.FailureCount <= 0 {
		cfg.FailureCount = defaultFailureCount
	}
	return &Explorer{
		cfg:    cfg,
		client: client,
		mem:    mem,
		now:    time.Now,
	}
}

// SetTrace attaches a reasoning trace sink
func (e *Explorer) SetTrace(t Tracer) {
	e.trace = t
}

// Explore generates one hypothesis for the current regime. LLM failures
// and unparseable responses degrade to the canned fallback rather than
// failing the cycle; the Source field names which path produced the
// result. Only context errors are returned.
func (e *Explorer) Explore(ctx context.Context, current regime.Regime) (*Hypothesis, error) {
	var failures []memory.BlacklistEntry
	if e.mem != nil {
		failures = e.mem.RecentBlacklisted(e.cfg.FailureCount)
	}
	log.Info().
		Str("regime", string(current)).
		Int("failed_strategies", len(failures)).
		Msg("Starting stochastic exploration")

	h := &Hypothesis{
		Timestamp:        e.now().UTC(),
		Regime:           current,
		Temperature:      e.cfg.Temperature,
		FailuresAnalyzed: len(failures),
	}

	if e.client == nil {
		e.applyFallback(h)
	} else if err := e.generate(ctx, e.buildExplorationPrompt(current, failures), h); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Msg("Exploration request failed, serving fallback hypothesis")
		metrics.RecordError("llm", "explorer")
		e.applyFallback(h)
	}

	e.mu.Lock()
	e.latest = h
	e.history = append(e.history, *h)
	e.mu.Unlock()

	log.Info().
		Str("hypothesis", h.Text).
		Float64("confidence", h.Confidence).
		Str("source", h.Source).
		Msg("New alpha hypothesis generated")

	e.record(h)
	return h, nil
}

func (e *Explorer) generate(ctx context.Context, prompt string, h *Hypothesis) error {
	completion, err := e.client.Complete(ctx, explorerSystemPrompt, prompt, &llm.CallOptions{
		Temperature: e.cfg.Temperature,
		MaxTokens:   2000,
		Timeout:     exploreTimeout,
	})
	if err != nil {
		return err
	}

	var parsed struct {
		Hypothesis          string   `json:"hypothesis"`
		Confidence          float64  `json:"confidence"`
		Reasoning           string   `json:"reasoning"`
		SuggestedIndicators []string `json:"suggested_indicators"`
		ImplementationHints []string `json:"implementation_hints"`
	}
	if err := llm.ParseJSONResponse(completion.Content, &parsed); err != nil {
		return fmt.Errorf("unparseable hypothesis response: %w", err)
	}
	if parsed.Hypothesis == "" {
		return fmt.Errorf("hypothesis response has no hypothesis text")
	}

	h.Source = SourceAPI
	h.Text = parsed.Hypothesis
	h.Confidence = parsed.Confidence
	h.Reasoning = parsed.Reasoning
	h.SuggestedIndicators = parsed.SuggestedIndicators
	h.ImplementationHints = parsed.ImplementationHints
	return nil
}

// Canned hypotheses served when no LLM is reachable
var fallbackHypotheses = map[regime.Regime]string{
	regime.TrendingUp:    "Trading the gap between spot and futures funding rates during strong uptrends",
	regime.TrendingDown:  "Shorting high RSI divergences during downtrends with volume confirmation",
	regime.RangeVolatile: "Mean reversion scalping using Bollinger Band squeeze and expansion patterns",
	regime.RangeQuiet:    "Breakout anticipation using volume accumulation and order flow imbalance",
}

func (e *Explorer) applyFallback(h *Hypothesis) {
	text, ok := fallbackHypotheses[h.Regime]
	if !ok {
		text = "Adaptive momentum strategy using regime-specific parameter optimization"
	}
	h.Source = SourceFallback
	h.Text = text
	h.Confidence = fallbackConfidence
	h.Reasoning = fmt.Sprintf("Generated novel strategy idea for %s market regime using stochastic exploration", h.Regime)
	h.SuggestedIndicators = []string{
		"Funding rate differential",
		"Volume profile",
		"RSI divergence",
		"Order flow imbalance",
	}
	h.ImplementationHints = []string{
		"Monitor funding rate every 8 hours",
		"Compare spot price vs perpetual futures",
		"Look for funding rate > 0.1% as signal",
		"Use 4-hour timeframe for trend confirmation",
	}
}

func (e *Explorer) buildExplorationPrompt(current regime.Regime, failures []memory.BlacklistEntry) string {
	var b strings.Builder
	b.WriteString("# Stochastic Alpha Explorer - Creative Strategy Generation\n\n")
	b.WriteString("## Mission\n")
	b.WriteString("Generate a NOVEL trading signal hypothesis that has NOT been tried before.\n")
	b.WriteString("Use high creativity and explore unconventional ideas.\n\n")
	b.WriteString("## Current Market Context\n")
	fmt.Fprintf(&b, "- **Regime**: %s\n", current)
	fmt.Fprintf(&b, "- **Temperature**: %g (High creativity mode)\n\n", e.cfg.Temperature)
	b.WriteString(formatFailedStrategies(failures))
	b.WriteString("\n## Task\n")
	b.WriteString("Based on the failed strategies above and the current market regime, propose a completely NEW hypothesis for a trading signal. Think outside the box!\n\n")
	b.WriteString("Examples of creative hypotheses:\n")
	b.WriteString("1. Trading the gap between spot and futures funding rates\n")
	b.WriteString("2. Exploiting order book imbalance in the top 5 levels\n")
	b.WriteString("3. Following smart money flows via large transaction tracking\n")
	b.WriteString("4. Cross-exchange arbitrage opportunities\n")
	b.WriteString("5. Volatility regime switching strategies\n\n")
	b.WriteString("**Your Hypothesis:**\n")
	return b.String()
}

func formatFailedStrategies(failures []memory.BlacklistEntry) string {
	if len(failures) == 0 {
		return "**No failed strategies recorded yet.** This is a clean slate for exploration.\n"
	}
	var b strings.Builder
	b.WriteString("## Failed Strategies Analysis\n\n")
	fmt.Fprintf(&b, "The following %d strategies were tried and failed:\n\n", len(failures))
	for i, entry := range failures {
		params, err := json.MarshalIndent(entry.Parameters, "", "  ")
		if err != nil {
			params = []byte("{}")
		}
		fmt.Fprintf(&b, "### Strategy %d\n", i+1)
		fmt.Fprintf(&b, "- **Timestamp**: %s\n", entry.Timestamp.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "- **Reason**: %s\n", entry.Reason)
		fmt.Fprintf(&b, "- **PnL**: %.2f\n", entry.PnL)
		fmt.Fprintf(&b, "- **Parameters**: %s\n\n", params)
	}
	return b.String()
}

func (e *Explorer) record(h *Hypothesis) {
	if e.trace == nil {
		return
	}
	hints := make([]string, 0, len(h.ImplementationHints))
	for _, hint := range h.ImplementationHints {
		hints = append(hints, "- "+hint)
	}
	response := fmt.Sprintf(`<thought>
Exploring creative trading strategies for %s market conditions.
Analyzing %d failed strategies to avoid repeating mistakes.
Considering unconventional approaches and novel signal combinations.
</thought>

Hypothesis: %s
Confidence: %.1f%%

<thought>
This hypothesis leverages:
- %s

Implementation approach:
%s
</thought>`,
		h.Regime, h.FailuresAnalyzed,
		h.Text, h.Confidence*100,
		strings.Join(h.SuggestedIndicators, ", "),
		strings.Join(hints, "\n"))

	metadata := map[string]interface{}{
		"hypothesis":  h.Text,
		"confidence":  h.Confidence,
		"regime":      string(h.Regime),
		"temperature": h.Temperature,
	}
	prompt := fmt.Sprintf("Generate novel trading hypothesis for %s regime", h.Regime)
	if err := e.trace.Record("explorer", prompt, response, metadata); err != nil {
		log.Warn().Err(err).Msg("Failed to record exploration trace")
	}
}

// Latest returns the most recent hypothesis, or nil before the first
// exploration completes
func (e *Explorer) Latest() *Hypothesis {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.latest == nil {
		return nil
	}
	h := *e.latest
	return &h
}

// History returns all hypotheses generated so far, oldest first
func (e *Explorer) History() []Hypothesis {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Hypothesis, len(e.history))
	copy(out, e.history)
	return out
}

// Run explores immediately and then on every interval until the
// context ends. Degraded cycles serve the fallback inside Explore, so
// only context errors surface here.
func (e *Explorer) Run(ctx context.Context, current func() regime.Regime) error {
	log.Info().
		Dur("interval", e.cfg.Interval).
		Float64("temperature", e.cfg.Temperature).
		Msg("Stochastic alpha explorer started")

	for {
		if _, err := e.Explore(ctx, current()); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.Interval):
		}
	}
}
