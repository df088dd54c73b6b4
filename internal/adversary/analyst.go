// Package adversary hosts the behavioral analysis agent and the prompt
// mutation engine that rewrites its instructions from audited failures.
// The analyst reads market psychology (FOMO chasers, panic sellers,
// liquidity hunts) through an LLM when one is reachable and through a
// deterministic heuristic otherwise.
package adversary

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/llm"
	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
	"github.com/AbhayRathi/AlphaWEEX/internal/regime"
	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

// Trader archetypes
const (
	ArchetypeFOMOChaser  = "FOMO_CHASER"
	ArchetypePanicSeller = "PANIC_SELLER"
	ArchetypeNeutral     = "NEUTRAL"
	ArchetypeUnknown     = "UNKNOWN"
)

// Analysis modes
const (
	ModeAPI       = "API"
	ModeHeuristic = "HEURISTIC"
	ModeShadow    = "SHADOW"
)

const (
	defaultShadowPrice = 90000.0
	analysisTimeout    = 10 * time.Second

	// Consecutive API failures before the analyst latches into shadow
	// mode permanently
	maxConsecutiveErrors = 3

	neutralConfidence   = 0.6
	vulnerabilityWeight = 0.2

	maxReasoningChars = 500
)

// Reasoner is the slice of the LLM client the behavioral agents use
type Reasoner interface {
	Complete(ctx context.Context, system, user string, opts *llm.CallOptions) (*llm.Completion, error)
}

// MarketData is the technical snapshot the analyst reads
type MarketData struct {
	Price          float64   `json:"price"`
	RSI            float64   `json:"rsi"`
	Volume         float64   `json:"volume"`
	PriceChangePct float64   `json:"price_change_pct"`
	Volatility     float64   `json:"volatility,omitempty"`
	RecentLows     []float64 `json:"recent_lows,omitempty"`
}

// Analysis is one behavioral read of the market
type Analysis struct {
	Timestamp          time.Time     `json:"timestamp"`
	DetectedArchetype  string        `json:"detected_archetype"`
	VulnerabilityScore float64       `json:"vulnerability_score"`
	PredictedBias      string        `json:"predicted_bias"`
	PredictedOutcome   string        `json:"predicted_outcome"`
	Confidence         float64       `json:"confidence"`
	Reasoning          string        `json:"reasoning"`
	Signal             string        `json:"signal"`
	LiquidityZones     []float64     `json:"liquidity_zones"`
	MarketRegime       regime.Regime `json:"market_regime"`
	Mode               string        `json:"mode"`
	ResponseTime       float64       `json:"response_time"`
	ShadowMode         bool          `json:"shadow_mode,omitempty"`
	SyntheticPrice     float64       `json:"synthetic_price,omitempty"`
}

// AnalystConfig configures the behavioral analyst
type AnalystConfig struct {
	ForceShadow bool
	ShadowPrice float64

	// Timeout bounds one analysis call; zero selects the 10s default
	Timeout time.Duration
}

// AnalystStatus reports the analyst's standing mode for status surfaces
type AnalystStatus struct {
	ShadowMode        bool `json:"shadow_mode"`
	ConsecutiveErrors int  `json:"consecutive_errors"`
}

// Analyst detects psychological vulnerabilities in market behavior
type Analyst struct {
	cfg     AnalystConfig
	client  Reasoner
	prompts *PromptStore

	mu          sync.Mutex
	shadowMode  bool
	errorCount  int
	lastErrorAt time.Time

	now func() time.Time
}

// NewAnalyst creates a behavioral analyst. A nil client starts it in
// shadow mode.
func NewAnalyst(cfg AnalystConfig, client Reasoner, prompts *PromptStore) *Analyst {
	if cfg.ShadowPrice <= 0 {
		cfg.ShadowPrice = defaultShadowPrice
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = analysisTimeout
	}
	shadow := cfg.ForceShadow || client == nil

	log.Info().
		Bool("shadow_mode", shadow).
		Float64("shadow_price", cfg.ShadowPrice).
		Msg("Behavioral analyst initialized")
	return &Analyst{cfg: cfg, client: client, prompts: prompts, shadowMode: shadow, now: time.Now}
}

// Analyze identifies which trader archetype the market is punishing.
// API mode asks the LLM; a regional block or three consecutive errors
// latch shadow mode permanently, a single transient error falls back to
// the heuristic for this call only.
func (a *Analyst) Analyze(ctx context.Context, data MarketData, sentiment, narrative string) *Analysis {
	start := a.now()

	a.mu.Lock()
	shadow := a.shadowMode
	a.mu.Unlock()

	if shadow {
		result := a.shadowAnalysis(data, sentiment)
		return a.finish(result, ModeShadow, start)
	}

	result, err := a.apiAnalysis(ctx, data, sentiment, narrative)
	if err == nil {
		a.mu.Lock()
		a.errorCount = 0
		a.mu.Unlock()
		return a.finish(result, ModeAPI, start)
	}

	a.mu.Lock()
	a.errorCount++
	a.lastErrorAt = a.now()
	latch := llm.IsRegionalBlock(err) || a.errorCount >= maxConsecutiveErrors
	if latch {
		a.shadowMode = true
	}
	errors := a.errorCount
	a.mu.Unlock()

	log.Warn().
		Err(err).
		Int("consecutive_errors", errors).
		Msg("AI analysis failed, falling back")

	if latch {
		log.Warn().Msg("Activating shadow mode after API errors")
		result := a.shadowAnalysis(data, sentiment)
		return a.finish(result, ModeShadow, start)
	}

	result = a.heuristicAnalysis(data, sentiment)
	return a.finish(result, ModeHeuristic, start)
}

// Status reports mode and error standing
func (a *Analyst) Status() AnalystStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AnalystStatus{ShadowMode: a.shadowMode, ConsecutiveErrors: a.errorCount}
}

func (a *Analyst) finish(result *Analysis, mode string, start time.Time) *Analysis {
	result.Mode = mode
	result.ResponseTime = a.now().Sub(start).Seconds()
	metrics.RecordAdversaryCall(mode)
	return result
}

func (a *Analyst) apiAnalysis(ctx context.Context, data MarketData, sentiment, narrative string) (*Analysis, error) {
	system := baseSystemPrompt
	if a.prompts != nil {
		if current, err := a.prompts.Current(); err == nil {
			system = current
		}
	}

	completion, err := a.client.Complete(ctx, system, buildAnalysisPrompt(data, sentiment, narrative),
		&llm.CallOptions{Timeout: a.cfg.Timeout, MaxTokens: 1000})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		DetectedArchetype  string  `json:"detected_archetype"`
		VulnerabilityScore float64 `json:"vulnerability_score"`
		PredictedBias      string  `json:"predicted_bias"`
		PredictedOutcome   string  `json:"predicted_outcome"`
		Confidence         float64 `json:"confidence"`
		Signal             string  `json:"signal"`
	}
	if err := llm.ParseJSONResponse(completion.Content, &parsed); err != nil {
		log.Warn().Err(err).Msg("Unparseable adversary response, using neutral result")
		parsed.DetectedArchetype = ArchetypeUnknown
		parsed.VulnerabilityScore = 0.5
		parsed.PredictedBias = "Neutral"
		parsed.PredictedOutcome = "Unknown"
		parsed.Confidence = 0.5
		parsed.Signal = strategy.ActionHold
	}
	if parsed.DetectedArchetype == "" {
		parsed.DetectedArchetype = ArchetypeUnknown
	}
	if parsed.Signal == "" {
		parsed.Signal = strategy.ActionHold
	}

	reasoning := completion.Content
	if len(reasoning) > maxReasoningChars {
		reasoning = reasoning[:maxReasoningChars]
	}

	return &Analysis{
		Timestamp:          a.now().UTC(),
		DetectedArchetype:  parsed.DetectedArchetype,
		VulnerabilityScore: parsed.VulnerabilityScore,
		PredictedBias:      parsed.PredictedBias,
		PredictedOutcome:   parsed.PredictedOutcome,
		Confidence:         parsed.Confidence,
		Reasoning:          reasoning,
		Signal:             parsed.Signal,
		LiquidityZones:     LiquidityZones(data.Price, data.RecentLows),
		MarketRegime:       classifyRegime(data),
	}, nil
}

// heuristicAnalysis is the offline classifier: overbought chases into
// extensions read as FOMO, oversold capitulation under fear reads as
// panic.
func (a *Analyst) heuristicAnalysis(data MarketData, sentiment string) *Analysis {
	archetype := ArchetypeNeutral
	vulnerability := 0.5
	bias := "Unknown"
	outcome := "Unknown"
	signal := strategy.ActionHold

	switch {
	case data.RSI > 75 && data.PriceChangePct > 3:
		archetype = ArchetypeFOMOChaser
		vulnerability = math.Min((data.RSI-70)/30, 1.0)
		bias = "Bullish Extension"
		outcome = "Bull Trap / Reversal"
		signal = strategy.ActionSell
	case data.RSI < 25 && strings.Contains(strings.ToLower(sentiment), "fear"):
		archetype = ArchetypePanicSeller
		vulnerability = (25 - data.RSI) / 25
		bias = "Bearish Capitulation"
		outcome = "Mean Reversion"
		signal = strategy.ActionBuy
	}

	confidence := neutralConfidence
	if archetype != ArchetypeNeutral {
		confidence = neutralConfidence + vulnerabilityWeight*vulnerability
	}

	return &Analysis{
		Timestamp:          a.now().UTC(),
		DetectedArchetype:  archetype,
		VulnerabilityScore: vulnerability,
		PredictedBias:      bias,
		PredictedOutcome:   outcome,
		Confidence:         confidence,
		Reasoning:          fmt.Sprintf("Heuristic analysis: RSI=%.1f, Price Change=%.1f%%", data.RSI, data.PriceChangePct),
		Signal:             signal,
		LiquidityZones:     LiquidityZones(data.Price, data.RecentLows),
		MarketRegime:       classifyRegime(data),
	}
}

// shadowAnalysis keeps the loop alive on a synthetic baseline when the
// LLM is unreachable. Zero-valued fields take the baseline.
func (a *Analyst) shadowAnalysis(data MarketData, sentiment string) *Analysis {
	merged := data
	if merged.Price == 0 {
		merged.Price = a.cfg.ShadowPrice
	}
	if merged.RSI == 0 {
		merged.RSI = 55.0
	}
	if merged.Volume == 0 {
		merged.Volume = 1000.0
	}
	if merged.PriceChangePct == 0 {
		merged.PriceChangePct = 0.5
	}

	result := a.heuristicAnalysis(merged, sentiment)
	result.ShadowMode = true
	result.SyntheticPrice = a.cfg.ShadowPrice

	log.Debug().Float64("synthetic_price", a.cfg.ShadowPrice).Msg("Shadow mode analysis")
	return result
}

// LiquidityZones lists price levels where stop clusters sit: fixed
// offsets below the current price plus half a percent under each recent
// swing low, deduplicated and sorted descending.
func LiquidityZones(price float64, recentLows []float64) []float64 {
	if price == 0 {
		return nil
	}

	zones := []float64{
		round2(price * 0.995),
		round2(price * 0.99),
		round2(price * 0.98),
	}
	for _, low := range recentLows {
		zone := round2(low * 0.995)
		if !containsFloat(zones, zone) {
			zones = append(zones, zone)
		}
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(zones)))
	return zones
}

func classifyRegime(data MarketData) regime.Regime {
	switch {
	case data.Volatility > 3:
		return regime.RangeVolatile
	case data.RSI > 60 && data.PriceChangePct > 1:
		return regime.TrendingUp
	case data.RSI < 40 && data.PriceChangePct < -1:
		return regime.TrendingDown
	default:
		return regime.RangeQuiet
	}
}

func buildAnalysisPrompt(data MarketData, sentiment, narrative string) string {
	if sentiment == "" {
		sentiment = "Unknown"
	}
	if narrative == "" {
		narrative = "No specific narrative"
	}

	return fmt.Sprintf(`Analyze this market situation for psychological vulnerabilities:

TECHNICAL DATA:
- Current Price: $%g
- RSI: %g
- Volume: %g
- Price Change: %g%%

SENTIMENT: %s
NARRATIVE: %s

TASK:
1. Identify which trader archetype is vulnerable:
   - FOMO Chaser (buying extensions after vertical moves)
   - Panic Seller (capitulating at support)
   - Revenge Trader (emotional overtrading)

2. Assess if this is "Rational" or "Emotional" price action

3. Predict whale manipulation zones (liquidity hunts)

4. Provide your reasoning step-by-step, then output:
   - detected_archetype
   - vulnerability_score (0-1)
   - predicted_bias
   - predicted_outcome
   - confidence (0-1)
   - signal (BUY/SELL/HOLD)

Output as JSON.`, data.Price, data.RSI, data.Volume, data.PriceChangePct, sentiment, narrative)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func containsFloat(values []float64, v float64) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
