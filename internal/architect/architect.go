// Package architect implements the evolution engine. When the reasoning
// loop reports low confidence it proposes a rewritten decision document,
// pushes the candidate through the adversarial screen, the code audit and
// the backtest gate, and only then swaps it into the active slot with a
// backup of the previous version.
package architect

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/backtest"
	"github.com/AbhayRathi/AlphaWEEX/internal/guardrails"
	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/memory"
	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
	"github.com/AbhayRathi/AlphaWEEX/internal/reasoning"
	"github.com/AbhayRathi/AlphaWEEX/internal/redteam"
	"github.com/AbhayRathi/AlphaWEEX/internal/regime"
	"github.com/AbhayRathi/AlphaWEEX/internal/state"
	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

const (
	defaultTimeframe   = "15m"
	defaultCandleLimit = 200
	backupSuffix       = ".backup"

	// RSI bounds for the evolved crossover rules. Choppy markets get
	// tighter bounds and a lower rule confidence.
	rsiUpperDefault = 70.0
	rsiLowerDefault = 30.0
	rsiUpperChoppy  = 60.0
	rsiLowerChoppy  = 40.0
	ruleConfDefault = 0.70
	ruleConfChoppy  = 0.65
)

// CandleSource provides recent market history for the deployment gate
type CandleSource interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error)
}

// DocumentStore holds the active decision document the architect rewrites
type DocumentStore interface {
	ActiveDocument() (*strategy.Document, error)
	ReadSource() ([]byte, error)
	Write(source []byte) error
	Path() string
}

// Config sets the market window the deployment gate replays
type Config struct {
	Symbol      string
	Timeframe   string
	CandleLimit int
}

// Deps wires the architect's collaborators. All of them are required;
// the candle source is typically the market adapter.
type Deps struct {
	Store   DocumentStore
	Guards  *guardrails.Guardrails
	Screen  *redteam.Screen
	Gate    *backtest.Backtester
	Memory  *memory.EvolutionMemory
	Shared  *state.SharedState
	Candles CandleSource
}

// EvolutionEvent is one committed rewrite of the active document
type EvolutionEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Reason      string    `json:"reason"`
	Suggestion  string    `json:"suggestion"`
	Regime      string    `json:"regime"`
	Version     string    `json:"version"`
	MemoryIndex int       `json:"memory_index"`
}

// Architect proposes, gates and installs decision documents
type Architect struct {
	cfg     Config
	store   DocumentStore
	guards  *guardrails.Guardrails
	screen  *redteam.Screen
	gate    *backtest.Backtester
	memory  *memory.EvolutionMemory
	shared  *state.SharedState
	candles CandleSource

	mu      sync.Mutex
	history []EvolutionEvent
	halted  bool

	now func() time.Time
}

// New creates an architect over the given collaborators
func New(cfg Config, deps Deps) *Architect {
	if cfg.Timeframe == "" {
		cfg.Timeframe = defaultTimeframe
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = defaultCandleLimit
	}
	return &Architect{
		cfg:     cfg,
		store:   deps.Store,
		guards:  deps.Guards,
		screen:  deps.Screen,
		gate:    deps.Gate,
		memory:  deps.Memory,
		shared:  deps.Shared,
		candles: deps.Candles,
		now:     time.Now,
	}
}

// Propose turns an analysis into a candidate document source. It returns
// nil source when the analysis carries no evolution suggestion or the
// suggested parameters are blacklisted.
func (a *Architect) Propose(analysis *reasoning.Analysis) ([]byte, error) {
	if analysis == nil || analysis.EvolutionSuggestion == nil {
		return nil, nil
	}
	params := evolutionParams(analysis)
	if blocked, why := a.memory.IsBlacklisted(params); blocked {
		log.Warn().Str("reason", why).Msg("Proposal blocked by evolution blacklist")
		metrics.RecordGateRejection("blacklist")
		return nil, nil
	}
	current, err := a.store.ActiveDocument()
	if err != nil {
		return nil, fmt.Errorf("failed to read active document: %w", err)
	}
	candidate := a.buildCandidate(current, analysis)
	source, err := candidate.Source()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize candidate: %w", err)
	}
	return source, nil
}

// Evolve runs the full gated rewrite of the active decision document.
// The bool reports whether a new document was committed; an error means
// an operational failure rather than a gate decline. Gates run in a
// fixed order and every decline leaves the active document untouched.
// Once the halt latch is set no further rewrites are attempted.
func (a *Architect) Evolve(ctx context.Context, analysis *reasoning.Analysis) (bool, error) {
	if a.Halted() {
		metrics.RecordGateRejection("halted")
		return false, nil
	}
	if !a.guards.CanEvolve() {
		metrics.RecordGateRejection("stability_lock")
		return false, nil
	}
	if a.guards.IsKillSwitchActive() {
		log.Warn().Msg("Evolution blocked: kill switch is active")
		metrics.RecordGateRejection("kill_switch")
		return false, nil
	}

	source, err := a.Propose(analysis)
	if err != nil {
		metrics.RecordError("propose", "architect")
		return false, err
	}
	if len(source) == 0 {
		return false, nil
	}
	suggestion := analysis.EvolutionSuggestion

	position := fmt.Sprintf("%s: %s", suggestion.Reason, suggestion.Suggestion)
	debate := a.screen.DebateProtocol(source, position)
	if debate.Verdict != redteam.VerdictApproved {
		log.Warn().Strs("challenges", debate.Challenges).Msg("Evolution rejected by adversarial debate")
		metrics.RecordGateRejection("adversarial_screen")
		return false, nil
	}

	if err := guardrails.AuditDocument(source); err != nil {
		log.Warn().Err(err).Msg("Evolution rejected by code audit")
		metrics.RecordGateRejection("code_audit")
		return false, nil
	}

	candidate, err := strategy.Parse(source)
	if err != nil {
		return false, fmt.Errorf("failed to parse candidate: %w", err)
	}
	candles, err := a.deploymentCandles(ctx)
	if err != nil {
		metrics.RecordError("candles", "architect")
		return false, fmt.Errorf("failed to fetch candles for deployment gate: %w", err)
	}
	ok, verdict := a.gate.ValidateForDeployment(candidate, candles)
	if !ok {
		log.Warn().Str("verdict", verdict).Msg("Evolution rejected by backtest gate")
		metrics.RecordGateRejection("backtest")
		return false, nil
	}

	previous, err := a.store.ReadSource()
	if err != nil {
		return false, fmt.Errorf("failed to read active document for backup: %w", err)
	}
	backupPath := a.store.Path() + backupSuffix
	if err := os.WriteFile(backupPath, previous, 0600); err != nil {
		return false, fmt.Errorf("failed to write backup: %w", err)
	}
	if err := a.store.Write(source); err != nil {
		if restoreErr := a.store.Write(previous); restoreErr != nil {
			log.Error().Err(restoreErr).Str("backup", backupPath).
				Msg("CRITICAL: failed to restore previous decision document, manual recovery required")
			a.mu.Lock()
			a.halted = true
			a.mu.Unlock()
		}
		metrics.RecordEvolutionOutcome("failed")
		return false, fmt.Errorf("failed to install candidate: %w", err)
	}

	a.guards.MarkEvolution()
	params := evolutionParams(analysis)
	index, err := a.memory.RecordEvolution(params, suggestion.Reason, suggestion.Suggestion, a.guards.CurrentEquity())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to record evolution in memory")
		index = -1
	}
	a.mu.Lock()
	a.history = append(a.history, EvolutionEvent{
		Timestamp:   a.now().UTC(),
		Reason:      suggestion.Reason,
		Suggestion:  suggestion.Suggestion,
		Regime:      string(analysis.Regime),
		Version:     candidate.Metadata.Version,
		MemoryIndex: index,
	})
	a.mu.Unlock()

	metrics.RecordEvolutionOutcome("committed")
	log.Info().
		Str("version", candidate.Metadata.Version).
		Str("regime", string(analysis.Regime)).
		Str("suggestion", suggestion.Suggestion).
		Msg("Evolution committed, new decision document deployed")
	return true, nil
}

// AdjustedSize scales a base position size by the shared risk posture.
// All factors come from one snapshot so a concurrent update cannot mix
// postures.
func (a *Architect) AdjustedSize(base float64) float64 {
	snap := a.shared.Snapshot()
	size := base * snap.SentimentMultiplier
	if snap.RiskLevel == state.RiskHigh {
		size *= 0.5
	}
	if snap.WhaleDumpRisk {
		size *= 0.7
	}
	return size
}

// History returns a copy of the committed evolution events
func (a *Architect) History() []EvolutionEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]EvolutionEvent, len(a.history))
	copy(out, a.history)
	return out
}

// Halted reports whether rewrites are permanently disabled. The latch
// sets when an install fails and the previous document cannot be
// restored, leaving the active slot in an unknown state.
func (a *Architect) Halted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halted
}

func (a *Architect) deploymentCandles(ctx context.Context) ([]market.Candle, error) {
	if a.candles == nil {
		return nil, fmt.Errorf("no candle source configured")
	}
	series, err := a.candles.FetchOHLCV(ctx, a.cfg.Symbol, a.cfg.Timeframe, a.cfg.CandleLimit)
	if err != nil {
		return nil, err
	}
	return series.Candles, nil
}

// buildCandidate rewrites the crossover with an RSI confirmation leg.
// Overbought and oversold zones fall through to the hold default, and
// risk controls carry over from the current document.
func (a *Architect) buildCandidate(current *strategy.Document, analysis *reasoning.Analysis) *strategy.Document {
	upper, lower, conf := rsiUpperDefault, rsiLowerDefault, ruleConfDefault
	if analysis.Regime == regime.RangeVolatile {
		upper, lower, conf = rsiUpperChoppy, rsiLowerChoppy, ruleConfChoppy
	}
	return &strategy.Document{
		Metadata: strategy.Metadata{
			SchemaVersion: strategy.SchemaVersion,
			ID:            uuid.New().String(),
			Name:          "rsi-confirmed-crossover",
			Version:       bumpMinor(current.Metadata.Version),
			Description:   fmt.Sprintf("Evolved for %s: %s", analysis.Regime, analysis.EvolutionSuggestion.Suggestion),
			CreatedAt:     a.now().UTC(),
			Source:        "architect",
		},
		Indicators: []strategy.IndicatorSpec{
			{Name: "sma_5", Type: "sma", Period: 5},
			{Name: "sma_20", Type: "sma", Period: 20},
			{Name: "rsi", Type: "rsi", Period: 14},
			{Name: "current_price", Type: "current_price"},
			{Name: "avg_volume", Type: "avg_volume"},
			{Name: "current_volume", Type: "current_volume"},
		},
		Signal: strategy.SignalSpec{
			BaseConfidence: 0.5,
			HoldReason:     "Crossover without RSI confirmation",
			Rules: []strategy.Rule{
				{
					When: []strategy.Condition{
						{Left: "sma_5", Op: "gt", Right: "sma_20"},
						{Left: "current_price", Op: "gt", Right: "sma_5"},
						{Left: "rsi", Op: "lt", Value: f64(upper)},
					},
					Action:     strategy.ActionBuy,
					Confidence: conf,
					Reason:     "Uptrend with RSI confirmation (not overbought)",
				},
				{
					When: []strategy.Condition{
						{Left: "sma_5", Op: "lt", Right: "sma_20"},
						{Left: "current_price", Op: "lt", Right: "sma_5"},
						{Left: "rsi", Op: "gt", Value: f64(lower)},
					},
					Action:     strategy.ActionSell,
					Confidence: conf,
					Reason:     "Downtrend with RSI confirmation (not oversold)",
				},
			},
		},
		Risk: current.Risk,
	}
}

func evolutionParams(analysis *reasoning.Analysis) memory.Parameters {
	return memory.Parameters{
		"reason":     analysis.EvolutionSuggestion.Reason,
		"suggestion": analysis.EvolutionSuggestion.Suggestion,
		"regime":     string(analysis.Regime),
	}
}

func bumpMinor(version string) string {
	v, err := semver.NewVersion(version)
	if err != nil {
		return "1.1.0"
	}
	next := v.IncMinor()
	return next.String()
}

func f64(v float64) *float64 { return &v }
