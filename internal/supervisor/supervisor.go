// Package supervisor runs the control plane. It fans every component
// loop out under a single cancellation signal and owns the cycles that
// tie the components together: the trading loop that turns the shared
// analysis into sized signals, the shadow driver, the predator cycle
// that records psychology predictions, the evolution gate, and the
// periodic status report.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/AbhayRathi/AlphaWEEX/internal/adversary"
	"github.com/AbhayRathi/AlphaWEEX/internal/architect"
	"github.com/AbhayRathi/AlphaWEEX/internal/explorer"
	"github.com/AbhayRathi/AlphaWEEX/internal/guardrails"
	"github.com/AbhayRathi/AlphaWEEX/internal/ledger"
	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/reasoning"
	"github.com/AbhayRathi/AlphaWEEX/internal/regime"
	"github.com/AbhayRathi/AlphaWEEX/internal/shadow"
	"github.com/AbhayRathi/AlphaWEEX/internal/state"
	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

const (
	defaultTradingInterval  = time.Minute
	defaultPredatorInterval = 15 * time.Minute
	defaultStatusInterval   = 5 * time.Minute
	defaultGateInterval     = time.Minute
	defaultCandleLimit      = 100
	defaultShutdownGrace    = 5 * time.Second
)

// AnalysisLoop is the reasoning loop: the sole writer of the shared
// analysis every other cycle reads.
type AnalysisLoop interface {
	Run(ctx context.Context) error
	Latest() *reasoning.Analysis
}

// MarketSource provides candles and the account balance for the
// supervisor's own cycles
type MarketSource interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error)
	FetchBalance(ctx context.Context) (*market.AccountBalance, error)
}

// StrategySource yields the active compiled strategy and its hot-swap
// version counter
type StrategySource interface {
	Active() (*strategy.Program, uint64)
	Version() uint64
}

// GuardrailControl is the slice of the guardrails the trading loop
// drives: equity updates in, kill-switch and status out.
type GuardrailControl interface {
	UpdateEquity(newEquity float64)
	IsKillSwitchActive() bool
	Status() guardrails.Status
}

// StateSource reads the shared market posture
type StateSource interface {
	Snapshot() state.Snapshot
}

// EvolutionEngine is the architect. Evolve runs the full gate protocol
// internally; the supervisor only hands over the analysis and reacts.
type EvolutionEngine interface {
	Evolve(ctx context.Context, analysis *reasoning.Analysis) (bool, error)
	AdjustedSize(base float64) float64
	History() []architect.EvolutionEvent
}

// PsychAnalyst classifies the market's behavioral archetype
type PsychAnalyst interface {
	Analyze(ctx context.Context, data adversary.MarketData, sentiment, narrative string) *adversary.Analysis
}

// PredictionLedger records archetype predictions for later audit
type PredictionLedger interface {
	Record(ctx context.Context, p *ledger.Prediction) (int64, error)
}

// ShadowEngine runs the paired live/shadow simulation
type ShadowEngine interface {
	Simulate(signal string, price, volatility float64) shadow.Result
}

// HypothesisEngine is the strategy explorer; its Run needs a regime
// callback because it outlives any single analysis.
type HypothesisEngine interface {
	Run(ctx context.Context, current func() regime.Regime) error
	Latest() *explorer.Hypothesis
}

// Runner is any component loop the supervisor only starts and stops
type Runner interface {
	Run(ctx context.Context) error
}

// EventPublisher posts observability events to the process bus
type EventPublisher interface {
	Publish(ctx context.Context, eventType, source string, payload interface{}) error
}

// APIServer is the operator HTTP surface
type APIServer interface {
	Start() error
	Stop(ctx context.Context) error
}

// Components wires the running parts of the system into the
// supervisor. Reasoning, Market, Strategy, Guards and Shared are
// required. Every other field may be nil: a nil Runner is simply not
// started, a nil Shadow disables the shadow driver, a nil Architect
// disables the evolution gate, and the predator cycle needs both
// Adversary and Ledger.
type Components struct {
	Reasoning AnalysisLoop
	Market    MarketSource
	Strategy  StrategySource
	Guards    GuardrailControl
	Shared    StateSource

	Oracle    Runner
	Sentiment Runner
	Narrative Runner
	Auditor   Runner
	Mutator   Runner
	Explorer  HypothesisEngine

	Architect EvolutionEngine
	Adversary PsychAnalyst
	Ledger    PredictionLedger
	Shadow    ShadowEngine

	Events EventPublisher
	API    APIServer
}

// Supervisor owns the process lifecycle after startup
type Supervisor struct {
	cfg  Config
	comp Components

	shadowCh chan shadowTick

	mu       sync.Mutex
	killSeen bool

	now func() time.Time
}

// Config sets the supervisor's own loop cadences. Component loops
// carry their own intervals; these only govern the cycles the
// supervisor runs itself.
type Config struct {
	Symbol    string
	Timeframe string

	TradingInterval  time.Duration
	PredatorInterval time.Duration
	StatusInterval   time.Duration
	GateInterval     time.Duration

	CandleLimit int

	// KillSwitchThreshold mirrors the guardrails' drawdown limit, as a
	// fraction, so alerts can state it. Enforcement lives in the
	// guardrails.
	KillSwitchThreshold float64

	ShutdownGrace time.Duration
}

// New validates the required components and applies cadence defaults
func New(cfg Config, comp Components) (*Supervisor, error) {
	if comp.Reasoning == nil {
		return nil, errors.New("supervisor requires a reasoning loop")
	}
	if comp.Market == nil {
		return nil, errors.New("supervisor requires a market source")
	}
	if comp.Strategy == nil {
		return nil, errors.New("supervisor requires a strategy source")
	}
	if comp.Guards == nil {
		return nil, errors.New("supervisor requires guardrails")
	}
	if comp.Shared == nil {
		return nil, errors.New("supervisor requires shared state")
	}

	if cfg.Symbol == "" {
		cfg.Symbol = "BTC/USDT"
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = "15m"
	}
	if cfg.TradingInterval <= 0 {
		cfg.TradingInterval = defaultTradingInterval
	}
	if cfg.PredatorInterval <= 0 {
		cfg.PredatorInterval = defaultPredatorInterval
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	if cfg.GateInterval <= 0 {
		cfg.GateInterval = defaultGateInterval
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = defaultCandleLimit
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}

	return &Supervisor{
		cfg:      cfg,
		comp:     comp,
		shadowCh: make(chan shadowTick, 1),
		now:      time.Now,
	}, nil
}

// Run starts every wired loop and blocks until the context is
// cancelled or a loop fails. All loops share one cancellation signal:
// the first hard failure tears the whole group down.
func (s *Supervisor) Run(ctx context.Context) error {
	log.Info().
		Str("symbol", s.cfg.Symbol).
		Str("timeframe", s.cfg.Timeframe).
		Dur("trading_interval", s.cfg.TradingInterval).
		Msg("Supervisor starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.comp.Reasoning.Run(ctx) })
	s.goRunner(g, ctx, s.comp.Oracle)
	s.goRunner(g, ctx, s.comp.Sentiment)
	s.goRunner(g, ctx, s.comp.Narrative)
	s.goRunner(g, ctx, s.comp.Auditor)
	s.goRunner(g, ctx, s.comp.Mutator)

	if s.comp.Explorer != nil {
		g.Go(func() error { return s.comp.Explorer.Run(ctx, s.currentRegime) })
	}

	if s.comp.API != nil {
		g.Go(func() error {
			if err := s.comp.API.Start(); err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
			defer cancel()
			return s.comp.API.Stop(shutCtx)
		})
	}

	g.Go(func() error { return s.tradingLoop(ctx) })
	g.Go(func() error { return s.statusLoop(ctx) })
	if s.comp.Shadow != nil {
		g.Go(func() error { return s.shadowLoop(ctx) })
	}
	if s.comp.Architect != nil {
		g.Go(func() error { return s.evolutionLoop(ctx) })
	}
	if s.comp.Adversary != nil && s.comp.Ledger != nil {
		g.Go(func() error { return s.predatorLoop(ctx) })
	}

	err := g.Wait()
	log.Info().Msg("Supervisor stopped")
	return err
}

func (s *Supervisor) goRunner(g *errgroup.Group, ctx context.Context, r Runner) {
	if r == nil {
		return
	}
	g.Go(func() error { return r.Run(ctx) })
}

// currentRegime feeds the explorer the regime of the latest analysis,
// which may not exist yet at startup.
func (s *Supervisor) currentRegime() regime.Regime {
	if a := s.comp.Reasoning.Latest(); a != nil {
		return a.Regime
	}
	return regime.Regime("UNKNOWN")
}

func (s *Supervisor) publish(ctx context.Context, eventType string, payload interface{}) {
	if s.comp.Events == nil {
		return
	}
	if err := s.comp.Events.Publish(ctx, eventType, "supervisor", payload); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("Event publish failed")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
