package architect

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbhayRathi/AlphaWEEX/internal/backtest"
	"github.com/AbhayRathi/AlphaWEEX/internal/guardrails"
	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/memory"
	"github.com/AbhayRathi/AlphaWEEX/internal/reasoning"
	"github.com/AbhayRathi/AlphaWEEX/internal/redteam"
	"github.com/AbhayRathi/AlphaWEEX/internal/regime"
	"github.com/AbhayRathi/AlphaWEEX/internal/state"
	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

type stubCandles struct {
	candles []market.Candle
	err     error
	calls   int
}

func (s *stubCandles) FetchOHLCV(_ context.Context, symbol, timeframe string, _ int) (*market.Series, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &market.Series{
		Symbol:    symbol,
		Timeframe: timeframe,
		Candles:   s.candles,
		Source:    market.SourceStatic,
	}, nil
}

type stubStore struct {
	source   []byte
	path     string
	writeErr error
	writes   int
}

func (s *stubStore) ActiveDocument() (*strategy.Document, error) {
	return strategy.DefaultDocument(), nil
}

func (s *stubStore) ReadSource() ([]byte, error) { return s.source, nil }

func (s *stubStore) Write([]byte) error {
	s.writes++
	return s.writeErr
}

func (s *stubStore) Path() string { return s.path }

// flatCandles produce no crossover and no trades, so the backtest gate
// sees a zero Sharpe ratio and zero drawdown.
func flatCandles(n int, price float64) []market.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    100,
		}
	}
	return out
}

// lenientGate accepts any backtest outcome, including a zero-trade run
func lenientGate() backtest.Config {
	return backtest.Config{InitialCapital: 10000, MinSharpeDeploy: -1, MaxDrawdownDeploy: 1.0}
}

func lowConfAnalysis(r regime.Regime) *reasoning.Analysis {
	return &reasoning.Analysis{
		Timestamp:  time.Now().UTC(),
		Symbol:     "BTC/USDT",
		Signal:     "HOLD",
		Confidence: 0.5,
		Reasoning:  "Mixed signals, maintaining current position",
		Regime:     r,
		EvolutionSuggestion: &reasoning.EvolutionSuggestion{
			Reason:     "Low confidence in current logic",
			Suggestion: "Consider adding RSI and MACD indicators for better signal quality",
		},
	}
}

type rig struct {
	arch   *Architect
	store  *strategy.Store
	guards *guardrails.Guardrails
	mem    *memory.EvolutionMemory
	shared *state.SharedState
	feed   *stubCandles
}

func newRig(t *testing.T, btCfg backtest.Config, feed *stubCandles) *rig {
	t.Helper()
	dir := t.TempDir()
	store, err := strategy.NewStore(filepath.Join(dir, "strategy.json"))
	require.NoError(t, err)

	guards := guardrails.New(10000, 0.03, 12)
	mem := memory.NewEvolutionMemory(filepath.Join(dir, "memory.json"))
	shared := state.New()
	arch := New(Config{Symbol: "BTC/USDT"}, Deps{
		Store:   store,
		Guards:  guards,
		Screen:  redteam.New(redteam.DefaultConfig()),
		Gate:    backtest.New(btCfg),
		Memory:  mem,
		Shared:  shared,
		Candles: feed,
	})
	return &rig{arch: arch, store: store, guards: guards, mem: mem, shared: shared, feed: feed}
}

func TestAdjustedSize(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *state.SharedState)
		want  float64
	}{
		{"neutral posture", func(*state.SharedState) {}, 100},
		{"high risk with panicked sentiment", func(s *state.SharedState) {
			s.SetRisk(state.RiskHigh, map[string]interface{}{"source": "oracle"})
			s.SetSentiment(0.5, map[string]interface{}{"classification": "Panicked"})
		}, 25},
		{"whale dump only", func(s *state.SharedState) {
			s.SetWhaleDump(true)
		}, 70},
		{"all factors stacked", func(s *state.SharedState) {
			s.SetRisk(state.RiskHigh, nil)
			s.SetSentiment(0.5, nil)
			s.SetWhaleDump(true)
		}, 17.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shared := state.New()
			tt.setup(shared)
			arch := New(Config{}, Deps{Shared: shared})
			assert.InDelta(t, tt.want, arch.AdjustedSize(100), 1e-9)
		})
	}
}

func TestPropose_NoSuggestion(t *testing.T) {
	r := newRig(t, lenientGate(), &stubCandles{})

	source, err := r.arch.Propose(nil)
	require.NoError(t, err)
	assert.Nil(t, source)

	analysis := lowConfAnalysis(regime.TrendingUp)
	analysis.EvolutionSuggestion = nil
	source, err = r.arch.Propose(analysis)
	require.NoError(t, err)
	assert.Nil(t, source)
}

func TestPropose_Candidate(t *testing.T) {
	r := newRig(t, lenientGate(), &stubCandles{})

	source, err := r.arch.Propose(lowConfAnalysis(regime.TrendingUp))
	require.NoError(t, err)
	require.NotEmpty(t, source)

	doc, err := strategy.Parse(source)
	require.NoError(t, err)
	assert.Equal(t, "rsi-confirmed-crossover", doc.Metadata.Name)
	assert.Equal(t, "architect", doc.Metadata.Source)
	assert.Equal(t, "1.1.0", doc.Metadata.Version)

	require.Len(t, doc.Signal.Rules, 2)
	buy := doc.Signal.Rules[0]
	require.Len(t, buy.When, 3)
	assert.Equal(t, "rsi", buy.When[2].Left)
	assert.Equal(t, "lt", buy.When[2].Op)
	require.NotNil(t, buy.When[2].Value)
	assert.Equal(t, 70.0, *buy.When[2].Value)
	assert.Equal(t, 0.70, buy.Confidence)

	sell := doc.Signal.Rules[1]
	require.NotNil(t, sell.When[2].Value)
	assert.Equal(t, 30.0, *sell.When[2].Value)

	// risk controls carry over from the active document
	assert.Equal(t, 0.05, doc.Risk.StopLossPct)
	assert.Equal(t, 0.5, doc.Risk.MaxPositionPct)

	_, err = doc.Compile()
	require.NoError(t, err)
}

func TestPropose_VolatileRegimeTightensBounds(t *testing.T) {
	r := newRig(t, lenientGate(), &stubCandles{})

	source, err := r.arch.Propose(lowConfAnalysis(regime.RangeVolatile))
	require.NoError(t, err)
	require.NotEmpty(t, source)

	doc, err := strategy.Parse(source)
	require.NoError(t, err)
	require.Len(t, doc.Signal.Rules, 2)
	assert.Equal(t, 60.0, *doc.Signal.Rules[0].When[2].Value)
	assert.Equal(t, 40.0, *doc.Signal.Rules[1].When[2].Value)
	assert.Equal(t, 0.65, doc.Signal.Rules[0].Confidence)
	assert.Equal(t, 0.65, doc.Signal.Rules[1].Confidence)
}

func TestPropose_BlacklistedParameters(t *testing.T) {
	dir := t.TempDir()
	memPath := filepath.Join(dir, "memory.json")
	seed := struct {
		Evolutions  []memory.EvolutionRecord `json:"evolutions"`
		Blacklisted []memory.BlacklistEntry  `json:"blacklisted_parameters"`
	}{
		Blacklisted: []memory.BlacklistEntry{{
			Parameters: memory.Parameters{
				"reason":     "Low confidence in current logic",
				"suggestion": "Consider adding RSI and MACD indicators for better signal quality",
				"regime":     "TRENDING_UP",
			},
			PnL:       -42.5,
			Timestamp: time.Now().UTC(),
			Reason:    "Negative PnL (-42.50) over 2-hour window",
		}},
	}
	data, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(memPath, data, 0600))

	store, err := strategy.NewStore(filepath.Join(dir, "strategy.json"))
	require.NoError(t, err)
	arch := New(Config{}, Deps{
		Store:  store,
		Memory: memory.NewEvolutionMemory(memPath),
		Shared: state.New(),
	})

	source, err := arch.Propose(lowConfAnalysis(regime.TrendingUp))
	require.NoError(t, err)
	assert.Nil(t, source, "blacklisted parameters must not produce a proposal")

	// the same suggestion under another regime is a different parameter set
	source, err = arch.Propose(lowConfAnalysis(regime.RangeQuiet))
	require.NoError(t, err)
	assert.NotEmpty(t, source)
}

func TestEvolve_StabilityLock(t *testing.T) {
	r := newRig(t, lenientGate(), &stubCandles{candles: flatCandles(60, 100)})
	r.guards.MarkEvolution()

	ok, err := r.arch.Evolve(context.Background(), lowConfAnalysis(regime.TrendingUp))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, r.store.Version())
	assert.Zero(t, r.feed.calls)
}

func TestEvolve_KillSwitch(t *testing.T) {
	r := newRig(t, lenientGate(), &stubCandles{candles: flatCandles(60, 100)})
	r.guards.UpdateEquity(10000)
	r.guards.UpdateEquity(9000)
	require.True(t, r.guards.IsKillSwitchActive())

	ok, err := r.arch.Evolve(context.Background(), lowConfAnalysis(regime.TrendingUp))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, r.store.Version())
	assert.Zero(t, r.feed.calls)
}

func TestEvolve_NoSuggestion(t *testing.T) {
	r := newRig(t, lenientGate(), &stubCandles{candles: flatCandles(60, 100)})

	analysis := lowConfAnalysis(regime.TrendingUp)
	analysis.EvolutionSuggestion = nil
	ok, err := r.arch.Evolve(context.Background(), analysis)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, r.store.Version())
}

func TestEvolve_BacktestGateRejects(t *testing.T) {
	r := newRig(t, backtest.DefaultConfig(), &stubCandles{candles: flatCandles(60, 100)})
	before, err := r.store.ReadSource()
	require.NoError(t, err)

	ok, err := r.arch.Evolve(context.Background(), lowConfAnalysis(regime.TrendingUp))
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := r.store.ReadSource()
	require.NoError(t, err)
	assert.Equal(t, before, after, "declined evolution must leave the active document untouched")

	_, statErr := os.Stat(r.store.Path() + backupSuffix)
	assert.True(t, os.IsNotExist(statErr), "no backup before the install step")
	assert.Equal(t, 1, r.feed.calls)
	assert.Equal(t, 0, r.mem.EvolutionCount())
	assert.True(t, r.guards.CanEvolve())
}

func TestEvolve_CandleFetchFailsClosed(t *testing.T) {
	r := newRig(t, lenientGate(), &stubCandles{err: errors.New("exchange unreachable")})

	ok, err := r.arch.Evolve(context.Background(), lowConfAnalysis(regime.TrendingUp))
	assert.False(t, ok)
	require.Error(t, err)
	assert.EqualValues(t, 1, r.store.Version())
}

func TestEvolve_HaltsWhenRestoreFails(t *testing.T) {
	previous, err := strategy.DefaultDocument().Source()
	require.NoError(t, err)
	store := &stubStore{
		source:   previous,
		path:     filepath.Join(t.TempDir(), "strategy.json"),
		writeErr: errors.New("disk full"),
	}
	feed := &stubCandles{candles: flatCandles(60, 100)}
	arch := New(Config{Symbol: "BTC/USDT"}, Deps{
		Store:   store,
		Guards:  guardrails.New(10000, 0.03, 12),
		Screen:  redteam.New(redteam.DefaultConfig()),
		Gate:    backtest.New(lenientGate()),
		Memory:  memory.NewEvolutionMemory(filepath.Join(t.TempDir(), "memory.json")),
		Shared:  state.New(),
		Candles: feed,
	})

	ok, err := arch.Evolve(context.Background(), lowConfAnalysis(regime.TrendingUp))
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, 2, store.writes, "install attempt then restore attempt")
	assert.True(t, arch.Halted())

	// the latch refuses further rewrites before any gate runs
	ok, err = arch.Evolve(context.Background(), lowConfAnalysis(regime.TrendingUp))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, store.writes)
	assert.Equal(t, 1, feed.calls)
}

func TestEvolve_Commits(t *testing.T) {
	r := newRig(t, lenientGate(), &stubCandles{candles: flatCandles(60, 100)})
	before, err := r.store.ReadSource()
	require.NoError(t, err)

	ok, err := r.arch.Evolve(context.Background(), lowConfAnalysis(regime.TrendingUp))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.EqualValues(t, 2, r.store.Version())
	doc, err := r.store.ActiveDocument()
	require.NoError(t, err)
	assert.Equal(t, "rsi-confirmed-crossover", doc.Metadata.Name)
	assert.Equal(t, "architect", doc.Metadata.Source)

	backup, err := os.ReadFile(r.store.Path() + backupSuffix)
	require.NoError(t, err)
	assert.Equal(t, before, backup, "backup must hold the previous document")

	assert.Equal(t, 1, r.mem.EvolutionCount())
	assert.False(t, r.guards.CanEvolve(), "stability lock engages after an evolution")

	events := r.arch.History()
	require.Len(t, events, 1)
	assert.Equal(t, "1.1.0", events[0].Version)
	assert.Equal(t, 0, events[0].MemoryIndex)
	assert.Equal(t, string(regime.TrendingUp), events[0].Regime)

	// the lock blocks an immediate second rewrite
	ok, err = r.arch.Evolve(context.Background(), lowConfAnalysis(regime.TrendingUp))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 2, r.store.Version())
}
