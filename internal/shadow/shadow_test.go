package shadow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

func TestNew_Defaults(t *testing.T) {
	e := New(Config{})
	assert.Equal(t, defaultIterations, e.cfg.Iterations)
	assert.InDelta(t, defaultSharpeThreshold, e.cfg.SharpeThreshold, 1e-9)
	assert.InDelta(t, math.Sqrt(252*96), e.annualize, 1e-9)

	assert.Equal(t, 1.0, e.live.Leverage)
	assert.Equal(t, 1.0, e.live.RiskFactor)
	assert.Equal(t, 2.0, e.shadowArm.Leverage)
	assert.Equal(t, 1.5, e.shadowArm.RiskFactor)
}

func TestSimulate_HoldEarnsNothing(t *testing.T) {
	e := New(Config{Seed: 42})
	result := e.Simulate(strategy.ActionHold, 90000, 0.02)
	assert.Zero(t, result.LivePnL)
	assert.Zero(t, result.ShadowPnL)
}

func TestSimulate_UnknownSignalEarnsNothing(t *testing.T) {
	e := New(Config{Seed: 42})
	result := e.Simulate("REBALANCE", 90000, 0.02)
	assert.Zero(t, result.LivePnL)
	assert.Zero(t, result.ShadowPnL)
}

func TestSimulate_ZeroPriceEarnsNothing(t *testing.T) {
	e := New(Config{Seed: 42})
	result := e.Simulate(strategy.ActionBuy, 0, 0.02)
	assert.Zero(t, result.LivePnL)
	assert.Zero(t, result.ShadowPnL)
}

func TestSimulate_Deterministic(t *testing.T) {
	a := New(Config{Seed: 7})
	b := New(Config{Seed: 7})

	for i := 0; i < 20; i++ {
		ra := a.Simulate(strategy.ActionBuy, 90000, 0.02)
		rb := b.Simulate(strategy.ActionBuy, 90000, 0.02)
		assert.Equal(t, ra.LivePnL, rb.LivePnL)
		assert.Equal(t, ra.ShadowPnL, rb.ShadowPnL)
		assert.Equal(t, ra.LiveSharpe, rb.LiveSharpe)
		assert.Equal(t, ra.ShadowSharpe, rb.ShadowSharpe)
	}
}

func TestSimulate_DirectionalBias(t *testing.T) {
	const trades = 2000

	e := New(Config{Seed: 42})
	liveSum, shadowSum := 0.0, 0.0
	for i := 0; i < trades; i++ {
		r := e.Simulate(strategy.ActionBuy, 90000, 0.02)
		liveSum += r.LivePnL
		shadowSum += r.ShadowPnL
	}
	liveMean := liveSum / trades
	shadowMean := shadowSum / trades

	// Expected live edge is +0.3*0.02*1000 = 6 per trade; the shadow arm
	// triples the volatility-leverage product for an expected +18.
	assert.Greater(t, liveMean, 1.0)
	assert.Greater(t, shadowMean, liveMean+5.0)

	down := New(Config{Seed: 42})
	sellSum := 0.0
	for i := 0; i < trades; i++ {
		sellSum += down.Simulate(strategy.ActionSell, 90000, 0.02).LivePnL
	}
	assert.Less(t, sellSum/trades, -1.0)
}

func TestSimulate_LowercaseSignal(t *testing.T) {
	a := New(Config{Seed: 9})
	b := New(Config{Seed: 9})
	ra := a.Simulate("buy", 90000, 0.02)
	rb := b.Simulate(strategy.ActionBuy, 90000, 0.02)
	assert.Equal(t, rb.LivePnL, ra.LivePnL)
}

func TestRollingSharpe(t *testing.T) {
	e := New(Config{})

	t.Run("too few returns", func(t *testing.T) {
		assert.Zero(t, e.rollingSharpe(nil))
		assert.Zero(t, e.rollingSharpe([]float64{1.5}))
	})

	t.Run("zero variance", func(t *testing.T) {
		assert.Zero(t, e.rollingSharpe([]float64{2, 2, 2, 2}))
	})

	t.Run("annualized mean over sample stdev", func(t *testing.T) {
		got := e.rollingSharpe([]float64{1, 3})
		want := 2.0 / math.Sqrt(2.0) * math.Sqrt(252*96)
		assert.InDelta(t, want, got, 1e-9)
	})

	t.Run("window drops old returns", func(t *testing.T) {
		roi := make([]float64, 0, 35)
		for i := 0; i < 5; i++ {
			roi = append(roi, 100)
		}
		for i := 0; i < 30; i++ {
			roi = append(roi, 1)
		}
		// The last 30 entries are constant, so the spikes outside the
		// window must not contribute variance.
		assert.Zero(t, e.rollingSharpe(roi))
	})
}

func TestCheckPromotion(t *testing.T) {
	tests := []struct {
		name         string
		liveSharpe   float64
		shadowSharpe float64
		want         bool
	}{
		{"shadow beats live above threshold", 1.0, 2.0, true},
		{"shadow below live", 2.0, 1.5, false},
		{"shadow equal to live", 2.0, 2.0, false},
		{"shadow beats live but under threshold", 0.5, 1.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(Config{Iterations: 5, Seed: 1})
			e.shadowArm.tradeCount = 5
			e.shadowArm.winCount = 3
			e.live.tradeCount = 5

			alert := e.checkPromotion(tt.liveSharpe, tt.shadowSharpe)
			if !tt.want {
				assert.Nil(t, alert)
				assert.Equal(t, 5, e.shadowArm.tradeCount)
				return
			}

			require.NotNil(t, alert)
			assert.Equal(t, 5, alert.Iterations)
			assert.InDelta(t, tt.shadowSharpe, alert.ShadowSharpe, 1e-9)
			assert.InDelta(t, tt.liveSharpe, alert.LiveSharpe, 1e-9)
			assert.Contains(t, alert.Message, "outperforms live")

			// Counters restart for the next evaluation window.
			assert.Zero(t, e.shadowArm.tradeCount)
			assert.Zero(t, e.shadowArm.winCount)
			assert.Zero(t, e.live.tradeCount)
			assert.Len(t, e.alerts, 1)
		})
	}
}

func TestSimulate_NoPromotionBeforeWindowFills(t *testing.T) {
	e := New(Config{Iterations: 10, Seed: 3})
	for i := 0; i < 9; i++ {
		result := e.Simulate(strategy.ActionBuy, 90000, 0.02)
		assert.Nil(t, result.Promotion)
	}
	assert.Empty(t, e.Alerts())
}

func TestSummary(t *testing.T) {
	e := New(Config{Iterations: 100, Seed: 5})
	for i := 0; i < 10; i++ {
		e.Simulate(strategy.ActionBuy, 90000, 0.02)
	}

	s := e.Summary()
	assert.Equal(t, 10, s.Shadow.TradeCount)
	assert.Equal(t, 10, s.Live.TradeCount)
	assert.Equal(t, 10, s.TotalIterations)
	assert.Equal(t, 90, s.ToPromotion)
	assert.Equal(t, 0, s.PromotionCount)
	assert.Nil(t, s.LatestAlert)
	assert.GreaterOrEqual(t, s.Shadow.WinRate, 0.0)
	assert.LessOrEqual(t, s.Shadow.WinRate, 1.0)
	assert.Len(t, s.Shadow.RecentROI, 10)
	assert.InDelta(t, s.Shadow.AvgSharpe-s.Live.AvgSharpe, s.SharpeDiff, 1e-9)
}

func TestResetShadow(t *testing.T) {
	e := New(Config{Seed: 11})
	for i := 0; i < 5; i++ {
		e.Simulate(strategy.ActionBuy, 90000, 0.02)
	}

	e.ResetShadow(3.0, 2.0)

	s := e.Summary()
	assert.Equal(t, "Shadow-HighRisk-v1", s.Shadow.Name)
	assert.Equal(t, 3.0, s.Shadow.Leverage)
	assert.Equal(t, 2.0, s.Shadow.RiskFactor)
	assert.Zero(t, s.Shadow.TradeCount)
	assert.Empty(t, s.Shadow.RecentROI)
	assert.Equal(t, 5, s.Live.TradeCount)
}

func TestTail(t *testing.T) {
	assert.Equal(t, []float64{3, 4, 5}, tail([]float64{1, 2, 3, 4, 5}, 3))
	assert.Equal(t, []float64{1, 2}, tail([]float64{1, 2}, 10))
	assert.Empty(t, tail(nil, 10))
}
