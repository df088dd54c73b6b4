package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/state"
)

type stubEquities struct {
	bars map[string][]market.EquityBar
	err  error
}

func (s *stubEquities) FetchEquityBars(_ context.Context, ticker, _ string, _ int) (*market.EquitySeries, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &market.EquitySeries{Ticker: ticker, Bars: s.bars[ticker], Source: market.SourceLive}, nil
}

func hourlyBars(closes ...float64) []market.EquityBar {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	out := make([]market.EquityBar, len(closes))
	for i, c := range closes {
		out[i] = market.EquityBar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func benchmarks(spy, qqq []market.EquityBar) *stubEquities {
	return &stubEquities{bars: map[string][]market.EquityBar{"SPY": spy, "QQQ": qqq}}
}

func TestUpdateRisk_DropRaisesRisk(t *testing.T) {
	shared := state.New()
	o := New(Config{}, benchmarks(hourlyBars(100, 98.5), hourlyBars(100, 99)), shared)

	level, err := o.UpdateRisk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.RiskHigh, level)
	assert.Equal(t, state.RiskHigh, shared.Risk())

	snap := shared.Snapshot()
	spy, ok := snap.RiskPayload["spy"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, -1.5, spy["change_pct"].(float64), 1e-9)
}

func TestUpdateRisk_FlatStaysNormal(t *testing.T) {
	shared := state.New()
	o := New(Config{}, benchmarks(hourlyBars(100, 99.5), hourlyBars(100, 100.5)), shared)

	level, err := o.UpdateRisk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.RiskNormal, level)
	assert.Equal(t, state.RiskNormal, shared.Risk())
}

func TestUpdateRisk_ExactThresholdStaysNormal(t *testing.T) {
	shared := state.New()
	o := New(Config{}, benchmarks(hourlyBars(100, 99), hourlyBars(100, 100)), shared)

	level, err := o.UpdateRisk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.RiskNormal, level, "a move of exactly the threshold must not raise risk")
}

func TestUpdateRisk_RecoveryDemotes(t *testing.T) {
	shared := state.New()
	source := benchmarks(hourlyBars(100, 98), hourlyBars(100, 100))
	o := New(Config{}, source, shared)

	_, err := o.UpdateRisk(context.Background())
	require.NoError(t, err)
	require.Equal(t, state.RiskHigh, shared.Risk())

	source.bars["SPY"] = hourlyBars(98, 98.5)
	level, err := o.UpdateRisk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.RiskNormal, level)
	assert.Equal(t, state.RiskNormal, shared.Risk())
}

func TestUpdateRisk_FetchErrorFallsBack(t *testing.T) {
	shared := state.New()
	o := New(Config{}, &stubEquities{err: errors.New("api down")}, shared)

	level, err := o.UpdateRisk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.RiskNormal, level)

	snap := shared.Snapshot()
	assert.Equal(t, market.SourceFallback, snap.RiskPayload["source"])
}

func TestUpdateRisk_InsufficientBars(t *testing.T) {
	shared := state.New()
	o := New(Config{}, benchmarks(hourlyBars(100), hourlyBars(100, 100)), shared)

	level, err := o.UpdateRisk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.RiskNormal, level)
	assert.Equal(t, market.SourceFallback, shared.Snapshot().RiskPayload["source"])
}

func TestUpdateRisk_ConfiguredTickers(t *testing.T) {
	shared := state.New()
	source := &stubEquities{bars: map[string][]market.EquityBar{
		"VTI": hourlyBars(100, 98),
		"IWM": hourlyBars(100, 100),
	}}
	o := New(Config{Tickers: []string{"VTI", "IWM"}}, source, shared)

	level, err := o.UpdateRisk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.RiskHigh, level, "the first configured ticker drives the risk level")
}

func TestSummary(t *testing.T) {
	shared := state.New()
	o := New(Config{SpyThreshold: -0.02}, benchmarks(hourlyBars(100, 97), hourlyBars(100, 99)), shared)

	_, err := o.UpdateRisk(context.Background())
	require.NoError(t, err)

	s := o.Summary()
	assert.Equal(t, state.RiskHigh, s.RiskLevel)
	assert.InDelta(t, -3.0, s.Reading.Primary.ChangePct, 1e-9)
	assert.InDelta(t, -0.02, s.Threshold, 1e-9)
}

func TestRun_StopsWithContext(t *testing.T) {
	shared := state.New()
	o := New(Config{}, benchmarks(hourlyBars(100, 100), hourlyBars(100, 100)), shared)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
