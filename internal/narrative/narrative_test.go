package narrative

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

type stubInflow struct {
	inflow Inflow
	err    error
}

func (s *stubInflow) ObserveInflow(ctx context.Context) (Inflow, error) {
	if s.err != nil {
		return Inflow{}, s.err
	}
	return s.inflow, nil
}

func newTestPulse(t *testing.T, threshold float64) (*Pulse, *state.SharedState) {
	t.Helper()
	shared := state.New()
	pulse := New(Config{WhaleThresholdBTC: threshold}, &stubInflow{}, shared)
	pulse.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return pulse, shared
}

func TestCheckInflow_WhaleEventElevatesRisk(t *testing.T) {
	pulse, shared := newTestPulse(t, 1000)

	check := pulse.CheckInflow(Inflow{BTC: 1500, Source: "simulated"})

	assert.True(t, check.IsWhaleEvent)
	assert.True(t, check.WhaleDumpRisk)
	assert.True(t, shared.WhaleDump())
	assert.Equal(t, state.RiskHigh, shared.Risk())

	events := pulse.Events(0)
	require.Len(t, events, 1)
	assert.Equal(t, 1500.0, events[0].InflowBTC)
	assert.Equal(t, SeverityMedium, events[0].Severity)

	snap := shared.Snapshot()
	payload, ok := snap.RiskPayload["whale_event"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1500.0, payload["inflow_btc"])
	assert.Equal(t, SeverityMedium, payload["risk_level"])
}

func TestCheckInflow_Severity(t *testing.T) {
	tests := []struct {
		name     string
		inflow   float64
		severity string
	}{
		{"just above threshold", 1001, SeverityMedium},
		{"below double", 1999, SeverityMedium},
		{"exactly double stays medium", 2000, SeverityMedium},
		{"above double", 2500, SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pulse, _ := newTestPulse(t, 1000)
			pulse.CheckInflow(Inflow{BTC: tt.inflow, Source: "simulated"})

			events := pulse.Events(0)
			require.Len(t, events, 1)
			assert.Equal(t, tt.severity, events[0].Severity)
		})
	}
}

func TestCheckInflow_ExactThresholdIsCalm(t *testing.T) {
	pulse, shared := newTestPulse(t, 1000)

	check := pulse.CheckInflow(Inflow{BTC: 1000, Source: "simulated"})

	assert.False(t, check.IsWhaleEvent)
	assert.False(t, shared.WhaleDump())
	assert.Equal(t, state.RiskNormal, shared.Risk())
	assert.Empty(t, pulse.Events(0))
}

func TestCheckInflow_CalmClearsFlagButNotRisk(t *testing.T) {
	pulse, shared := newTestPulse(t, 1000)

	pulse.CheckInflow(Inflow{BTC: 1500, Source: "simulated"})
	require.True(t, shared.WhaleDump())
	require.Equal(t, state.RiskHigh, shared.Risk())

	check := pulse.CheckInflow(Inflow{BTC: 200, Source: "simulated"})

	assert.False(t, check.IsWhaleEvent)
	assert.False(t, check.WhaleDumpRisk)
	assert.False(t, shared.WhaleDump())
	assert.Equal(t, state.RiskHigh, shared.Risk(), "calm inflow must not demote risk")
}

func TestEvents_Limit(t *testing.T) {
	pulse, _ := newTestPulse(t, 1000)

	pulse.CheckInflow(Inflow{BTC: 1100, Source: "simulated"})
	pulse.CheckInflow(Inflow{BTC: 1200, Source: "simulated"})
	pulse.CheckInflow(Inflow{BTC: 1300, Source: "simulated"})

	all := pulse.Events(0)
	require.Len(t, all, 3)
	assert.Equal(t, 1100.0, all[0].InflowBTC)

	last := pulse.Events(2)
	require.Len(t, last, 2)
	assert.Equal(t, 1200.0, last[0].InflowBTC)
	assert.Equal(t, 1300.0, last[1].InflowBTC)
}

func TestSummary(t *testing.T) {
	pulse, _ := newTestPulse(t, 1000)

	pulse.CheckInflow(Inflow{BTC: 2500, Source: "simulated"})
	pulse.CheckInflow(Inflow{BTC: 100, Source: "simulated"})

	summary := pulse.Summary()
	assert.False(t, summary.WhaleDumpRisk)
	assert.Equal(t, 1000.0, summary.Threshold)
	assert.Equal(t, 1, summary.TotalEvents)
	require.Len(t, summary.RecentEvents, 1)
	assert.Equal(t, SeverityHigh, summary.RecentEvents[0].Severity)
}

type stubFeed struct {
	series    *market.Series
	err       error
	symbol    string
	timeframe string
	limit     int
}

func (s *stubFeed) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error) {
	s.symbol = symbol
	s.timeframe = timeframe
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.series, nil
}

func TestVolumeInflow(t *testing.T) {
	candles := make([]market.Candle, 4)
	for i := range candles {
		candles[i] = market.Candle{Volume: 250000}
	}
	feed := &stubFeed{series: &market.Series{
		Symbol:    "BTC/USDT",
		Timeframe: "15m",
		Candles:   candles,
		Source:    market.SourceLive,
	}}
	source := &VolumeInflow{Feed: feed, Symbol: "BTC/USDT"}

	inflow, err := source.ObserveInflow(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 1000.0, inflow.BTC, 1e-9)
	assert.Equal(t, "simulated", inflow.Source)
	assert.Equal(t, "BTC/USDT", feed.symbol)
	assert.Equal(t, "15m", feed.timeframe)
	assert.Equal(t, 96, feed.limit)
}

func TestVolumeInflow_FetchError(t *testing.T) {
	feed := &stubFeed{err: errors.New("exchange unavailable")}
	source := &VolumeInflow{Feed: feed, Symbol: "BTC/USDT"}

	_, err := source.ObserveInflow(context.Background())
	require.Error(t, err)
}

func TestRun_StopsWithContext(t *testing.T) {
	shared := state.New()
	pulse := New(Config{WhaleThresholdBTC: 1000}, &stubInflow{inflow: Inflow{BTC: 100, Source: "simulated"}}, shared)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pulse.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
