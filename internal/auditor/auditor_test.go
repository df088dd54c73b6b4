package auditor

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/AbhayRathi/AlphaWEEX/internal/ledger"
	"github.com/AbhayRathi/AlphaWEEX/internal/market"
)

type stubSpot struct {
	price     float64
	err       error
	empty     bool
	symbol    string
	timeframe string
	limit     int
}

func (s *stubSpot) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error) {
	s.symbol = symbol
	s.timeframe = timeframe
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	series := &market.Series{Symbol: symbol, Timeframe: timeframe, Source: market.SourceLive}
	if !s.empty {
		series.Candles = []market.Candle{{Close: s.price, Open: s.price, High: s.price, Low: s.price}}
	}
	return series, nil
}

func prediction(signal, outcome string, confidence, price float64) *ledger.Prediction {
	return &ledger.Prediction{
		PredictedBias:     "Bullish Extension",
		PredictedOutcome:  outcome,
		Confidence:        confidence,
		MarketRegime:      "TRENDING_UP",
		Archetype:         "FOMO_CHASER",
		Signal:            signal,
		PriceAtPrediction: price,
	}
}

// backdate rewrites every prediction timestamp so age-gated queries see
// the rows as hours old
func backdate(t *testing.T, path string, age time.Duration) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	old := time.Now().UTC().Add(-age).Format("2006-01-02T15:04:05.000000Z07:00")
	_, err = db.Exec("UPDATE predictions SET timestamp = ?", old)
	require.NoError(t, err)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		signal     string
		outcome    string
		confidence float64
		predicted  float64
		actual     float64
		want       float64
	}{
		{"buy moderate gain", "BUY", "Bullish Extension", 1.0, 100, 102.5, 0.5},
		{"buy capped gain", "BUY", "Bullish Extension", 1.0, 100, 110, 1.0},
		{"buy capped loss", "BUY", "Bullish Extension", 1.0, 100, 90, -1.0},
		{"sell moderate drop", "SELL", "Bearish Continuation", 1.0, 100, 97.5, 0.5},
		{"sell capped wrong way", "SELL", "Bearish Continuation", 1.0, 100, 110, -1.0},
		{"hold scores zero", "HOLD", "Range Continuation", 1.0, 100, 110, 0},
		{"reversal floor on sell", "SELL", "Bull Trap / Reversal", 0.8, 95000, 92000, 0.64},
		{"reversal needs one percent", "SELL", "Bull Trap / Reversal", 1.0, 100, 99.5, 0.1},
		{"trap floor on buy", "BUY", "Bear Trap", 1.0, 100, 102, 0.8},
		{"mean reversion floor", "BUY", "Mean Reversion", 1.0, 100, 100.5, 0.7},
		{"direction beats mean reversion floor", "BUY", "Mean Reversion", 1.0, 100, 104, 0.8},
		{"reversal branch wins over mean reversion", "SELL", "Mean Reversion after Reversal", 1.0, 100, 99.5, 0.1},
		{"confidence weighting rounds", "BUY", "Bullish Extension", 0.9, 100, 101.234, 0.222},
		{"false positive goes negative", "BUY", "Mean Reversion", 0.9, 85000, 82000, -0.635},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prediction(tt.signal, tt.outcome, tt.confidence, tt.predicted)
			assert.InDelta(t, tt.want, Score(p, tt.actual), 1e-9)
		})
	}
}

func TestRunCycle_AuditsAllHorizons(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := ledger.Open(path)
	require.NoError(t, err)
	defer l.Close()
	ctx := context.Background()

	sellID, err := l.Record(ctx, prediction("SELL", "Bull Trap / Reversal", 0.8, 95000))
	require.NoError(t, err)
	holdID, err := l.Record(ctx, prediction("HOLD", "Range Continuation", 0.7, 95000))
	require.NoError(t, err)
	backdate(t, path, 13*time.Hour)

	source := &stubSpot{price: 92000}
	a := New(Config{Symbol: "BTC/USDT"}, l, source)

	report, err := a.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 92000.0, report.SpotPrice)
	assert.Equal(t, 2, report.Scored["1h"])
	assert.Equal(t, 2, report.Scored["4h"])
	assert.Equal(t, 2, report.Scored["12h"])
	assert.Equal(t, 2, report.Completed)
	assert.Equal(t, "BTC/USDT", source.symbol)
	assert.Equal(t, "1m", source.timeframe)
	assert.Equal(t, 1, source.limit)

	sell, err := l.Get(ctx, sellID)
	require.NoError(t, err)
	assert.True(t, sell.Audited)
	for _, tf := range ledger.Timeframes {
		score := sell.Score(tf)
		require.NotNil(t, score, tf)
		assert.InDelta(t, 0.64, *score, 1e-9, tf)
	}
	require.NotNil(t, sell.ActualPrice1h)
	assert.Equal(t, 92000.0, *sell.ActualPrice1h)

	hold, err := l.Get(ctx, holdID)
	require.NoError(t, err)
	assert.True(t, hold.Audited)
	require.NotNil(t, hold.SuccessScore12h)
	assert.Zero(t, *hold.SuccessScore12h)

	assert.False(t, a.LastCycle().IsZero())
}

func TestRunCycle_RespectsHorizonAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := ledger.Open(path)
	require.NoError(t, err)
	defer l.Close()
	ctx := context.Background()

	id, err := l.Record(ctx, prediction("BUY", "Bullish Extension", 1.0, 100))
	require.NoError(t, err)
	backdate(t, path, 2*time.Hour)

	a := New(Config{Symbol: "BTC/USDT"}, l, &stubSpot{price: 102.5})

	report, err := a.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scored["1h"])
	assert.Equal(t, 0, report.Scored["4h"])
	assert.Equal(t, 0, report.Scored["12h"])
	assert.Equal(t, 0, report.Completed)

	p, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, p.Audited)
	require.NotNil(t, p.SuccessScore1h)
	assert.InDelta(t, 0.5, *p.SuccessScore1h, 1e-9)
	assert.Nil(t, p.SuccessScore4h)
	assert.Nil(t, p.SuccessScore12h)
}

func TestRunCycle_SpotFetchFails(t *testing.T) {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer l.Close()

	a := New(Config{Symbol: "BTC/USDT"}, l, &stubSpot{err: errors.New("exchange unavailable")})

	_, err = a.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch spot price")
}

func TestRunCycle_EmptyCandles(t *testing.T) {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer l.Close()

	a := New(Config{Symbol: "BTC/USDT"}, l, &stubSpot{empty: true})

	_, err = a.RunCycle(context.Background())
	require.Error(t, err)
}

func TestRun_StopsWithContext(t *testing.T) {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer l.Close()

	a := New(Config{Symbol: "BTC/USDT"}, l, &stubSpot{price: 100})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = a.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
