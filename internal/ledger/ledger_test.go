package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *time.Time) {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	current := testBase
	l.now = func() time.Time { return current }
	return l, &current
}

func samplePrediction() *Prediction {
	return &Prediction{
		PredictedBias:     "Bullish Extension",
		PredictedOutcome:  "Bull Trap / Reversal",
		Confidence:        0.8,
		MarketRegime:      "TRENDING_UP",
		Archetype:         "FOMO_CHASER",
		Signal:            "SELL",
		PriceAtPrediction: 95000.0,
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Health(context.Background()))

	_, err = l.Record(context.Background(), samplePrediction())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	stats, err := reopened.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalPredictions)
}

func TestRecord_And_Get(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Record(ctx, samplePrediction())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	p, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Bullish Extension", p.PredictedBias)
	assert.Equal(t, "Bull Trap / Reversal", p.PredictedOutcome)
	assert.Equal(t, 0.8, p.Confidence)
	assert.Equal(t, "SELL", p.Signal)
	assert.Equal(t, 95000.0, p.PriceAtPrediction)
	assert.True(t, p.Timestamp.Equal(testBase))
	assert.False(t, p.Audited)
	assert.Nil(t, p.SuccessScore1h)
	assert.Nil(t, p.ActualPrice1h)
}

func TestGet_NotFound(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Get(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSetActualPriceAndScore(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Record(ctx, samplePrediction())
	require.NoError(t, err)

	require.NoError(t, l.SetActualPrice(ctx, id, 93000.0, "1h"))
	require.NoError(t, l.SetScore(ctx, id, "1h", 0.42))

	p, err := l.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p.ActualPrice1h)
	assert.Equal(t, 93000.0, *p.ActualPrice1h)
	require.NotNil(t, p.SuccessScore1h)
	assert.Equal(t, 0.42, *p.SuccessScore1h)
	assert.Nil(t, p.SuccessScore4h)
}

func TestTimeframeValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Record(ctx, samplePrediction())
	require.NoError(t, err)

	assert.Error(t, l.SetScore(ctx, id, "2h", 0.5))
	assert.Error(t, l.SetActualPrice(ctx, id, 100.0, "30m"))
	_, err = l.Unaudited(ctx, "1d", 24)
	assert.Error(t, err)
}

func TestUnaudited(t *testing.T) {
	l, current := newTestLedger(t)
	ctx := context.Background()

	oldID, err := l.Record(ctx, samplePrediction())
	require.NoError(t, err)

	*current = testBase.Add(50 * time.Minute)
	_, err = l.Record(ctx, samplePrediction())
	require.NoError(t, err)

	// 90 minutes in: only the first prediction is an hour old
	*current = testBase.Add(90 * time.Minute)
	due, err := l.Unaudited(ctx, "1h", 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, oldID, due[0].ID)

	// Scoring it removes it from the unaudited set
	require.NoError(t, l.SetScore(ctx, oldID, "1h", 0.3))
	due, err = l.Unaudited(ctx, "1h", 1)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkAudited_RequiresAllScores(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Record(ctx, samplePrediction())
	require.NoError(t, err)

	done, err := l.MarkAudited(ctx, id)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, l.SetScore(ctx, id, "1h", 0.5))
	require.NoError(t, l.SetScore(ctx, id, "4h", 0.2))
	done, err = l.MarkAudited(ctx, id)
	require.NoError(t, err)
	assert.False(t, done, "two of three scores must not audit")

	require.NoError(t, l.SetScore(ctx, id, "12h", -0.1))
	done, err = l.MarkAudited(ctx, id)
	require.NoError(t, err)
	assert.True(t, done)

	p, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, p.Audited)
}

func TestAuditRoundTrip(t *testing.T) {
	l, current := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Record(ctx, samplePrediction())
	require.NoError(t, err)

	*current = testBase.Add(13 * time.Hour)
	for _, tf := range Timeframes {
		due, err := l.Unaudited(ctx, tf, 1)
		require.NoError(t, err)
		require.Len(t, due, 1)
		require.NoError(t, l.SetScore(ctx, id, tf, 0.6))
	}

	done, err := l.MarkAudited(ctx, id)
	require.NoError(t, err)
	assert.True(t, done)

	for _, tf := range Timeframes {
		due, err := l.Unaudited(ctx, tf, 1)
		require.NoError(t, err)
		assert.Empty(t, due)
	}
}

func TestFailed(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	worst := samplePrediction()
	worstID, err := l.Record(ctx, worst)
	require.NoError(t, err)
	require.NoError(t, l.SetScore(ctx, worstID, "1h", -0.9))

	mild := samplePrediction()
	mildID, err := l.Record(ctx, mild)
	require.NoError(t, err)
	require.NoError(t, l.SetScore(ctx, mildID, "1h", -0.2))

	// Below the confidence floor: excluded even with a terrible score
	lowConf := samplePrediction()
	lowConf.Confidence = 0.3
	lowID, err := l.Record(ctx, lowConf)
	require.NoError(t, err)
	require.NoError(t, l.SetScore(ctx, lowID, "1h", -1.0))

	// Never scored: excluded
	_, err = l.Record(ctx, samplePrediction())
	require.NoError(t, err)

	failed, err := l.Failed(ctx, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, worstID, failed[0].ID)
	assert.Equal(t, mildID, failed[1].ID)
	assert.InDelta(t, -0.3, failed[0].AvgScore, 1e-9)
}

func TestStatistics(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	stats, err := l.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalPredictions)
	assert.Equal(t, 0.0, stats.AvgScore1h)

	first, err := l.Record(ctx, samplePrediction())
	require.NoError(t, err)
	_, err = l.Record(ctx, samplePrediction())
	require.NoError(t, err)

	for _, tf := range Timeframes {
		require.NoError(t, l.SetScore(ctx, first, tf, 0.5))
	}
	done, err := l.MarkAudited(ctx, first)
	require.NoError(t, err)
	require.True(t, done)

	stats, err = l.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPredictions)
	assert.Equal(t, 1, stats.AuditedPredictions)
	assert.Equal(t, 1, stats.PendingAudit)
	assert.InDelta(t, 0.5, stats.AvgScore1h, 1e-9)
	assert.InDelta(t, 0.5, stats.AvgScore4h, 1e-9)
}
