// Package auditor is the reconciliation loop. It grades ledger
// predictions against the realized price once each audit horizon has
// elapsed and marks rows audited when all three scores are in.
package auditor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/ledger"
	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

const (
	defaultInterval = time.Hour
	spotTimeframe   = "1m"
	fetchTimeout    = 10 * time.Second
	errorBackoff    = time.Minute

	// A 5% move saturates the direction score at +/-1
	fullCreditMovePct = 5.0
)

// horizons maps each audit timeframe to the minimum prediction age in
// hours before it may be scored
var horizons = map[string]int{"1h": 1, "4h": 4, "12h": 12}

// SpotSource is the slice of the market feed the auditor needs
type SpotSource interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error)
}

// Config sets the audited symbol and cycle cadence
type Config struct {
	Symbol   string
	Interval time.Duration
}

// CycleReport summarizes one audit cycle
type CycleReport struct {
	Timestamp time.Time      `json:"timestamp"`
	SpotPrice float64        `json:"spot_price"`
	Scored    map[string]int `json:"scored"`
	Completed int            `json:"completed"`
}

// Auditor drives reconciliation cycles against the ledger
type Auditor struct {
	cfg    Config
	ledger *ledger.Ledger
	source SpotSource

	mu        sync.Mutex
	lastCycle time.Time

	now func() time.Time
}

// New creates a reconciliation auditor
func New(cfg Config, l *ledger.Ledger, source SpotSource) *Auditor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Auditor{cfg: cfg, ledger: l, source: source, now: time.Now}
}

// Run audits on the configured cadence until the context ends. Cycle
// errors back off for a minute and continue.
func (a *Auditor) Run(ctx context.Context) error {
	log.Info().
		Str("symbol", a.cfg.Symbol).
		Dur("interval", a.cfg.Interval).
		Msg("Reconciliation auditor started")

	for {
		if _, err := a.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Audit cycle failed")
			metrics.RecordError("cycle", "auditor")
			if err := sleep(ctx, errorBackoff); err != nil {
				return err
			}
			continue
		}
		if err := sleep(ctx, a.cfg.Interval); err != nil {
			return err
		}
	}
}

// RunCycle fetches the spot price and audits every horizon. Rows old
// enough for a horizon get the spot price, a success score, and the
// audited flag once all three horizons are scored.
func (a *Auditor) RunCycle(ctx context.Context) (*CycleReport, error) {
	spot, err := a.spot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spot price for audit: %w", err)
	}

	report := &CycleReport{
		Timestamp: a.now().UTC(),
		SpotPrice: spot,
		Scored:    make(map[string]int, len(ledger.Timeframes)),
	}

	for _, timeframe := range ledger.Timeframes {
		scored, completed, err := a.auditTimeframe(ctx, timeframe, spot)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			log.Error().Err(err).Str("timeframe", timeframe).Msg("Timeframe audit failed")
			metrics.RecordError("audit_timeframe", "auditor")
			continue
		}
		report.Scored[timeframe] = scored
		report.Completed += completed
	}

	a.mu.Lock()
	a.lastCycle = report.Timestamp
	a.mu.Unlock()

	stats, err := a.ledger.Statistics(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read ledger statistics after audit")
	} else {
		log.Info().
			Float64("spot", spot).
			Int("scored_1h", report.Scored["1h"]).
			Int("scored_4h", report.Scored["4h"]).
			Int("scored_12h", report.Scored["12h"]).
			Int("fully_audited", report.Completed).
			Int("pending", stats.PendingAudit).
			Msg("Reconciliation audit cycle complete")
	}

	return report, nil
}

// LastCycle returns when the most recent cycle finished
func (a *Auditor) LastCycle() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastCycle
}

func (a *Auditor) auditTimeframe(ctx context.Context, timeframe string, spot float64) (int, int, error) {
	rows, err := a.ledger.Unaudited(ctx, timeframe, horizons[timeframe])
	if err != nil {
		return 0, 0, err
	}

	completed := 0
	for i := range rows {
		p := &rows[i]

		if err := a.ledger.SetActualPrice(ctx, p.ID, spot, timeframe); err != nil {
			return i, completed, err
		}

		score := Score(p, spot)
		if err := a.ledger.SetScore(ctx, p.ID, timeframe, score); err != nil {
			return i, completed, err
		}
		metrics.RecordAuditScore(timeframe, score)

		done, err := a.ledger.MarkAudited(ctx, p.ID)
		if err != nil {
			return i, completed, err
		}
		if done {
			completed++
		}

		log.Debug().
			Int64("id", p.ID).
			Str("timeframe", timeframe).
			Str("bias", p.PredictedBias).
			Float64("score", score).
			Msg("Scored prediction")
	}

	return len(rows), completed, nil
}

func (a *Auditor) spot(ctx context.Context) (float64, error) {
	if a.source == nil {
		return 0, fmt.Errorf("no price source configured")
	}

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	series, err := a.source.FetchOHLCV(fctx, a.cfg.Symbol, spotTimeframe, 1)
	if err != nil {
		return 0, err
	}
	if len(series.Candles) == 0 {
		return 0, fmt.Errorf("no candles returned for spot price")
	}
	return series.Candles[len(series.Candles)-1].Close, nil
}

// Score grades one prediction against the realized price. Direction
// accuracy earns proportional credit saturating over a 5% move, a
// predicted reversal or trap that played out floors the score at 0.8
// and a played-out mean reversion at 0.7, then the result is weighted
// by the prediction's confidence and rounded to three decimals.
func Score(p *ledger.Prediction, actualPrice float64) float64 {
	changePct := (actualPrice - p.PriceAtPrediction) / p.PriceAtPrediction * 100

	score := 0.0
	switch p.Signal {
	case strategy.ActionBuy:
		score = clamp(changePct/fullCreditMovePct, -1, 1)
	case strategy.ActionSell:
		score = clamp(-changePct/fullCreditMovePct, -1, 1)
	}

	outcome := strings.ToLower(p.PredictedOutcome)
	switch {
	case strings.Contains(outcome, "reversal") || strings.Contains(outcome, "trap"):
		if p.Signal == strategy.ActionSell && changePct < -1 {
			score = math.Max(score, 0.8)
		} else if p.Signal == strategy.ActionBuy && changePct > 1 {
			score = math.Max(score, 0.8)
		}
	case strings.Contains(outcome, "mean reversion"):
		if p.Signal == strategy.ActionBuy && changePct > 0 {
			score = math.Max(score, 0.7)
		} else if p.Signal == strategy.ActionSell && changePct < 0 {
			score = math.Max(score, 0.7)
		}
	}

	score *= p.Confidence
	return math.Round(score*1000) / 1000
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
