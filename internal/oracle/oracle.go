// Package oracle watches traditional markets and owns the global risk
// level. A sharp hourly drop in the equity benchmark raises SharedState
// to HIGH; anything else resets it to NORMAL. The oracle is the only
// component that demotes risk.
package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/state"
)

const (
	defaultInterval  = time.Hour
	defaultThreshold = -0.01

	primaryTicker   = "SPY"
	secondaryTicker = "QQQ"
	barTimeframe    = "1h"
	barLimit        = 2

	fetchTimeout = 10 * time.Second
)

// EquitySource provides hourly bars for the benchmark tickers
type EquitySource interface {
	FetchEquityBars(ctx context.Context, ticker, timeframe string, limit int) (*market.EquitySeries, error)
}

// Config sets the risk threshold and poll cadence
type Config struct {
	// SpyThreshold is a fraction; the default -0.01 raises risk when the
	// benchmark loses more than 1% in an hour.
	SpyThreshold float64
	Interval     time.Duration

	// Tickers overrides the benchmark pair. The first entry drives the
	// risk level; payload keys stay spy/qqq regardless.
	Tickers []string
}

// TickerRead is one benchmark's hourly move
type TickerRead struct {
	Price     float64 `json:"price"`
	PrevPrice float64 `json:"prev_price"`
	ChangePct float64 `json:"change_pct"`
}

// Reading is a snapshot of both benchmarks
type Reading struct {
	Timestamp time.Time  `json:"timestamp"`
	Primary   TickerRead `json:"spy"`
	Secondary TickerRead `json:"qqq"`
	Source    string     `json:"source"`
}

// Summary reports the oracle's view for status surfaces
type Summary struct {
	RiskLevel state.RiskLevel `json:"risk_level"`
	Reading   Reading         `json:"market_data"`
	Threshold float64         `json:"threshold"`
}

// Oracle polls the benchmarks and writes the risk level
type Oracle struct {
	cfg    Config
	source EquitySource
	shared *state.SharedState

	primary   string
	secondary string

	mu   sync.Mutex
	last Reading

	now func() time.Time
}

// New creates an oracle. A zero threshold selects the -1% default.
func New(cfg Config, source EquitySource, shared *state.SharedState) *Oracle {
	if cfg.SpyThreshold == 0 {
		cfg.SpyThreshold = defaultThreshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	primary, secondary := primaryTicker, secondaryTicker
	if len(cfg.Tickers) > 0 && cfg.Tickers[0] != "" {
		primary = cfg.Tickers[0]
	}
	if len(cfg.Tickers) > 1 && cfg.Tickers[1] != "" {
		secondary = cfg.Tickers[1]
	}
	return &Oracle{
		cfg:       cfg,
		source:    source,
		shared:    shared,
		primary:   primary,
		secondary: secondary,
		now:       time.Now,
	}
}

// Run polls until the context ends. The first update happens
// immediately so the risk level is primed at startup.
func (o *Oracle) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", o.cfg.Interval).
		Float64("threshold", o.cfg.SpyThreshold).
		Msg("Oracle started")

	for {
		if _, err := o.UpdateRisk(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.Interval):
		}
	}
}

// UpdateRisk fetches the benchmarks and sets the global risk level.
// Fetch trouble degrades to the neutral fallback reading, so an outage
// reads as NORMAL risk. Only a context error is returned.
func (o *Oracle) UpdateRisk(ctx context.Context) (state.RiskLevel, error) {
	reading, err := o.fetch(ctx)
	if err != nil {
		return state.RiskNormal, err
	}

	o.mu.Lock()
	o.last = reading
	o.mu.Unlock()

	level := state.RiskNormal
	thresholdPct := o.cfg.SpyThreshold * 100
	if reading.Primary.ChangePct < thresholdPct {
		level = state.RiskHigh
		log.Warn().
			Float64("spy_change_pct", reading.Primary.ChangePct).
			Float64("threshold_pct", thresholdPct).
			Msg("Benchmark drop past threshold, raising global risk")
	} else {
		log.Info().
			Float64("spy_change_pct", reading.Primary.ChangePct).
			Float64("qqq_change_pct", reading.Secondary.ChangePct).
			Msg("Benchmark within threshold, risk normal")
	}

	o.shared.SetRisk(level, reading.payload())
	return level, nil
}

// Summary returns the last reading with the current risk level
func (o *Oracle) Summary() Summary {
	o.mu.Lock()
	last := o.last
	o.mu.Unlock()
	return Summary{
		RiskLevel: o.shared.Risk(),
		Reading:   last,
		Threshold: o.cfg.SpyThreshold,
	}
}

func (o *Oracle) fetch(ctx context.Context) (Reading, error) {
	if o.source == nil {
		return o.fallback(), nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	primary, err := o.source.FetchEquityBars(fetchCtx, o.primary, barTimeframe, barLimit)
	if err != nil {
		if ctx.Err() != nil {
			return Reading{}, ctx.Err()
		}
		log.Warn().Err(err).Str("ticker", o.primary).Msg("Benchmark fetch failed, using fallback reading")
		return o.fallback(), nil
	}
	secondary, err := o.source.FetchEquityBars(fetchCtx, o.secondary, barTimeframe, barLimit)
	if err != nil {
		if ctx.Err() != nil {
			return Reading{}, ctx.Err()
		}
		log.Warn().Err(err).Str("ticker", o.secondary).Msg("Benchmark fetch failed, using fallback reading")
		return o.fallback(), nil
	}
	if len(primary.Bars) < barLimit || len(secondary.Bars) < barLimit {
		log.Warn().
			Int("spy_bars", len(primary.Bars)).
			Int("qqq_bars", len(secondary.Bars)).
			Msg("Insufficient benchmark bars, using fallback reading")
		return o.fallback(), nil
	}

	return Reading{
		Timestamp: o.now().UTC(),
		Primary:   readBars(primary.Bars),
		Secondary: readBars(secondary.Bars),
		Source:    primary.Source,
	}, nil
}

// fallback reads as slightly positive so an outage never raises risk
func (o *Oracle) fallback() Reading {
	return Reading{
		Timestamp: o.now().UTC(),
		Primary:   TickerRead{Price: 450.0, PrevPrice: 449.1, ChangePct: 0.2},
		Secondary: TickerRead{Price: 380.0, PrevPrice: 378.86, ChangePct: 0.3},
		Source:    market.SourceFallback,
	}
}

func readBars(bars []market.EquityBar) TickerRead {
	prev := bars[len(bars)-2].Close
	current := bars[len(bars)-1].Close
	change := 0.0
	if prev != 0 {
		change = (current - prev) / prev * 100
	}
	return TickerRead{Price: current, PrevPrice: prev, ChangePct: change}
}

func (r Reading) payload() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": r.Timestamp.Format(time.RFC3339),
		"spy": map[string]interface{}{
			"price":      r.Primary.Price,
			"prev_price": r.Primary.PrevPrice,
			"change_pct": r.Primary.ChangePct,
		},
		"qqq": map[string]interface{}{
			"price":      r.Secondary.Price,
			"prev_price": r.Secondary.PrevPrice,
			"change_pct": r.Secondary.ChangePct,
		},
		"source": r.Source,
	}
}
