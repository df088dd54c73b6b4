// Package narrative watches exchange whale inflows. A large inflow sets
// the whale-dump flag and elevates NORMAL risk to HIGH; calm readings
// clear the flag but never demote risk, which stays the oracle's call.
package narrative

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
	"github.com/AbhayRathi/AlphaWEEX/internal/state"
)

const (
	defaultThresholdBTC = 1000.0
	defaultInterval     = 5 * time.Minute
	errorBackoff        = time.Minute

	// Severity splits at twice the threshold
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// Inflow is one observed exchange inflow reading
type Inflow struct {
	BTC    float64 `json:"btc"`
	Source string  `json:"source"`
}

// InflowSource provides inflow observations
type InflowSource interface {
	ObserveInflow(ctx context.Context) (Inflow, error)
}

// Config sets the whale threshold and poll cadence
type Config struct {
	WhaleThresholdBTC float64
	Interval          time.Duration
}

// WhaleEvent records one inflow past the threshold
type WhaleEvent struct {
	Timestamp time.Time `json:"timestamp"`
	InflowBTC float64   `json:"inflow_btc"`
	Threshold float64   `json:"threshold"`
	Source    string    `json:"source"`
	Severity  string    `json:"severity"`
}

// Check is the outcome of one inflow evaluation
type Check struct {
	Timestamp     time.Time `json:"timestamp"`
	InflowBTC     float64   `json:"exchange_inflow_btc"`
	Threshold     float64   `json:"whale_threshold_btc"`
	IsWhaleEvent  bool      `json:"is_whale_event"`
	WhaleDumpRisk bool      `json:"whale_dump_risk"`
	Source        string    `json:"source"`
}

// Summary reports the pulse for status surfaces
type Summary struct {
	WhaleDumpRisk bool         `json:"whale_dump_risk"`
	Threshold     float64      `json:"whale_threshold_btc"`
	TotalEvents   int          `json:"total_whale_events"`
	RecentEvents  []WhaleEvent `json:"recent_whale_events"`
}

// Pulse evaluates inflow readings against the whale threshold
type Pulse struct {
	cfg    Config
	source InflowSource
	shared *state.SharedState

	mu     sync.Mutex
	events []WhaleEvent

	now func() time.Time
}

// New creates a narrative pulse
func New(cfg Config, source InflowSource, shared *state.SharedState) *Pulse {
	if cfg.WhaleThresholdBTC <= 0 {
		cfg.WhaleThresholdBTC = defaultThresholdBTC
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Pulse{cfg: cfg, source: source, shared: shared, now: time.Now}
}

// Run observes inflows until the context ends. Observation errors back
// off for a minute and continue.
func (p *Pulse) Run(ctx context.Context) error {
	log.Info().
		Float64("whale_threshold_btc", p.cfg.WhaleThresholdBTC).
		Dur("interval", p.cfg.Interval).
		Msg("Narrative pulse started")

	for {
		inflow, err := p.source.ObserveInflow(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Inflow observation failed")
			if err := waitFor(ctx, errorBackoff); err != nil {
				return err
			}
			continue
		}
		p.CheckInflow(inflow)
		if err := waitFor(ctx, p.cfg.Interval); err != nil {
			return err
		}
	}
}

// CheckInflow evaluates one reading. Above the threshold it flags dump
// risk and elevates NORMAL risk to HIGH; below it clears the flag.
func (p *Pulse) CheckInflow(inflow Inflow) Check {
	timestamp := p.now().UTC()
	isWhale := inflow.BTC > p.cfg.WhaleThresholdBTC

	if isWhale {
		severity := SeverityMedium
		if inflow.BTC > p.cfg.WhaleThresholdBTC*2 {
			severity = SeverityHigh
		}
		event := WhaleEvent{
			Timestamp: timestamp,
			InflowBTC: inflow.BTC,
			Threshold: p.cfg.WhaleThresholdBTC,
			Source:    inflow.Source,
			Severity:  severity,
		}
		p.mu.Lock()
		p.events = append(p.events, event)
		p.mu.Unlock()

		log.Warn().
			Float64("inflow_btc", inflow.BTC).
			Float64("threshold", p.cfg.WhaleThresholdBTC).
			Str("severity", severity).
			Msg("Whale inflow detected")

		p.shared.SetWhaleDump(true)
		if p.shared.ElevateRisk(map[string]interface{}{
			"whale_dump_risk": true,
			"whale_event": map[string]interface{}{
				"timestamp":  event.Timestamp.Format(time.RFC3339),
				"inflow_btc": event.InflowBTC,
				"threshold":  event.Threshold,
				"source":     event.Source,
				"risk_level": event.Severity,
			},
		}) {
			log.Warn().Msg("Risk elevated to HIGH on whale inflow")
		}
	} else {
		log.Info().
			Float64("inflow_btc", inflow.BTC).
			Float64("threshold", p.cfg.WhaleThresholdBTC).
			Msg("Inflow below whale threshold")
		if p.shared.WhaleDump() {
			p.shared.SetWhaleDump(false)
			log.Info().Msg("Whale dump risk cleared")
		}
	}

	snap := p.shared.Snapshot()
	metrics.UpdateRiskPosture(snap.RiskLevel == state.RiskHigh, snap.SentimentMultiplier, snap.WhaleDumpRisk)

	return Check{
		Timestamp:     timestamp,
		InflowBTC:     inflow.BTC,
		Threshold:     p.cfg.WhaleThresholdBTC,
		IsWhaleEvent:  isWhale,
		WhaleDumpRisk: p.shared.WhaleDump(),
		Source:        inflow.Source,
	}
}

// Events returns the most recent whale events, oldest first
func (p *Pulse) Events(limit int) []WhaleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recentLocked(limit)
}

// Summary reports the pulse state
func (p *Pulse) Summary() Summary {
	p.mu.Lock()
	total := len(p.events)
	recent := p.recentLocked(5)
	p.mu.Unlock()

	return Summary{
		WhaleDumpRisk: p.shared.WhaleDump(),
		Threshold:     p.cfg.WhaleThresholdBTC,
		TotalEvents:   total,
		RecentEvents:  recent,
	}
}

func (p *Pulse) recentLocked(limit int) []WhaleEvent {
	if limit <= 0 || limit > len(p.events) {
		limit = len(p.events)
	}
	out := make([]WhaleEvent, limit)
	copy(out, p.events[len(p.events)-limit:])
	return out
}

func waitFor(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// VolumeInflow derives a simulated exchange inflow from recently traded
// volume, standing in for an on-chain analytics feed.
type VolumeInflow struct {
	Feed   CandleFeed
	Symbol string
}

// CandleFeed is the slice of the market boundary the inflow proxy needs
type CandleFeed interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (*market.Series, error)
}

// ObserveInflow estimates inflow as 0.1% of the last 24 hours of volume
func (v *VolumeInflow) ObserveInflow(ctx context.Context) (Inflow, error) {
	series, err := v.Feed.FetchOHLCV(ctx, v.Symbol, "15m", 96)
	if err != nil {
		return Inflow{}, err
	}
	total := 0.0
	for _, c := range series.Candles {
		total += c.Volume
	}
	return Inflow{BTC: total * 0.001, Source: "simulated"}, nil
}
