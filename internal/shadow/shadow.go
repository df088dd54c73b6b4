// Package shadow runs an in-memory paired simulation: a shadow strategy
// with higher leverage and risk tolerance trades alongside the live
// signal, and a promotion alert fires once the shadow's rolling Sharpe
// has beaten the live arm over a full evaluation window.
package shadow

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

const (
	defaultIterations      = 100
	defaultSharpeThreshold = 1.2
	defaultBarInterval     = 15 * time.Minute

	// Dollar notional each simulated trade commits
	baseNotional = 1000.0

	// Fraction of volatility added in the signal's direction. A correct
	// read earns a small edge over pure noise.
	directionalBias = 0.3

	// Rolling Sharpe window in trades
	sharpeWindow = 30

	tradingDaysPerYear = 252
)

// Config tunes the paired simulation
type Config struct {
	Iterations      int           `mapstructure:"promotion_threshold_iterations"`
	SharpeThreshold float64       `mapstructure:"sharpe_ratio_threshold"`
	BarInterval     time.Duration `mapstructure:"bar_interval"`
	Seed            int64         `mapstructure:"seed"`
}

// Strategy is one arm of the paired simulation
type Strategy struct {
	Name       string
	Leverage   float64
	RiskFactor float64

	roiHistory    []float64
	sharpeHistory []float64
	tradeCount    int
	winCount      int
	totalPnL      float64
}

// StrategyStats is a point-in-time snapshot of one arm
type StrategyStats struct {
	Name         string    `json:"name"`
	Leverage     float64   `json:"leverage_multiplier"`
	RiskFactor   float64   `json:"risk_multiplier"`
	TradeCount   int       `json:"trade_count"`
	WinCount     int       `json:"win_count"`
	WinRate      float64   `json:"win_rate"`
	TotalPnL     float64   `json:"total_pnl"`
	AvgROI       float64   `json:"avg_roi"`
	AvgSharpe    float64   `json:"avg_sharpe"`
	RecentROI    []float64 `json:"roi_history"`
	RecentSharpe []float64 `json:"sharpe_history"`
}

// PromotionAlert reports that the shadow arm has sustained a better
// Sharpe than the live arm through a full evaluation window
type PromotionAlert struct {
	Timestamp    time.Time `json:"timestamp"`
	Iterations   int       `json:"iterations"`
	ShadowSharpe float64   `json:"shadow_sharpe"`
	LiveSharpe   float64   `json:"live_sharpe"`
	Message      string    `json:"message"`
}

// Result is the outcome of one paired simulation step
type Result struct {
	Timestamp    time.Time       `json:"timestamp"`
	Signal       string          `json:"market_signal"`
	LivePnL      float64         `json:"live_pnl"`
	LiveSharpe   float64         `json:"live_sharpe"`
	ShadowPnL    float64         `json:"shadow_pnl"`
	ShadowSharpe float64         `json:"shadow_sharpe"`
	Promotion    *PromotionAlert `json:"promotion_alert,omitempty"`
}

// Summary compares the two arms for status surfaces
type Summary struct {
	Timestamp         time.Time       `json:"timestamp"`
	Shadow            StrategyStats   `json:"shadow"`
	Live              StrategyStats   `json:"live"`
	ROIDiff           float64         `json:"roi_diff"`
	SharpeDiff        float64         `json:"sharpe_diff"`
	WinRateDiff       float64         `json:"win_rate_diff"`
	ShadowOutperforms bool            `json:"shadow_outperforms"`
	TotalIterations   int             `json:"total_iterations"`
	ToPromotion       int             `json:"iterations_to_promotion"`
	PromotionCount    int             `json:"promotion_alerts_count"`
	LatestAlert       *PromotionAlert `json:"latest_promotion_alert,omitempty"`
}

// Engine drives the paired simulation. All state mutates under one
// mutex.
type Engine struct {
	cfg        Config
	annualize  float64
	mu         sync.Mutex
	live       *Strategy
	shadowArm  *Strategy
	alerts     []PromotionAlert
	rng        *rand.Rand
	iterations int

	now func() time.Time
}

// New creates a paired engine: live at 1.0x leverage and risk, shadow
// at 2.0x leverage and 1.5x risk
func New(cfg Config) *Engine {
	if cfg.Iterations <= 0 {
		cfg.Iterations = defaultIterations
	}
	if cfg.SharpeThreshold <= 0 {
		cfg.SharpeThreshold = defaultSharpeThreshold
	}
	if cfg.BarInterval <= 0 {
		cfg.BarInterval = defaultBarInterval
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	barsPerDay := float64(24*time.Hour) / float64(cfg.BarInterval)

	e := &Engine{
		cfg:       cfg,
		annualize: math.Sqrt(tradingDaysPerYear * barsPerDay),
		live:      &Strategy{Name: "Live-Standard", Leverage: 1.0, RiskFactor: 1.0},
		shadowArm: &Strategy{Name: "Shadow-HighRisk", Leverage: 2.0, RiskFactor: 1.5},
		rng:       rand.New(rand.NewSource(seed)), // #nosec G404 -- Non-cryptographic use: reproducible trade simulation
		now:       time.Now,
	}

	log.Info().
		Int("promotion_iterations", cfg.Iterations).
		Float64("sharpe_threshold", cfg.SharpeThreshold).
		Msg("Shadow engine initialized")
	return e
}

// Simulate runs one hypothetical trade on each arm for the given
// signal. The shadow arm trades the same signal at higher leverage and
// amplified volatility. Returns the step result, carrying a promotion
// alert when the evaluation window completes in the shadow's favor.
func (e *Engine) Simulate(signal string, price, volatility float64) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	livePnL := e.trade(signal, price, e.live.Leverage, volatility)
	liveSharpe := e.record(e.live, livePnL)

	shadowPnL := e.trade(signal, price, e.shadowArm.Leverage, volatility*e.shadowArm.RiskFactor)
	shadowSharpe := e.record(e.shadowArm, shadowPnL)

	e.iterations++
	metrics.RecordShadowIteration(liveSharpe, shadowSharpe)

	result := Result{
		Timestamp:    e.now().UTC(),
		Signal:       signal,
		LivePnL:      livePnL,
		LiveSharpe:   liveSharpe,
		ShadowPnL:    shadowPnL,
		ShadowSharpe: shadowSharpe,
	}

	if e.shadowArm.tradeCount >= e.cfg.Iterations {
		if alert := e.checkPromotion(liveSharpe, shadowSharpe); alert != nil {
			result.Promotion = alert
		}
	}
	return result
}

// Summary snapshots both arms and their comparison
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	shadowStats := e.shadowArm.stats()
	liveStats := e.live.stats()

	toPromotion := e.cfg.Iterations - e.shadowArm.tradeCount
	if toPromotion < 0 {
		toPromotion = 0
	}

	s := Summary{
		Timestamp:         e.now().UTC(),
		Shadow:            shadowStats,
		Live:              liveStats,
		ROIDiff:           shadowStats.AvgROI - liveStats.AvgROI,
		SharpeDiff:        shadowStats.AvgSharpe - liveStats.AvgSharpe,
		WinRateDiff:       shadowStats.WinRate - liveStats.WinRate,
		ShadowOutperforms: shadowStats.AvgSharpe > liveStats.AvgSharpe,
		TotalIterations:   e.iterations,
		ToPromotion:       toPromotion,
		PromotionCount:    len(e.alerts),
	}
	if len(e.alerts) > 0 {
		latest := e.alerts[len(e.alerts)-1]
		s.LatestAlert = &latest
	}
	return s
}

// Alerts returns a copy of all promotion alerts so far
func (e *Engine) Alerts() []PromotionAlert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PromotionAlert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// ResetShadow replaces the shadow arm with a fresh one at the given
// multipliers, keeping the alert history
func (e *Engine) ResetShadow(leverage, riskFactor float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.shadowArm = &Strategy{
		Name:       fmt.Sprintf("Shadow-HighRisk-v%d", len(e.alerts)+1),
		Leverage:   leverage,
		RiskFactor: riskFactor,
	}
	log.Info().
		Float64("leverage", leverage).
		Float64("risk_factor", riskFactor).
		Msg("Shadow strategy reset")
}

// trade simulates one hypothetical fill: a normal return at the given
// volatility, biased in the signal's direction. HOLD earns nothing.
func (e *Engine) trade(signal string, price, leverage, volatility float64) float64 {
	if price <= 0 {
		return 0
	}

	move := e.rng.NormFloat64() * volatility
	switch strings.ToUpper(signal) {
	case strategy.ActionBuy:
		move += volatility * directionalBias
	case strategy.ActionSell:
		move -= volatility * directionalBias
	default:
		return 0
	}

	return move * leverage * baseNotional
}

// record books the trade on an arm and returns its refreshed rolling
// Sharpe
func (e *Engine) record(s *Strategy, pnl float64) float64 {
	s.tradeCount++
	if pnl > 0 {
		s.winCount++
	}
	s.totalPnL += pnl
	s.roiHistory = append(s.roiHistory, pnl/baseNotional*100)

	sharpe := e.rollingSharpe(s.roiHistory)
	s.sharpeHistory = append(s.sharpeHistory, sharpe)
	return sharpe
}

// rollingSharpe annualizes mean over sample standard deviation of the
// last 30 trade returns
func (e *Engine) rollingSharpe(roi []float64) float64 {
	if len(roi) > sharpeWindow {
		roi = roi[len(roi)-sharpeWindow:]
	}
	if len(roi) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range roi {
		mean += r
	}
	mean /= float64(len(roi))

	variance := 0.0
	for _, r := range roi {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(roi) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * e.annualize
}

func (e *Engine) checkPromotion(liveSharpe, shadowSharpe float64) *PromotionAlert {
	if shadowSharpe <= liveSharpe || shadowSharpe < e.cfg.SharpeThreshold {
		return nil
	}

	alert := PromotionAlert{
		Timestamp:    e.now().UTC(),
		Iterations:   e.shadowArm.tradeCount,
		ShadowSharpe: shadowSharpe,
		LiveSharpe:   liveSharpe,
		Message: fmt.Sprintf("Shadow strategy outperforms live: Sharpe %.2f > %.2f over %d iterations",
			shadowSharpe, liveSharpe, e.shadowArm.tradeCount),
	}
	e.alerts = append(e.alerts, alert)

	log.Warn().
		Float64("shadow_sharpe", shadowSharpe).
		Float64("live_sharpe", liveSharpe).
		Int("iterations", e.shadowArm.tradeCount).
		Msg("Shadow promotion alert")

	// Both windows restart so the next evaluation is a clean comparison.
	e.shadowArm.tradeCount = 0
	e.shadowArm.winCount = 0
	e.live.tradeCount = 0
	e.live.winCount = 0
	return &alert
}

func (s *Strategy) stats() StrategyStats {
	stats := StrategyStats{
		Name:       s.Name,
		Leverage:   s.Leverage,
		RiskFactor: s.RiskFactor,
		TradeCount: s.tradeCount,
		WinCount:   s.winCount,
		TotalPnL:   s.totalPnL,
	}
	if len(s.roiHistory) > 0 {
		sum := 0.0
		for _, r := range s.roiHistory {
			sum += r
		}
		stats.AvgROI = sum / float64(len(s.roiHistory))
	}
	if len(s.sharpeHistory) > 0 {
		sum := 0.0
		for _, v := range s.sharpeHistory {
			sum += v
		}
		stats.AvgSharpe = sum / float64(len(s.sharpeHistory))
	}
	if s.tradeCount > 0 {
		stats.WinRate = float64(s.winCount) / float64(s.tradeCount)
	}
	stats.RecentROI = tail(s.roiHistory, 10)
	stats.RecentSharpe = tail(s.sharpeHistory, 10)
	return stats
}

func tail(values []float64, n int) []float64 {
	if len(values) > n {
		values = values[len(values)-n:]
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out
}
