// Package backtest replays a compiled decision document over a candle
// history and gates deployment on risk-adjusted performance. The replay
// is long-only with full redeployment: buys commit 95% of cash, sells
// liquidate the whole position, and each side pays a 5% haircut.
package backtest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

const (
	// warmupCandles are skipped so indicators have history to work with
	warmupCandles = 20

	// confidenceGate is the minimum decision confidence that trades
	confidenceGate = 0.6

	cashDeployment = 0.95
	feeRetention   = 0.95
)

// annualization for 15 minute bars: 252 trading days of 96 bars
var annualization = math.Sqrt(252 * 96)

// Config holds the capital and deployment thresholds
type Config struct {
	InitialCapital    float64 `mapstructure:"initial_capital"`
	MinSharpeDeploy   float64 `mapstructure:"min_sharpe_deploy"`
	MaxDrawdownDeploy float64 `mapstructure:"max_drawdown_deploy"`
}

// DefaultConfig mirrors the live gate: Sharpe at least 1.2, drawdown
// at most 5%
func DefaultConfig() Config {
	return Config{
		InitialCapital:    10000.0,
		MinSharpeDeploy:   1.2,
		MaxDrawdownDeploy: 0.05,
	}
}

// Trade is one executed replay order
type Trade struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Value     float64   `json:"value"`
}

// EquityPoint is the portfolio value after one replay candle
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Position  float64   `json:"position"`
	Cash      float64   `json:"cash"`
}

// Metrics summarizes a replay
type Metrics struct {
	TotalReturn float64 `json:"total_return"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
	NumTrades   int     `json:"num_trades"`
	FinalEquity float64 `json:"final_equity"`
}

// Result is the full outcome of one replay
type Result struct {
	CanDeploy   bool          `json:"can_deploy"`
	Metrics     Metrics       `json:"metrics"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Trades      []Trade       `json:"trades"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Backtester replays candidate documents against candle history
type Backtester struct {
	cfg Config
	now func() time.Time
}

// New creates a backtester with the given thresholds
func New(cfg Config) *Backtester {
	return &Backtester{cfg: cfg, now: time.Now}
}

// Run replays the document over the candles and computes metrics.
// The document must compile and the history must extend past the
// warmup window.
func (b *Backtester) Run(doc *strategy.Document, candles []market.Candle) (*Result, error) {
	program, err := doc.Compile()
	if err != nil {
		return nil, fmt.Errorf("candidate does not compile: %w", err)
	}
	if len(candles) <= warmupCandles {
		return nil, fmt.Errorf("need more than %d candles, have %d", warmupCandles, len(candles))
	}

	cash := b.cfg.InitialCapital
	position := 0.0
	var curve []EquityPoint
	var trades []Trade

	for i := warmupCandles; i < len(candles); i++ {
		window := candles[:i+1]
		indicators := program.CalculateIndicators(window)
		decision := program.GenerateSignal(indicators, nil)
		price := candles[i].Close

		if decision.Confidence > confidenceGate {
			switch {
			case decision.Action == strategy.ActionBuy && position == 0:
				buyValue := cash * cashDeployment
				position = buyValue / price
				cash -= buyValue
				trades = append(trades, Trade{
					Timestamp: candles[i].Timestamp,
					Action:    strategy.ActionBuy,
					Price:     price,
					Size:      position,
					Value:     buyValue,
				})
			case decision.Action == strategy.ActionSell && position > 0:
				proceeds := position * price * feeRetention
				cash += proceeds
				trades = append(trades, Trade{
					Timestamp: candles[i].Timestamp,
					Action:    strategy.ActionSell,
					Price:     price,
					Size:      position,
					Value:     proceeds,
				})
				position = 0
			}
		}

		curve = append(curve, EquityPoint{
			Timestamp: candles[i].Timestamp,
			Equity:    cash + position*price,
			Position:  position,
			Cash:      cash,
		})
	}

	metrics := computeMetrics(curve, trades, b.cfg.InitialCapital)
	canDeploy := metrics.SharpeRatio >= b.cfg.MinSharpeDeploy &&
		metrics.MaxDrawdown <= b.cfg.MaxDrawdownDeploy

	log.Info().
		Float64("sharpe", metrics.SharpeRatio).
		Float64("max_drawdown", metrics.MaxDrawdown).
		Float64("total_return", metrics.TotalReturn).
		Int("trades", metrics.NumTrades).
		Bool("can_deploy", canDeploy).
		Msg("Backtest complete")

	return &Result{
		CanDeploy:   canDeploy,
		Metrics:     metrics,
		EquityCurve: curve,
		Trades:      trades,
		Timestamp:   b.now(),
	}, nil
}

// ValidateForDeployment runs the replay and explains the verdict
func (b *Backtester) ValidateForDeployment(doc *strategy.Document, candles []market.Candle) (bool, string) {
	result, err := b.Run(doc, candles)
	if err != nil {
		return false, fmt.Sprintf("Backtest failed: %v", err)
	}

	if !result.CanDeploy {
		var reasons []string
		if result.Metrics.SharpeRatio < b.cfg.MinSharpeDeploy {
			reasons = append(reasons, fmt.Sprintf("Sharpe ratio %.2f < %.2f",
				result.Metrics.SharpeRatio, b.cfg.MinSharpeDeploy))
		}
		if result.Metrics.MaxDrawdown > b.cfg.MaxDrawdownDeploy {
			reasons = append(reasons, fmt.Sprintf("max drawdown %.2f%% > %.2f%%",
				result.Metrics.MaxDrawdown*100, b.cfg.MaxDrawdownDeploy*100))
		}
		return false, "Deployment criteria not met: " + strings.Join(reasons, "; ")
	}

	return true, "All deployment criteria met"
}

func computeMetrics(curve []EquityPoint, trades []Trade, initialCapital float64) Metrics {
	if len(curve) == 0 {
		return Metrics{MaxDrawdown: 1.0}
	}

	finalEquity := curve[len(curve)-1].Equity

	metrics := Metrics{
		TotalReturn: (finalEquity - initialCapital) / initialCapital,
		NumTrades:   len(trades),
		FinalEquity: finalEquity,
	}

	// Per-candle returns drive the Sharpe ratio. Sample standard
	// deviation, annualized for 15 minute bars.
	var returns []float64
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev != 0 {
			returns = append(returns, (curve[i].Equity-prev)/prev)
		}
	}
	if len(returns) > 1 {
		mean := 0.0
		for _, r := range returns {
			mean += r
		}
		mean /= float64(len(returns))

		variance := 0.0
		for _, r := range returns {
			diff := r - mean
			variance += diff * diff
		}
		variance /= float64(len(returns) - 1)

		if std := math.Sqrt(variance); std > 0 {
			metrics.SharpeRatio = mean / std * annualization
		}
	}

	// Max drawdown against the running peak.
	peak := curve[0].Equity
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak > 0 {
			drawdown := (peak - point.Equity) / peak
			if drawdown > metrics.MaxDrawdown {
				metrics.MaxDrawdown = drawdown
			}
		}
	}

	// Win rate over buy/sell round trips.
	if len(trades) >= 2 {
		wins := 0
		for i := 0; i+1 < len(trades); i += 2 {
			buy, sell := trades[i], trades[i+1]
			if buy.Action != strategy.ActionBuy {
				buy, sell = sell, buy
			}
			if sell.Value > buy.Value {
				wins++
			}
		}
		metrics.WinRate = float64(wins) / (float64(len(trades)) / 2.0)
	}

	return metrics
}
