package supervisor

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/alerts"
	"github.com/AbhayRathi/AlphaWEEX/internal/bus"
	"github.com/AbhayRathi/AlphaWEEX/internal/market"
	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
	"github.com/AbhayRathi/AlphaWEEX/internal/strategy"
)

const (
	// closeWindow is the trailing close window used for realized
	// volatility and the predator's momentum reads.
	closeWindow = 20

	// defaultOrderNotional is the base position size in quote currency
	// before the risk posture multipliers scale it.
	defaultOrderNotional = 1000.0

	// fallbackVolatility seeds the shadow simulation when the window is
	// too short for a realized reading.
	fallbackVolatility = 0.02
)

// shadowTick carries one executed signal from the trading loop to the
// shadow driver.
type shadowTick struct {
	action     string
	price      float64
	volatility float64
}

func (s *Supervisor) tradingLoop(ctx context.Context) error {
	log.Info().
		Str("symbol", s.cfg.Symbol).
		Dur("interval", s.cfg.TradingInterval).
		Msg("Trading loop started")

	for {
		if err := s.tradeCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Trading cycle failed")
			metrics.RecordError("cycle", "trading")
		}
		if err := sleep(ctx, s.cfg.TradingInterval); err != nil {
			return err
		}
	}
}

// tradeCycle runs one pass: refresh equity, honor the kill switch,
// evaluate the active strategy against the latest analysis, and hand
// any executed signal to the shadow driver.
func (s *Supervisor) tradeCycle(ctx context.Context) error {
	s.syncEquity(ctx)

	if s.comp.Guards.IsKillSwitchActive() {
		s.announceKillSwitch(ctx)
		return nil
	}

	analysis := s.comp.Reasoning.Latest()
	if analysis == nil {
		log.Debug().Msg("No analysis yet, trading cycle idle")
		return nil
	}

	series, err := s.comp.Market.FetchOHLCV(ctx, s.cfg.Symbol, s.cfg.Timeframe, s.cfg.CandleLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch candles: %w", err)
	}
	candles := series.Candles
	if len(candles) == 0 {
		return fmt.Errorf("market returned no candles for %s", s.cfg.Symbol)
	}

	program, version := s.comp.Strategy.Active()
	indicators := program.CalculateIndicators(candles)
	decision := program.GenerateSignal(indicators, &strategy.AnalysisView{
		Signal:     analysis.Signal,
		Confidence: analysis.Confidence,
		Reasoning:  analysis.Reasoning,
	})

	price := candles[len(candles)-1].Close
	size := 0.0
	if decision.Action != strategy.ActionHold && s.comp.Architect != nil {
		size = s.comp.Architect.AdjustedSize(defaultOrderNotional)
	}

	log.Info().
		Str("action", decision.Action).
		Float64("confidence", decision.Confidence).
		Str("reason", decision.Reason).
		Float64("price", price).
		Float64("size_usdt", size).
		Uint64("strategy_version", version).
		Msg("Trading signal")

	if decision.Action == strategy.ActionHold {
		return nil
	}
	s.offerShadow(shadowTick{
		action:     decision.Action,
		price:      price,
		volatility: realizedVolatility(lastCloses(candles, closeWindow)),
	})
	return nil
}

// syncEquity folds the exchange balance of the quote asset into the
// guardrails. A failed fetch leaves the last known equity in place, so
// the kill switch keeps judging real numbers.
func (s *Supervisor) syncEquity(ctx context.Context) {
	balance, err := s.comp.Market.FetchBalance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Balance fetch failed, equity unchanged")
		metrics.RecordError("balance", "trading")
		return
	}
	asset := quoteAsset(s.cfg.Symbol)
	held, ok := balance.Assets[asset]
	if !ok {
		log.Warn().Str("asset", asset).Msg("Quote asset missing from balance, equity unchanged")
		return
	}
	s.comp.Guards.UpdateEquity(held.Free + held.Locked)
}

// announceKillSwitch alerts exactly once on the latch engaging and
// then keeps a quieter heartbeat while trading stays halted.
func (s *Supervisor) announceKillSwitch(ctx context.Context) {
	s.mu.Lock()
	first := !s.killSeen
	s.killSeen = true
	s.mu.Unlock()

	status := s.comp.Guards.Status()
	if !first {
		log.Warn().
			Float64("equity", status.CurrentEquity).
			Msg("Kill switch active, trading halted")
		return
	}

	log.Error().
		Float64("equity", status.CurrentEquity).
		Float64("change_pct", status.EquityChangePct).
		Msg("Kill switch engaged, halting trading until operator restart")
	alerts.AlertKillSwitch(ctx, status.EquityChangePct/100, s.cfg.KillSwitchThreshold)
	s.publish(ctx, bus.EventKillSwitch, status)
}

// offerShadow hands a tick to the shadow driver without ever blocking
// the trading loop: a stale undelivered tick is replaced by the fresh
// one.
func (s *Supervisor) offerShadow(tick shadowTick) {
	if s.comp.Shadow == nil {
		return
	}
	for {
		select {
		case s.shadowCh <- tick:
			return
		default:
		}
		select {
		case <-s.shadowCh:
		default:
		}
	}
}

func (s *Supervisor) shadowLoop(ctx context.Context) error {
	log.Info().Msg("Shadow driver started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-s.shadowCh:
			s.driveShadow(ctx, tick)
		}
	}
}

func (s *Supervisor) driveShadow(ctx context.Context, tick shadowTick) {
	result := s.comp.Shadow.Simulate(tick.action, tick.price, tick.volatility)
	if result.Promotion == nil {
		return
	}
	p := result.Promotion
	log.Warn().
		Float64("shadow_sharpe", p.ShadowSharpe).
		Float64("live_sharpe", p.LiveSharpe).
		Int("iterations", p.Iterations).
		Msg("Shadow strategy qualifies for promotion")
	alerts.AlertPromotion(ctx, p.ShadowSharpe, p.LiveSharpe, p.Iterations)
	s.publish(ctx, bus.EventPromotion, p)
}

// lastCloses extracts up to n trailing closes from the window
func lastCloses(candles []market.Candle, n int) []float64 {
	if n > len(candles) {
		n = len(candles)
	}
	out := make([]float64, 0, n)
	for _, c := range candles[len(candles)-n:] {
		out = append(out, c.Close)
	}
	return out
}

// realizedVolatility is the standard deviation of simple returns over
// the close window
func realizedVolatility(closes []float64) float64 {
	if len(closes) < 2 {
		return fallbackVolatility
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	if len(returns) == 0 {
		return fallbackVolatility
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// quoteAsset extracts the settlement currency from a "BASE/QUOTE" pair
func quoteAsset(symbol string) string {
	if _, quote, ok := strings.Cut(symbol, "/"); ok && quote != "" {
		return quote
	}
	return "USDT"
}
