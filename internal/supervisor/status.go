package supervisor

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/bus"
)

// statusLoop emits the operator heartbeat. It sleeps first; there is
// nothing worth reporting before the components have run once.
func (s *Supervisor) statusLoop(ctx context.Context) error {
	for {
		if err := sleep(ctx, s.cfg.StatusInterval); err != nil {
			return err
		}
		s.statusCycle(ctx)
	}
}

// statusCycle writes one log line and one bus event with the same
// picture of the system
func (s *Supervisor) statusCycle(ctx context.Context) {
	status := s.comp.Guards.Status()
	snapshot := s.comp.Shared.Snapshot()

	signal := "NONE"
	if a := s.comp.Reasoning.Latest(); a != nil {
		signal = a.Signal
	}
	evolutions := 0
	if s.comp.Architect != nil {
		evolutions = len(s.comp.Architect.History())
	}

	log.Info().
		Bool("kill_switch", status.KillSwitchActive).
		Float64("equity", status.CurrentEquity).
		Float64("equity_change_pct", status.EquityChangePct).
		Bool("can_evolve", status.CanEvolve).
		Float64("lock_remaining_hours", status.StabilityLockRemaining).
		Str("risk", string(snapshot.RiskLevel)).
		Bool("whale_dump_risk", snapshot.WhaleDumpRisk).
		Float64("sentiment_multiplier", snapshot.SentimentMultiplier).
		Str("latest_signal", signal).
		Int("evolutions", evolutions).
		Msg("Status report")

	s.publish(ctx, bus.EventStatus, map[string]interface{}{
		"guardrails":      status,
		"risk_level":      snapshot.RiskLevel,
		"whale_dump_risk": snapshot.WhaleDumpRisk,
		"sentiment":       snapshot.SentimentMultiplier,
		"latest_signal":   signal,
		"evolutions":      evolutions,
	})
}
