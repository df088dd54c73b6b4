package supervisor

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/alerts"
	"github.com/AbhayRathi/AlphaWEEX/internal/architect"
	"github.com/AbhayRathi/AlphaWEEX/internal/bus"
	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
)

// evolutionLoop checks once a minute whether the latest analysis
// carries an evolution suggestion. It sleeps first: a suggestion can
// only exist after the reasoning loop has produced an analysis.
func (s *Supervisor) evolutionLoop(ctx context.Context) error {
	log.Info().
		Dur("interval", s.cfg.GateInterval).
		Msg("Evolution gate started")

	for {
		if err := sleep(ctx, s.cfg.GateInterval); err != nil {
			return err
		}
		if err := s.evolutionCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Evolution attempt failed")
			metrics.RecordError("cycle", "evolution")
		}
	}
}

// evolutionCycle hands a pending suggestion to the architect. The
// architect runs every gate itself; the cycle only supplies context
// and reacts to the outcome. A commit needs no explicit reload: the
// store swaps the compiled program the moment the write lands.
func (s *Supervisor) evolutionCycle(ctx context.Context) error {
	analysis := s.comp.Reasoning.Latest()
	if analysis == nil || analysis.EvolutionSuggestion == nil {
		return nil
	}

	if s.comp.Explorer != nil {
		if hyp := s.comp.Explorer.Latest(); hyp != nil {
			log.Info().
				Str("hypothesis", hyp.Text).
				Float64("confidence", hyp.Confidence).
				Str("source", hyp.Source).
				Msg("Explorer context for evolution attempt")
		}
	}

	before := s.comp.Strategy.Version()
	committed, err := s.comp.Architect.Evolve(ctx, analysis)
	if err != nil {
		return err
	}
	if !committed {
		return nil
	}

	event := s.lastEvolution()
	log.Info().
		Uint64("from_version", before).
		Uint64("to_version", s.comp.Strategy.Version()).
		Str("reason", event.Reason).
		Msg("Strategy evolved and hot-swapped")
	alerts.AlertEvolutionCommitted(ctx, event.MemoryIndex, event.Reason)
	s.publish(ctx, bus.EventEvolution, event)
	return nil
}

func (s *Supervisor) lastEvolution() architect.EvolutionEvent {
	history := s.comp.Architect.History()
	if len(history) == 0 {
		return architect.EvolutionEvent{}
	}
	return history[len(history)-1]
}
