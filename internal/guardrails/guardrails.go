// Package guardrails holds the safety mechanisms that bound the
// self-evolving system: a latching equity kill-switch, a stability
// lock between evolutions, and the static audit every candidate
// decision document must pass before deployment.
package guardrails

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
)

// History retention. Longer than the kill-switch window so status
// surfaces can show a little context.
const historyRetention = 2 * time.Hour

// killSwitchWindow is the lookback for the equity drop check
const killSwitchWindow = time.Hour

type equityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Status is a point-in-time snapshot of the guardrail state
type Status struct {
	KillSwitchActive       bool       `json:"kill_switch_active"`
	CurrentEquity          float64    `json:"current_equity"`
	InitialEquity          float64    `json:"initial_equity"`
	EquityChangePct        float64    `json:"equity_change_pct"`
	CanEvolve              bool       `json:"can_evolve"`
	LastEvolution          *time.Time `json:"last_evolution,omitempty"`
	HoursSinceEvolution    float64    `json:"hours_since_evolution,omitempty"`
	StabilityLockRemaining float64    `json:"stability_lock_remaining,omitempty"`
}

// Guardrails tracks equity and evolution timing. The kill-switch
// latches: once triggered it stays active for the process lifetime.
type Guardrails struct {
	mu sync.Mutex

	initialEquity       float64
	currentEquity       float64
	killSwitchThreshold float64
	stabilityLockHours  float64

	lastEvolutionTime   *time.Time
	equityHistory       []equityPoint
	killSwitchTriggered bool

	now func() time.Time
}

// New creates guardrails with the given kill-switch threshold
// (fraction, e.g. 0.03) and stability lock in hours
func New(initialEquity, killSwitchThreshold float64, stabilityLockHours float64) *Guardrails {
	return &Guardrails{
		initialEquity:       initialEquity,
		currentEquity:       initialEquity,
		killSwitchThreshold: killSwitchThreshold,
		stabilityLockHours:  stabilityLockHours,
		now:                 time.Now,
	}
}

// UpdateEquity records a new equity observation and evaluates the
// kill-switch against the last hour
func (g *Guardrails) UpdateEquity(newEquity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.currentEquity = newEquity
	g.equityHistory = append(g.equityHistory, equityPoint{Timestamp: now, Equity: newEquity})
	g.pruneHistory(now)
	g.checkKillSwitch(now)
}

// pruneHistory drops entries beyond the retention window. Caller holds
// g.mu.
func (g *Guardrails) pruneHistory(now time.Time) {
	cutoff := now.Add(-historyRetention)
	firstKept := 0
	for firstKept < len(g.equityHistory) && g.equityHistory[firstKept].Timestamp.Before(cutoff) {
		firstKept++
	}
	if firstKept > 0 {
		g.equityHistory = append(g.equityHistory[:0], g.equityHistory[firstKept:]...)
	}
}

// checkKillSwitch latches when equity fell by at least the threshold
// within the window. The comparison is inclusive. Caller holds g.mu.
func (g *Guardrails) checkKillSwitch(now time.Time) {
	if g.killSwitchTriggered {
		return
	}

	windowStart := now.Add(-killSwitchWindow)
	var earliest *equityPoint
	for i := range g.equityHistory {
		if !g.equityHistory[i].Timestamp.Before(windowStart) {
			earliest = &g.equityHistory[i]
			break
		}
	}
	if earliest == nil || earliest.Equity == 0 {
		return
	}

	change := (g.currentEquity - earliest.Equity) / earliest.Equity
	if change <= -g.killSwitchThreshold {
		g.killSwitchTriggered = true
		metrics.UpdateKillSwitch(true)
		log.Error().
			Float64("change_pct", change*100).
			Float64("threshold_pct", g.killSwitchThreshold*100).
			Msg("KILL SWITCH TRIGGERED: equity dropped past threshold within one hour")
	}
}

// IsKillSwitchActive reports whether the kill-switch has latched
func (g *Guardrails) IsKillSwitchActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killSwitchTriggered
}

// CanEvolve reports whether the stability lock allows a new evolution
func (g *Guardrails) CanEvolve() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canEvolveLocked()
}

func (g *Guardrails) canEvolveLocked() bool {
	if g.lastEvolutionTime == nil {
		return true
	}

	hoursSince := g.now().Sub(*g.lastEvolutionTime).Hours()
	if hoursSince < g.stabilityLockHours {
		log.Info().
			Float64("hours_since", hoursSince).
			Float64("lock_hours", g.stabilityLockHours).
			Msg("Evolution locked by stability window")
		return false
	}
	return true
}

// MarkEvolution starts a new stability lock
func (g *Guardrails) MarkEvolution() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.lastEvolutionTime = &now
	log.Info().
		Time("at", now).
		Float64("lock_hours", g.stabilityLockHours).
		Msg("Evolution marked, stability lock active")
}

// CurrentEquity returns the last recorded equity
func (g *Guardrails) CurrentEquity() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentEquity
}

// Status returns a snapshot of the guardrail state
func (g *Guardrails) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	status := Status{
		KillSwitchActive: g.killSwitchTriggered,
		CurrentEquity:    g.currentEquity,
		InitialEquity:    g.initialEquity,
		EquityChangePct:  (g.currentEquity - g.initialEquity) / g.initialEquity * 100,
		CanEvolve:        g.canEvolveLocked(),
	}

	if g.lastEvolutionTime != nil {
		t := *g.lastEvolutionTime
		status.LastEvolution = &t
		hoursSince := g.now().Sub(t).Hours()
		status.HoursSinceEvolution = hoursSince
		remaining := g.stabilityLockHours - hoursSince
		if remaining < 0 {
			remaining = 0
		}
		status.StabilityLockRemaining = remaining
	}

	return status
}
