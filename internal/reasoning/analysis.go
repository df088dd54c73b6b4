// Package reasoning runs the periodic market analysis that every other
// loop reads. It publishes an immutable Analysis snapshot; consumers
// never see a partially written value.
package reasoning

import (
	"time"

	"github.com/AbhayRathi/AlphaWEEX/internal/regime"
)

// EvolutionSuggestion asks the Architect to consider a rewrite of the
// active decision document
type EvolutionSuggestion struct {
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion"`
}

// AnalysisMetrics carries the raw numbers behind a signal
type AnalysisMetrics struct {
	CurrentPrice float64 `json:"current_price"`
	PriceChange  float64 `json:"price_change"`
	SMAShort     float64 `json:"sma_short"`
	SMALong      float64 `json:"sma_long"`
	VolumeSpike  bool    `json:"volume_spike"`
	ADX          float64 `json:"adx"`
	RSI          float64 `json:"rsi"`
}

// Analysis is one complete reasoning cycle output
type Analysis struct {
	Timestamp           time.Time            `json:"timestamp"`
	Symbol              string               `json:"symbol"`
	Signal              string               `json:"signal"`
	Confidence          float64              `json:"confidence"`
	Reasoning           string               `json:"reasoning"`
	Regime              regime.Regime        `json:"regime"`
	Metrics             AnalysisMetrics      `json:"metrics"`
	EvolutionSuggestion *EvolutionSuggestion `json:"evolution_suggestion,omitempty"`
}
