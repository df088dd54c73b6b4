package risk

import (
	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/state"
)

// Size reduction factors applied on top of the sentiment multiplier
const (
	HighRiskFactor  = 0.5
	WhaleDumpFactor = 0.7
)

// SizeBreakdown records every factor applied to a base position size so
// the decision can be reconstructed from logs.
type SizeBreakdown struct {
	Base                float64 `json:"base"`
	SentimentMultiplier float64 `json:"sentiment_multiplier"`
	RiskFactor          float64 `json:"risk_factor"`
	WhaleFactor         float64 `json:"whale_factor"`
	Final               float64 `json:"final"`
}

// AdjustedSize applies the shared risk snapshot to a base position size.
// All factors come from one snapshot so a concurrent update cannot mix
// old and new risk state into the same sizing decision.
func AdjustedSize(base float64, snap state.Snapshot) SizeBreakdown {
	b := SizeBreakdown{
		Base:                base,
		SentimentMultiplier: snap.SentimentMultiplier,
		RiskFactor:          1.0,
		WhaleFactor:         1.0,
	}

	size := base * snap.SentimentMultiplier

	if snap.RiskLevel == state.RiskHigh {
		b.RiskFactor = HighRiskFactor
		size *= HighRiskFactor
	}
	if snap.WhaleDumpRisk {
		b.WhaleFactor = WhaleDumpFactor
		size *= WhaleDumpFactor
	}

	b.Final = size

	log.Debug().
		Float64("base", base).
		Float64("sentiment", b.SentimentMultiplier).
		Float64("risk_factor", b.RiskFactor).
		Float64("whale_factor", b.WhaleFactor).
		Float64("final", b.Final).
		Msg("Adjusted position size")

	return b
}
