package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AbhayRathi/AlphaWEEX/internal/state"
)

func TestAdjustedSize(t *testing.T) {
	tests := []struct {
		name      string
		base      float64
		sentiment float64
		risk      state.RiskLevel
		whale     bool
		expected  float64
	}{
		{
			name:      "neutral conditions",
			base:      1000.0,
			sentiment: 1.0,
			risk:      state.RiskNormal,
			whale:     false,
			expected:  1000.0,
		},
		{
			name:      "euphoric sentiment only",
			base:      1000.0,
			sentiment: 0.6,
			risk:      state.RiskNormal,
			whale:     false,
			expected:  600.0,
		},
		{
			name:      "high risk halves size",
			base:      1000.0,
			sentiment: 1.0,
			risk:      state.RiskHigh,
			whale:     false,
			expected:  500.0,
		},
		{
			name:      "whale dump reduces size",
			base:      1000.0,
			sentiment: 1.0,
			risk:      state.RiskNormal,
			whale:     true,
			expected:  700.0,
		},
		{
			name:      "all factors stack",
			base:      1000.0,
			sentiment: 0.9,
			risk:      state.RiskHigh,
			whale:     true,
			expected:  315.0, // 1000 * 0.9 * 0.5 * 0.7
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := state.New()
			s.SetRisk(tt.risk, nil)
			s.SetSentiment(tt.sentiment, nil)
			s.SetWhaleDump(tt.whale)

			b := AdjustedSize(tt.base, s.Snapshot())
			assert.InDelta(t, tt.expected, b.Final, 1e-9)
			assert.Equal(t, tt.base, b.Base)
		})
	}
}

func TestAdjustedSizeBreakdownFactors(t *testing.T) {
	s := state.New()
	s.SetRisk(state.RiskHigh, nil)
	s.SetWhaleDump(true)

	b := AdjustedSize(500.0, s.Snapshot())
	assert.Equal(t, HighRiskFactor, b.RiskFactor)
	assert.Equal(t, WhaleDumpFactor, b.WhaleFactor)
	assert.Equal(t, 1.0, b.SentimentMultiplier)
}
