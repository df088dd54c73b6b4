package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	s := New()

	assert.Equal(t, RiskNormal, s.Risk())
	assert.Equal(t, 1.0, s.Sentiment())
	assert.False(t, s.WhaleDump())

	snap := s.Snapshot()
	assert.Equal(t, RiskNormal, snap.RiskLevel)
	assert.True(t, snap.RiskUpdatedAt.IsZero())
}

func TestSetRisk(t *testing.T) {
	s := New()

	s.SetRisk(RiskHigh, map[string]interface{}{"reason": "spy drop"})
	assert.Equal(t, RiskHigh, s.Risk())

	snap := s.Snapshot()
	assert.Equal(t, "spy drop", snap.RiskPayload["reason"])
	assert.False(t, snap.RiskUpdatedAt.IsZero())
}

func TestSentimentClamping(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"below minimum", 0.1, 0.5},
		{"at minimum", 0.5, 0.5},
		{"neutral", 1.0, 1.0},
		{"at maximum", 1.5, 1.5},
		{"above maximum", 2.3, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.SetSentiment(tt.input, nil)
			assert.Equal(t, tt.expected, s.Sentiment())
		})
	}
}

func TestElevateRisk(t *testing.T) {
	s := New()

	changed := s.ElevateRisk(map[string]interface{}{"source": "whale_flow"})
	assert.True(t, changed)
	assert.Equal(t, RiskHigh, s.Risk())

	// Second elevation is a no-op
	changed = s.ElevateRisk(nil)
	assert.False(t, changed)
	assert.Equal(t, RiskHigh, s.Risk())

	// Payload from the first elevation survives the no-op
	snap := s.Snapshot()
	assert.Equal(t, "whale_flow", snap.RiskPayload["source"])
}

func TestSnapshotIsolation(t *testing.T) {
	s := New()
	s.SetRisk(RiskHigh, map[string]interface{}{"reason": "original"})

	snap := s.Snapshot()
	snap.RiskPayload["reason"] = "mutated"

	// The store must not observe mutations of the returned copy
	assert.Equal(t, "original", s.Snapshot().RiskPayload["reason"])
}

func TestConcurrentAccess(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				s.SetRisk(RiskHigh, nil)
			} else {
				s.SetRisk(RiskNormal, nil)
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			s.SetSentiment(0.5+float64(n%10)*0.1, nil)
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
			_ = s.Risk()
			_ = s.Sentiment()
			_ = s.WhaleDump()
		}()
	}
	wg.Wait()

	// Multiplier always lands inside its bounds
	m := s.Sentiment()
	assert.GreaterOrEqual(t, m, 0.5)
	assert.LessOrEqual(t, m, 1.5)
}
