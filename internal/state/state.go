package state

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RiskLevel is the process-wide macro risk posture
type RiskLevel string

const (
	RiskNormal RiskLevel = "NORMAL"
	RiskHigh   RiskLevel = "HIGH"
)

// Sentiment multiplier bounds. Values outside are clamped on set.
const (
	SentimentMin     = 0.5
	SentimentMax     = 1.5
	SentimentNeutral = 1.0
)

// SharedState is the process-wide risk snapshot shared by all loops.
// Each operation is individually atomic; consumers that need a coherent
// multi-field view call Snapshot.
type SharedState struct {
	mu sync.RWMutex

	riskLevel     RiskLevel
	riskPayload   map[string]interface{}
	riskUpdatedAt time.Time

	sentimentMultiplier float64
	sentimentPayload    map[string]interface{}
	sentimentUpdatedAt  time.Time

	whaleDumpRisk  bool
	whaleUpdatedAt time.Time
}

// Snapshot is a point-in-time copy of every field
type Snapshot struct {
	RiskLevel           RiskLevel              `json:"risk_level"`
	RiskPayload         map[string]interface{} `json:"risk_payload,omitempty"`
	RiskUpdatedAt       time.Time              `json:"risk_updated_at"`
	SentimentMultiplier float64                `json:"sentiment_multiplier"`
	SentimentPayload    map[string]interface{} `json:"sentiment_payload,omitempty"`
	SentimentUpdatedAt  time.Time              `json:"sentiment_updated_at"`
	WhaleDumpRisk       bool                   `json:"whale_dump_risk"`
	WhaleUpdatedAt      time.Time              `json:"whale_updated_at"`
}

// New creates a SharedState with neutral defaults
func New() *SharedState {
	return &SharedState{
		riskLevel:           RiskNormal,
		sentimentMultiplier: SentimentNeutral,
	}
}

// SetRisk sets the global risk level. A transition is logged only when
// the level actually changes.
func (s *SharedState) SetRisk(level RiskLevel, payload map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if level != s.riskLevel {
		log.Info().
			Str("component", "shared_state").
			Str("from", string(s.riskLevel)).
			Str("to", string(level)).
			Msg("Risk level transition")
	}
	s.riskLevel = level
	s.riskPayload = copyPayload(payload)
	s.riskUpdatedAt = time.Now()
}

// ElevateRisk raises NORMAL to HIGH in a single atomic step. It never
// demotes. Returns true when the level changed.
func (s *SharedState) ElevateRisk(payload map[string]interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.riskLevel == RiskHigh {
		return false
	}
	log.Info().
		Str("component", "shared_state").
		Str("from", string(RiskNormal)).
		Str("to", string(RiskHigh)).
		Msg("Risk level transition")
	s.riskLevel = RiskHigh
	s.riskPayload = copyPayload(payload)
	s.riskUpdatedAt = time.Now()
	return true
}

// Risk returns the current risk level
func (s *SharedState) Risk() RiskLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.riskLevel
}

// SetSentiment sets the sentiment multiplier, clamped to [0.5, 1.5]
func (s *SharedState) SetSentiment(multiplier float64, payload map[string]interface{}) {
	if multiplier < SentimentMin {
		multiplier = SentimentMin
	}
	if multiplier > SentimentMax {
		multiplier = SentimentMax
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentimentMultiplier = multiplier
	s.sentimentPayload = copyPayload(payload)
	s.sentimentUpdatedAt = time.Now()
}

// Sentiment returns the current sentiment multiplier
func (s *SharedState) Sentiment() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sentimentMultiplier
}

// SetWhaleDump sets the whale-dump risk flag
func (s *SharedState) SetWhaleDump(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whaleDumpRisk = active
	s.whaleUpdatedAt = time.Now()
}

// WhaleDump returns the whale-dump risk flag
func (s *SharedState) WhaleDump() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.whaleDumpRisk
}

// Snapshot returns a deep copy of all fields taken under one lock
func (s *SharedState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		RiskLevel:           s.riskLevel,
		RiskPayload:         copyPayload(s.riskPayload),
		RiskUpdatedAt:       s.riskUpdatedAt,
		SentimentMultiplier: s.sentimentMultiplier,
		SentimentPayload:    copyPayload(s.sentimentPayload),
		SentimentUpdatedAt:  s.sentimentUpdatedAt,
		WhaleDumpRisk:       s.whaleDumpRisk,
		WhaleUpdatedAt:      s.whaleUpdatedAt,
	}
}

func copyPayload(p map[string]interface{}) map[string]interface{} {
	if p == nil {
		return nil
	}
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
