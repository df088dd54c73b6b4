// Package strategy defines the active decision document: a versioned,
// auditable JSON description of indicators and signal rules that the
// Architect rewrites and the signal-execution loop runs. The serialized
// form is what code audits and adversarial screens inspect.
package strategy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current document schema version
const SchemaVersion = "1.0"

// SupportedSchemaVersions lists all schema versions this build can load
var SupportedSchemaVersions = []string{"1.0"}

// Signal actions
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// Document is an exportable decision-module definition
type Document struct {
	Metadata   Metadata        `json:"metadata"`
	Indicators []IndicatorSpec `json:"indicators"`
	Signal     SignalSpec      `json:"signal"`
	Risk       RiskSpec        `json:"risk"`
}

// Metadata identifies a document and its provenance
type Metadata struct {
	SchemaVersion string    `json:"schema_version"`
	ID            string    `json:"id,omitempty"`
	Name          string    `json:"name"`
	Version       string    `json:"version,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	Source        string    `json:"source,omitempty"` // "default", "architect"
}

// IndicatorSpec declares one named indicator computed per window
type IndicatorSpec struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Period int    `json:"period,omitempty"`
}

// SignalSpec holds the ordered decision rules. The first matching rule
// wins; no match yields a HOLD at the base confidence.
type SignalSpec struct {
	Rules          []Rule  `json:"rules"`
	BaseConfidence float64 `json:"base_confidence"`
	HoldReason     string  `json:"hold_reason,omitempty"`
}

// Rule maps a conjunction of conditions to an action
type Rule struct {
	When       []Condition `json:"when"`
	Action     string      `json:"action"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason,omitempty"`
}

// Condition compares an indicator against another indicator or a
// constant. Exactly one of Right and Value is set.
type Condition struct {
	Left  string   `json:"left"`
	Op    string   `json:"op"` // "gt", "lt", "gte", "lte"
	Right string   `json:"right,omitempty"`
	Value *float64 `json:"value,omitempty"`
}

// RiskSpec carries the document's risk controls. Audits check these
// fields for presence and sanity.
type RiskSpec struct {
	StopLossPct    float64 `json:"stop_loss_pct"`
	MaxPositionPct float64 `json:"max_position_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// Decision is the output of a compiled document's signal step
type Decision struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// AnalysisView is the slice of a reasoning analysis the signal step
// consumes.
type AnalysisView struct {
	Signal     string
	Confidence float64
	Reasoning  string
}

// Parse decodes a serialized document
func Parse(source []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(source, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse strategy document: %w", err)
	}
	return &doc, nil
}

// Source returns the canonical serialized form of the document
func (d *Document) Source() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize strategy document: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy via the serialized form
func (d *Document) Clone() (*Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to clone strategy document: %w", err)
	}
	var copied Document
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to clone strategy document: %w", err)
	}
	return &copied, nil
}

// DefaultDocument returns the built-in moving-average crossover
// strategy the system starts with before any evolution.
func DefaultDocument() *Document {
	return &Document{
		Metadata: Metadata{
			SchemaVersion: SchemaVersion,
			ID:            uuid.New().String(),
			Name:          "ma-crossover-baseline",
			Version:       "1.0.0",
			Description:   "Moving-average crossover with reasoning override",
			CreatedAt:     time.Now().UTC(),
			Source:        "default",
		},
		Indicators: []IndicatorSpec{
			{Name: "sma_5", Type: "sma", Period: 5},
			{Name: "sma_20", Type: "sma", Period: 20},
			{Name: "current_price", Type: "current_price"},
			{Name: "avg_volume", Type: "avg_volume"},
			{Name: "current_volume", Type: "current_volume"},
		},
		Signal: SignalSpec{
			BaseConfidence: 0.5,
			HoldReason:     "Default hold position",
			Rules: []Rule{
				{
					When: []Condition{
						{Left: "sma_5", Op: "gt", Right: "sma_20"},
						{Left: "current_price", Op: "gt", Right: "sma_5"},
					},
					Action:     ActionBuy,
					Confidence: 0.65,
					Reason:     "Short MA above long MA, price trending up",
				},
				{
					When: []Condition{
						{Left: "sma_5", Op: "lt", Right: "sma_20"},
						{Left: "current_price", Op: "lt", Right: "sma_5"},
					},
					Action:     ActionSell,
					Confidence: 0.65,
					Reason:     "Short MA below long MA, price trending down",
				},
			},
		},
		Risk: RiskSpec{
			StopLossPct:    0.05,
			MaxPositionPct: 0.5,
			MaxDrawdownPct: 0.10,
		},
	}
}
