// Package redteam statically screens candidate decision documents for
// survival characteristics before they can go live. Checks are keyword
// based: the screen never executes the candidate.
package redteam

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Check identifiers recorded in screen reports.
const (
	CheckStopLossPresent    = "stop_loss_present"
	CheckStopLossMissing    = "stop_loss_missing"
	CheckFlashCrashSurvival = "flash_crash_survival"
	CheckFlashCrashFailure  = "flash_crash_failure"
	CheckPositionPresent    = "position_limits_present"
	CheckPositionMissing    = "position_limits_missing"
	CheckDrawdownPresent    = "drawdown_monitoring_present"
	CheckDrawdownMissing    = "drawdown_monitoring_missing"
)

var stopLossVocab = []string{
	"stop_loss", "stop-loss", "stoploss", "max_loss",
	"loss_threshold", "drawdown_limit", "kill_switch",
}

var positionVocab = []string{
	"position_size", "max_position", "size_limit",
	"position_limit", "max_size", "leverage_limit",
}

var drawdownVocab = []string{
	"drawdown", "max_dd", "max_drawdown",
	"cumulative_loss", "peak_to_trough", "underwater",
}

// The crash simulation scores defensive mechanisms against narrower
// vocabularies than the presence checks above.
var crashPositionVocab = []string{"position_size", "max_position", "size_limit"}
var crashRiskVocab = []string{"risk", "drawdown", "volatility"}

// Config controls the screen thresholds
type Config struct {
	FlashCrashPct        float64 `mapstructure:"flash_crash_pct"`
	MaxDrawdownThreshold float64 `mapstructure:"max_drawdown_threshold"`
	StopLossRequired     bool    `mapstructure:"stop_loss_required"`
}

// DefaultConfig simulates a 20% crash against a 15% drawdown ceiling
func DefaultConfig() Config {
	return Config{
		FlashCrashPct:        -0.20,
		MaxDrawdownThreshold: 0.15,
		StopLossRequired:     true,
	}
}

// CrashSimulation describes the flash-crash survivability estimate
type CrashSimulation struct {
	SimulatedCrashPct float64 `json:"simulated_crash_pct"`
	EstimatedDrawdown float64 `json:"estimated_drawdown"`
	MaxThreshold      float64 `json:"max_threshold"`
	StopLoss          bool    `json:"stop_loss"`
	PositionLimits    bool    `json:"position_limits"`
	RiskManagement    bool    `json:"risk_management"`
}

// Report is the outcome of one screen run
type Report struct {
	Timestamp       time.Time           `json:"timestamp"`
	Metadata        map[string]any      `json:"metadata,omitempty"`
	TestsPassed     []string            `json:"tests_passed"`
	TestsFailed     []string            `json:"tests_failed"`
	Recommendations []string            `json:"recommendations"`
	KeywordsFound   map[string][]string `json:"keywords_found,omitempty"`
	Crash           CrashSimulation     `json:"crash_simulation"`
	Approved        bool                `json:"approved"`
}

// Summary aggregates all screen runs performed by this instance
type Summary struct {
	TotalAudits  int     `json:"total_audits"`
	Approved     int     `json:"approved"`
	Rejected     int     `json:"rejected"`
	ApprovalRate float64 `json:"approval_rate"`
	Latest       *Report `json:"latest_audit,omitempty"`
}

// Screen runs the four-check adversarial screen and keeps an audit
// history for reporting
type Screen struct {
	cfg Config

	mu      sync.Mutex
	history []Report

	now func() time.Time
}

// New creates a screen with the given thresholds
func New(cfg Config) *Screen {
	return &Screen{cfg: cfg, now: time.Now}
}

// Evaluate screens a candidate source. Approval requires the stop-loss
// check (when required) and flash-crash survival; position sizing and
// drawdown monitoring are advisory.
func (s *Screen) Evaluate(source []byte, metadata map[string]any) (bool, Report) {
	lower := strings.ToLower(string(source))

	report := Report{
		Timestamp:     s.now(),
		Metadata:      metadata,
		KeywordsFound: make(map[string][]string),
	}

	hasStopLoss, stopWords := matchVocab(lower, stopLossVocab)
	report.KeywordsFound["stop_loss"] = stopWords
	if hasStopLoss {
		report.TestsPassed = append(report.TestsPassed, CheckStopLossPresent)
	} else {
		report.TestsFailed = append(report.TestsFailed, CheckStopLossMissing)
		if s.cfg.StopLossRequired {
			report.Recommendations = append(report.Recommendations,
				"CRITICAL: implement a stop-loss mechanism to prevent unbounded drawdown")
		}
	}

	report.Crash = s.simulateFlashCrash(lower)
	if report.Crash.EstimatedDrawdown <= s.cfg.MaxDrawdownThreshold {
		report.TestsPassed = append(report.TestsPassed, CheckFlashCrashSurvival)
	} else {
		report.TestsFailed = append(report.TestsFailed, CheckFlashCrashFailure)
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("strategy shows %.1f%% drawdown in a flash crash, exceeds the %.1f%% threshold",
				report.Crash.EstimatedDrawdown*100, s.cfg.MaxDrawdownThreshold*100))
	}

	hasPosition, posWords := matchVocab(lower, positionVocab)
	report.KeywordsFound["position_limits"] = posWords
	if hasPosition {
		report.TestsPassed = append(report.TestsPassed, CheckPositionPresent)
	} else {
		report.TestsFailed = append(report.TestsFailed, CheckPositionMissing)
		report.Recommendations = append(report.Recommendations,
			"consider adding position sizing limits to prevent over-leverage")
	}

	hasDrawdown, ddWords := matchVocab(lower, drawdownVocab)
	report.KeywordsFound["drawdown_monitoring"] = ddWords
	if hasDrawdown {
		report.TestsPassed = append(report.TestsPassed, CheckDrawdownPresent)
	} else {
		report.TestsFailed = append(report.TestsFailed, CheckDrawdownMissing)
		report.Recommendations = append(report.Recommendations,
			"add drawdown monitoring to track cumulative losses")
	}

	critical := 0
	if s.cfg.StopLossRequired && contains(report.TestsFailed, CheckStopLossMissing) {
		critical++
	}
	if contains(report.TestsFailed, CheckFlashCrashFailure) {
		critical++
	}
	report.Approved = critical == 0

	if report.Approved {
		log.Info().
			Int("tests_passed", len(report.TestsPassed)).
			Msg("Candidate approved by adversarial screen")
	} else {
		log.Warn().
			Int("critical_failures", critical).
			Strs("tests_failed", report.TestsFailed).
			Msg("Candidate rejected by adversarial screen")
	}

	s.mu.Lock()
	s.history = append(s.history, report)
	s.mu.Unlock()

	return report.Approved, report
}

// simulateFlashCrash estimates drawdown in a crash of the configured
// depth. Each defensive mechanism present in the source scales the
// damage down.
func (s *Screen) simulateFlashCrash(lower string) CrashSimulation {
	hasStopLoss := strings.Contains(lower, "stop_loss")
	hasPosition, _ := matchVocab(lower, crashPositionVocab)
	hasRisk, _ := matchVocab(lower, crashRiskVocab)

	drawdown := s.cfg.FlashCrashPct
	if drawdown < 0 {
		drawdown = -drawdown
	}
	if hasStopLoss {
		drawdown *= 0.4
	}
	if hasPosition {
		drawdown *= 0.7
	}
	if hasRisk {
		drawdown *= 0.8
	}

	return CrashSimulation{
		SimulatedCrashPct: s.cfg.FlashCrashPct,
		EstimatedDrawdown: drawdown,
		MaxThreshold:      s.cfg.MaxDrawdownThreshold,
		StopLoss:          hasStopLoss,
		PositionLimits:    hasPosition,
		RiskManagement:    hasRisk,
	}
}

// Summary returns aggregate statistics over the screen history
func (s *Screen) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{TotalAudits: len(s.history)}
	if len(s.history) == 0 {
		return summary
	}

	for i := range s.history {
		if s.history[i].Approved {
			summary.Approved++
		}
	}
	summary.Rejected = summary.TotalAudits - summary.Approved
	summary.ApprovalRate = float64(summary.Approved) / float64(summary.TotalAudits)

	latest := s.history[len(s.history)-1]
	summary.Latest = &latest
	return summary
}

func matchVocab(lower string, vocab []string) (bool, []string) {
	var found []string
	for _, word := range vocab {
		if strings.Contains(lower, word) {
			found = append(found, word)
		}
	}
	return len(found) > 0, found
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
