// Package alerts fans operator alerts out over the configured
// channels. The structured log is always a channel; Telegram and the
// event bus attach when configured.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert represents an alert message
type Alert struct {
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Severity  Severity               `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Alerter defines the interface for sending alerts
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager manages multiple alert channels
type Manager struct {
	alerters []Alerter
}

// NewManager creates a new alert manager
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{
		alerters: alerters,
	}
}

// Send sends an alert to all configured alerters. A failed channel is
// logged and skipped so one dead channel cannot silence the rest.
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}

	return lastErr
}

// SendCritical is a convenience method for sending critical alerts
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityCritical,
		Metadata: metadata,
	})
}

// SendWarning is a convenience method for sending warning alerts
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityWarning,
		Metadata: metadata,
	})
}

// SendInfo is a convenience method for sending info alerts
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityInfo,
		Metadata: metadata,
	})
}

// LogAlerter logs alerts using zerolog
type LogAlerter struct{}

// NewLogAlerter creates a new log-based alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// Send sends an alert by logging it
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := log.Log()

	// Set log level based on severity
	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	case SeverityInfo:
		event = log.Info()
	}

	// Add metadata fields
	if alert.Metadata != nil {
		for key, value := range alert.Metadata {
			event = event.Interface(key, value)
		}
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(fmt.Sprintf("🚨 ALERT: %s", alert.Message))

	return nil
}

// ConsoleAlerter prints alerts to console with prominent formatting
type ConsoleAlerter struct{}

// NewConsoleAlerter creates a new console-based alerter
func NewConsoleAlerter() *ConsoleAlerter {
	return &ConsoleAlerter{}
}

// Send sends an alert by printing to console
func (c *ConsoleAlerter) Send(ctx context.Context, alert Alert) error {
	banner := ""
	switch alert.Severity {
	case SeverityCritical:
		banner = "🚨🚨🚨 CRITICAL ALERT 🚨🚨🚨"
	case SeverityWarning:
		banner = "⚠️  WARNING ALERT ⚠️"
	case SeverityInfo:
		banner = "ℹ️  INFO ALERT ℹ️"
	}

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println(banner)
	fmt.Println("========================================")
	fmt.Printf("Title: %s\n", alert.Title)
	fmt.Printf("Message: %s\n", alert.Message)
	fmt.Printf("Severity: %s\n", alert.Severity)
	fmt.Printf("Time: %s\n", alert.Timestamp.Format(time.RFC3339))

	if len(alert.Metadata) > 0 {
		fmt.Println("Metadata:")
		for key, value := range alert.Metadata {
			fmt.Printf("  - %s: %v\n", key, value)
		}
	}

	fmt.Println("========================================")
	fmt.Println()

	return nil
}

// EventPublisher is the slice of the event bus the alerter uses
type EventPublisher interface {
	Publish(ctx context.Context, eventType, source string, payload interface{}) error
}

// BusAlerter republishes alerts on the event bus so dashboard
// consumers see them alongside analysis and risk events
type BusAlerter struct {
	pub EventPublisher
}

// NewBusAlerter creates a bus-backed alerter
func NewBusAlerter(pub EventPublisher) *BusAlerter {
	return &BusAlerter{pub: pub}
}

// Send publishes the alert as an event
func (b *BusAlerter) Send(ctx context.Context, alert Alert) error {
	return b.pub.Publish(ctx, "alert", "alerts", alert)
}

// Default global alert manager (can be replaced with custom configuration)
var defaultManager *Manager

func init() {
	// Initialize with log and console alerters by default
	defaultManager = NewManager(
		NewLogAlerter(),
		NewConsoleAlerter(),
	)
}

// GetDefaultManager returns the default alert manager
func GetDefaultManager() *Manager {
	return defaultManager
}

// SetDefaultManager sets the default alert manager
func SetDefaultManager(manager *Manager) {
	defaultManager = manager
}

// Helper functions for common alerts

// AlertKillSwitch announces the drawdown latch engaging
func AlertKillSwitch(ctx context.Context, drawdown, threshold float64) {
	defaultManager.SendCritical(ctx, "Kill Switch Engaged", fmt.Sprintf(
		"Portfolio drawdown %.2f%% breached the %.2f%% limit. All signals are forced to HOLD until restart.",
		drawdown*100, threshold*100,
	), map[string]interface{}{
		"drawdown":  drawdown,
		"threshold": threshold,
	})
}

// AlertPromotion announces the shadow arm outperforming the live arm
func AlertPromotion(ctx context.Context, shadowSharpe, liveSharpe float64, iterations int) {
	defaultManager.SendWarning(ctx, "Shadow Strategy Promotion", fmt.Sprintf(
		"Shadow strategy outperforms live: Sharpe %.2f > %.2f over %d iterations.",
		shadowSharpe, liveSharpe, iterations,
	), map[string]interface{}{
		"shadow_sharpe": shadowSharpe,
		"live_sharpe":   liveSharpe,
		"iterations":    iterations,
	})
}

// AlertEvolutionCommitted announces an accepted strategy evolution
func AlertEvolutionCommitted(ctx context.Context, index int, reason string) {
	defaultManager.SendInfo(ctx, "Strategy Evolution Committed", fmt.Sprintf(
		"Evolution #%d deployed: %s", index, reason,
	), map[string]interface{}{
		"evolution_index": index,
		"reason":          reason,
	})
}

// AlertEvolutionRejected announces an evolution stopped before deployment
func AlertEvolutionRejected(ctx context.Context, stage, reason string) {
	defaultManager.SendWarning(ctx, "Strategy Evolution Rejected", fmt.Sprintf(
		"Evolution blocked at %s: %s", stage, reason,
	), map[string]interface{}{
		"stage":  stage,
		"reason": reason,
	})
}

// AlertRegionalBlock announces the LLM provider refusing this region
func AlertRegionalBlock(ctx context.Context, component string) {
	defaultManager.SendCritical(ctx, "LLM Provider Regional Block", fmt.Sprintf(
		"Provider returned HTTP 451 for %s. Analysis continues in degraded mode without the LLM.",
		component,
	), map[string]interface{}{
		"component": component,
	})
}
