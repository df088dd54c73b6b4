package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// These ensure metrics don't have unbounded label values which can cause memory issues.
const (
	// Evolution gate names (bounded set)
	GateKillSwitch    = "kill_switch"
	GateStabilityLock = "stability_lock"
	GateBlacklist     = "blacklist"
	GateAudit         = "audit"
	GateScreen        = "adversarial_screen"
	GateBacktest      = "backtest"

	// LLM error categories (bounded set)
	LLMErrorRegionalBlock = "regional_block"
	LLMErrorTimeout       = "timeout"
	LLMErrorAuth          = "authentication"
	LLMErrorParse         = "parse"
	LLMErrorOther         = "other"

	// Market data sources (bounded set)
	SourceLive     = "live"
	SourceFallback = "fallback"
	SourceCache    = "cache"
)

// NormalizeLLMError maps arbitrary LLM errors to a bounded set
func NormalizeLLMError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "451") || strings.Contains(errStr, "regional"):
		return LLMErrorRegionalBlock
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return LLMErrorTimeout
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return LLMErrorAuth
	case strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") || strings.Contains(errStr, "json"):
		return LLMErrorParse
	default:
		return LLMErrorOther
	}
}

// Reasoning Loop Metrics
var (
	// Analyses published by signal
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphaweex_analyses_total",
		Help: "Total number of published analyses by signal",
	}, []string{"signal"})

	// Confidence of the most recent analysis
	AnalysisConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphaweex_analysis_confidence",
		Help: "Confidence of the most recent analysis (0.0 to 1.0)",
	})

	// Reasoning iteration duration
	ReasoningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alphaweex_reasoning_duration_ms",
		Help:    "Reasoning loop iteration duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})

	// Regime of the most recent analysis (one-hot)
	CurrentRegime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alphaweex_current_regime",
		Help: "Current market regime (1 = active)",
	}, []string{"regime"})
)

// Risk Posture Metrics
var (
	// Equity as last reported to the guardrails
	CurrentEquity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphaweex_current_equity",
		Help: "Current account equity in USDT",
	})

	// Kill switch state (1 = latched)
	KillSwitchActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphaweex_kill_switch_active",
		Help: "Kill switch state (1 = latched, 0 = inactive)",
	})

	// Global risk level (1 = HIGH)
	GlobalRiskHigh = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphaweex_global_risk_high",
		Help: "Global risk level (1 = HIGH, 0 = NORMAL)",
	})

	// Sentiment multiplier
	SentimentMultiplier = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphaweex_sentiment_multiplier",
		Help: "Current sentiment sizing multiplier (0.5 to 1.5)",
	})

	// Whale dump risk flag (1 = active)
	WhaleDumpRisk = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphaweex_whale_dump_risk",
		Help: "Whale dump risk flag (1 = active, 0 = clear)",
	})
)

// Evolution Metrics
var (
	// Evolution attempts by outcome
	EvolutionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphaweex_evolution_attempts_total",
		Help: "Total evolution attempts by outcome",
	}, []string{"outcome"})

	// Gate rejections by gate name
	EvolutionGateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphaweex_evolution_gate_rejections_total",
		Help: "Total evolution attempts rejected by each safety gate",
	}, []string{"gate"})

	// Version counter of the active strategy document
	StrategyVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphaweex_strategy_version",
		Help: "Version counter of the active strategy document",
	})

	// Sharpe ratio of the last backtest gate run
	BacktestSharpe = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphaweex_backtest_sharpe",
		Help: "Sharpe ratio of the most recent deployment backtest",
	})

	// Max drawdown of the last backtest gate run
	BacktestMaxDrawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphaweex_backtest_max_drawdown",
		Help: "Maximum drawdown of the most recent deployment backtest",
	})

	// Adversary prompt version
	PromptVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphaweex_prompt_version",
		Help: "Version counter of the adversary system prompt",
	})
)

// Ledger and Audit Metrics
var (
	// Predictions recorded
	PredictionsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alphaweex_predictions_recorded_total",
		Help: "Total number of predictions written to the ledger",
	})

	// Predictions fully audited
	PredictionsAudited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alphaweex_predictions_audited_total",
		Help: "Total number of predictions with all timeframes scored",
	})

	// Success scores by timeframe
	AuditScores = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alphaweex_audit_scores",
		Help:    "Prediction success scores by audit timeframe",
		Buckets: []float64{-1, -0.75, -0.5, -0.25, 0, 0.25, 0.5, 0.75, 1},
	}, []string{"timeframe"})
)

// Adversary and Shadow Metrics
var (
	// Adversary analyses by mode
	AdversaryCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphaweex_adversary_calls_total",
		Help: "Total adversary analyses by mode",
	}, []string{"mode"})

	// Shadow engine iterations
	ShadowIterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alphaweex_shadow_iterations_total",
		Help: "Total paired shadow simulation iterations",
	})

	// Annualized Sharpe per engine
	EngineSharpe = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alphaweex_engine_sharpe",
		Help: "Annualized Sharpe ratio per simulation engine",
	}, []string{"engine"})

	// Shadow promotion alerts
	PromotionAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alphaweex_promotion_alerts_total",
		Help: "Total shadow promotion alerts emitted",
	})
)

// External I/O Metrics
var (
	// Market data fetches by endpoint and source
	MarketFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphaweex_market_fetches_total",
		Help: "Total market data fetches by endpoint and source",
	}, []string{"endpoint", "source"})

	// LLM request duration
	LLMRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alphaweex_llm_request_duration_ms",
		Help:    "LLM request duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})

	// LLM errors by category
	LLMErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphaweex_llm_errors_total",
		Help: "Total LLM request errors by category",
	}, []string{"category"})

	// Errors by component
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphaweex_errors_total",
		Help: "Total number of errors by type and component",
	}, []string{"type", "component"})

	// Event bus messages published
	BusMessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alphaweex_bus_messages_published_total",
		Help: "Total number of event bus messages published",
	})
)

// Helper functions to update metrics

// RecordAnalysis records a published analysis
func RecordAnalysis(signal string, confidence float64, regime string) {
	AnalysesTotal.WithLabelValues(signal).Inc()
	AnalysisConfidence.Set(confidence)
	for _, r := range []string{"TRENDING_UP", "TRENDING_DOWN", "RANGE_VOLATILE", "RANGE_QUIET"} {
		v := 0.0
		if r == regime {
			v = 1.0
		}
		CurrentRegime.WithLabelValues(r).Set(v)
	}
}

// RecordMarketFetch records a market data fetch
func RecordMarketFetch(endpoint, source string) {
	MarketFetches.WithLabelValues(endpoint, source).Inc()
}

// RecordLLMRequest records an LLM request with duration
func RecordLLMRequest(durationMs float64, err error) {
	LLMRequestDuration.Observe(durationMs)
	if err != nil {
		LLMErrors.WithLabelValues(NormalizeLLMError(err)).Inc()
	}
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}

// RecordGateRejection records an evolution attempt stopped by a gate
func RecordGateRejection(gate string) {
	EvolutionGateRejections.WithLabelValues(gate).Inc()
	EvolutionAttempts.WithLabelValues("rejected").Inc()
}

// RecordEvolutionOutcome records a completed evolution attempt
func RecordEvolutionOutcome(outcome string) {
	EvolutionAttempts.WithLabelValues(outcome).Inc()
}

// UpdateRiskPosture updates the risk posture gauges in one call
func UpdateRiskPosture(riskHigh bool, sentiment float64, whaleDump bool) {
	GlobalRiskHigh.Set(boolGauge(riskHigh))
	SentimentMultiplier.Set(sentiment)
	WhaleDumpRisk.Set(boolGauge(whaleDump))
}

// UpdateKillSwitch updates the kill switch gauge
func UpdateKillSwitch(active bool) {
	KillSwitchActive.Set(boolGauge(active))
}

// RecordAuditScore records a prediction success score
func RecordAuditScore(timeframe string, score float64) {
	AuditScores.WithLabelValues(timeframe).Observe(score)
}

// RecordAdversaryCall records an adversary analysis by mode
func RecordAdversaryCall(mode string) {
	AdversaryCalls.WithLabelValues(mode).Inc()
}

// RecordShadowIteration records a paired simulation step
func RecordShadowIteration(liveSharpe, shadowSharpe float64) {
	ShadowIterations.Inc()
	EngineSharpe.WithLabelValues("live").Set(liveSharpe)
	EngineSharpe.WithLabelValues("shadow").Set(shadowSharpe)
}

func boolGauge(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
