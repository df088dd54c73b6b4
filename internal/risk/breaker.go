package risk

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Circuit breaker states for Prometheus metrics
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"

	// Metric result labels
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Circuit breaker thresholds - configurable per service type
const (
	// Exchange circuit breaker settings
	ExchangeMinRequests     = 5                // Minimum requests before tripping
	ExchangeFailureRatio    = 0.6              // Failure ratio threshold (60%)
	ExchangeOpenTimeout     = 30 * time.Second // How long circuit stays open
	ExchangeHalfOpenMaxReqs = 3                // Max requests in half-open state
	ExchangeCountInterval   = 10 * time.Second // Window for counting failures

	// LLM circuit breaker settings (longer timeouts for AI calls)
	LLMMinRequests     = 3                // Minimum requests before tripping
	LLMFailureRatio    = 0.6              // Failure ratio threshold (60%)
	LLMOpenTimeout     = 60 * time.Second // How long circuit stays open (longer for LLM recovery)
	LLMHalfOpenMaxReqs = 2                // Max requests in half-open state
	LLMCountInterval   = 10 * time.Second // Window for counting failures

	// External data circuit breaker settings (equities, fear/greed)
	ExternalMinRequests     = 5                // Minimum requests before tripping
	ExternalFailureRatio    = 0.6              // Failure ratio threshold (60%)
	ExternalOpenTimeout     = 45 * time.Second // How long circuit stays open
	ExternalHalfOpenMaxReqs = 2                // Max requests in half-open state
	ExternalCountInterval   = 10 * time.Second // Window for counting failures
)

// BreakerManager manages circuit breakers for the external service types
type BreakerManager struct {
	exchange *gobreaker.CircuitBreaker
	llm      *gobreaker.CircuitBreaker
	external *gobreaker.CircuitBreaker
	metrics  *BreakerMetrics
}

// BreakerMetrics holds Prometheus metrics for circuit breakers
type BreakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	// Global metrics instance (singleton)
	globalMetrics *BreakerMetrics
	metricsOnce   sync.Once
)

// initMetrics initializes the global metrics instance exactly once in a thread-safe manner
func initMetrics() {
	metricsOnce.Do(func() {
		globalMetrics = &BreakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"service"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "circuit_breaker_requests_total",
					Help: "Total number of requests through circuit breaker",
				},
				[]string{"service", "result"},
			),
			failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "circuit_breaker_failures_total",
					Help: "Total number of failures tracked by circuit breaker",
				},
				[]string{"service"},
			),
		}
	})
}

// ServiceSettings holds circuit breaker configuration for a single service
type ServiceSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// NewBreakerManager creates a breaker manager with default settings
func NewBreakerManager() *BreakerManager {
	return NewBreakerManagerWithSettings(nil, nil, nil)
}

// NewBreakerManagerWithSettings creates a breaker manager with Prometheus metrics.
// Nil settings fall back to the constants above.
func NewBreakerManagerWithSettings(exchangeSettings, llmSettings, externalSettings *ServiceSettings) *BreakerManager {
	initMetrics()

	manager := &BreakerManager{
		metrics: globalMetrics,
	}

	if exchangeSettings == nil {
		exchangeSettings = &ServiceSettings{
			MinRequests:     ExchangeMinRequests,
			FailureRatio:    ExchangeFailureRatio,
			OpenTimeout:     ExchangeOpenTimeout,
			HalfOpenMaxReqs: ExchangeHalfOpenMaxReqs,
			CountInterval:   ExchangeCountInterval,
		}
	}
	if llmSettings == nil {
		llmSettings = &ServiceSettings{
			MinRequests:     LLMMinRequests,
			FailureRatio:    LLMFailureRatio,
			OpenTimeout:     LLMOpenTimeout,
			HalfOpenMaxReqs: LLMHalfOpenMaxReqs,
			CountInterval:   LLMCountInterval,
		}
	}
	if externalSettings == nil {
		externalSettings = &ServiceSettings{
			MinRequests:     ExternalMinRequests,
			FailureRatio:    ExternalFailureRatio,
			OpenTimeout:     ExternalOpenTimeout,
			HalfOpenMaxReqs: ExternalHalfOpenMaxReqs,
			CountInterval:   ExternalCountInterval,
		}
	}

	manager.exchange = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange",
		MaxRequests: exchangeSettings.HalfOpenMaxReqs,
		Interval:    exchangeSettings.CountInterval,
		Timeout:     exchangeSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= exchangeSettings.MinRequests && failureRatio >= exchangeSettings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			manager.updateMetrics("exchange", to)
		},
	})

	manager.llm = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: llmSettings.HalfOpenMaxReqs,
		Interval:    llmSettings.CountInterval,
		Timeout:     llmSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= llmSettings.MinRequests && failureRatio >= llmSettings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			manager.updateMetrics("llm", to)
		},
	})

	manager.external = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "external",
		MaxRequests: externalSettings.HalfOpenMaxReqs,
		Interval:    externalSettings.CountInterval,
		Timeout:     externalSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= externalSettings.MinRequests && failureRatio >= externalSettings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			manager.updateMetrics("external", to)
		},
	})

	manager.updateMetrics("exchange", manager.exchange.State())
	manager.updateMetrics("llm", manager.llm.State())
	manager.updateMetrics("external", manager.external.State())

	return manager
}

// NewPassthroughBreakerManager creates a breaker manager that never trips.
// Useful for testing other components without the breaker interfering.
func NewPassthroughBreakerManager() *BreakerManager {
	initMetrics()

	manager := &BreakerManager{
		metrics: globalMetrics,
	}

	neverTrip := func(counts gobreaker.Counts) bool {
		return false
	}

	manager.exchange = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange_passthrough",
		MaxRequests: 1000,
		Interval:    0,
		Timeout:     1 * time.Millisecond,
		ReadyToTrip: neverTrip,
	})

	manager.llm = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm_passthrough",
		MaxRequests: 1000,
		Interval:    0,
		Timeout:     1 * time.Millisecond,
		ReadyToTrip: neverTrip,
	})

	manager.external = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "external_passthrough",
		MaxRequests: 1000,
		Interval:    0,
		Timeout:     1 * time.Millisecond,
		ReadyToTrip: neverTrip,
	})

	return manager
}

// Exchange returns the exchange circuit breaker
func (m *BreakerManager) Exchange() *gobreaker.CircuitBreaker {
	return m.exchange
}

// LLM returns the LLM circuit breaker
func (m *BreakerManager) LLM() *gobreaker.CircuitBreaker {
	return m.llm
}

// External returns the external-data circuit breaker
func (m *BreakerManager) External() *gobreaker.CircuitBreaker {
	return m.external
}

// updateMetrics updates Prometheus metrics for a circuit breaker state change
func (m *BreakerManager) updateMetrics(service string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateOpen:
		stateValue = 1
	case gobreaker.StateHalfOpen:
		stateValue = 2
	}
	m.metrics.state.WithLabelValues(service).Set(stateValue)
}

// RecordRequest records a request result for metrics
func (m *BreakerMetrics) RecordRequest(service string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
		m.failures.WithLabelValues(service).Inc()
	}
	m.requests.WithLabelValues(service, result).Inc()
}

// Metrics returns the metrics instance for manual recording
func (m *BreakerManager) Metrics() *BreakerMetrics {
	return m.metrics
}
