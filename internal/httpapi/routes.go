package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// API v1 group
	v1 := s.router.Group("/api/v1")
	{
		// Status endpoints
		v1.GET("/status", s.handleGetStatus)
		v1.GET("/health", s.handleGetHealth)

		// Analysis and decision surface
		v1.GET("/analysis", s.handleGetAnalysis)
		v1.GET("/guardrails", s.handleGetGuardrails)
		v1.GET("/state", s.handleGetState)

		// Evolution surface
		v1.GET("/shadow", s.handleGetShadow)
		v1.GET("/prompts", s.handleGetPrompts)
		v1.GET("/explorer", s.handleGetExplorer)

		// Accountability surface
		v1.GET("/ledger", s.handleGetLedger)
		v1.GET("/narrative", s.handleGetNarrative)
		v1.GET("/traces", s.handleGetTraces)
	}

	// Bare health path for load balancers
	s.router.GET("/health", s.handleGetHealth)

	// Prometheus scrape endpoint
	if s.metrics {
		s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	// Websocket event stream
	s.router.GET("/ws/events", s.handleEvents)

	// Root endpoint
	s.router.GET("/", s.handleRoot)
}
