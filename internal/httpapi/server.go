// Package httpapi serves the operator surface: JSON views over every
// running component plus a websocket stream of bus events. It is a
// read-only window into the control plane; nothing here mutates
// trading state.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/adversary"
	"github.com/AbhayRathi/AlphaWEEX/internal/bus"
	"github.com/AbhayRathi/AlphaWEEX/internal/explorer"
	"github.com/AbhayRathi/AlphaWEEX/internal/guardrails"
	"github.com/AbhayRathi/AlphaWEEX/internal/ledger"
	"github.com/AbhayRathi/AlphaWEEX/internal/narrative"
	"github.com/AbhayRathi/AlphaWEEX/internal/reasoning"
	"github.com/AbhayRathi/AlphaWEEX/internal/shadow"
	"github.com/AbhayRathi/AlphaWEEX/internal/state"
	"github.com/AbhayRathi/AlphaWEEX/internal/tracelog"
)

// AnalysisSource exposes the latest reasoning cycle output
type AnalysisSource interface {
	Latest() *reasoning.Analysis
}

// GuardrailSource exposes capital protection status
type GuardrailSource interface {
	Status() guardrails.Status
}

// StateSource exposes the shared risk and sentiment snapshot
type StateSource interface {
	Snapshot() state.Snapshot
}

// AdversarySource reports the behavioral analyst's operating mode
type AdversarySource interface {
	Status() adversary.AnalystStatus
}

// ShadowSource exposes shadow-versus-live simulation results
type ShadowSource interface {
	Summary() shadow.Summary
	Alerts() []shadow.PromotionAlert
}

// LedgerSource exposes prediction ledger health and statistics
type LedgerSource interface {
	Health(ctx context.Context) error
	Statistics(ctx context.Context) (*ledger.Statistics, error)
}

// NarrativeSource exposes on-chain flow narrative state
type NarrativeSource interface {
	Summary() narrative.Summary
}

// TraceSource exposes recorded reasoning traces
type TraceSource interface {
	Recent(count int) ([]tracelog.Entry, error)
	Statistics() (*tracelog.Statistics, error)
}

// PromptSource exposes the adversary prompt version history
type PromptSource interface {
	Version() int
	History() ([]adversary.PromptVersion, error)
}

// ExplorerSource exposes generated alpha hypotheses
type ExplorerSource interface {
	Latest() *explorer.Hypothesis
	History() []explorer.Hypothesis
}

// EventSource delivers bus events for the websocket stream
type EventSource interface {
	SubscribeAll(handler bus.EventHandler) (*bus.Subscription, error)
}

// Deps holds the components the server reads from. Any nil field
// simply turns its endpoints into 503 responses, so the server can
// come up before (or without) the full control plane.
type Deps struct {
	Reasoning  AnalysisSource
	Guardrails GuardrailSource
	State      StateSource
	Adversary  AdversarySource
	Shadow     ShadowSource
	Ledger     LedgerSource
	Narrative  NarrativeSource
	Traces     TraceSource
	Prompts    PromptSource
	Explorer   ExplorerSource
	Events     EventSource
}

// Config contains server configuration
type Config struct {
	Host string
	Port int

	// Metrics mounts the Prometheus scrape endpoint when set
	Metrics bool
}

// Server is the operator HTTP server
type Server struct {
	router  *gin.Engine
	deps    Deps
	addr    string
	server  *http.Server
	hub     *Hub
	events  *bus.Subscription
	metrics bool
}

// NewServer creates the operator API server
func NewServer(config Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	server := &Server{
		router:  router,
		deps:    deps,
		addr:    addr,
		hub:     NewHub(),
		metrics: config.Metrics,
	}

	server.setupRoutes()

	return server
}

// Start runs the HTTP server and, when an event source is wired, the
// websocket hub behind it. Blocks until the server stops.
func (s *Server) Start() error {
	if s.deps.Events != nil {
		go s.hub.Run()
		sub, err := s.deps.Events.SubscribeAll(func(ev *bus.Event) {
			s.hub.BroadcastEvent(ev)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to event stream: %w", err)
		}
		s.events = sub
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server and the event stream
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.events != nil {
		if err := s.events.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("Failed to unsubscribe event stream")
		}
		s.events = nil
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	s.hub.Stop()

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}
