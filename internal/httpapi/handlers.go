package httpapi

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var startTime = time.Now()

const apiVersion = "1.0.0"

// maxTraceCount caps how many trace entries one request may pull
const maxTraceCount = 100

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "AlphaWEEX API",
		"version": apiVersion,
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// handleGetStatus returns comprehensive system status: guardrails,
// shared state, adversary mode, shadow stats, ledger stats
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	ledgerStatus := "not_configured"
	if s.deps.Ledger != nil {
		ledgerStatus = "healthy"
		if err := s.deps.Ledger.Health(c.Request.Context()); err != nil {
			ledgerStatus = "unhealthy"
			log.Warn().Err(err).Msg("Ledger health check failed")
		}
	}

	systemStatus := "healthy"
	if ledgerStatus == "unhealthy" {
		systemStatus = "degraded"
	}

	components := gin.H{
		"ledger": s.ledgerComponent(c, ledgerStatus),
	}
	if s.deps.Guardrails != nil {
		components["guardrails"] = s.deps.Guardrails.Status()
	}
	if s.deps.State != nil {
		components["state"] = s.deps.State.Snapshot()
	}
	if s.deps.Adversary != nil {
		components["adversary"] = s.deps.Adversary.Status()
	}
	if s.deps.Shadow != nil {
		components["shadow"] = s.deps.Shadow.Summary()
	}
	if s.deps.Events != nil {
		components["event_stream"] = gin.H{
			"clients": s.hub.ClientCount(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     systemStatus,
		"timestamp":  time.Now().UTC(),
		"uptime":     time.Since(startTime).Seconds(),
		"version":    apiVersion,
		"components": components,
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb":       toMB(memStats.Alloc),
				"total_alloc_mb": toMB(memStats.TotalAlloc),
				"sys_mb":         toMB(memStats.Sys),
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		},
	})
}

func (s *Server) ledgerComponent(c *gin.Context, status string) gin.H {
	component := gin.H{"status": status}
	if s.deps.Ledger == nil || status != "healthy" {
		return component
	}
	stats, err := s.deps.Ledger.Statistics(c.Request.Context())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read ledger statistics")
		return component
	}
	component["statistics"] = stats
	return component
}

// handleGetHealth returns a simple health check (for load balancers)
func (s *Server) handleGetHealth(c *gin.Context) {
	if s.deps.Ledger != nil {
		if err := s.deps.Ledger.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "ledger unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// handleGetAnalysis returns the most recent reasoning cycle output
func (s *Server) handleGetAnalysis(c *gin.Context) {
	if s.deps.Reasoning == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Reasoning loop not available"})
		return
	}

	analysis := s.deps.Reasoning.Latest()
	if analysis == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No analysis produced yet"})
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// handleGetGuardrails returns kill switch and stability lock status
func (s *Server) handleGetGuardrails(c *gin.Context) {
	if s.deps.Guardrails == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Guardrails not available"})
		return
	}

	c.JSON(http.StatusOK, s.deps.Guardrails.Status())
}

// handleGetState returns the shared risk and sentiment snapshot
func (s *Server) handleGetState(c *gin.Context) {
	if s.deps.State == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Shared state not available"})
		return
	}

	c.JSON(http.StatusOK, s.deps.State.Snapshot())
}

// handleGetShadow returns shadow simulation results and any pending
// promotion alerts
func (s *Server) handleGetShadow(c *gin.Context) {
	if s.deps.Shadow == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Shadow engine not available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":          s.deps.Shadow.Summary(),
		"promotion_alerts": s.deps.Shadow.Alerts(),
	})
}

// handleGetLedger returns prediction ledger statistics
func (s *Server) handleGetLedger(c *gin.Context) {
	if s.deps.Ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ledger not available"})
		return
	}

	stats, err := s.deps.Ledger.Statistics(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read ledger statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// handleGetNarrative returns whale flow narrative state
func (s *Server) handleGetNarrative(c *gin.Context) {
	if s.deps.Narrative == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Narrative pulse not available"})
		return
	}

	c.JSON(http.StatusOK, s.deps.Narrative.Summary())
}

// handleGetTraces returns recent reasoning traces plus trace log
// statistics. Count is bounded by maxTraceCount.
func (s *Server) handleGetTraces(c *gin.Context) {
	if s.deps.Traces == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Trace log not available"})
		return
	}

	countStr := c.DefaultQuery("count", "10")
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid count parameter"})
		return
	}
	if count > maxTraceCount {
		count = maxTraceCount
	}

	entries, err := s.deps.Traces.Recent(count)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read traces")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read traces"})
		return
	}

	stats, err := s.deps.Traces.Statistics()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read trace statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read trace statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"traces":     entries,
		"count":      len(entries),
		"statistics": stats,
	})
}

// handleGetPrompts returns the adversary prompt version history
func (s *Server) handleGetPrompts(c *gin.Context) {
	if s.deps.Prompts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Prompt store not available"})
		return
	}

	history, err := s.deps.Prompts.History()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read prompt history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read prompt history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"current_version": s.deps.Prompts.Version(),
		"history":         history,
	})
}

// handleGetExplorer returns generated alpha hypotheses
func (s *Server) handleGetExplorer(c *gin.Context) {
	if s.deps.Explorer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Explorer not available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"latest":  s.deps.Explorer.Latest(),
		"history": s.deps.Explorer.History(),
	})
}

// toMB converts bytes to megabytes
func toMB(bytes uint64) float64 {
	return float64(bytes) / 1024 / 1024
}
