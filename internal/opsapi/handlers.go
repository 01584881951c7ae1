package opsapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

const defaultRunsLimit = 50

type handlers struct {
	health   HealthView
	routing  RoutingView
	registry OperationLookup
	runs     RunLister
	sync     SyncView
	logger   *zap.Logger
}

// healthz is a liveness probe: the process is up and serving.
func (h *handlers) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readyz is a readiness probe: it answers 503 when no backend is
// classified ok (aggregate error) and 200 otherwise.
func (h *handlers) readyz(c *gin.Context) {
	agg := h.health.Aggregate()
	if agg.Overall == wamodel.AggregateError {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":              "unavailable",
			"available_backends": agg.AvailableBackends,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":             "ready",
		"overall":            agg.Overall,
		"available_backends": agg.AvailableBackends,
	})
}

// debugRouting resolves an operation name and reports the Routing
// Engine's current decision for it, without actually invoking it.
func (h *handlers) debugRouting(c *gin.Context) {
	name := c.Param("operation")
	op, ok := h.registry.Lookup(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown operation", "operation": name})
		return
	}

	info := h.routing.Info(c.Request.Context(), op)
	c.JSON(http.StatusOK, gin.H{
		"operation":        op.Name,
		"strategy":         info.Strategy,
		"selected":         info.Selected,
		"available":        h.routing.IsAvailable(op),
		"primary_health":   info.PrimaryHealth,
		"secondary_health": info.SecondaryHealth,
	})
}

// debugSync reports whether a chat currently has a reconciliation run
// in flight. Disabled (404) when no Sync & Workflow Engine was wired.
func (h *handlers) debugSync(c *gin.Context) {
	if h.sync == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sync diagnostics are disabled"})
		return
	}
	chatJID := c.Param("chat_jid")
	c.JSON(http.StatusOK, h.sync.Status(chatJID))
}

// internalRuns lists recent run-history records. Disabled (404) when no
// Run Recorder was wired.
func (h *handlers) internalRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is disabled"})
		return
	}

	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.Warn("failed to list run history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list run history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": records})
}
