// Package opsapi is the orchestrator's internal operations HTTP surface:
// liveness/readiness probes, Prometheus metrics, and routing/run-history
// diagnostics (SPEC_FULL.md's ambient "operations API" addition).
// Grounded on the teacher's internal/handlers package — gin.Context
// handlers returning gin.H, one handler struct per concern — generalized
// from message-send endpoints to read-only diagnostic endpoints.
package opsapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin" // v1.9.1
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/audit"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/routing"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

// HealthView is the subset of the Health Monitor the operations API
// surfaces directly.
type HealthView interface {
	Aggregate() wamodel.Aggregate
	Snapshot(ctx context.Context, backend wamodel.BackendID) wamodel.Snapshot
}

// RoutingView is the subset of the Routing Engine the operations API
// surfaces for the routing debug endpoint.
type RoutingView interface {
	Info(ctx context.Context, op wamodel.Operation) routing.RoutingInfo
	IsAvailable(op wamodel.Operation) bool
}

// OperationLookup is the subset of the Operation Registry the
// operations API consults to resolve a name for /debug/routing.
type OperationLookup interface {
	Lookup(name string) (wamodel.Operation, bool)
}

// RunLister is the subset of the Run Recorder the operations API
// exposes through /internal/runs. A nil RunLister disables that
// endpoint (audit is optional — an ambient addition, not core).
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]audit.Record, error)
}

// SyncView is the subset of the Sync & Workflow Engine the operations
// API surfaces for per-chat reconciliation status.
type SyncView interface {
	Status(chatJID string) wamodel.ChatSyncState
}

// Server is the internal operations HTTP surface.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
}

// New builds a Server wired to the given diagnostic views. runs and
// syncEngine may be nil, which disables /internal/runs and /debug/sync;
// health, routingEngine and registry are used without nil checks.
func New(addr string, health HealthView, routingEngine RoutingView, registry OperationLookup, runs RunLister, syncEngine SyncView, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handlers{health: health, routing: routingEngine, registry: registry, runs: runs, sync: syncEngine, logger: logger}
	router.GET("/healthz", h.healthz)
	router.GET("/readyz", h.readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/debug/routing/:operation", h.debugRouting)
	router.GET("/debug/sync/:chat_jid", h.debugSync)
	router.GET("/internal/runs", h.internalRuns)

	return &Server{
		router:     router,
		httpServer: &http.Server{Addr: addr, Handler: router},
		logger:     logger,
	}
}

// Router exposes the underlying gin.Engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving in the background. Errors other than a clean
// shutdown are delivered on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests and stops serving, bounded by ctx's
// deadline (grounded on the teacher's WhatsAppService.Shutdown pattern:
// cancel, wait with a timeout, report a timeout error rather than hang).
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("operations server shutdown: %w", err)
	}
	return nil
}
