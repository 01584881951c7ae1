// Command orchestrator runs the WhatsApp dual-backend orchestrator: it
// loads configuration, wires the Backend Clients, Health Monitor,
// Operation Registry, Routing Engine, Sync & Workflow Engine, and the
// optional Run Recorder, then serves the internal operations HTTP
// surface until signaled to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/apierr"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/audit"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/backend/baileysclient"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/backend/goclient"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/config"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/health"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/httpclient"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/opsapi"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/registry"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/routing"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/sync"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("orchestrator exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	policy := httpclient.Policy{
		ShortTimeout:   cfg.Timeout.Short,
		DefaultTimeout: cfg.Timeout.Default,
		MediaTimeout:   cfg.Timeout.Media,
		HealthTimeout:  cfg.Timeout.Health,
	}

	goClient := goclient.New(cfg.Backend.Go.BaseURL, policy, logger.Named("goclient"))
	baileysClient := baileysclient.New(cfg.Backend.Baileys.BaseURL, policy, logger.Named("baileysclient"))

	descs := map[wamodel.BackendID]wamodel.Descriptor{
		wamodel.BackendG: {
			ID:      wamodel.BackendG,
			BaseURL: cfg.Backend.Go.BaseURL,
			Role:    wamodel.RolePrimary,
			Capabilities: map[wamodel.Capability]bool{
				wamodel.CapabilitySend:             true,
				wamodel.CapabilityMedia:            true,
				wamodel.CapabilityReadState:        true,
				wamodel.CapabilityCommunity:        true,
				wamodel.CapabilityContacts:         true,
				wamodel.CapabilityChats:            true,
				wamodel.CapabilityPrivacy:          true,
				wamodel.CapabilityNewsletter:       true,
				wamodel.CapabilityBusinessProfile:  true,
			},
		},
		wamodel.BackendB: {
			ID:      wamodel.BackendB,
			BaseURL: cfg.Backend.Baileys.BaseURL,
			Role:    wamodel.RoleSecondary,
			Capabilities: map[wamodel.Capability]bool{
				wamodel.CapabilityHistory: true,
			},
		},
	}

	var mirror *health.RedisMirror
	if cfg.Redis.Enabled {
		mirror = &health.RedisMirror{
			Client: redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}),
			KeyTTL: cfg.Redis.KeyTTL,
		}
	}

	probers := map[wamodel.BackendID]health.Prober{
		wamodel.BackendG: health.GoProber{Client: goClient},
		wamodel.BackendB: health.BaileysProber{Client: baileysClient},
	}
	healthMonitor := health.New(descs, probers, cfg.Retry.HealthCacheTTL, logger.Named("health"), mirror)

	var defaultStrategy wamodel.Strategy = wamodel.StrategyPreferG
	if cfg.Routing.DefaultStrategy != "" {
		defaultStrategy = wamodel.Strategy(cfg.Routing.DefaultStrategy)
	}
	opRegistry := registry.New(defaultStrategy)

	invoker := buildInvoker(goClient, baileysClient)
	routingEngine := routing.New(descs, healthMonitor, invoker)

	var recorder *audit.Recorder
	var runLister opsapi.RunLister
	if cfg.Audit.Enabled {
		recorder, err = audit.Open(cfg.Audit.DSN, cfg.Audit.MaxOpenConns, cfg.Audit.MaxIdleConns, cfg.Audit.ConnMaxLifetime, logger.Named("audit"))
		if err != nil {
			return fmt.Errorf("failed to open audit recorder: %w", err)
		}
		defer recorder.Close()
		runLister = recorder
	}

	var syncRecorder sync.RunRecorder
	if recorder != nil {
		syncRecorder = recorder
	}
	syncEngine := sync.New(goClient, baileysClient, cfg.Retry.RetryDelay, cfg.Retry.MaxRetries, syncRecorder, logger.Named("sync"))

	opsServer := opsapi.New(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		healthMonitor,
		routingEngine,
		opRegistry,
		runLister,
		syncEngine,
		logger.Named("opsapi"),
	)

	errCh := opsServer.Start()
	logger.Info("orchestrator listening", zap.Int("port", cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("operations server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	logger.Info("orchestrator stopped")
	return nil
}

// buildInvoker adapts the two Backend Clients' generic Passthrough
// method into the Routing Engine's Invoker shape. Everything the Routing
// Engine dispatches is a single request/response proxy to the selected
// backend's REST surface at /api/<operation name>, including operations
// that also have a dedicated Backend Client method, such as mark_read.
// The Sync & Workflow Engine calls the dedicated methods it needs (batch
// insert, checkpoints, community groups, community mark-read) directly
// rather than through routing.
func buildInvoker(goClient *goclient.Client, baileysClient *baileysclient.Client) routing.Invoker {
	return func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error) {
		method := http.MethodPost
		if op.Kind == wamodel.OpQuery || op.Kind == wamodel.OpCommunityList {
			method = http.MethodGet
		}
		path := "/api/" + op.Name
		category := httpclient.Default

		switch backend {
		case wamodel.BackendG:
			return goClient.Passthrough(ctx, method, path, nil, category)
		case wamodel.BackendB:
			return baileysClient.Passthrough(ctx, method, path, nil, category)
		default:
			return nil, apierr.Orchestrator(apierr.CodeInvalidOperation, "unknown backend: "+string(backend))
		}
	}
}
