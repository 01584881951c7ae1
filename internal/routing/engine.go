// Package routing implements the Routing Engine (spec §4.3): backend
// selection per operation strategy, single-retry fallback, and
// diagnostics.
package routing

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/apierr"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

var routingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "routing_decisions_total",
	Help: "Routing Engine decisions by operation, backend and outcome.",
}, []string{"operation", "backend", "outcome"})

// HealthView is the subset of the Health Monitor the Routing Engine
// consults: the aggregate view, which never probes, and per-backend
// snapshots, which the Health Monitor refreshes with a synchronous
// probe when its cached snapshot is older than the cache TTL.
type HealthView interface {
	Aggregate() wamodel.Aggregate
	Snapshot(ctx context.Context, backend wamodel.BackendID) wamodel.Snapshot
}

// Invoker executes one operation against a specific backend and
// returns the typed result payload plus the composite error, if any.
type Invoker func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error)

// Engine is the Routing Engine.
type Engine struct {
	descs     map[wamodel.BackendID]wamodel.Descriptor
	health    HealthView
	invoke    Invoker
	roundRobin uint64
	tracer    trace.Tracer
}

// New builds an Engine over the given backend descriptors, health
// view, and the invoker that actually calls a Backend Client method.
func New(descs map[wamodel.BackendID]wamodel.Descriptor, health HealthView, invoke Invoker) *Engine {
	return &Engine{descs: descs, health: health, invoke: invoke, tracer: otel.Tracer("routing-engine")}
}

// RouteOutcome is the result of Route: either a successful payload or
// a terminal error, plus diagnostics about the decision made.
type RouteOutcome struct {
	Payload     interface{}
	Err         *apierr.Error
	Selected    wamodel.BackendID
	FallbackUsed bool
}

// Route selects a backend for op per its strategy, invokes it, and on
// certain failures retries once on the alternate backend (spec §4.3).
func (e *Engine) Route(ctx context.Context, op wamodel.Operation) RouteOutcome {
	ctx, span := e.tracer.Start(ctx, "routing.route", trace.WithAttributes(
		attribute.String("operation.kind", string(op.Kind)),
		attribute.String("strategy", string(op.Strategy)),
	))
	defer span.End()

	if op.Name == "" || op.Kind == "" {
		err := apierr.Orchestrator(apierr.CodeInvalidOperation, "operation descriptor is empty")
		span.SetAttributes(attribute.String("outcome", "invalid_operation"))
		return RouteOutcome{Err: err}
	}

	if agg := e.health.Aggregate(); agg.Overall == wamodel.AggregateError {
		err := apierr.NoBackendAvailable(op.Name)
		routingDecisions.WithLabelValues(op.Name, "none", "no_backend_available").Inc()
		span.SetAttributes(attribute.String("outcome", "no_backend_available"))
		return RouteOutcome{Err: err}
	}

	candidates := e.candidates(op)
	if len(candidates) == 0 {
		err := apierr.NoBackendAvailable(op.Name)
		routingDecisions.WithLabelValues(op.Name, "none", "no_backend_available").Inc()
		span.SetAttributes(attribute.String("outcome", "no_backend_available"))
		return RouteOutcome{Err: err}
	}

	if op.Strategy == wamodel.StrategyPrimaryOnly && !containsBackend(candidates, op.PrimaryOnlyBackend) {
		err := apierr.NoBackendAvailable(op.Name)
		routingDecisions.WithLabelValues(op.Name, string(op.PrimaryOnlyBackend), "no_backend_available").Inc()
		span.SetAttributes(attribute.String("outcome", "no_backend_available"))
		return RouteOutcome{Err: err}
	}

	selected := e.apply(op.Strategy, op, candidates)
	span.SetAttributes(attribute.String("selected_backend", string(selected)))

	payload, callErr := e.invoke(ctx, selected, op)
	if callErr == nil {
		routingDecisions.WithLabelValues(op.Name, string(selected), "ok").Inc()
		return RouteOutcome{Payload: payload, Selected: selected}
	}

	if op.Strategy == wamodel.StrategyPrimaryOnly || !callErr.Retryable() {
		routingDecisions.WithLabelValues(op.Name, string(selected), "error").Inc()
		span.SetAttributes(attribute.String("outcome", "error"), attribute.String("error.code", callErr.Code))
		return RouteOutcome{Err: callErr, Selected: selected}
	}

	alternate := otherBackend(selected)
	if !containsBackend(candidates, alternate) {
		routingDecisions.WithLabelValues(op.Name, string(selected), "error").Inc()
		return RouteOutcome{Err: callErr, Selected: selected}
	}

	span.SetAttributes(attribute.Bool("fallback_used", true))
	payload, fallbackErr := e.invoke(ctx, alternate, op)
	if fallbackErr == nil {
		routingDecisions.WithLabelValues(op.Name, string(alternate), "ok_fallback").Inc()
		return RouteOutcome{Payload: payload, Selected: alternate, FallbackUsed: true}
	}

	routingDecisions.WithLabelValues(op.Name, string(alternate), "error_fallback").Inc()
	return RouteOutcome{Err: fallbackErr, Selected: alternate, FallbackUsed: true}
}

// IsAvailable reports whether at least one backend capable of op is
// currently ok (spec §4.3).
func (e *Engine) IsAvailable(op wamodel.Operation) bool {
	for id, desc := range e.descs {
		if !desc.HasCapability(op.RequiredCapability) {
			continue
		}
		snap := e.health.Snapshot(context.Background(), id)
		if snap.Classification == wamodel.ClassificationOK {
			return true
		}
	}
	return false
}

// RoutingInfo is the diagnostic view returned by Info.
type RoutingInfo struct {
	Selected       wamodel.BackendID
	Strategy       wamodel.Strategy
	PrimaryHealth  wamodel.Snapshot
	SecondaryHealth wamodel.Snapshot
}

// Info returns diagnostic routing information for op without invoking
// either backend (spec §4.3's routing_info).
func (e *Engine) Info(ctx context.Context, op wamodel.Operation) RoutingInfo {
	candidates := e.candidates(op)
	selected := wamodel.BackendID("")
	if len(candidates) > 0 {
		selected = e.apply(op.Strategy, op, candidates)
	}
	return RoutingInfo{
		Selected:        selected,
		Strategy:        op.Strategy,
		PrimaryHealth:   e.health.Snapshot(ctx, wamodel.BackendG),
		SecondaryHealth: e.health.Snapshot(ctx, wamodel.BackendB),
	}
}

func (e *Engine) candidates(op wamodel.Operation) []wamodel.BackendID {
	var ok []wamodel.BackendID
	var degraded []wamodel.BackendID
	for _, id := range []wamodel.BackendID{wamodel.BackendG, wamodel.BackendB} {
		desc, known := e.descs[id]
		if !known || !desc.HasCapability(op.RequiredCapability) {
			continue
		}
		snap := e.health.Snapshot(context.Background(), id)
		switch snap.Classification {
		case wamodel.ClassificationOK:
			ok = append(ok, id)
		case wamodel.ClassificationDegraded:
			degraded = append(degraded, id)
		}
	}

	if len(ok) > 0 {
		return ok
	}
	return degraded
}

func (e *Engine) apply(strategy wamodel.Strategy, op wamodel.Operation, candidates []wamodel.BackendID) wamodel.BackendID {
	switch strategy {
	case wamodel.StrategyPrimaryOnly:
		// Route has already verified op.PrimaryOnlyBackend is a candidate.
		return op.PrimaryOnlyBackend
	case wamodel.StrategyPreferG:
		if containsBackend(candidates, wamodel.BackendG) {
			return wamodel.BackendG
		}
		return candidates[0]
	case wamodel.StrategyPreferB:
		if containsBackend(candidates, wamodel.BackendB) {
			return wamodel.BackendB
		}
		return candidates[0]
	case wamodel.StrategyRoundRobin:
		idx := atomic.AddUint64(&e.roundRobin, 1) - 1
		return candidates[idx%uint64(len(candidates))]
	case wamodel.StrategyFastest:
		return e.fastest(candidates)
	default:
		return candidates[0]
	}
}

func (e *Engine) fastest(candidates []wamodel.BackendID) wamodel.BackendID {
	best := candidates[0]
	bestSnap := e.health.Snapshot(context.Background(), best)
	for _, id := range candidates[1:] {
		snap := e.health.Snapshot(context.Background(), id)
		if snap.ResponseTimeMS < bestSnap.ResponseTimeMS {
			best, bestSnap = id, snap
		} else if snap.ResponseTimeMS == bestSnap.ResponseTimeMS && id == wamodel.BackendG {
			// tie-break: prefer G (spec §9 resolution).
			best, bestSnap = id, snap
		}
	}
	return best
}

func containsBackend(list []wamodel.BackendID, id wamodel.BackendID) bool {
	for _, c := range list {
		if c == id {
			return true
		}
	}
	return false
}

func otherBackend(id wamodel.BackendID) wamodel.BackendID {
	if id == wamodel.BackendG {
		return wamodel.BackendB
	}
	return wamodel.BackendG
}
