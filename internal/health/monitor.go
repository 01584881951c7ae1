// Package health implements the Health Monitor (spec §4.1): an
// on-demand, TTL-cached backend health prober with derived aggregate
// view. Background polling is not required for correctness — only the
// atomic snapshot cache consulted by snapshot/aggregate/wait_for is.
package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

// Prober is the minimal capability a backend client exposes to the
// Health Monitor: an HTTP GET against its health endpoint.
type Prober interface {
	Health(ctx context.Context) (Reachability, error)
}

// Reachability is the raw probe outcome before classification.
type Reachability struct {
	ConnectedToWhatsApp bool
	HTTPStatus          int
}

var classificationValue = map[wamodel.Classification]float64{
	wamodel.ClassificationOK:          0,
	wamodel.ClassificationDegraded:    1,
	wamodel.ClassificationUnreachable: 2,
	wamodel.ClassificationError:       3,
}

var (
	probeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "health_probe_duration_seconds",
		Help:    "Duration of backend health probes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})

	classificationGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_classification",
		Help: "Current backend classification (0=ok,1=degraded,2=unreachable,3=error).",
	}, []string{"backend"})

	consecutiveFailuresGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_consecutive_failures",
		Help: "Consecutive failed probes for a backend.",
	}, []string{"backend"})
)

type cachedSnapshot struct {
	snapshot atomic.Pointer[wamodel.Snapshot]
	mu       sync.Mutex // serializes concurrent refreshes of this backend only
}

// RedisMirror is a best-effort, write-only sink for freshly-computed
// snapshots (SPEC_FULL.md §4.1). Its failure must never affect
// snapshot/aggregate/wait_for.
type RedisMirror struct {
	Client *redis.Client
	KeyTTL time.Duration
}

// Monitor is the Health Monitor. It holds one atomic snapshot slot per
// backend and probes synchronously when the cached snapshot is stale.
type Monitor struct {
	ttl      time.Duration
	probers  map[wamodel.BackendID]Prober
	descs    map[wamodel.BackendID]wamodel.Descriptor
	cache    map[wamodel.BackendID]*cachedSnapshot
	logger   *zap.Logger
	mirror   *RedisMirror
}

// New builds a Monitor for the given backend descriptors and probers.
// ttl is the snapshot cache TTL (spec §4.1 default: 1s).
func New(descs map[wamodel.BackendID]wamodel.Descriptor, probers map[wamodel.BackendID]Prober, ttl time.Duration, logger *zap.Logger, mirror *RedisMirror) *Monitor {
	cache := make(map[wamodel.BackendID]*cachedSnapshot, len(descs))
	for id := range descs {
		cache[id] = &cachedSnapshot{}
	}
	return &Monitor{ttl: ttl, probers: probers, descs: descs, cache: cache, logger: logger, mirror: mirror}
}

// Snapshot returns the most recent Health Snapshot for backend, probing
// synchronously if the cached snapshot is stale or absent (spec §4.1).
func (m *Monitor) Snapshot(ctx context.Context, backend wamodel.BackendID) wamodel.Snapshot {
	entry, ok := m.cache[backend]
	if !ok {
		return wamodel.Snapshot{Backend: backend, Classification: wamodel.ClassificationUnreachable}
	}

	if cur := entry.snapshot.Load(); cur != nil && time.Since(cur.LastCheckedAt) < m.ttl {
		return *cur
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Re-check after acquiring the lock: another goroutine may have
	// refreshed it while we waited.
	if cur := entry.snapshot.Load(); cur != nil && time.Since(cur.LastCheckedAt) < m.ttl {
		return *cur
	}

	prev := entry.snapshot.Load()
	next := m.probe(ctx, backend, prev)
	entry.snapshot.Store(&next)
	m.observe(next)
	m.mirrorBestEffort(ctx, next)
	return next
}

// Aggregate returns the derived overall health view without probing
// (spec §4.1: "never probes").
func (m *Monitor) Aggregate() wamodel.Aggregate {
	available := make(map[wamodel.BackendID]bool, len(m.cache))
	allOK := true
	anyOK := false
	for id, entry := range m.cache {
		snap := entry.snapshot.Load()
		ok := snap != nil && snap.Classification == wamodel.ClassificationOK
		available[id] = ok || (snap != nil && snap.Classification == wamodel.ClassificationDegraded)
		if ok {
			anyOK = true
		} else {
			allOK = false
		}
	}

	overall := wamodel.AggregateDegraded
	if allOK {
		overall = wamodel.AggregateOK
	} else if !anyOK {
		overall = wamodel.AggregateError
	}
	return wamodel.Aggregate{Overall: overall, AvailableBackends: available}
}

// WaitFor polls until backend is ok or deadline elapses, returning
// whether it became available (spec §4.1).
func (m *Monitor) WaitFor(ctx context.Context, backend wamodel.BackendID, deadline time.Time) bool {
	for {
		snap := m.Snapshot(ctx, backend)
		if snap.IsOK() {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (m *Monitor) probe(ctx context.Context, backend wamodel.BackendID, prev *wamodel.Snapshot) wamodel.Snapshot {
	prober, ok := m.probers[backend]
	if !ok {
		return wamodel.Snapshot{Backend: backend, Classification: wamodel.ClassificationUnreachable, LastCheckedAt: time.Now()}
	}

	consecutiveFailures := 0
	if prev != nil {
		consecutiveFailures = prev.ConsecutiveFailures
	}

	start := time.Now()
	reach, err := prober.Health(ctx)
	elapsed := time.Since(start)
	timer := probeDuration.WithLabelValues(string(backend))
	timer.Observe(elapsed.Seconds())

	next := wamodel.Snapshot{
		Backend:        backend,
		ResponseTimeMS: elapsed.Milliseconds(),
		LastCheckedAt:  time.Now(),
	}

	switch {
	case err != nil:
		next.Reachable = false
		next.ConsecutiveFailures = consecutiveFailures + 1
		next.Classification = wamodel.ClassificationUnreachable
	case reach.HTTPStatus < 200 || reach.HTTPStatus >= 300:
		next.Reachable = true
		next.ConsecutiveFailures = consecutiveFailures + 1
		next.Classification = wamodel.ClassificationError
	case !reach.ConnectedToWhatsApp:
		next.Reachable = true
		next.ConnectedToWhatsApp = false
		next.ConsecutiveFailures = consecutiveFailures + 1
		next.Classification = wamodel.ClassificationDegraded
	default:
		next.Reachable = true
		next.ConnectedToWhatsApp = true
		next.ConsecutiveFailures = 0
		next.Classification = wamodel.ClassificationOK
	}

	if prev == nil || prev.Classification != next.Classification {
		m.logger.Info("backend classification changed",
			zap.String("backend", string(backend)),
			zap.String("classification", string(next.Classification)),
			zap.Int64("response_time_ms", next.ResponseTimeMS),
			zap.Int("consecutive_failures", next.ConsecutiveFailures),
		)
	} else {
		m.logger.Debug("backend probe completed",
			zap.String("backend", string(backend)),
			zap.String("classification", string(next.Classification)),
			zap.Int64("response_time_ms", next.ResponseTimeMS),
		)
	}

	return next
}

func (m *Monitor) observe(snap wamodel.Snapshot) {
	classificationGauge.WithLabelValues(string(snap.Backend)).Set(classificationValue[snap.Classification])
	consecutiveFailuresGauge.WithLabelValues(string(snap.Backend)).Set(float64(snap.ConsecutiveFailures))
}

func (m *Monitor) mirrorBestEffort(ctx context.Context, snap wamodel.Snapshot) {
	if m.mirror == nil || m.mirror.Client == nil {
		return
	}
	go func() {
		mirrorCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		key := "wa-orchestrator:health:" + string(snap.Backend)
		payload := string(snap.Classification)
		if err := m.mirror.Client.Set(mirrorCtx, key, payload, m.mirror.KeyTTL).Err(); err != nil {
			m.logger.Debug("health snapshot mirror write failed", zap.Error(err), zap.String("backend", string(snap.Backend)))
		}
	}()
}
