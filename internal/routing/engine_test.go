package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/apierr"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

type fakeHealth struct {
	snapshots map[wamodel.BackendID]wamodel.Snapshot
	overall   wamodel.AggregateOverall
}

func (f *fakeHealth) Aggregate() wamodel.Aggregate {
	avail := make(map[wamodel.BackendID]bool)
	for id, snap := range f.snapshots {
		avail[id] = snap.Classification == wamodel.ClassificationOK || snap.Classification == wamodel.ClassificationDegraded
	}
	return wamodel.Aggregate{Overall: f.overall, AvailableBackends: avail}
}

func (f *fakeHealth) Snapshot(ctx context.Context, backend wamodel.BackendID) wamodel.Snapshot {
	return f.snapshots[backend]
}

func bothOK() *fakeHealth {
	return &fakeHealth{
		overall: wamodel.AggregateOK,
		snapshots: map[wamodel.BackendID]wamodel.Snapshot{
			wamodel.BackendG: {Backend: wamodel.BackendG, Classification: wamodel.ClassificationOK},
			wamodel.BackendB: {Backend: wamodel.BackendB, Classification: wamodel.ClassificationOK},
		},
	}
}

func bothCapableDescs() map[wamodel.BackendID]wamodel.Descriptor {
	full := map[wamodel.Capability]bool{
		wamodel.CapabilitySend: true, wamodel.CapabilityHistory: true, wamodel.CapabilityReadState: true,
	}
	return map[wamodel.BackendID]wamodel.Descriptor{
		wamodel.BackendG: {ID: wamodel.BackendG, Role: wamodel.RolePrimary, Capabilities: full},
		wamodel.BackendB: {ID: wamodel.BackendB, Role: wamodel.RoleSecondary, Capabilities: full},
	}
}

func TestRoute_invalidOperationWithoutInvokingBackend(t *testing.T) {
	called := false
	invoke := func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error) {
		called = true
		return "x", nil
	}
	e := New(bothCapableDescs(), bothOK(), invoke)
	outcome := e.Route(context.Background(), wamodel.Operation{})
	assert.NotNil(t, outcome.Err)
	assert.Equal(t, apierr.CodeInvalidOperation, outcome.Err.Code)
	assert.False(t, called)
}

func TestRoute_noBackendAvailableWhenBothUnreachable(t *testing.T) {
	h := &fakeHealth{
		overall: wamodel.AggregateError,
		snapshots: map[wamodel.BackendID]wamodel.Snapshot{
			wamodel.BackendG: {Classification: wamodel.ClassificationUnreachable},
			wamodel.BackendB: {Classification: wamodel.ClassificationUnreachable},
		},
	}
	invoke := func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error) {
		t.Fatal("must not invoke when no backend available")
		return nil, nil
	}
	e := New(bothCapableDescs(), h, invoke)
	op := wamodel.Operation{Name: "send_message", Kind: wamodel.OpSend, RequiredCapability: wamodel.CapabilitySend, Strategy: wamodel.StrategyPreferG}
	outcome := e.Route(context.Background(), op)
	assert.Equal(t, apierr.CodeNoBackendAvailable, outcome.Err.Code)
}

func TestRoute_primaryOnlyFailsWhenPinnedBackendUnavailable(t *testing.T) {
	h := &fakeHealth{
		overall: wamodel.AggregateDegraded,
		snapshots: map[wamodel.BackendID]wamodel.Snapshot{
			wamodel.BackendG: {Classification: wamodel.ClassificationOK},
			wamodel.BackendB: {Classification: wamodel.ClassificationUnreachable},
		},
	}
	invoke := func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error) {
		t.Fatal("must not invoke when pinned backend is not a candidate")
		return nil, nil
	}
	e := New(bothCapableDescs(), h, invoke)
	op := wamodel.Operation{Name: "trigger_history_sync", Kind: wamodel.OpHistoryFetch, RequiredCapability: wamodel.CapabilityHistory, Strategy: wamodel.StrategyPrimaryOnly, PrimaryOnlyBackend: wamodel.BackendB}
	outcome := e.Route(context.Background(), op)
	assert.Equal(t, apierr.CodeNoBackendAvailable, outcome.Err.Code)
}

func TestRoute_preferGSelectsGWhenBothCandidates(t *testing.T) {
	invoke := func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error) {
		return backend, nil
	}
	e := New(bothCapableDescs(), bothOK(), invoke)
	op := wamodel.Operation{Name: "send_message", Kind: wamodel.OpSend, RequiredCapability: wamodel.CapabilitySend, Strategy: wamodel.StrategyPreferG}
	outcome := e.Route(context.Background(), op)
	assert.Nil(t, outcome.Err)
	assert.Equal(t, wamodel.BackendG, outcome.Selected)
}

func TestRoute_fallsBackOnTransportError(t *testing.T) {
	attempts := 0
	invoke := func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error) {
		attempts++
		if backend == wamodel.BackendG {
			return nil, apierr.Transport(apierr.CodeTimeout, "timed out", nil)
		}
		return "ok-from-b", nil
	}
	e := New(bothCapableDescs(), bothOK(), invoke)
	op := wamodel.Operation{Name: "send_message", Kind: wamodel.OpSend, RequiredCapability: wamodel.CapabilitySend, Strategy: wamodel.StrategyPreferG}
	outcome := e.Route(context.Background(), op)
	assert.Nil(t, outcome.Err)
	assert.True(t, outcome.FallbackUsed)
	assert.Equal(t, wamodel.BackendB, outcome.Selected)
	assert.Equal(t, 2, attempts)
}

func TestRoute_doesNotFallBackOnPrimaryOnly(t *testing.T) {
	attempts := 0
	invoke := func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error) {
		attempts++
		return nil, apierr.Transport(apierr.CodeTimeout, "timed out", nil)
	}
	e := New(bothCapableDescs(), bothOK(), invoke)
	op := wamodel.Operation{Name: "trigger_history_sync", Kind: wamodel.OpHistoryFetch, RequiredCapability: wamodel.CapabilityHistory, Strategy: wamodel.StrategyPrimaryOnly, PrimaryOnlyBackend: wamodel.BackendB}
	outcome := e.Route(context.Background(), op)
	assert.NotNil(t, outcome.Err)
	assert.Equal(t, 1, attempts)
}

func TestRoute_doesNotFallBackOnDatabaseError(t *testing.T) {
	attempts := 0
	invoke := func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error) {
		attempts++
		return nil, apierr.BackendReported(apierr.CodeDatabaseError, "insert failed")
	}
	e := New(bothCapableDescs(), bothOK(), invoke)
	op := wamodel.Operation{Name: "send_message", Kind: wamodel.OpSend, RequiredCapability: wamodel.CapabilitySend, Strategy: wamodel.StrategyPreferG}
	outcome := e.Route(context.Background(), op)
	assert.NotNil(t, outcome.Err)
	assert.Equal(t, apierr.CodeDatabaseError, outcome.Err.Code)
	assert.Equal(t, 1, attempts)
}

func TestRoute_roundRobinDistributesAcrossCandidates(t *testing.T) {
	invoke := func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error) {
		return backend, nil
	}
	e := New(bothCapableDescs(), bothOK(), invoke)
	op := wamodel.Operation{Name: "mark_read", Kind: wamodel.OpMarkRead, RequiredCapability: wamodel.CapabilityReadState, Strategy: wamodel.StrategyRoundRobin}

	counts := map[wamodel.BackendID]int{}
	const n = 100
	for i := 0; i < n; i++ {
		outcome := e.Route(context.Background(), op)
		counts[outcome.Selected]++
	}
	assert.Equal(t, n/2, counts[wamodel.BackendG])
	assert.Equal(t, n/2, counts[wamodel.BackendB])
}

func TestRoute_fastestPrefersLowerLatencyAndTieBreaksToG(t *testing.T) {
	invoke := func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error) {
		return backend, nil
	}

	tie := &fakeHealth{
		overall: wamodel.AggregateOK,
		snapshots: map[wamodel.BackendID]wamodel.Snapshot{
			wamodel.BackendG: {Classification: wamodel.ClassificationOK, ResponseTimeMS: 50},
			wamodel.BackendB: {Classification: wamodel.ClassificationOK, ResponseTimeMS: 50},
		},
	}
	e := New(bothCapableDescs(), tie, invoke)
	op := wamodel.Operation{Name: "mark_read", Kind: wamodel.OpMarkRead, RequiredCapability: wamodel.CapabilityReadState, Strategy: wamodel.StrategyFastest}
	outcome := e.Route(context.Background(), op)
	assert.Equal(t, wamodel.BackendG, outcome.Selected)

	faster := &fakeHealth{
		overall: wamodel.AggregateOK,
		snapshots: map[wamodel.BackendID]wamodel.Snapshot{
			wamodel.BackendG: {Classification: wamodel.ClassificationOK, ResponseTimeMS: 200},
			wamodel.BackendB: {Classification: wamodel.ClassificationOK, ResponseTimeMS: 20},
		},
	}
	e2 := New(bothCapableDescs(), faster, invoke)
	outcome2 := e2.Route(context.Background(), op)
	assert.Equal(t, wamodel.BackendB, outcome2.Selected)
}

func TestIsAvailable_falseWhenNoCandidateIsOK(t *testing.T) {
	h := &fakeHealth{
		overall: wamodel.AggregateDegraded,
		snapshots: map[wamodel.BackendID]wamodel.Snapshot{
			wamodel.BackendG: {Classification: wamodel.ClassificationDegraded},
			wamodel.BackendB: {Classification: wamodel.ClassificationUnreachable},
		},
	}
	invoke := func(ctx context.Context, backend wamodel.BackendID, op wamodel.Operation) (interface{}, *apierr.Error) {
		return nil, nil
	}
	e := New(bothCapableDescs(), h, invoke)
	op := wamodel.Operation{Name: "send_message", RequiredCapability: wamodel.CapabilitySend}
	assert.False(t, e.IsAvailable(op))
}
