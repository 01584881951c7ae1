package opsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/audit"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/routing"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

type fakeHealthView struct {
	agg       wamodel.Aggregate
	snapshots map[wamodel.BackendID]wamodel.Snapshot
}

func (f *fakeHealthView) Aggregate() wamodel.Aggregate { return f.agg }

func (f *fakeHealthView) Snapshot(ctx context.Context, backend wamodel.BackendID) wamodel.Snapshot {
	return f.snapshots[backend]
}

type fakeRoutingView struct {
	info      routing.RoutingInfo
	available bool
}

func (f *fakeRoutingView) Info(ctx context.Context, op wamodel.Operation) routing.RoutingInfo {
	return f.info
}

func (f *fakeRoutingView) IsAvailable(op wamodel.Operation) bool { return f.available }

type fakeOperationLookup struct {
	ops map[string]wamodel.Operation
}

func (f *fakeOperationLookup) Lookup(name string) (wamodel.Operation, bool) {
	op, ok := f.ops[name]
	return op, ok
}

type fakeRunLister struct {
	records []audit.Record
	err     error
}

func (f *fakeRunLister) ListRuns(ctx context.Context, limit int) ([]audit.Record, error) {
	return f.records, f.err
}

type fakeSyncView struct {
	status wamodel.ChatSyncState
}

func (f *fakeSyncView) Status(chatJID string) wamodel.ChatSyncState { return f.status }

func newTestServer(runs RunLister) (*Server, *fakeHealthView, *fakeRoutingView, *fakeOperationLookup) {
	health := &fakeHealthView{
		agg: wamodel.Aggregate{
			Overall:           wamodel.AggregateOK,
			AvailableBackends: map[wamodel.BackendID]bool{wamodel.BackendG: true, wamodel.BackendB: true},
		},
	}
	routingView := &fakeRoutingView{
		info: routing.RoutingInfo{
			Selected: wamodel.BackendG,
			Strategy: wamodel.StrategyPreferG,
		},
		available: true,
	}
	lookup := &fakeOperationLookup{ops: map[string]wamodel.Operation{
		"send_message": {Name: "send_message", Strategy: wamodel.StrategyPreferG},
	}}
	srv := New("127.0.0.1:0", health, routingView, lookup, runs, nil, zap.NewNop())
	return srv, health, routingView, lookup
}

func TestHealthz_alwaysReportsOK(t *testing.T) {
	srv, _, _, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz_reportsUnavailableWhenAggregateIsError(t *testing.T) {
	srv, health, _, _ := newTestServer(nil)
	health.agg = wamodel.Aggregate{Overall: wamodel.AggregateError, AvailableBackends: map[wamodel.BackendID]bool{}}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyz_reportsReadyWhenAtLeastOneBackendAvailable(t *testing.T) {
	srv, _, _, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDebugRouting_returns404ForUnknownOperation(t *testing.T) {
	srv, _, _, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/routing/not_a_real_op", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugRouting_returnsRoutingDecisionForKnownOperation(t *testing.T) {
	srv, _, _, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/routing/send_message", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "send_message")
}

func TestDebugSync_disabledWithoutSyncView(t *testing.T) {
	srv, _, _, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/sync/chat-1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugSync_reportsInProgressStatus(t *testing.T) {
	health := &fakeHealthView{agg: wamodel.Aggregate{Overall: wamodel.AggregateOK, AvailableBackends: map[wamodel.BackendID]bool{wamodel.BackendG: true}}}
	routingView := &fakeRoutingView{available: true}
	lookup := &fakeOperationLookup{ops: map[string]wamodel.Operation{}}
	syncView := &fakeSyncView{status: wamodel.ChatSyncState{ChatJID: "chat-1", InProgress: true}}

	srv := New("127.0.0.1:0", health, routingView, lookup, nil, syncView, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/debug/sync/chat-1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"InProgress":true`)
}

func TestInternalRuns_disabledWithoutRunLister(t *testing.T) {
	srv, _, _, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/internal/runs", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInternalRuns_listsRecordsWhenEnabled(t *testing.T) {
	runs := &fakeRunLister{records: []audit.Record{{ID: "run-1", Kind: "sync", SubjectID: "chat-1"}}}
	srv, _, _, _ := newTestServer(runs)
	req := httptest.NewRequest(http.MethodGet, "/internal/runs", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-1")
}
