package goclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/apierr"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/httpclient"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

func testPolicy() httpclient.Policy {
	return httpclient.Policy{
		ShortTimeout:   2 * time.Second,
		DefaultTimeout: 2 * time.Second,
		MediaTimeout:   2 * time.Second,
		HealthTimeout:  2 * time.Second,
	}
}

func TestBatchInsert_rejectsOversizedBatchWithoutCallingBackend(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testPolicy(), zap.NewNop())
	messages := make([]wamodel.CanonicalMessage, MaxBatchSize+1)
	_, err := c.BatchInsert(context.Background(), BatchInsertRequest{ChatJID: "chat-1", Messages: messages})
	assert.NotNil(t, err)
	assert.Equal(t, apierr.CodeBatchTooLarge, err.Code)
	assert.False(t, called)
}

func TestBatchInsert_acceptsExactlyMaxBatchSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "inserted_count": 1000}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testPolicy(), zap.NewNop())
	messages := make([]wamodel.CanonicalMessage, MaxBatchSize)
	res, err := c.BatchInsert(context.Background(), BatchInsertRequest{ChatJID: "chat-1", Messages: messages})
	assert.Nil(t, err)
	assert.Equal(t, int64(1000), res.Inserted)
}

func TestMarkRead_decodesCountField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "count": 3}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testPolicy(), zap.NewNop())
	n, err := c.MarkRead(context.Background(), MarkReadRequest{ChatJIDs: []string{"chat-1"}})
	assert.Nil(t, err)
	assert.Equal(t, 3, n)
}

func TestGetCheckpoint_returnsNilWhenNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error_code": "CHECKPOINT_NOT_FOUND", "message": "no checkpoint yet"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testPolicy(), zap.NewNop())
	cp, err := c.GetCheckpoint(context.Background(), "chat-1")
	assert.Nil(t, err)
	assert.Nil(t, cp)
}

func TestGetCheckpoint_decodesExistingCheckpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "chat_jid": "chat-1", "last_synced_timestamp": "2026-01-01T00:00:00Z", "messages_synced": 42, "last_message_id": "msg-42"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testPolicy(), zap.NewNop())
	cp, err := c.GetCheckpoint(context.Background(), "chat-1")
	assert.Nil(t, err)
	assert.Equal(t, int64(42), cp.MessagesSynced)
	assert.Equal(t, "msg-42", cp.LastMessageID)
}

func TestHealth_decodesConnectionState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok", "whatsapp_connected": true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testPolicy(), zap.NewNop())
	resp, err := c.Health(context.Background())
	assert.Nil(t, err)
	assert.True(t, resp.ConnectedToWhatsApp)
}
