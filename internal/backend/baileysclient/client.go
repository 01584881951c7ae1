// Package baileysclient is the typed HTTP client for Backend-B, the
// Baileys-based bulk historical-retrieval backend (spec §4.2, §4.4).
package baileysclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/apierr"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/backend"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/httpclient"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

// Client is the Backend-B typed HTTP client.
type Client struct {
	base *backend.BaseClient
}

// New builds a Client for the given Backend-B base URL.
func New(baseURL string, policy httpclient.Policy, logger *zap.Logger) *Client {
	return &Client{base: backend.NewBaseClient(wamodel.BackendB, baseURL, policy, logger)}
}

// HealthResponse is Backend-B's /health payload.
type HealthResponse struct {
	Status              string `json:"status"`
	ConnectedToWhatsApp bool   `json:"connected"`
}

// Health probes Backend-B's liveness endpoint under the HEALTH timeout
// category.
func (c *Client) Health(ctx context.Context) (*HealthResponse, *apierr.Error) {
	var resp HealthResponse
	if err := c.base.DoJSON(ctx, "GET", "/health", nil, &resp, httpclient.Health); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryStatus reports Backend-B's view of a chat's history sync
// progress (spec §4.4.2's `is_latest` coverage predicate).
type HistoryStatus struct {
	ChatJID  string `json:"chat_jid"`
	IsLatest bool   `json:"is_latest"`
	InFlight bool   `json:"in_flight"`
}

type historyStatusResponseEnvelope struct {
	backend.StatusEnvelope
	HistoryStatus
}

func (e historyStatusResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// HistoryStatus fetches a chat's history sync progress. Used for the
// hybrid workflow's poll loop (spec §4.4.2).
func (c *Client) HistoryStatus(ctx context.Context, chatJID string) (*HistoryStatus, *apierr.Error) {
	var resp historyStatusResponseEnvelope
	path := fmt.Sprintf("/api/history/status?chat_jid=%s", chatJID)
	if err := c.base.DoJSON(ctx, "GET", path, nil, &resp, httpclient.Short); err != nil {
		return nil, err
	}
	return &resp.HistoryStatus, nil
}

// HistorySyncRequest triggers a history backfill for one chat.
type HistorySyncRequest struct {
	ChatJID string `json:"chat_jid"`
}

type historySyncResponseEnvelope struct {
	backend.StatusEnvelope
	Triggered bool `json:"triggered"`
}

func (e historySyncResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// TriggerHistorySync kicks off Backend-B's history backfill for a chat
// without waiting for it to converge; the caller polls HistoryStatus.
func (c *Client) TriggerHistorySync(ctx context.Context, req HistorySyncRequest) (bool, *apierr.Error) {
	var resp historySyncResponseEnvelope
	if err := c.base.DoJSON(ctx, "POST", "/api/history/sync", req, &resp, httpclient.Default); err != nil {
		return false, err
	}
	return resp.Triggered, nil
}

// FetchOlderRequest requests one page of a chat's pending messages
// newer than a Sync Checkpoint (spec §4.4.1(b)). SinceTimestamp is the
// zero time for a fresh chat with no checkpoint yet, in which case
// Backend-B returns from the start of its temp store. AfterMessageID
// disambiguates messages sharing SinceTimestamp across page boundaries
// within the same reconciliation run.
type FetchOlderRequest struct {
	ChatJID        string    `json:"chat_jid"`
	SinceTimestamp time.Time `json:"since_timestamp,omitempty"`
	AfterMessageID string    `json:"after_message_id,omitempty"`
	Limit          int       `json:"limit"`
}

type fetchOlderResponseEnvelope struct {
	backend.StatusEnvelope
	Messages []wamodel.CanonicalMessage `json:"messages"`
	HasMore  bool                       `json:"has_more"`
}

func (e fetchOlderResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// FetchOlderResult is one page of a chat's message history.
type FetchOlderResult struct {
	Messages []wamodel.CanonicalMessage
	HasMore  bool
}

// FetchOlder pages one batch of historical messages for reconciliation
// (spec §4.4.1).
func (c *Client) FetchOlder(ctx context.Context, req FetchOlderRequest) (*FetchOlderResult, *apierr.Error) {
	var resp fetchOlderResponseEnvelope
	if err := c.base.DoJSON(ctx, "POST", "/api/history/fetch-older", req, &resp, httpclient.Default); err != nil {
		return nil, err
	}
	return &FetchOlderResult{Messages: resp.Messages, HasMore: resp.HasMore}, nil
}

type cancelResponseEnvelope struct {
	backend.StatusEnvelope
	Cancelled bool `json:"cancelled"`
}

func (e cancelResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// CancelHistorySync aborts an in-flight backfill for one chat (spec
// §4.4.2, cancellation path).
func (c *Client) CancelHistorySync(ctx context.Context, chatJID string) (bool, *apierr.Error) {
	var resp cancelResponseEnvelope
	req := HistorySyncRequest{ChatJID: chatJID}
	if err := c.base.DoJSON(ctx, "POST", "/api/history/cancel", req, &resp, httpclient.Short); err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

type resumeResponseEnvelope struct {
	backend.StatusEnvelope
	Resumed bool `json:"resumed"`
}

func (e resumeResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// ResumeHistorySync restarts a previously cancelled or interrupted
// backfill from its last checkpoint (SPEC_FULL.md §4.4, supplemented
// from the original implementation's resumable-sync behavior).
func (c *Client) ResumeHistorySync(ctx context.Context, chatJID string) (bool, *apierr.Error) {
	var resp resumeResponseEnvelope
	req := HistorySyncRequest{ChatJID: chatJID}
	if err := c.base.DoJSON(ctx, "POST", "/api/history/resume", req, &resp, httpclient.Default); err != nil {
		return false, err
	}
	return resp.Resumed, nil
}

type clearTempResponseEnvelope struct {
	backend.StatusEnvelope
	Cleared int `json:"cleared"`
}

func (e clearTempResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// ClearTemp tells Backend-B it can discard its staging copy of a chat's
// already-reconciled messages (spec §4.4.1: "only chats that fully
// drained this run are cleared").
func (c *Client) ClearTemp(ctx context.Context, chatJID string) (int, *apierr.Error) {
	var resp clearTempResponseEnvelope
	req := HistorySyncRequest{ChatJID: chatJID}
	if err := c.base.DoJSON(ctx, "POST", "/api/history/clear-temp", req, &resp, httpclient.Default); err != nil {
		return 0, err
	}
	return resp.Cleared, nil
}

// PassthroughEnvelope mirrors goclient's generic envelope for Backend-B
// operations the orchestrator proxies opaquely.
type PassthroughEnvelope struct {
	backend.StatusEnvelope
	Data map[string]interface{} `json:"data,omitempty"`
}

func (e PassthroughEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// Passthrough proxies an arbitrary Backend-B operation by HTTP method
// and path.
func (c *Client) Passthrough(ctx context.Context, method, path string, body interface{}, category httpclient.TimeoutCategory) (map[string]interface{}, *apierr.Error) {
	var resp PassthroughEnvelope
	if err := c.base.DoJSON(ctx, method, path, body, &resp, category); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
