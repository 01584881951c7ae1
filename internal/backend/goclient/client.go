// Package goclient is the typed HTTP client for Backend-G, the
// whatsmeow-based canonical store (spec §4.2). It mirrors the shape of
// the teacher's pkg/whatsapp.Client — a thin, stateless wrapper over a
// pooled *http.Client — generalized to the orchestrator's circuit
// breaker and timeout-category plumbing instead of internal retries.
package goclient

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

// Client is the Backend-G typed HTTP client.
type Client struct {
	base *backend.BaseClient
}

// New builds a Client for the given Backend-G base URL.
func New(baseURL string, policy httpclient.Policy, logger *zap.Logger) *Client {
	return &Client{base: backend.NewBaseClient(wamodel.BackendG, baseURL, policy, logger)}
}

// HealthResponse is Backend-G's /health payload (grounded in the
// upstream project's health.go wire shape retrieved alongside this
// spec).
type HealthResponse struct {
	Status              string `json:"status"`
	ConnectedToWhatsApp bool   `json:"whatsapp_connected"`
}

// Health probes Backend-G's liveness endpoint under the HEALTH timeout
// category, bypassing the circuit breaker's own backoff accounting is
// not special-cased here — a tripped breaker simply reports Transport,
// which the Health Monitor classifies as unreachable.
func (c *Client) Health(ctx context.Context) (*HealthResponse, *apierr.Error) {
	var resp HealthResponse
	if err := c.base.DoJSON(ctx, "GET", "/health", nil, &resp, httpclient.Health); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchInsertRequest carries one page of reconciled messages destined
// for Backend-G's canonical store (spec §4.4.1).
type BatchInsertRequest struct {
	ChatJID  string                     `json:"chat_jid"`
	Messages []wamodel.CanonicalMessage `json:"messages"`
}

type batchInsertResponseEnvelope struct {
	backend.StatusEnvelope
	InsertedCount  int64 `json:"inserted_count"`
	DuplicateCount int64 `json:"duplicate_count"`
	FailedCount    int64 `json:"failed_count"`
}

func (e batchInsertResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// BatchInsertResult is the per-batch outcome returned by BatchInsert.
type BatchInsertResult struct {
	Inserted     int64
	Deduplicated int64
	Failed       int64
}

// MaxBatchSize is the ceiling the batch-insert endpoint accepts per call
// (spec §6, §8: "a batch of exactly 1,000 messages is accepted; 1,001
// is rejected with a clear error at the client layer").
const MaxBatchSize = 1000

// BatchInsert writes one page (at most MaxBatchSize) of canonical
// messages. The server is idempotent on (chat_jid, message_id), so
// re-submitting an already-inserted page is safe (spec §4.4.1,
// "dedup is the server's responsibility, not the orchestrator's").
func (c *Client) BatchInsert(ctx context.Context, req BatchInsertRequest) (*BatchInsertResult, *apierr.Error) {
	if len(req.Messages) > MaxBatchSize {
		return nil, apierr.Orchestrator(apierr.CodeBatchTooLarge, fmt.Sprintf("batch of %d messages exceeds the %d-message limit", len(req.Messages), MaxBatchSize))
	}
	var resp batchInsertResponseEnvelope
	if err := c.base.DoJSON(ctx, "POST", "/api/messages/batch", req, &resp, httpclient.Default); err != nil {
		return nil, err
	}
	return &BatchInsertResult{Inserted: resp.InsertedCount, Deduplicated: resp.DuplicateCount, Failed: resp.FailedCount}, nil
}

type checkpointResponseEnvelope struct {
	backend.StatusEnvelope
	ChatJID             string    `json:"chat_jid"`
	LastSyncedTimestamp time.Time `json:"last_synced_timestamp"`
	MessagesSynced      int64     `json:"messages_synced"`
	LastMessageID       string    `json:"last_message_id"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (e checkpointResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

func (e checkpointResponseEnvelope) checkpoint() wamodel.Checkpoint {
	return wamodel.Checkpoint{
		ChatJID:             e.ChatJID,
		LastSyncedTimestamp: e.LastSyncedTimestamp,
		MessagesSynced:      e.MessagesSynced,
		LastMessageID:       e.LastMessageID,
		UpdatedAt:           e.UpdatedAt,
	}
}

// GetCheckpoint reads a chat's Sync Checkpoint from Backend-G. A missing
// checkpoint (spec §4.4.1: "created on first successful batch insert")
// is not an error — it returns (nil, nil), and the caller treats the
// chat as a fresh start.
func (c *Client) GetCheckpoint(ctx context.Context, chatJID string) (*wamodel.Checkpoint, *apierr.Error) {
	var resp checkpointResponseEnvelope
	path := fmt.Sprintf("/api/chats/%s/checkpoint", chatJID)
	if err := c.base.DoJSON(ctx, "GET", path, nil, &resp, httpclient.Default); err != nil {
		if err.Kind == apierr.KindBackendReported && err.Code == apierr.CodeCheckpointNotFound {
			return nil, nil
		}
		return nil, err
	}
	cp := resp.checkpoint()
	return &cp, nil
}

// PutCheckpoint writes back a chat's Sync Checkpoint after a
// successful batch insert (spec §4.4.1(e): "update checkpoint").
func (c *Client) PutCheckpoint(ctx context.Context, cp wamodel.Checkpoint) *apierr.Error {
	var resp checkpointResponseEnvelope
	path := fmt.Sprintf("/api/chats/%s/checkpoint", cp.ChatJID)
	req := struct {
		LastSyncedTimestamp time.Time `json:"last_synced_timestamp"`
		MessagesSynced      int64     `json:"messages_synced"`
		LastMessageID       string    `json:"last_message_id"`
	}{
		LastSyncedTimestamp: cp.LastSyncedTimestamp,
		MessagesSynced:      cp.MessagesSynced,
		LastMessageID:       cp.LastMessageID,
	}
	if err := c.base.DoJSON(ctx, "PUT", path, req, &resp, httpclient.Default); err != nil {
		return err
	}
	return nil
}

// MarkReadRequest requests Backend-G mark a chat (or a set of chats,
// for the community workflow) as read.
type MarkReadRequest struct {
	ChatJIDs []string `json:"chat_jids"`
}

type markReadResponseEnvelope struct {
	backend.StatusEnvelope
	Count int `json:"count"`
}

func (e markReadResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// MarkRead marks the given chats as read via Backend-G.
func (c *Client) MarkRead(ctx context.Context, req MarkReadRequest) (int, *apierr.Error) {
	var resp markReadResponseEnvelope
	if err := c.base.DoJSON(ctx, "POST", "/api/mark_read", req, &resp, httpclient.Default); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Community is one entry of the community listing.
type Community struct {
	JID    string   `json:"jid"`
	Name   string   `json:"name"`
	Groups []string `json:"groups"`
}

type communityListResponseEnvelope struct {
	backend.StatusEnvelope
	Communities []Community `json:"communities"`
}

func (e communityListResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// ListCommunities lists all communities known to Backend-G.
func (c *Client) ListCommunities(ctx context.Context) ([]Community, *apierr.Error) {
	var resp communityListResponseEnvelope
	if err := c.base.DoJSON(ctx, "GET", "/api/communities/list", nil, &resp, httpclient.Default); err != nil {
		return nil, err
	}
	return resp.Communities, nil
}

type communityGetResponseEnvelope struct {
	backend.StatusEnvelope
	Community Community `json:"community"`
}

func (e communityGetResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// GetCommunity fetches one community's detail, including its member
// groups, by JID.
func (c *Client) GetCommunity(ctx context.Context, communityJID string) (*Community, *apierr.Error) {
	var resp communityGetResponseEnvelope
	path := fmt.Sprintf("/api/communities/%s", communityJID)
	if err := c.base.DoJSON(ctx, "GET", path, nil, &resp, httpclient.Default); err != nil {
		return nil, err
	}
	return &resp.Community, nil
}

type communityGroupsResponseEnvelope struct {
	backend.StatusEnvelope
	GroupJIDs []string `json:"group_jids"`
}

func (e communityGroupsResponseEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// CommunityGroups lists the member group JIDs of a community.
func (c *Client) CommunityGroups(ctx context.Context, communityJID string) ([]string, *apierr.Error) {
	var resp communityGroupsResponseEnvelope
	path := fmt.Sprintf("/api/communities/%s/groups", communityJID)
	if err := c.base.DoJSON(ctx, "GET", path, nil, &resp, httpclient.Default); err != nil {
		return nil, err
	}
	return resp.GroupJIDs, nil
}

type communityMarkReadResponseEnvelope struct {
	backend.StatusEnvelope
	GroupsMarked   int `json:"groups_marked"`
	MessagesMarked int `json:"messages_marked"`
}

func (e communityMarkReadResponseEnvelope) Status() backend.StatusEnvelope {
	return e.StatusEnvelope
}

// CommunityMarkReadResult is the outcome of marking every member group
// of a community as read.
type CommunityMarkReadResult struct {
	GroupsMarked   int
	MessagesMarked int
}

// MarkCommunityRead marks every member group of a community as read in
// one Backend-G call.
func (c *Client) MarkCommunityRead(ctx context.Context, communityJID string) (*CommunityMarkReadResult, *apierr.Error) {
	var resp communityMarkReadResponseEnvelope
	path := fmt.Sprintf("/api/communities/%s/mark-read", communityJID)
	if err := c.base.DoJSON(ctx, "POST", path, nil, &resp, httpclient.Default); err != nil {
		return nil, err
	}
	return &CommunityMarkReadResult{GroupsMarked: resp.GroupsMarked, MessagesMarked: resp.MessagesMarked}, nil
}

// PassthroughEnvelope is the generic success/error envelope used by the
// ~60 pass-through operations (send text/media, query chats/contacts,
// privacy settings, newsletters, business profile, ...) that the
// orchestrator proxies opaquely rather than typing individually (spec
// §2: "most tool-call operations are thin proxies").
type PassthroughEnvelope struct {
	backend.StatusEnvelope
	Data map[string]interface{} `json:"data,omitempty"`
}

func (e PassthroughEnvelope) Status() backend.StatusEnvelope { return e.StatusEnvelope }

// Passthrough proxies an arbitrary Backend-G operation by HTTP method
// and path, decoding the generic envelope. Category lets the caller
// pick MEDIA for payload-heavy operations.
func (c *Client) Passthrough(ctx context.Context, method, path string, body interface{}, category httpclient.TimeoutCategory) (map[string]interface{}, *apierr.Error) {
	var resp PassthroughEnvelope
	if err := c.base.DoJSON(ctx, method, path, body, &resp, category); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
