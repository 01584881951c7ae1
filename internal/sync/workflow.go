package sync

import (
	"context"
	"time"

	"github.com/google/uuid" // v1.4.0

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/apierr"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/backend/baileysclient"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

const defaultSyncTimeout = 600 * time.Second

// MarkCommunityReadWithHistory runs the hybrid "retrieve history, then
// mark as read" workflow (spec §4.4.2). syncTimeout <= 0 uses the
// spec's default of 600s.
func (e *Engine) MarkCommunityReadWithHistory(ctx context.Context, communityJID string, syncTimeout time.Duration) (*wamodel.HybridWorkflowResult, *apierr.Error) {
	if syncTimeout <= 0 {
		syncTimeout = defaultSyncTimeout
	}

	runID := uuid.New().String()
	result := &wamodel.HybridWorkflowResult{CommunityJID: communityJID, GroupFailures: make(map[string]string)}

	groups, err := e.goClient.CommunityGroups(ctx, communityJID)
	if err != nil {
		e.recordWorkflowRun(runID, communityJID, result, err)
		return nil, err
	}

	needsHistory, coverageErr := e.needsMoreHistory(ctx, groups)
	if coverageErr != nil {
		e.recordWorkflowRun(runID, communityJID, result, coverageErr)
		return nil, coverageErr
	}

	if needsHistory {
		triggered, triggerErr := e.baileysClient.TriggerHistorySync(ctx, baileysclient.HistorySyncRequest{ChatJID: communityJID})
		result.SyncTriggered = triggerErr == nil && triggered
		if triggerErr != nil {
			e.recordWorkflowRun(runID, communityJID, result, triggerErr)
			return result, triggerErr
		}

		deadline := time.Now().Add(syncTimeout)
		latest, pollErr := e.pollHistoryStatus(ctx, communityJID, deadline)
		if pollErr != nil {
			e.recordWorkflowRun(runID, communityJID, result, pollErr)
			return result, pollErr
		}
		if !latest {
			timeoutErr := apierr.Orchestrator(apierr.CodeSyncTimeout, "sync_timeout elapsed before history sync reached is_latest")
			e.recordWorkflowRun(runID, communityJID, result, timeoutErr)
			return result, timeoutErr
		}
		result.SyncCompleted = true
	}

	syncResult := &wamodel.SyncResult{}
	for _, groupJID := range groups {
		chatResult, reconErr := e.Reconcile(ctx, groupJID)
		if reconErr != nil {
			syncResult.Partial = true
			syncResult.ChatsFailed = append(syncResult.ChatsFailed, groupJID)
			continue
		}
		syncResult.MessagesFetched += chatResult.MessagesFetched
		syncResult.MessagesInserted += chatResult.MessagesInserted
		syncResult.MessagesDeduplicated += chatResult.MessagesDeduplicated
		syncResult.MessagesFailed += chatResult.MessagesFailed
		syncResult.ChatsProcessed++
	}
	result.SyncResult = syncResult

	result.MarkReadAttempted = true
	markResult, markErr := e.goClient.MarkCommunityRead(ctx, communityJID)
	if markErr != nil {
		result.GroupFailures[communityJID] = markErr.Error()
		e.recordWorkflowRun(runID, communityJID, result, markErr)
		// Partial-failure reporting: sync may have succeeded even
		// though mark-read failed (spec §4.4.2) — no rollback.
		return result, nil
	}

	result.MarkReadSucceeded = true
	result.GroupsMarked = markResult.GroupsMarked
	result.MessagesMarked = markResult.MessagesMarked

	e.recordWorkflowRun(runID, communityJID, result, nil)
	return result, nil
}

// needsMoreHistory asks, for each group, whether Backend-G already has
// sufficient message coverage (spec §4.4.2 step 2). It queries each
// group's /api/chats/{group}/coverage endpoint through the generic
// Passthrough: a sufficient_coverage=false answer for any group means
// more history is needed, and an EMPTY_CHAT report counts as "no more
// history needed" for that group.
func (e *Engine) needsMoreHistory(ctx context.Context, groups []string) (bool, *apierr.Error) {
	for _, groupJID := range groups {
		data, err := e.goClient.Passthrough(ctx, "GET", "/api/chats/"+groupJID+"/coverage", nil, "DEFAULT")
		if err != nil {
			if apiErr, ok := asBackendError(err); ok && apiErr.Code == apierr.CodeEmptyChat {
				continue
			}
			return false, err
		}
		if sufficient, ok := data["sufficient_coverage"].(bool); ok && !sufficient {
			return true, nil
		}
	}
	return false, nil
}

func asBackendError(err *apierr.Error) (*apierr.Error, bool) {
	if err == nil {
		return nil, false
	}
	return err, err.Kind == apierr.KindBackendReported
}

func (e *Engine) recordWorkflowRun(runID, communityJID string, result *wamodel.HybridWorkflowResult, runErr error) {
	if e.recorder == nil {
		return
	}
	go e.recorder.RecordRun(context.Background(), "hybrid_workflow", communityJID, result, runErr)
}
