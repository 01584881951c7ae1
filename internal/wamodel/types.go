// Package wamodel holds the data shapes shared by the Routing Engine,
// the Backend Clients, and the Sync & Workflow Engine: the orchestrator's
// own domain model, independent of either backend's wire format.
package wamodel

import "time"

// BackendID identifies one of the two backend bridges.
type BackendID string

const (
	// BackendG is the whatsmeow-based canonical store.
	BackendG BackendID = "G"
	// BackendB is the Baileys-based bulk historical-retrieval backend.
	BackendB BackendID = "B"
)

// Capability is a closed set of operation families a backend can serve.
type Capability string

const (
	CapabilitySend            Capability = "send"
	CapabilityReadState       Capability = "read_state"
	CapabilityHistory         Capability = "history"
	CapabilityCommunity       Capability = "community"
	CapabilityContacts        Capability = "contacts"
	CapabilityChats           Capability = "chats"
	CapabilityPrivacy         Capability = "privacy"
	CapabilityNewsletter      Capability = "newsletter"
	CapabilityBusinessProfile Capability = "business_profile"
	CapabilityMedia           Capability = "media"
)

// Role is the backend's hint to the routing engine: which one is
// considered the default, "primary" destination for an operation.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// Descriptor is the constant-at-process-lifetime description of one
// backend bridge (spec §3, "Backend Descriptor").
type Descriptor struct {
	ID           BackendID
	BaseURL      string
	Role         Role
	Capabilities map[Capability]bool
}

// HasCapability reports whether this backend's capability set covers c.
func (d Descriptor) HasCapability(c Capability) bool {
	return d.Capabilities[c]
}

// Classification is the derived health state of a single backend
// (spec §3, "Health Snapshot").
type Classification string

const (
	ClassificationOK          Classification = "ok"
	ClassificationDegraded    Classification = "degraded"
	ClassificationUnreachable Classification = "unreachable"
	ClassificationError       Classification = "error"
)

// Snapshot is the immutable, atomically-replaced health view of one
// backend. Instances are never mutated in place — a fresh Snapshot is
// built and swapped in (spec §9, "Health Snapshot immutability").
type Snapshot struct {
	Backend             BackendID
	Reachable           bool
	ConnectedToWhatsApp bool
	ResponseTimeMS      int64
	LastCheckedAt       time.Time
	ConsecutiveFailures int
	Classification      Classification
}

// IsOK reports whether this snapshot classifies as ok.
func (s Snapshot) IsOK() bool {
	return s.Classification == ClassificationOK
}

// AggregateOverall is the derived two-backend health rollup.
type AggregateOverall string

const (
	AggregateOK       AggregateOverall = "ok"
	AggregateDegraded AggregateOverall = "degraded"
	AggregateError    AggregateOverall = "error"
)

// Aggregate is the derived overall health view across both backends
// (spec §3, "Aggregate Health").
type Aggregate struct {
	Overall           AggregateOverall
	AvailableBackends map[BackendID]bool
}

// Strategy is the routing rule applied to an Operation Descriptor.
type Strategy string

const (
	StrategyPrimaryOnly Strategy = "PRIMARY_ONLY"
	StrategyPreferG     Strategy = "PREFER_G"
	StrategyPreferB     Strategy = "PREFER_B"
	StrategyRoundRobin  Strategy = "ROUND_ROBIN"
	StrategyFastest     Strategy = "FASTEST"
)

// OperationKind is drawn from the closed enumeration of operation
// families the orchestrator understands.
type OperationKind string

const (
	OpSend            OperationKind = "send"
	OpQuery           OperationKind = "query"
	OpMarkRead        OperationKind = "mark-read"
	OpHistoryFetch    OperationKind = "history-fetch"
	OpCommunityList   OperationKind = "community-list"
	OpCommunityAction OperationKind = "community-action"
	OpSync            OperationKind = "sync"
	OpHybridWorkflow  OperationKind = "hybrid-workflow"
)

// Operation is a fully-resolved descriptor for one named tool-call
// operation (spec §3, "Operation Descriptor").
type Operation struct {
	Name                string
	Kind                OperationKind
	RequiredCapability  Capability
	Strategy            Strategy
	PrimaryOnlyBackend  BackendID // only meaningful when Strategy == StrategyPrimaryOnly
}

// CanonicalMessage is the composite-key-identified message row owned by
// Backend-G's store (spec §3). The orchestrator never stores these; it
// only shuttles them from Backend-B to Backend-G during reconciliation.
type CanonicalMessage struct {
	ChatJID   string
	MessageID string
	Timestamp time.Time
	FromMe    bool
	Sender    string
	Kind      string
	Body      string
	MediaURL  string
}

// Checkpoint is the per-chat reconciliation progress marker, persisted
// in Backend-G's store and only ever accessed through its API (spec §3,
// "Sync Checkpoint").
type Checkpoint struct {
	ChatJID            string
	LastSyncedTimestamp time.Time
	MessagesSynced      int64
	LastMessageID       string
	UpdatedAt           time.Time
}

// SyncResult is the ephemeral outcome of one reconciliation run
// (spec §3, "Sync Result").
type SyncResult struct {
	MessagesFetched      int64
	MessagesInserted     int64
	MessagesDeduplicated int64
	MessagesFailed       int64
	ChatsProcessed       int64
	ChatsFailed          []string
	ElapsedMS            int64
	Partial              bool
}

// ChatSyncState is the diagnostic view of one chat's reconciliation
// progress (SPEC_FULL.md §4.4, "per-chat reconciliation status").
type ChatSyncState struct {
	ChatJID    string
	InProgress bool
	Checkpoint *Checkpoint
}

// HybridWorkflowResult is the composite outcome of the "mark community
// as read with history" workflow (spec §4.4.2). Each phase is reported
// independently so callers can reason about partial success.
type HybridWorkflowResult struct {
	CommunityJID     string
	SyncTriggered    bool
	SyncCompleted    bool
	SyncResult       *SyncResult
	MarkReadAttempted bool
	MarkReadSucceeded bool
	GroupsMarked      int
	MessagesMarked    int
	GroupFailures     map[string]string
}
