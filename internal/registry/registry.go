// Package registry holds the Operation Registry: the static table
// mapping tool-call operation names to their Operation Descriptor,
// built once at startup and consulted by the Routing Engine (spec §9's
// "dynamic tool registration" design note, made concrete here).
package registry

import (
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/wamodel"
)

// Registry is an immutable, process-lifetime table of operations.
type Registry struct {
	operations map[string]wamodel.Operation
}

// Lookup returns the Operation Descriptor for name, or false if no
// such operation is registered.
func (r *Registry) Lookup(name string) (wamodel.Operation, bool) {
	op, ok := r.operations[name]
	return op, ok
}

// Names returns every registered operation name, for diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.operations))
	for name := range r.operations {
		names = append(names, name)
	}
	return names
}

type builder struct {
	ops map[string]wamodel.Operation
}

func (b *builder) add(name string, kind wamodel.OperationKind, cap wamodel.Capability, strategy wamodel.Strategy) {
	b.ops[name] = wamodel.Operation{Name: name, Kind: kind, RequiredCapability: cap, Strategy: strategy}
}

func (b *builder) addPrimary(name string, kind wamodel.OperationKind, cap wamodel.Capability, backend wamodel.BackendID) {
	b.ops[name] = wamodel.Operation{Name: name, Kind: kind, RequiredCapability: cap, Strategy: wamodel.StrategyPrimaryOnly, PrimaryOnlyBackend: backend}
}

// New builds the Operation Registry with the default routing strategy
// applied to every operation whose entry doesn't fix a strategy of its
// own. The history entries added through addPrimary are PRIMARY_ONLY and
// pin Backend-B; reconcile_chat, reconcile_all and
// mark_community_read_with_history are PRIMARY_ONLY with no pinned
// backend, so Route never selects a backend for them.
func New(defaultStrategy wamodel.Strategy) *Registry {
	b := &builder{ops: make(map[string]wamodel.Operation, 96)}

	// Core operations with fixed, operation-specific strategies.
	b.add("send_message", wamodel.OpSend, wamodel.CapabilitySend, wamodel.StrategyPreferG)
	b.add("send_media", wamodel.OpSend, wamodel.CapabilityMedia, wamodel.StrategyPreferG)
	b.add("mark_read", wamodel.OpMarkRead, wamodel.CapabilityReadState, defaultStrategy)
	b.add("mark_community_read", wamodel.OpMarkRead, wamodel.CapabilityReadState, defaultStrategy)
	b.add("list_communities", wamodel.OpCommunityList, wamodel.CapabilityCommunity, defaultStrategy)
	b.add("get_community", wamodel.OpQuery, wamodel.CapabilityCommunity, defaultStrategy)
	b.add("list_community_groups", wamodel.OpCommunityList, wamodel.CapabilityCommunity, defaultStrategy)
	b.addPrimary("trigger_history_sync", wamodel.OpHistoryFetch, wamodel.CapabilityHistory, wamodel.BackendB)
	b.addPrimary("history_sync_status", wamodel.OpQuery, wamodel.CapabilityHistory, wamodel.BackendB)
	b.addPrimary("fetch_older_messages", wamodel.OpHistoryFetch, wamodel.CapabilityHistory, wamodel.BackendB)
	b.addPrimary("cancel_history_sync", wamodel.OpHistoryFetch, wamodel.CapabilityHistory, wamodel.BackendB)
	b.addPrimary("resume_history_sync", wamodel.OpHistoryFetch, wamodel.CapabilityHistory, wamodel.BackendB)
	b.add("reconcile_chat", wamodel.OpSync, wamodel.CapabilityHistory, wamodel.StrategyPrimaryOnly)
	b.add("reconcile_all", wamodel.OpSync, wamodel.CapabilityHistory, wamodel.StrategyPrimaryOnly)
	b.add("mark_community_read_with_history", wamodel.OpHybridWorkflow, wamodel.CapabilityCommunity, wamodel.StrategyPrimaryOnly)

	// Representative pass-through operations per capability family
	// (spec §6: "~60 non-core operations", proxied opaquely).
	passthrough := []struct {
		name string
		cap  wamodel.Capability
	}{
		{"list_chats", wamodel.CapabilityChats},
		{"get_chat", wamodel.CapabilityChats},
		{"archive_chat", wamodel.CapabilityChats},
		{"pin_chat", wamodel.CapabilityChats},
		{"mute_chat", wamodel.CapabilityChats},
		{"delete_chat", wamodel.CapabilityChats},
		{"list_contacts", wamodel.CapabilityContacts},
		{"get_contact", wamodel.CapabilityContacts},
		{"block_contact", wamodel.CapabilityContacts},
		{"unblock_contact", wamodel.CapabilityContacts},
		{"get_profile_picture", wamodel.CapabilityContacts},
		{"get_privacy_settings", wamodel.CapabilityPrivacy},
		{"set_privacy_settings", wamodel.CapabilityPrivacy},
		{"get_blocklist", wamodel.CapabilityPrivacy},
		{"list_newsletters", wamodel.CapabilityNewsletter},
		{"get_newsletter", wamodel.CapabilityNewsletter},
		{"follow_newsletter", wamodel.CapabilityNewsletter},
		{"unfollow_newsletter", wamodel.CapabilityNewsletter},
		{"get_business_profile", wamodel.CapabilityBusinessProfile},
		{"update_business_profile", wamodel.CapabilityBusinessProfile},
		{"get_business_catalog", wamodel.CapabilityBusinessProfile},
		{"download_media", wamodel.CapabilityMedia},
		{"upload_media", wamodel.CapabilityMedia},
		{"send_sticker", wamodel.CapabilityMedia},
		{"send_voice_note", wamodel.CapabilityMedia},
		{"send_document", wamodel.CapabilityMedia},
		{"react_to_message", wamodel.CapabilitySend},
		{"delete_message", wamodel.CapabilitySend},
		{"edit_message", wamodel.CapabilitySend},
		{"forward_message", wamodel.CapabilitySend},
	}
	for _, p := range passthrough {
		b.add(p.name, wamodel.OpQuery, p.cap, defaultStrategy)
	}

	return &Registry{operations: b.ops}
}
