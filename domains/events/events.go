package events

import (
	"encoding/json"
	"time"
)

// Canonical event kinds. Incoming names are normalized to this set; anything
// else flows through the generic handler untouched.
const (
	MessagesUpsert = "MESSAGES_UPSERT"
	MessagesUpdate = "MESSAGES_UPDATE"
	MessagesDelete = "MESSAGES_DELETE"
	MessagesSet    = "MESSAGES_SET"
	SendMessage    = "SEND_MESSAGE"

	ConnectionUpdate   = "CONNECTION_UPDATE"
	QRCodeUpdated      = "QRCODE_UPDATED"
	LogoutInstance     = "LOGOUT_INSTANCE"
	RemoveInstance     = "REMOVE_INSTANCE"
	ApplicationStartup = "APPLICATION_STARTUP"

	ChatsUpsert = "CHATS_UPSERT"
	ChatsUpdate = "CHATS_UPDATE"
	ChatsDelete = "CHATS_DELETE"
	ChatsSet    = "CHATS_SET"

	ContactsUpsert = "CONTACTS_UPSERT"
	ContactsUpdate = "CONTACTS_UPDATE"
	ContactsSet    = "CONTACTS_SET"

	GroupsUpsert            = "GROUPS_UPSERT"
	GroupsUpdate            = "GROUPS_UPDATE"
	GroupParticipantsUpdate = "GROUP_PARTICIPANTS_UPDATE"

	PresenceUpdate    = "PRESENCE_UPDATE"
	Call              = "CALL"
	LabelsAssociation = "LABELS_ASSOCIATION"
	LabelsEdit        = "LABELS_EDIT"
)

// Canonical reports whether kind belongs to the closed set above.
func Canonical(kind string) bool {
	switch kind {
	case MessagesUpsert, MessagesUpdate, MessagesDelete, MessagesSet,
		SendMessage, ConnectionUpdate, QRCodeUpdated, LogoutInstance,
		RemoveInstance, ApplicationStartup, ChatsUpsert, ChatsUpdate,
		ChatsDelete, ChatsSet, ContactsUpsert, ContactsUpdate, ContactsSet,
		GroupsUpsert, GroupsUpdate, GroupParticipantsUpdate, PresenceUpdate,
		Call, LabelsAssociation, LabelsEdit:
		return true
	}
	return false
}

// Origin of an envelope.
const (
	OriginIngress  = "ingress"
	OriginWhatsapp = "whatsapp"
)

// Envelope is one unit of inbound work. Data holds the body exactly as it
// arrived; forwarding must never re-marshal it.
type Envelope struct {
	Kind     string
	Data     json.RawMessage
	Origin   string
	Received time.Time
}

// Actions recorded for handled events. ActionIgnored only ever appears in
// the in-memory Result for skipped events; it is never written to the ring
// buffer.
const (
	ActionForwarded = "forwarded"
	ActionFiltered  = "filtered"
	ActionFailed    = "failed"
	ActionLogged    = "logged"
	ActionStored    = "stored"
	ActionMention   = "mention_forwarded"
	ActionIgnored   = "ignored"
)

// Filter reasons.
const (
	ReasonStatusBroadcast      = "status_broadcast"
	ReasonNotInAllowedContacts = "not_in_allowed_contacts"
	ReasonNotInAllowedGroups   = "not_in_allowed_groups"
	ReasonUnknownSourceType    = "unknown_source_type"
	ReasonMentionsOnly         = "mentions_only"
	ReasonNoDestinationForType = "no_destination_for_type"
)

// Result is what routing one envelope produced.
type Result struct {
	OK     bool   `json:"ok"`
	Kind   string `json:"event"`
	Action string `json:"action,omitempty"`
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
}

// StoredEvent is the ring-buffer record kept for every handled event. Unused
// fields stay empty and are omitted from JSON.
type StoredEvent struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Event       string `json:"event"`
	Action      string `json:"action"`
	Source      string `json:"source,omitempty"`
	SourceType  string `json:"sourceType,omitempty"`
	EntityType  string `json:"entityType,omitempty"`
	EntityName  string `json:"entityName,omitempty"`
	Sender      string `json:"sender,omitempty"`
	Preview     string `json:"preview,omitempty"`
	Body        string `json:"body,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Destination string `json:"destination,omitempty"`
	Error       string `json:"error,omitempty"`
}
