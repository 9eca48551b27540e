// Package engine is the decision core of the gateway. The router consumes
// event envelopes from the ingress and the WhatsApp adapter, classifies them
// and hands them to the message pipeline, the connection tracker or the
// generic logger. Everything the engine touches is reached through the small
// interfaces below so the pipeline can be exercised without real stores or
// sockets.
package engine

import (
	"context"

	"github.com/wafilter/wafilter/domains/connection"
	"github.com/wafilter/wafilter/domains/events"
	"github.com/wafilter/wafilter/domains/history"
	"github.com/wafilter/wafilter/domains/routing"
	"github.com/wafilter/wafilter/infrastructure/notify"
	"github.com/wafilter/wafilter/infrastructure/webhook"
	"github.com/wafilter/wafilter/pkg/waid"
)

// ConfigSource answers authorization lookups. The config store satisfies it.
type ConfigSource interface {
	FindContact(id string, isLID bool) (routing.Contact, bool)
	FindGroup(id string) (routing.Group, bool)
	ResolveCustomType(src waid.Source) (string, bool)
}

// StatsSink records outcomes and ring-buffer events. The stats store
// satisfies it.
type StatsSink interface {
	RecordEvent(kind, outcome string)
	PushRecent(ev events.StoredEvent) events.StoredEvent
}

// HistorySink stores normalized messages. The message store satisfies it.
type HistorySink interface {
	Add(sourceID string, m history.Message)
	IsOwnMessage(id string) bool
}

// Forwarder delivers payloads downstream. The webhook dispatcher satisfies
// it.
type Forwarder interface {
	Forward(ctx context.Context, payload []byte, meta webhook.Meta) (webhook.Delivery, error)
	ConsecutiveFailures(url string) int
}

// AlertSender fans out operator alerts. The notifier satisfies it.
type AlertSender interface {
	Send(ctx context.Context, a notify.Alert) notify.Result
}

// LIDResolver maps a linked identifier to a phone number. The WhatsApp
// adapter satisfies it; without an adapter it stays nil.
type LIDResolver interface {
	ResolveLID(lid string) (string, bool)
}

// Publisher pushes live updates to connected observers. The websocket hub
// satisfies it; a nil publisher is fine.
type Publisher interface {
	PublishEvent(ev events.StoredEvent)
	PublishState(st connection.Status)
}
