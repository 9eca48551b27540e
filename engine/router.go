package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wafilter/wafilter/config"
	"github.com/wafilter/wafilter/domains/events"
	pkgError "github.com/wafilter/wafilter/pkg/error"
)

// Router fans envelopes out to the message handler and the connection
// tracker. Kinds neither of them claims are logged so nothing silently
// disappears from the stream.
type Router struct {
	messages   *MessageHandler
	connection *ConnectionTracker
	stats      StatsSink
	publish    Publisher
}

func NewRouter(messages *MessageHandler, tracker *ConnectionTracker, stats StatsSink, publish Publisher) *Router {
	return &Router{
		messages:   messages,
		connection: tracker,
		stats:      stats,
		publish:    publish,
	}
}

// Route processes a single envelope. A panic inside a handler is contained
// here so one malformed payload cannot take the consumer loop down.
func (r *Router) Route(ctx context.Context, env events.Envelope) (res events.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			logrus.Errorf("[ENGINE] panic handling %s: %v", env.Kind, rec)
			res = events.Result{
				Kind:   env.Kind,
				Action: events.ActionFailed,
				Err:    pkgError.InternalServerError("event handler panicked"),
			}
		}
	}()

	switch env.Kind {
	case events.MessagesUpsert, events.SendMessage:
		return r.messages.HandleMessage(ctx, env)
	case events.MessagesUpdate:
		return r.messages.HandleUpdate(ctx, env)
	case events.ConnectionUpdate, events.QRCodeUpdated, events.LogoutInstance:
		return r.connection.HandleEnvelope(ctx, env)
	default:
		return r.handleGeneric(env)
	}
}

// handleGeneric covers the informational kinds. Presence churn is dropped
// entirely unless presence logging is on, everything else lands in the
// recent ring with action logged.
func (r *Router) handleGeneric(env events.Envelope) events.Result {
	if env.Kind == events.PresenceUpdate && !config.PresenceLogging {
		return events.Result{OK: true, Kind: env.Kind, Action: events.ActionIgnored}
	}

	r.stats.RecordEvent(env.Kind, events.ActionLogged)
	stored := r.stats.PushRecent(events.StoredEvent{
		Event:   env.Kind,
		Action:  events.ActionLogged,
		Preview: genericPreview(env.Data),
	})
	if r.publish != nil {
		r.publish.PublishEvent(stored)
	}
	logrus.Debugf("[ENGINE] logged %s", env.Kind)
	return events.Result{OK: true, Kind: env.Kind, Action: events.ActionLogged}
}

// Run consumes envelopes until the channel closes. Meant to be spawned once
// per instance; Route itself is safe for concurrent use.
func (r *Router) Run(ch <-chan events.Envelope) {
	for env := range ch {
		r.Route(context.Background(), env)
	}
	logrus.Info("[ENGINE] event channel closed, router stopping")
}

func genericPreview(raw []byte) string {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil || len(probe) == 0 {
		return ""
	}
	for _, key := range []string{"id", "subject", "action", "from", "status"} {
		var s string
		if err := json.Unmarshal(probe[key], &s); err == nil && s != "" {
			return key + "=" + s
		}
	}
	return ""
}

// DetectKind guesses the event kind of a bare ingress payload from its
// shape. First match wins; unknown shapes return the empty string and the
// caller falls back to a generic kind.
func DetectKind(raw []byte) string {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	if kind := detectFromFields(probe); kind != "" {
		return kind
	}
	if data, ok := probe["data"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(data, &inner); err == nil {
			return detectFromFields(inner)
		}
	}
	return ""
}

func detectFromFields(fields map[string]json.RawMessage) string {
	has := func(key string) bool {
		raw, ok := fields[key]
		return ok && len(raw) > 0 && string(raw) != "null"
	}
	switch {
	case has("key") && has("message"):
		return events.MessagesUpsert
	case has("key") && has("update"):
		return events.MessagesUpdate
	case has("state") || has("connection"):
		return events.ConnectionUpdate
	case has("qrcode") || has("base64"):
		return events.QRCodeUpdated
	case has("subject") && hasGroupID(fields):
		return events.GroupsUpsert
	case has("participants") && has("action"):
		return events.GroupParticipantsUpdate
	}
	return ""
}

func hasGroupID(fields map[string]json.RawMessage) bool {
	var id string
	if err := json.Unmarshal(fields["id"], &id); err != nil {
		return false
	}
	return strings.HasSuffix(id, "@g.us")
}
