package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wafilter/wafilter/config"
	"github.com/wafilter/wafilter/domains/events"
	"github.com/wafilter/wafilter/domains/history"
	"github.com/wafilter/wafilter/domains/routing"
	"github.com/wafilter/wafilter/infrastructure/notify"
	"github.com/wafilter/wafilter/infrastructure/webhook"
	"github.com/wafilter/wafilter/pkg/utils"
	"github.com/wafilter/wafilter/pkg/waid"
)

const (
	previewLimit       = 53
	mentionPostTimeout = 5 * time.Second
	failureStreakAlert = 3
)

// SelfSource reports the paired own number. The connection tracker
// satisfies it.
type SelfSource interface {
	SelfPhone() string
}

// MessageHandlerDeps collects the collaborators of the message pipeline.
// Mentions, LIDs, Self and Publisher may be nil; the pipeline degrades
// instead of failing.
type MessageHandlerDeps struct {
	Config    ConfigSource
	Stats     StatsSink
	Messages  HistorySink
	Forwarder Forwarder
	Notifier  AlertSender
	Mentions  *MentionDetector
	LIDs      LIDResolver
	Self      SelfSource
	Publisher Publisher
}

// MessageHandler runs the per-message pipeline: classify, authorize, store,
// detect mentions, forward. Each step decides whether the next one runs.
type MessageHandler struct {
	deps          MessageHandlerDeps
	mentionClient *http.Client
}

func NewMessageHandler(deps MessageHandlerDeps) *MessageHandler {
	return &MessageHandler{
		deps:          deps,
		mentionClient: &http.Client{Timeout: mentionPostTimeout},
	}
}

// HandleMessage processes MESSAGES_UPSERT and SEND_MESSAGE envelopes.
func (h *MessageHandler) HandleMessage(ctx context.Context, env events.Envelope) events.Result {
	ev, err := events.ParseMessageEvent(env.Data)
	if err != nil {
		logrus.Warnf("[ENGINE] unparseable %s payload: %v", env.Kind, err)
		return events.Result{Kind: env.Kind, Action: events.ActionFailed, Err: err}
	}

	// Status broadcasts are dropped before the payload is unwrapped.
	if waid.IsStatusBroadcast(ev.Key.RemoteJID) {
		return h.filtered(env, waid.Source{ID: waid.StatusBroadcast, Type: waid.SourceStatus}, "", "", "", events.ReasonStatusBroadcast)
	}

	src := waid.ParseSource(ev.Key.RemoteJID)
	sender := h.resolveSender(src, ev)
	outgoing := env.Kind == events.SendMessage || ev.Key.FromMe

	content := ev.Message.Unwrap()
	if content == nil || !content.HasUserContent() {
		// Protocol noise, receipts, wrapper-only payloads. Not an event
		// worth remembering.
		return events.Result{OK: true, Kind: env.Kind, Action: events.ActionIgnored}
	}
	body := content.Body()

	entityType, entityName, reason := h.authorize(src, sender)
	if reason != "" {
		return h.filtered(env, src, sender, body, "", reason)
	}

	h.store(env, src, sender, outgoing, ev, content)

	if src.Type == waid.SourceGroup && config.MentionEnabled && !outgoing && h.deps.Mentions != nil {
		mention, hit := h.deps.Mentions.Detect(MentionInput{
			Body:           body,
			MentionedJIDs:  content.Mentions(),
			QuotedStanzaID: content.QuotedStanzaID(),
			SelfPhone:      h.selfPhone(),
		})
		if hit {
			go h.postMention(env, src, sender, mention)
			stored := events.StoredEvent{
				Event:      env.Kind,
				Action:     events.ActionMention,
				Source:     src.ID,
				SourceType: string(src.Type),
				EntityType: entityType,
				EntityName: entityName,
				Sender:     sender,
				Preview:    utils.TruncateString(body, previewLimit),
				Body:       body,
			}
			if config.MentionOnly {
				h.deps.Stats.RecordEvent(env.Kind, events.ActionMention)
				h.push(stored)
				return events.Result{OK: true, Kind: env.Kind, Action: events.ActionMention}
			}
			// Forwarding continues below and counts the event; the mention
			// record only lands in the ring.
			h.push(stored)
		} else if config.MentionOnly {
			return h.filtered(env, src, sender, body, entityType, events.ReasonMentionsOnly)
		}
	}

	if outgoing && !config.ForwardOutgoing {
		h.deps.Stats.RecordEvent(env.Kind, events.ActionStored)
		h.push(events.StoredEvent{
			Event:      env.Kind,
			Action:     events.ActionStored,
			Source:     src.ID,
			SourceType: string(src.Type),
			EntityType: entityType,
			EntityName: entityName,
			Sender:     sender,
			Preview:    utils.TruncateString(body, previewLimit),
			Body:       body,
		})
		return events.Result{OK: true, Kind: env.Kind, Action: events.ActionStored}
	}

	return h.forward(ctx, env, src, sender, body, entityType, entityName)
}

// HandleUpdate processes MESSAGES_UPDATE envelopes. Updates are logged
// unless forwarding them is switched on; the forwarding path authorizes but
// never stores or mention-checks.
func (h *MessageHandler) HandleUpdate(ctx context.Context, env events.Envelope) events.Result {
	if !config.ForwardMessageUpdates {
		h.deps.Stats.RecordEvent(env.Kind, events.ActionLogged)
		h.push(events.StoredEvent{Event: env.Kind, Action: events.ActionLogged})
		return events.Result{OK: true, Kind: env.Kind, Action: events.ActionLogged}
	}

	ev, err := events.ParseMessageEvent(env.Data)
	if err != nil {
		logrus.Warnf("[ENGINE] unparseable %s payload: %v", env.Kind, err)
		return events.Result{Kind: env.Kind, Action: events.ActionFailed, Err: err}
	}
	if waid.IsStatusBroadcast(ev.Key.RemoteJID) {
		return h.filtered(env, waid.Source{ID: waid.StatusBroadcast, Type: waid.SourceStatus}, "", "", "", events.ReasonStatusBroadcast)
	}

	src := waid.ParseSource(ev.Key.RemoteJID)
	sender := h.resolveSender(src, ev)
	entityType, entityName, reason := h.authorize(src, sender)
	if reason != "" {
		return h.filtered(env, src, sender, "", "", reason)
	}
	return h.forward(ctx, env, src, sender, "", entityType, entityName)
}

// resolveSender finds the phone behind the message. Group messages carry it
// in the participant, direct chats in the remote itself; LID addresses go
// through senderPn, then the resolver, then fall back to the LID digits.
func (h *MessageHandler) resolveSender(src waid.Source, ev *events.MessageEvent) string {
	probe := src
	if src.Type == waid.SourceGroup {
		probe = waid.ParseSource(ev.Key.Participant)
		if probe.ID == "" {
			return ""
		}
	}
	if !probe.IsLID {
		return waid.NormalizePhone(probe.ID)
	}
	if ev.Key.SenderPn != "" {
		return waid.NormalizePhone(ev.Key.SenderPn)
	}
	if h.deps.LIDs != nil {
		if phone, ok := h.deps.LIDs.ResolveLID(probe.ID); ok {
			return waid.NormalizePhone(phone)
		}
	}
	return waid.NormalizePhone(probe.ID)
}

// authorize maps the source onto a registered entity. An empty reason means
// the message may proceed under the returned entity type.
func (h *MessageHandler) authorize(src waid.Source, sender string) (entityType, entityName, reason string) {
	switch src.Type {
	case waid.SourceGroup:
		g, ok := h.deps.Config.FindGroup(src.ID)
		if !ok {
			return "", "", events.ReasonNotInAllowedGroups
		}
		entityType, entityName = routing.EntityGroup, g.Name
	case waid.SourceContact:
		if self := h.selfPhone(); self != "" && waid.SamePhone(sender, self) {
			entityType = routing.EntitySelf
		} else {
			c, ok := h.deps.Config.FindContact(sender, src.IsLID)
			if !ok {
				return "", "", events.ReasonNotInAllowedContacts
			}
			entityType, entityName = routing.EntityContact, c.Name
		}
	default:
		return "", "", events.ReasonUnknownSourceType
	}

	probe := waid.Source{ID: src.ID, Type: src.Type}
	if src.Type == waid.SourceContact {
		probe.ID = sender
	}
	if custom, ok := h.deps.Config.ResolveCustomType(probe); ok {
		entityType = custom
	}
	return entityType, entityName, ""
}

func (h *MessageHandler) filtered(env events.Envelope, src waid.Source, sender, body, entityType, reason string) events.Result {
	h.deps.Stats.RecordEvent(env.Kind, events.ActionFiltered)
	h.push(events.StoredEvent{
		Event:      env.Kind,
		Action:     events.ActionFiltered,
		Source:     src.ID,
		SourceType: string(src.Type),
		EntityType: entityType,
		Sender:     sender,
		Preview:    utils.TruncateString(body, previewLimit),
		Body:       body,
		Reason:     reason,
	})
	logrus.Debugf("[ENGINE] filtered %s from %s: %s", env.Kind, src.ID, reason)
	return events.Result{OK: true, Kind: env.Kind, Action: events.ActionFiltered, Reason: reason}
}

// store normalizes the message into the history store.
func (h *MessageHandler) store(env events.Envelope, src waid.Source, sender string, outgoing bool, ev *events.MessageEvent, content *events.MessageContent) {
	if h.deps.Messages == nil || ev.Key.ID == "" {
		return
	}
	msg := history.Message{
		ID:         ev.Key.ID,
		ChatID:     src.ID,
		Sender:     sender,
		SenderName: ev.PushName,
		Body:       content.Body(),
		Type:       content.Kind(),
		HasMedia:   content.HasMedia(),
		FromSelf:   outgoing,
		QuotedBody: content.QuotedBody(),
		Timestamp:  messageTimestamp(env, ev),
	}
	if msg.HasMedia {
		msg.MediaType = content.Kind()
	}
	if thumb := content.InlineThumbnail(); len(thumb) > 0 {
		msg.Thumbnail = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(thumb)
	}
	h.deps.Messages.Add(src.ID, msg)
}

func messageTimestamp(env events.Envelope, ev *events.MessageEvent) string {
	if t := ev.MessageTimestamp.Time(); !t.IsZero() {
		return t.UTC().Format(time.RFC3339)
	}
	if !env.Received.IsZero() {
		return env.Received.UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// forward hands the raw payload to the dispatcher and records the outcome.
func (h *MessageHandler) forward(ctx context.Context, env events.Envelope, src waid.Source, sender, body, entityType, entityName string) events.Result {
	stored := events.StoredEvent{
		Event:      env.Kind,
		Source:     src.ID,
		SourceType: string(src.Type),
		EntityType: entityType,
		EntityName: entityName,
		Sender:     sender,
		Preview:    utils.TruncateString(body, previewLimit),
		Body:       body,
	}

	delivery, err := h.deps.Forwarder.Forward(ctx, env.Data, webhook.Meta{
		SourceID:   src.ID,
		SourceType: string(src.Type),
		EntityType: entityType,
		EventKind:  env.Kind,
	})
	switch {
	case errors.Is(err, webhook.ErrNoDestination):
		h.deps.Stats.RecordEvent(env.Kind, events.ActionForwarded)
		stored.Action = events.ActionForwarded
		stored.Reason = events.ReasonNoDestinationForType
		h.push(stored)
		return events.Result{OK: true, Kind: env.Kind, Action: events.ActionForwarded, Reason: events.ReasonNoDestinationForType}

	case err != nil:
		h.deps.Stats.RecordEvent(env.Kind, events.ActionFailed)
		stored.Action = events.ActionFailed
		stored.Destination = delivery.Destination
		stored.Error = err.Error()
		h.push(stored)
		if h.deps.Notifier != nil && delivery.Destination != "" &&
			h.deps.Forwarder.ConsecutiveFailures(delivery.Destination) == failureStreakAlert {
			h.deps.Notifier.Send(ctx, notify.WebhookStreakAlert(delivery.Destination, failureStreakAlert))
		}
		return events.Result{Kind: env.Kind, Action: events.ActionFailed, Err: err}

	default:
		h.deps.Stats.RecordEvent(env.Kind, events.ActionForwarded)
		stored.Action = events.ActionForwarded
		stored.Destination = delivery.Destination
		h.push(stored)
		return events.Result{OK: true, Kind: env.Kind, Action: events.ActionForwarded}
	}
}

// postMention notifies the dedicated mention hook. Fire and forget; a dead
// hook must not slow the pipeline down.
func (h *MessageHandler) postMention(env events.Envelope, src waid.Source, sender string, m Mention) {
	url := config.MentionWebhookURL
	if url == "" {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":      env.Kind,
		"source":     src.ID,
		"sourceType": string(src.Type),
		"sender":     sender,
		"mention":    m,
		"data":       json.RawMessage(env.Data),
	})
	if err != nil {
		logrus.Warnf("[MENTION] marshal failed: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		logrus.Warnf("[MENTION] request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if config.MentionWebhookToken != "" {
		req.Header.Set("Authorization", "Bearer "+config.MentionWebhookToken)
	}
	resp, err := h.mentionClient.Do(req)
	if err != nil {
		logrus.Warnf("[MENTION] post to %s failed: %v", url, err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	logrus.Debugf("[MENTION] posted %s mention to %s: %d", m.Method, url, resp.StatusCode)
}

func (h *MessageHandler) selfPhone() string {
	if h.deps.Self == nil {
		return ""
	}
	return h.deps.Self.SelfPhone()
}

func (h *MessageHandler) push(ev events.StoredEvent) {
	stored := h.deps.Stats.PushRecent(ev)
	if h.deps.Publisher != nil {
		h.deps.Publisher.PublishEvent(stored)
	}
}
