package whatsapp

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/wafilter/wafilter/config"
	domainEvents "github.com/wafilter/wafilter/domains/events"
	"github.com/wafilter/wafilter/pkg/msgworker"
	"github.com/wafilter/wafilter/pkg/waid"
)

// handleEvent is the whatsmeow event hook. It translates client events into
// canonical envelopes; message payloads take the worker pool so chats stay
// ordered without blocking each other.
func (a *Adapter) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		a.bridgeMessage(evt)
	case *events.Receipt:
		// delivery/read receipts carry nothing the router cares about
	case *events.Connected:
		a.noteSelf()
		a.emitConnection("open")
	case *events.PairSuccess:
		a.setSelfPhone(evt.ID.User)
	case *events.Disconnected:
		a.emitConnection("close")
		go a.autoReconnect()
	case *events.StreamReplaced:
		logrus.Warn("[WA] stream replaced by another client instance")
		a.emitConnection("close")
	case *events.LoggedOut:
		logrus.Warnf("[WA] logged out remotely (%v)", evt.Reason)
		a.emit(domainEvents.LogoutInstance, map[string]any{"reason": fmt.Sprintf("%v", evt.Reason)})
		a.wipeSession(context.Background())
	case *events.GroupInfo:
		a.bridgeGroupInfo(evt)
	case *events.Presence:
		a.emit(domainEvents.PresenceUpdate, map[string]any{
			"id":          evt.From.String(),
			"unavailable": evt.Unavailable,
		})
	case *events.PushNameSetting:
		a.noteSelf()
	}
}

func (a *Adapter) emitConnection(state string) {
	a.emit(domainEvents.ConnectionUpdate, map[string]any{"state": state})
}

func (a *Adapter) bridgeMessage(evt *events.Message) {
	info := evt.Info

	// broadcast lists other than the status feed only carry key
	// distribution noise
	if info.Chat.Server == types.BroadcastServer && info.Chat.User != "status" {
		return
	}
	// our own sends echo back addressed to ourselves, drop the duplicate
	if self := a.getSelfPhone(); self != "" &&
		info.Chat.Server == types.DefaultUserServer && waid.SamePhone(info.Chat.User, self) {
		return
	}

	kind := domainEvents.MessagesUpsert
	if info.IsFromMe {
		kind = domainEvents.SendMessage
	}
	payload := a.messagePayload(evt)

	if a.pool != nil {
		a.pool.Dispatch(msgworker.Job{
			Source: info.Chat.String(),
			Handler: func(ctx context.Context) error {
				a.emit(kind, payload)
				return nil
			},
		})
	} else {
		a.emit(kind, payload)
	}

	if config.WhatsappAutoDownloadMedia {
		a.downloadMedia(evt)
	}
}

// messagePayload rebuilds the Baileys-shaped JSON the ingress also speaks, so
// the engine parses both origins with the same code.
func (a *Adapter) messagePayload(evt *events.Message) map[string]any {
	info := evt.Info

	key := map[string]any{
		"remoteJid": info.Chat.String(),
		"fromMe":    info.IsFromMe,
		"id":        info.ID,
	}
	if info.Chat.Server == types.GroupServer && !info.Sender.IsEmpty() {
		key["participant"] = info.Sender.ToNonAD().String()
	}
	if pn, ok := a.senderPhoneJID(info); ok {
		key["senderPn"] = pn
	}

	payload := map[string]any{
		"key":              key,
		"messageTimestamp": info.Timestamp.Unix(),
	}
	if info.PushName != "" {
		payload["pushName"] = info.PushName
	}
	if evt.Message != nil {
		payload["message"] = evt.Message
	}
	return payload
}

// senderPhoneJID surfaces the phone identity behind a linked-identifier
// sender: the per-message alt hint first, then the session's LID index.
func (a *Adapter) senderPhoneJID(info types.MessageInfo) (string, bool) {
	if info.Sender.Server != types.HiddenUserServer {
		return "", false
	}
	if alt := info.SenderAlt; !alt.IsEmpty() && alt.Server == types.DefaultUserServer {
		return alt.ToNonAD().String(), true
	}
	if pn, ok := a.lids.resolve(info.Sender); ok {
		return pn.String(), true
	}
	return "", false
}

func (a *Adapter) bridgeGroupInfo(evt *events.GroupInfo) {
	if len(evt.Join) > 0 {
		a.emitParticipants(evt.JID, "add", evt.Join)
	}
	if len(evt.Leave) > 0 {
		a.emitParticipants(evt.JID, "remove", evt.Leave)
	}
	if evt.Name != nil {
		a.emit(domainEvents.GroupsUpdate, map[string]any{
			"id":      evt.JID.String(),
			"subject": evt.Name.Name,
		})
	}
}

func (a *Adapter) emitParticipants(jid types.JID, action string, participants []types.JID) {
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.String())
	}
	a.emit(domainEvents.GroupParticipantsUpdate, map[string]any{
		"id":           jid.String(),
		"action":       action,
		"participants": ids,
	})
}
