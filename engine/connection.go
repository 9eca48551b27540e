package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/wafilter/wafilter/domains/connection"
	"github.com/wafilter/wafilter/domains/events"
	"github.com/wafilter/wafilter/infrastructure/notify"
)

const stateHistoryLimit = 20

// ConnectionTracker keeps the canonical connection state, its bounded
// transition history and the pairing QR. Raw transport states from both the
// adapter and ingress payloads funnel through HandleStateChange.
type ConnectionTracker struct {
	mu          sync.Mutex
	state       connection.State
	since       time.Time
	selfPhone   string
	qr          *connection.QRInfo
	lastQRAlert string
	history     []connection.StateChange

	stats    StatsSink
	notifier AlertSender
	publish  Publisher
}

func NewConnectionTracker(stats StatsSink, notifier AlertSender, publish Publisher) *ConnectionTracker {
	return &ConnectionTracker{
		state:    connection.StateUnknown,
		stats:    stats,
		notifier: notifier,
		publish:  publish,
	}
}

func canonicalState(raw string) connection.State {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "connected":
		return connection.StateConnected
	case "close", "closed", "disconnected":
		return connection.StateDisconnected
	case "connecting":
		return connection.StateConnecting
	case "logged_out", "loggedout", "logout":
		return connection.StateLoggedOut
	default:
		return connection.State(raw)
	}
}

// HandleStateChange applies a raw transport state. Nothing happens unless
// the canonical state actually changes; a transition records history, moves
// `since`, clears the QR on connected and alerts by severity.
func (t *ConnectionTracker) HandleStateChange(raw string) connection.State {
	next := canonicalState(raw)

	t.mu.Lock()
	prev := t.state
	if next == prev || next == "" {
		t.mu.Unlock()
		return prev
	}
	t.state = next
	t.since = time.Now().UTC()
	t.appendHistoryLocked(next)
	if next == connection.StateConnected {
		t.qr = nil
		t.lastQRAlert = ""
	}
	phone := t.selfPhone
	t.mu.Unlock()

	logrus.Infof("[WA] connection state %s -> %s", prev, next)
	t.notifier.Send(context.Background(), notify.ConnectionAlert(string(next), string(prev), phone))
	t.publishStatus()
	return next
}

func (t *ConnectionTracker) appendHistoryLocked(st connection.State) {
	t.history = append(t.history, connection.StateChange{
		State: st,
		At:    time.Now().UTC().Format(time.RFC3339),
	})
	if len(t.history) > stateHistoryLimit {
		t.history = t.history[len(t.history)-stateHistoryLimit:]
	}
}

// SetQR stores the pairing code waiting to be scanned. The scan alert fires
// once per distinct code.
func (t *ConnectionTracker) SetQR(code, dataURI string) {
	if code == "" && dataURI == "" {
		return
	}
	if dataURI == "" && code != "" {
		if png, err := qrcode.Encode(code, qrcode.Medium, 256); err == nil {
			dataURI = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
		}
	}

	t.mu.Lock()
	t.qr = &connection.QRInfo{
		Data:        code,
		DataURI:     dataURI,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if t.state != connection.StateConnected && t.state != connection.StateWaitingForPairing {
		t.state = connection.StateWaitingForPairing
		t.since = time.Now().UTC()
		t.appendHistoryLocked(connection.StateWaitingForPairing)
	}
	alertNeeded := code != "" && code != t.lastQRAlert
	if alertNeeded {
		t.lastQRAlert = code
	}
	t.mu.Unlock()

	if alertNeeded {
		t.notifier.Send(context.Background(), notify.QRScanAlert())
	}
	t.publishStatus()
}

func (t *ConnectionTracker) SetSelfPhone(phone string) {
	t.mu.Lock()
	t.selfPhone = phone
	t.mu.Unlock()
}

// SelfPhone returns the paired number, empty until the adapter connects.
func (t *ConnectionTracker) SelfPhone() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selfPhone
}

func (t *ConnectionTracker) Status() connection.Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := connection.Status{
		State:     t.state,
		SelfPhone: t.selfPhone,
		History:   append([]connection.StateChange(nil), t.history...),
	}
	if !t.since.IsZero() {
		st.Since = t.since.Format(time.RFC3339)
	}
	if t.qr != nil {
		q := *t.qr
		st.QR = &q
	}
	return st
}

func (t *ConnectionTracker) publishStatus() {
	if t.publish != nil {
		t.publish.PublishState(t.Status())
	}
}

func (t *ConnectionTracker) push(ev events.StoredEvent) {
	stored := t.stats.PushRecent(ev)
	if t.publish != nil {
		t.publish.PublishEvent(stored)
	}
}

// HandleEnvelope processes the connection-class event kinds.
func (t *ConnectionTracker) HandleEnvelope(ctx context.Context, env events.Envelope) events.Result {
	switch env.Kind {
	case events.QRCodeUpdated:
		code, dataURI := extractQR(env.Data)
		t.SetQR(code, dataURI)
		t.stats.RecordEvent(env.Kind, events.ActionLogged)
		t.push(events.StoredEvent{Event: env.Kind, Action: events.ActionLogged, Preview: "pairing code updated"})

	case events.LogoutInstance:
		t.HandleStateChange("logged_out")
		t.stats.RecordEvent(env.Kind, events.ActionLogged)
		t.push(events.StoredEvent{Event: env.Kind, Action: events.ActionLogged, Preview: string(connection.StateLoggedOut)})

	default:
		state := extractState(env.Data)
		current := t.HandleStateChange(state)
		t.stats.RecordEvent(env.Kind, events.ActionLogged)
		t.push(events.StoredEvent{Event: env.Kind, Action: events.ActionLogged, Preview: string(current)})
	}
	return events.Result{OK: true, Kind: env.Kind, Action: events.ActionLogged}
}

type connectionPayload struct {
	State      string             `json:"state"`
	Connection string             `json:"connection"`
	Status     string             `json:"status"`
	Data       *connectionPayload `json:"data,omitempty"`
}

// extractState probes the usual spots a state string hides in, descending
// one level into `data`.
func extractState(raw []byte) string {
	var p connectionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ""
	}
	for probe := &p; probe != nil; probe = probe.Data {
		switch {
		case probe.State != "":
			return probe.State
		case probe.Connection != "":
			return probe.Connection
		case probe.Status != "":
			return probe.Status
		}
	}
	return ""
}

type qrPayload struct {
	QRCode json.RawMessage `json:"qrcode"`
	Code   string          `json:"code"`
	Base64 string          `json:"base64"`
	Data   *qrPayload      `json:"data,omitempty"`
}

// extractQR pulls the pairing code and, when present, the pre-rendered
// image. Payloads carry either a bare string or a {code, base64} object.
func extractQR(raw []byte) (code, dataURI string) {
	var p qrPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", ""
	}
	for probe := &p; probe != nil; probe = probe.Data {
		if probe.Code != "" || probe.Base64 != "" {
			return probe.Code, probe.Base64
		}
		if len(probe.QRCode) == 0 {
			continue
		}
		var asString string
		if err := json.Unmarshal(probe.QRCode, &asString); err == nil {
			return asString, ""
		}
		var nested qrPayload
		if err := json.Unmarshal(probe.QRCode, &nested); err == nil {
			if nested.Code != "" || nested.Base64 != "" {
				return nested.Code, nested.Base64
			}
		}
	}
	return "", ""
}
