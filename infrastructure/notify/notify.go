// Package notify delivers operator alerts to the configured channels: a
// generic JSON webhook and a Slack-style rich webhook. Alert failures are
// logged and counted, never returned to the caller; losing an alert must not
// break message handling.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
)

const postTimeout = 5 * time.Second

const (
	maxSlackFields  = 10
	maxSlackActions = 5
)

type Action struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type Alert struct {
	Level   string            `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Actions []Action          `json:"-"`
}

// Result reports whether any channel accepted the alert.
type Result struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
}

// AlertRecorder receives the per-channel outcome. The stats store satisfies
// it.
type AlertRecorder interface {
	RecordAlert(level string, ok bool)
}

type Notifier struct {
	genericURL string
	slackURL   string
	instance   string
	stats      AlertRecorder
	client     *http.Client
}

func NewNotifier(genericURL, slackURL, instance string, stats AlertRecorder) *Notifier {
	return &Notifier{
		genericURL: genericURL,
		slackURL:   slackURL,
		instance:   instance,
		stats:      stats,
		client:     &http.Client{Timeout: postTimeout},
	}
}

// Send pushes the alert to every applicable channel. The rich channel only
// carries critical and warning alerts.
func (n *Notifier) Send(ctx context.Context, a Alert) Result {
	if n.genericURL == "" && n.slackURL == "" {
		return Result{Sent: false, Reason: "no_channels"}
	}

	sent := false
	if n.genericURL != "" {
		ok := n.postGeneric(ctx, a)
		n.stats.RecordAlert(a.Level, ok)
		sent = sent || ok
	}
	if n.slackURL != "" && (a.Level == LevelCritical || a.Level == LevelWarning) {
		ok := n.postSlack(ctx, a)
		n.stats.RecordAlert(a.Level, ok)
		sent = sent || ok
	}
	return Result{Sent: sent}
}

func (n *Notifier) postGeneric(ctx context.Context, a Alert) bool {
	payload, err := json.Marshal(map[string]any{
		"id":        uuid.NewString(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    n.instance,
		"level":     a.Level,
		"title":     a.Title,
		"message":   a.Message,
		"details":   a.Details,
	})
	if err != nil {
		logrus.Errorf("[ALERT] failed to marshal alert: %v", err)
		return false
	}
	return n.post(ctx, n.genericURL, payload, a.Level)
}

func (n *Notifier) postSlack(ctx context.Context, a Alert) bool {
	payload, err := json.Marshal(map[string]any{"blocks": slackBlocks(a)})
	if err != nil {
		logrus.Errorf("[ALERT] failed to marshal slack alert: %v", err)
		return false
	}
	return n.post(ctx, n.slackURL, payload, a.Level)
}

func (n *Notifier) post(ctx context.Context, url string, payload []byte, level string) bool {
	postCtx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(postCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		logrus.Errorf("[ALERT] failed to build alert request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Alert-Level", level)

	resp, err := n.client.Do(req)
	if err != nil {
		logrus.Warnf("[ALERT] alert delivery to %s failed: %v", url, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logrus.Warnf("[ALERT] alert delivery to %s returned status %d", url, resp.StatusCode)
		return false
	}
	return true
}

func levelEmoji(level string) string {
	switch level {
	case LevelCritical:
		return "🚨"
	case LevelWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

func slackBlocks(a Alert) []map[string]any {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type":  "plain_text",
				"text":  fmt.Sprintf("%s %s", levelEmoji(a.Level), a.Title),
				"emoji": true,
			},
		},
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": a.Message},
		},
	}

	if len(a.Details) > 0 {
		keys := make([]string, 0, len(a.Details))
		for k := range a.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > maxSlackFields {
			keys = keys[:maxSlackFields]
		}
		fields := make([]map[string]any, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*%s:*\n%s", k, a.Details[k]),
			})
		}
		blocks = append(blocks, map[string]any{"type": "section", "fields": fields})
	}

	if len(a.Actions) > 0 {
		actions := a.Actions
		if len(actions) > maxSlackActions {
			actions = actions[:maxSlackActions]
		}
		elements := make([]map[string]any, 0, len(actions))
		for _, act := range actions {
			elements = append(elements, map[string]any{
				"type": "button",
				"text": map[string]any{"type": "plain_text", "text": act.Text},
				"url":  act.URL,
			})
		}
		blocks = append(blocks, map[string]any{"type": "actions", "elements": elements})
	}
	return blocks
}

// ConnectionAlert describes a canonical state transition. Losing the
// connection is critical, an in-progress reconnect is a warning, a working
// session is informational.
func ConnectionAlert(state, previous, selfPhone string) Alert {
	details := map[string]string{"state": state}
	if previous != "" {
		details["previous"] = previous
	}
	if selfPhone != "" {
		details["phone"] = selfPhone
	}
	switch state {
	case "connected":
		title := "WhatsApp connected"
		if previous == "disconnected" || previous == "connecting" {
			title = "WhatsApp connection restored"
		}
		return Alert{Level: LevelInfo, Title: title, Message: "The WhatsApp session is up.", Details: details}
	case "connecting":
		return Alert{Level: LevelWarning, Title: "WhatsApp reconnecting", Message: "The WhatsApp session is reconnecting.", Details: details}
	case "loggedOut":
		return Alert{Level: LevelCritical, Title: "WhatsApp logged out", Message: "The session was logged out. Re-pairing is required.", Details: details}
	default:
		return Alert{
			Level:   LevelCritical,
			Title:   "WhatsApp disconnected",
			Message: fmt.Sprintf("The WhatsApp connection went from %s to %s.", previous, state),
			Details: details,
		}
	}
}

// WebhookStreakAlert fires when a destination keeps failing.
func WebhookStreakAlert(destination string, failures int) Alert {
	return Alert{
		Level:   LevelWarning,
		Title:   "Webhook deliveries failing",
		Message: fmt.Sprintf("%d consecutive deliveries to the destination failed.", failures),
		Details: map[string]string{
			"destination": destination,
			"failures":    fmt.Sprintf("%d", failures),
		},
	}
}

// QRScanAlert asks the operator to pair the device.
func QRScanAlert() Alert {
	return Alert{
		Level:   LevelCritical,
		Title:   "WhatsApp pairing required",
		Message: "A new QR code is waiting to be scanned.",
	}
}

// StartupAlert announces a fresh boot.
func StartupAlert(version string) Alert {
	return Alert{
		Level:   LevelInfo,
		Title:   "wafilter started",
		Message: "The gateway is up and processing events.",
		Details: map[string]string{"version": version},
	}
}
