package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	pkgError "github.com/wafilter/wafilter/pkg/error"
)

// ErrNoDestination means neither a type route nor the default webhook is
// configured for the event. Callers decide whether that is a failure.
var ErrNoDestination = errors.New("no webhook destination configured")

// Attempt schedule: the first try gets a short timeout so a healthy endpoint
// answers fast, retries get more room. Backoff between attempts is fixed.
var (
	attemptTimeouts = []time.Duration{5 * time.Second, 10 * time.Second, 10 * time.Second}
	retryDelays     = []time.Duration{1 * time.Second, 2 * time.Second}
)

const secondaryTimeout = 5 * time.Second

// RouteSource resolves destinations. The config store satisfies it.
type RouteSource interface {
	TypeRoute(entityType string) (string, bool)
	DefaultWebhook() (url string, fromEnv bool)
	SecondaryWebhook() string
}

// Meta describes the event being forwarded; it becomes the X- headers.
type Meta struct {
	SourceID   string
	SourceType string
	EntityType string
	EventKind  string
}

// Delivery reports where the payload went and on which attempt.
type Delivery struct {
	Destination string `json:"destination"`
	Attempt     int    `json:"attempt"`
}

type DeliveryError struct {
	Message   string `json:"message"`
	Code      int    `json:"code,omitempty"`
	Timestamp string `json:"timestamp"`
}

type DestinationHealth struct {
	ConsecutiveFailures int            `json:"consecutiveFailures"`
	LastSuccess         string         `json:"lastSuccess,omitempty"`
	LastError           *DeliveryError `json:"lastError,omitempty"`
	Sent                int            `json:"sent"`
	Failed              int            `json:"failed"`
}

type TypeCounters struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type HealthReport struct {
	Destinations map[string]DestinationHealth `json:"destinations"`
	Secondary    *DestinationHealth           `json:"secondary,omitempty"`
	ByEntityType map[string]TypeCounters      `json:"byEntityType"`
}

// Dispatcher delivers event payloads to their webhook destinations and keeps
// per-destination health.
type Dispatcher struct {
	routes   RouteSource
	instance string
	client   *http.Client

	mu        sync.Mutex
	dests     map[string]*DestinationHealth
	secondary DestinationHealth
	types     map[string]*TypeCounters
}

func NewDispatcher(routes RouteSource, instance string) *Dispatcher {
	return &Dispatcher{
		routes:   routes,
		instance: instance,
		client:   &http.Client{},
		dests:    make(map[string]*DestinationHealth),
		types:    make(map[string]*TypeCounters),
	}
}

func (d *Dispatcher) resolve(entityType string) (string, bool) {
	if url, ok := d.routes.TypeRoute(entityType); ok && url != "" {
		return url, true
	}
	if url, _ := d.routes.DefaultWebhook(); url != "" {
		return url, true
	}
	return "", false
}

func (d *Dispatcher) headers(meta Meta) map[string]string {
	h := map[string]string{"X-Filter-Source": d.instance}
	if meta.SourceID != "" {
		h["X-Source-Id"] = meta.SourceID
	}
	if meta.SourceType != "" {
		h["X-Source-Type"] = meta.SourceType
	}
	if meta.EntityType != "" {
		h["X-Entity-Type"] = meta.EntityType
	}
	if meta.EventKind != "" {
		h["X-Event-Type"] = meta.EventKind
	}
	return h
}

// Forward posts the payload bytes, exactly as received, to the destination
// resolved for the entity type. A configured secondary destination gets a
// best-effort copy that never blocks the primary path.
func (d *Dispatcher) Forward(ctx context.Context, payload []byte, meta Meta) (Delivery, error) {
	url, ok := d.resolve(meta.EntityType)
	if !ok {
		return Delivery{}, ErrNoDestination
	}

	headers := d.headers(meta)
	if secondary := d.routes.SecondaryWebhook(); secondary != "" {
		go d.postSecondary(secondary, payload, headers)
	}

	attempt, code, err := d.deliver(ctx, url, payload, headers)
	d.record(url, meta.EntityType, code, err)
	if err != nil {
		return Delivery{Destination: url, Attempt: attempt},
			pkgError.WebhookError(fmt.Sprintf("delivery to %s failed after %d attempts: %v", url, attempt, err))
	}
	return Delivery{Destination: url, Attempt: attempt}, nil
}

// Test sends a synthetic payload through the same resolution, single
// attempt. Health is updated like a real delivery.
func (d *Dispatcher) Test(ctx context.Context, entityType string) (Delivery, error) {
	url, ok := d.resolve(entityType)
	if !ok {
		return Delivery{}, ErrNoDestination
	}

	payload, err := json.Marshal(map[string]any{
		"test":       true,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"message":    "wafilter webhook test",
		"source":     d.instance,
		"entityType": entityType,
	})
	if err != nil {
		return Delivery{}, pkgError.WebhookError(fmt.Sprintf("failed to marshal test payload: %v", err))
	}

	code, postErr := d.post(ctx, url, payload, d.headers(Meta{EntityType: entityType, EventKind: "TEST"}), secondaryTimeout)
	d.record(url, entityType, code, postErr)
	if postErr != nil {
		return Delivery{Destination: url, Attempt: 1},
			pkgError.WebhookError(fmt.Sprintf("test delivery to %s failed: %v", url, postErr))
	}
	return Delivery{Destination: url, Attempt: 1}, nil
}

// deliver runs the attempt loop. Retries happen only for transport errors
// and 5xx answers; any other non-2xx status is terminal.
func (d *Dispatcher) deliver(ctx context.Context, url string, payload []byte, headers map[string]string) (attempt, lastCode int, lastErr error) {
	for i := 0; i < len(attemptTimeouts); i++ {
		code, err := d.post(ctx, url, payload, headers, attemptTimeouts[i])
		if err == nil {
			logrus.Infof("[WEBHOOK] delivered to %s on attempt %d", url, i+1)
			return i + 1, code, nil
		}
		lastCode, lastErr = code, err
		logrus.Warnf("[WEBHOOK] attempt %d to %s failed: %v", i+1, url, err)
		if code != 0 && code < 500 {
			return i + 1, code, err
		}
		if i < len(retryDelays) {
			select {
			case <-ctx.Done():
				return i + 1, code, ctx.Err()
			case <-time.After(retryDelays[i]):
			}
		}
	}
	return len(attemptTimeouts), lastCode, lastErr
}

// post performs one attempt. The returned code is 0 on transport errors.
func (d *Dispatcher) post(ctx context.Context, url string, payload []byte, headers map[string]string, timeout time.Duration) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
}

func (d *Dispatcher) postSecondary(url string, payload []byte, headers map[string]string) {
	code, err := d.post(context.Background(), url, payload, headers, secondaryTimeout)

	d.mu.Lock()
	applyOutcome(&d.secondary, code, err)
	d.mu.Unlock()

	if err != nil {
		logrus.Debugf("[WEBHOOK] secondary delivery to %s failed: %v", url, err)
	}
}

func (d *Dispatcher) record(url, entityType string, code int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, ok := d.dests[url]
	if !ok {
		h = &DestinationHealth{}
		d.dests[url] = h
	}
	applyOutcome(h, code, err)

	if entityType == "" {
		return
	}
	c, ok := d.types[entityType]
	if !ok {
		c = &TypeCounters{}
		d.types[entityType] = c
	}
	if err != nil {
		c.Failed++
	} else {
		c.Sent++
	}
}

func applyOutcome(h *DestinationHealth, code int, err error) {
	if err == nil {
		h.Sent++
		h.ConsecutiveFailures = 0
		h.LastSuccess = time.Now().UTC().Format(time.RFC3339)
		return
	}
	h.Failed++
	h.ConsecutiveFailures++
	h.LastError = &DeliveryError{
		Message:   err.Error(),
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ConsecutiveFailures reports the current failure streak of a destination.
func (d *Dispatcher) ConsecutiveFailures(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h, ok := d.dests[url]; ok {
		return h.ConsecutiveFailures
	}
	return 0
}

// Health returns a copy of the per-destination and per-type state.
func (d *Dispatcher) Health() HealthReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	report := HealthReport{
		Destinations: make(map[string]DestinationHealth, len(d.dests)),
		ByEntityType: make(map[string]TypeCounters, len(d.types)),
	}
	for url, h := range d.dests {
		copied := *h
		if h.LastError != nil {
			e := *h.LastError
			copied.LastError = &e
		}
		report.Destinations[url] = copied
	}
	for t, c := range d.types {
		report.ByEntityType[t] = *c
	}
	if d.secondary.Sent > 0 || d.secondary.Failed > 0 {
		s := d.secondary
		if d.secondary.LastError != nil {
			e := *d.secondary.LastError
			s.LastError = &e
		}
		report.Secondary = &s
	}
	return report
}
