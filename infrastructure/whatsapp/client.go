// Package whatsapp embeds a whatsmeow client and bridges its event stream
// into envelopes the routing engine consumes.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/wafilter/wafilter/config"
	domainEvents "github.com/wafilter/wafilter/domains/events"
	"github.com/wafilter/wafilter/infrastructure/notify"
	"github.com/wafilter/wafilter/infrastructure/storage"
	pkgError "github.com/wafilter/wafilter/pkg/error"
	"github.com/wafilter/wafilter/pkg/msgworker"
)

const (
	reconnectAttempts  = 5
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// SelfSink receives the owner's phone number once the session knows it.
type SelfSink interface {
	SetSelfPhone(phone string)
}

// AlertSink delivers operator alerts raised by the adapter itself.
type AlertSink interface {
	Send(ctx context.Context, alert notify.Alert) notify.Result
}

// Deps wires the adapter into the rest of the service. Out is owned by the
// adapter once constructed: Close drains the bridge and closes it.
type Deps struct {
	Out      chan domainEvents.Envelope
	Pool     *msgworker.Pool
	Media    *storage.MediaStore
	Messages *storage.MessageStore
	Self     SelfSink
	Alerts   AlertSink
}

// Adapter owns the whatsmeow client lifecycle: session storage, QR pairing,
// reconnection and the event bridge.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container

	out      chan domainEvents.Envelope
	pool     *msgworker.Pool
	media    *storage.MediaStore
	messages *storage.MessageStore
	self     SelfSink
	alerts   AlertSink

	lids        *lidCache
	downloadSem chan struct{}

	sendMu sync.RWMutex
	closed bool

	mu           sync.Mutex
	selfPhone    string
	reconnecting bool

	closeOnce sync.Once
}

// New opens the session container, loads the first device and prepares the
// client. It does not connect yet, call Start for that.
func New(ctx context.Context, deps Deps) (*Adapter, error) {
	container, err := newContainer(ctx, config.DBURI)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	osName := fmt.Sprintf("%s %s", config.AppInstanceName, config.AppVersion)
	store.DeviceProps.Os = &osName

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", config.WhatsappLogLevel, true))
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	a := &Adapter{
		client:      client,
		container:   container,
		out:         deps.Out,
		pool:        deps.Pool,
		media:       deps.Media,
		messages:    deps.Messages,
		self:        deps.Self,
		alerts:      deps.Alerts,
		downloadSem: make(chan struct{}, maxConcurrentDownloads),
	}
	a.lids = newLIDCache(client)
	client.AddEventHandler(a.handleEvent)

	if device.ID != nil {
		a.setSelfPhone(device.ID.User)
	}
	return a, nil
}

func newContainer(ctx context.Context, uri string) (*sqlstore.Container, error) {
	dbLog := waLog.Stdout("Database", config.WhatsappLogLevel, true)
	if strings.HasPrefix(uri, "postgres:") {
		return sqlstore.New(ctx, "postgres", uri, dbLog)
	}
	return sqlstore.New(ctx, "sqlite3", uri, dbLog)
}

// Start connects the client. With no stored session it enters the QR pairing
// flow: every code lands in qrcode.png and on the event pipeline.
func (a *Adapter) Start(ctx context.Context) error {
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		if errors.Is(err, whatsmeow.ErrQRStoreContainsID) {
			logrus.Info("[WA] stored session found, connecting")
			return a.client.Connect()
		}
		return fmt.Errorf("qr channel: %w", err)
	}
	logrus.Info("[WA] no session stored, pairing required")
	go a.consumeQR(qrChan)
	return a.client.Connect()
}

func (a *Adapter) consumeQR(ch <-chan whatsmeow.QRChannelItem) {
	for evt := range ch {
		switch evt.Event {
		case "code":
			if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, config.PathQRCode); err != nil {
				logrus.Errorf("[WA] write qr artifact: %v", err)
			}
			a.emit(domainEvents.QRCodeUpdated, map[string]any{
				"qrcode": map[string]any{"code": evt.Code},
			})
		case "success":
			logrus.Info("[WA] pairing complete")
			a.removeQRArtifact()
		case "timeout":
			logrus.Warn("[WA] qr pairing timed out, reconnect to retry")
			a.removeQRArtifact()
		default:
			if evt.Error != nil {
				logrus.Errorf("[WA] qr channel %s: %v", evt.Event, evt.Error)
			}
		}
	}
}

func (a *Adapter) removeQRArtifact() {
	if err := os.Remove(config.PathQRCode); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("[WA] remove qr artifact: %v", err)
	}
}

// Reconnect is the external trigger used by the admin API. With a paired
// session it bypasses the backoff loop and attempts a single connect; without
// one it restarts the QR pairing flow.
func (a *Adapter) Reconnect() error {
	if a.client.IsConnected() {
		return nil
	}
	if a.client.Store.ID == nil {
		qrChan, err := a.client.GetQRChannel(context.Background())
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		go a.consumeQR(qrChan)
	}
	return a.client.Connect()
}

// Logout unlinks the device. whatsmeow removes the session from the store as
// part of the logout handshake, so the next Start pairs fresh.
func (a *Adapter) Logout(ctx context.Context) error {
	if a.client.Store.ID == nil {
		return pkgError.ErrWaCLI
	}
	if err := a.client.Logout(ctx); err != nil {
		return err
	}
	a.emit(domainEvents.LogoutInstance, map[string]any{"reason": "api"})
	return nil
}

// IsConnected reports whether the websocket is up.
func (a *Adapter) IsConnected() bool {
	return a.client.IsConnected()
}

// IsLoggedIn reports whether a paired session is active.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.IsLoggedIn()
}

// autoReconnect runs the capped backoff loop after an unexpected disconnect.
// Only one loop runs at a time; exhaustion raises a critical alert and leaves
// the client down until an external trigger.
func (a *Adapter) autoReconnect() {
	a.mu.Lock()
	if a.reconnecting {
		a.mu.Unlock()
		return
	}
	a.reconnecting = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.reconnecting = false
		a.mu.Unlock()
	}()

	delay := reconnectBaseDelay
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		time.Sleep(delay)
		if a.isClosed() {
			return
		}
		if a.client.IsConnected() {
			return
		}
		logrus.Infof("[WA] reconnect attempt %d/%d", attempt, reconnectAttempts)
		err := a.client.Connect()
		if err == nil {
			return
		}
		logrus.Warnf("[WA] reconnect attempt %d failed: %v", attempt, err)
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}

	logrus.Errorf("[WA] giving up after %d reconnect attempts", reconnectAttempts)
	if a.alerts != nil {
		a.alerts.Send(context.Background(), notify.Alert{
			Level:   notify.LevelCritical,
			Title:   "WhatsApp reconnect failed",
			Message: fmt.Sprintf("gave up after %d attempts, manual reconnect required", reconnectAttempts),
		})
	}
}

// wipeSession drops every stored device. After a remote logout the old
// credentials are dead weight and the next start must pair again.
func (a *Adapter) wipeSession(ctx context.Context) {
	devices, err := a.container.GetAllDevices(ctx)
	if err != nil {
		logrus.Errorf("[WA] list devices for wipe: %v", err)
		return
	}
	for _, device := range devices {
		if err := a.container.DeleteDevice(ctx, device); err != nil {
			logrus.Errorf("[WA] delete device: %v", err)
		}
	}
	logrus.Infof("[WA] session wiped (%d device(s)), pairing required on next start", len(devices))
}

func (a *Adapter) setSelfPhone(user string) {
	if user == "" {
		return
	}
	a.mu.Lock()
	a.selfPhone = user
	a.mu.Unlock()
	if a.self != nil {
		a.self.SetSelfPhone(user)
	}
}

func (a *Adapter) getSelfPhone() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selfPhone
}

// noteSelf refreshes the owner identity from the device store. Connected and
// PushNameSetting both imply the store has it.
func (a *Adapter) noteSelf() {
	if id := a.client.Store.ID; id != nil {
		a.setSelfPhone(id.User)
	}
}

func (a *Adapter) isClosed() bool {
	a.sendMu.RLock()
	defer a.sendMu.RUnlock()
	return a.closed
}

// emit marshals the payload and puts an envelope on the pipeline. Envelopes
// arriving after Close are dropped.
func (a *Adapter) emit(kind string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logrus.Warnf("[WA] drop %s event, marshal failed: %v", kind, err)
		return
	}
	a.sendMu.RLock()
	defer a.sendMu.RUnlock()
	if a.closed {
		return
	}
	a.out <- domainEvents.Envelope{
		Kind:     kind,
		Data:     raw,
		Origin:   domainEvents.OriginWhatsapp,
		Received: time.Now().UTC(),
	}
}

// Close disconnects, drains the bridge workers and closes the envelope
// channel. Call it after the HTTP ingress stopped feeding the same channel.
func (a *Adapter) Close() {
	a.closeOnce.Do(func() {
		a.client.RemoveEventHandlers()
		a.client.Disconnect()
		if a.pool != nil {
			a.pool.Stop()
		}
		a.sendMu.Lock()
		a.closed = true
		a.sendMu.Unlock()
		close(a.out)
		logrus.Info("[WA] adapter closed")
	})
}
