package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafilter/wafilter/config"
	"github.com/wafilter/wafilter/domains/connection"
	"github.com/wafilter/wafilter/domains/events"
)

type routerFixture struct {
	*handlerFixture
	tracker *ConnectionTracker
	router  *Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	hf := newHandlerFixture(t)
	tracker := NewConnectionTracker(hf.stats, hf.alerts, hf.pub)
	return &routerFixture{
		handlerFixture: hf,
		tracker:        tracker,
		router:         NewRouter(hf.handler, tracker, hf.stats, hf.pub),
	}
}

func TestRouteDispatchesByKind(t *testing.T) {
	f := newRouterFixture(t)

	res := f.router.Route(context.Background(), envelope(t, events.MessagesUpsert,
		textPayload("972501234567@s.whatsapp.net", "3EB0R1", "hi")))
	assert.Equal(t, events.ActionForwarded, res.Action)
	assert.Len(t, f.fwd.forwarded(), 1)

	res = f.router.Route(context.Background(), envelope(t, events.ConnectionUpdate,
		map[string]any{"state": "open"}))
	assert.Equal(t, events.ActionLogged, res.Action)
	assert.Equal(t, connection.StateConnected, f.tracker.Status().State)

	res = f.router.Route(context.Background(), envelope(t, events.ChatsUpsert,
		map[string]any{"id": "972501234567@s.whatsapp.net"}))
	assert.Equal(t, events.ActionLogged, res.Action)
	entry := f.stats.lastRing(t)
	assert.Equal(t, events.ChatsUpsert, entry.Event)
	assert.Equal(t, "id=972501234567@s.whatsapp.net", entry.Preview)
}

func TestRouteUnknownKindIsLogged(t *testing.T) {
	f := newRouterFixture(t)

	res := f.router.Route(context.Background(), events.Envelope{
		Kind: "SOMETHING_NEW",
		Data: []byte(`{"whatever": 1}`),
	})

	assert.True(t, res.OK)
	assert.Equal(t, events.ActionLogged, res.Action)
	assert.Equal(t, []statsCall{{"SOMETHING_NEW", events.ActionLogged}}, f.stats.recorded())
}

func TestRoutePresenceSkippedByDefault(t *testing.T) {
	f := newRouterFixture(t)

	res := f.router.Route(context.Background(), envelope(t, events.PresenceUpdate,
		map[string]any{"id": "972501234567@s.whatsapp.net", "presences": map[string]any{}}))

	assert.True(t, res.OK)
	assert.Equal(t, events.ActionIgnored, res.Action)
	assert.Empty(t, f.stats.recorded())
	assert.Empty(t, f.stats.ring())

	setFlag(t, &config.PresenceLogging, true)
	res = f.router.Route(context.Background(), envelope(t, events.PresenceUpdate,
		map[string]any{"id": "972501234567@s.whatsapp.net"}))
	assert.Equal(t, events.ActionLogged, res.Action)
	assert.Len(t, f.stats.ring(), 1)
}

func TestRouteRecoversFromPanics(t *testing.T) {
	f := newRouterFixture(t)
	// A router wired without a message handler panics on the first message;
	// the recover turns that into a failed result instead of a crash.
	broken := NewRouter(nil, f.tracker, f.stats, f.pub)

	res := broken.Route(context.Background(), envelope(t, events.MessagesUpsert,
		textPayload("972501234567@s.whatsapp.net", "3EB0P1", "boom")))

	assert.False(t, res.OK)
	assert.Equal(t, events.ActionFailed, res.Action)
	require.Error(t, res.Err)
}

func TestRunConsumesUntilClose(t *testing.T) {
	f := newRouterFixture(t)
	ch := make(chan events.Envelope, 2)
	done := make(chan struct{})
	go func() {
		f.router.Run(ch)
		close(done)
	}()

	ch <- envelope(t, events.MessagesUpsert, textPayload("972501234567@s.whatsapp.net", "3EB0RUN1", "one"))
	ch <- envelope(t, events.MessagesUpsert, textPayload("972501234567@s.whatsapp.net", "3EB0RUN2", "two"))
	close(ch)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop after channel close")
	}
	assert.Len(t, f.fwd.forwarded(), 2)
}

func TestDetectKind(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"message", `{"key":{"remoteJid":"x"},"message":{"conversation":"hi"}}`, events.MessagesUpsert},
		{"update", `{"key":{"remoteJid":"x"},"update":{"status":4}}`, events.MessagesUpdate},
		{"state", `{"state":"open"}`, events.ConnectionUpdate},
		{"connection", `{"connection":"close"}`, events.ConnectionUpdate},
		{"qr", `{"qrcode":"abc"}`, events.QRCodeUpdated},
		{"qr base64", `{"base64":"data:image/png;base64,AA"}`, events.QRCodeUpdated},
		{"group", `{"id":"1203@g.us","subject":"Family"}`, events.GroupsUpsert},
		{"participants", `{"participants":["a"],"action":"add"}`, events.GroupParticipantsUpdate},
		{"nested", `{"data":{"key":{"id":"1"},"message":{"conversation":"hi"}}}`, events.MessagesUpsert},
		{"null message", `{"key":{"id":"1"},"message":null}`, ""},
		{"empty", `{}`, ""},
		{"not json", `nope`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectKind([]byte(tc.raw)))
		})
	}
}
