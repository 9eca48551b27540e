package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domainEvents "github.com/wafilter/wafilter/domains/events"
	"github.com/gofiber/fiber/v2"
)

type routeRecorder struct {
	envelopes []domainEvents.Envelope
}

func (r *routeRecorder) Route(_ context.Context, env domainEvents.Envelope) domainEvents.Result {
	r.envelopes = append(r.envelopes, env)
	return domainEvents.Result{OK: true, Kind: env.Kind, Action: domainEvents.ActionForwarded}
}

type saveCounter struct {
	calls int
}

func (s *saveCounter) Save() error {
	s.calls++
	return nil
}

func newFilterApp(t *testing.T) (*fiber.App, *routeRecorder, *saveCounter) {
	t.Helper()
	app := fiber.New()
	router := &routeRecorder{}
	saver := &saveCounter{}
	InitRestFilter(app, router, saver)
	return app, router, saver
}

func postJSON(t *testing.T, app *fiber.App, path string, body []byte) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	return resp
}

func TestIngestDetectsMessageKind(t *testing.T) {
	app, router, _ := newFilterApp(t)

	body := []byte(`{"key":{"remoteJid":"123@s.whatsapp.net","id":"A1"},"message":{"conversation":"hi"}}`)
	resp := postJSON(t, app, "/filter", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var reply map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply["status"] != "processed" || reply["event"] != domainEvents.MessagesUpsert {
		t.Fatalf("unexpected reply %v", reply)
	}

	if len(router.envelopes) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(router.envelopes))
	}
	env := router.envelopes[0]
	if env.Kind != domainEvents.MessagesUpsert {
		t.Errorf("kind = %s", env.Kind)
	}
	if env.Origin != domainEvents.OriginIngress {
		t.Errorf("origin = %s", env.Origin)
	}
	if !bytes.Equal(env.Data, body) {
		t.Errorf("payload altered in transit: %s", env.Data)
	}
}

func TestIngestDefaultsToMessagesUpsert(t *testing.T) {
	app, router, _ := newFilterApp(t)

	resp := postJSON(t, app, "/filter", []byte(`{"something":"unrecognizable"}`))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if len(router.envelopes) != 1 || router.envelopes[0].Kind != domainEvents.MessagesUpsert {
		t.Fatalf("expected default MESSAGES_UPSERT envelope, got %+v", router.envelopes)
	}
}

func TestIngestNamedEvent(t *testing.T) {
	app, router, _ := newFilterApp(t)

	cases := []struct {
		path string
		want string
	}{
		{"/filter/messages-upsert", domainEvents.MessagesUpsert},
		{"/filter/contacts-update", domainEvents.ContactsUpdate},
		{"/filter/connection-update", domainEvents.ConnectionUpdate},
		{"/filter/made-up-thing", "MADE_UP_THING"},
	}
	for _, tc := range cases {
		resp := postJSON(t, app, tc.path, []byte(`{"some":"data"}`))
		var reply map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
			t.Fatalf("%s: decode reply: %v", tc.path, err)
		}
		resp.Body.Close()
		if reply["event"] != tc.want {
			t.Errorf("%s: event = %q, want %q", tc.path, reply["event"], tc.want)
		}
	}

	if len(router.envelopes) != len(cases) {
		t.Fatalf("expected %d envelopes, got %d", len(cases), len(router.envelopes))
	}
}

func TestIngestRejectsMalformedJSON(t *testing.T) {
	app, router, _ := newFilterApp(t)

	resp := postJSON(t, app, "/filter", []byte(`{"broken`))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if len(router.envelopes) != 0 {
		t.Fatalf("malformed body must not reach the router")
	}
}

func TestIngestPeriodicConfigSave(t *testing.T) {
	app, _, saver := newFilterApp(t)

	body := []byte(`{"state":"open"}`)
	for i := 0; i < 205; i++ {
		resp := postJSON(t, app, "/filter", body)
		resp.Body.Close()
	}

	if saver.calls != 2 {
		t.Fatalf("expected 2 periodic saves after 205 events, got %d", saver.calls)
	}
}
