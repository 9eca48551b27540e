package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRoutes struct {
	typeRoutes map[string]string
	def        string
	secondary  string
}

func (s stubRoutes) TypeRoute(t string) (string, bool) {
	url, ok := s.typeRoutes[t]
	return url, ok
}
func (s stubRoutes) DefaultWebhook() (string, bool) { return s.def, false }
func (s stubRoutes) SecondaryWebhook() string       { return s.secondary }

// fastRetries shrinks the backoff so retry tests finish quickly.
func fastRetries(t *testing.T) {
	t.Helper()
	saved := retryDelays
	retryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retryDelays = saved })
}

func TestForwardDeliversPayloadVerbatim(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
	}))
	defer srv.Close()

	d := NewDispatcher(stubRoutes{def: srv.URL}, "wafilter")
	payload := []byte(`{"event":"MESSAGES_UPSERT","data":{"key":{"id":"A1"}}}`)
	delivery, err := d.Forward(context.Background(), payload, Meta{
		SourceID:   "972500000001",
		SourceType: "contact",
		EntityType: "CONTACT",
		EventKind:  "MESSAGES_UPSERT",
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL, delivery.Destination)
	assert.Equal(t, 1, delivery.Attempt)

	assert.Equal(t, string(payload), string(gotBody))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "wafilter", gotHeaders.Get("X-Filter-Source"))
	assert.Equal(t, "972500000001", gotHeaders.Get("X-Source-Id"))
	assert.Equal(t, "contact", gotHeaders.Get("X-Source-Type"))
	assert.Equal(t, "CONTACT", gotHeaders.Get("X-Entity-Type"))
	assert.Equal(t, "MESSAGES_UPSERT", gotHeaders.Get("X-Event-Type"))

	health := d.Health()
	require.Contains(t, health.Destinations, srv.URL)
	assert.Equal(t, 1, health.Destinations[srv.URL].Sent)
	assert.Equal(t, 1, health.ByEntityType["CONTACT"].Sent)
}

func TestForwardRetriesServerErrors(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
	}))
	defer srv.Close()

	d := NewDispatcher(stubRoutes{def: srv.URL}, "wafilter")
	delivery, err := d.Forward(context.Background(), []byte(`{}`), Meta{EntityType: "CONTACT"})
	require.NoError(t, err)
	assert.Equal(t, 3, delivery.Attempt)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 0, d.ConsecutiveFailures(srv.URL))
}

func TestForwardGivesUpAfterThreeAttempts(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(stubRoutes{def: srv.URL}, "wafilter")
	_, err := d.Forward(context.Background(), []byte(`{}`), Meta{EntityType: "CONTACT"})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	health := d.Health()
	h := health.Destinations[srv.URL]
	assert.Equal(t, 1, h.Failed)
	assert.Equal(t, 1, h.ConsecutiveFailures)
	require.NotNil(t, h.LastError)
	assert.Equal(t, http.StatusInternalServerError, h.LastError.Code)
}

func TestForwardClientErrorIsTerminal(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDispatcher(stubRoutes{def: srv.URL}, "wafilter")
	_, err := d.Forward(context.Background(), []byte(`{}`), Meta{EntityType: "CONTACT"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx answers must not be retried")
}

func TestForwardNoDestination(t *testing.T) {
	d := NewDispatcher(stubRoutes{}, "wafilter")
	_, err := d.Forward(context.Background(), []byte(`{}`), Meta{EntityType: "CONTACT"})
	require.True(t, errors.Is(err, ErrNoDestination))
	assert.Empty(t, d.Health().Destinations, "unresolved events must not touch health")
}

func TestForwardTypeRouteWinsOverDefault(t *testing.T) {
	var typed, fallback atomic.Int32
	typedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		typed.Add(1)
	}))
	defer typedSrv.Close()
	defaultSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallback.Add(1)
	}))
	defer defaultSrv.Close()

	d := NewDispatcher(stubRoutes{
		typeRoutes: map[string]string{"FAMILY": typedSrv.URL},
		def:        defaultSrv.URL,
	}, "wafilter")

	_, err := d.Forward(context.Background(), []byte(`{}`), Meta{EntityType: "FAMILY"})
	require.NoError(t, err)
	_, err = d.Forward(context.Background(), []byte(`{}`), Meta{EntityType: "GROUP"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), typed.Load())
	assert.Equal(t, int32(1), fallback.Load())
}

func TestForwardMirrorsToSecondary(t *testing.T) {
	received := make(chan []byte, 1)
	secondarySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
	}))
	defer secondarySrv.Close()
	primarySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer primarySrv.Close()

	d := NewDispatcher(stubRoutes{def: primarySrv.URL, secondary: secondarySrv.URL}, "wafilter")
	payload := []byte(`{"mirrored":true}`)
	_, err := d.Forward(context.Background(), payload, Meta{EntityType: "CONTACT"})
	require.NoError(t, err)

	select {
	case body := <-received:
		assert.Equal(t, string(payload), string(body))
	case <-time.After(2 * time.Second):
		t.Fatal("secondary destination never hit")
	}
}

func TestSecondaryFailureDoesNotAffectPrimary(t *testing.T) {
	primarySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer primarySrv.Close()

	d := NewDispatcher(stubRoutes{def: primarySrv.URL, secondary: "http://127.0.0.1:1/unreachable"}, "wafilter")
	_, err := d.Forward(context.Background(), []byte(`{}`), Meta{EntityType: "CONTACT"})
	require.NoError(t, err)
}

func TestTestSendsSyntheticPayload(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	d := NewDispatcher(stubRoutes{def: srv.URL}, "wafilter")
	delivery, err := d.Test(context.Background(), "CONTACT")
	require.NoError(t, err)
	assert.Equal(t, 1, delivery.Attempt)
	assert.Contains(t, string(gotBody), `"test":true`)
	assert.Contains(t, string(gotBody), "wafilter webhook test")
}

func TestConsecutiveFailuresTrackStreaks(t *testing.T) {
	fastRetries(t)

	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	d := NewDispatcher(stubRoutes{def: srv.URL}, "wafilter")
	for i := 0; i < 2; i++ {
		_, err := d.Forward(context.Background(), []byte(`{}`), Meta{EntityType: "CONTACT"})
		require.Error(t, err)
	}
	assert.Equal(t, 2, d.ConsecutiveFailures(srv.URL))

	fail.Store(false)
	_, err := d.Forward(context.Background(), []byte(`{}`), Meta{EntityType: "CONTACT"})
	require.NoError(t, err)
	assert.Equal(t, 0, d.ConsecutiveFailures(srv.URL))
}

func TestRetryBackoffHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	d := NewDispatcher(stubRoutes{def: srv.URL}, "wafilter")
	start := time.Now()
	_, err := d.Forward(ctx, []byte(`{}`), Meta{EntityType: "CONTACT"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond, "cancel must cut the backoff short")
}
