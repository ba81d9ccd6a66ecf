package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ipnet-mesh/meshcore-hub/internal/metrics"
	"github.com/ipnet-mesh/meshcore-hub/pkg/models"
)

type fakeWebhookStore struct {
	subs []*models.WebhookSubscription
}

func (f *fakeWebhookStore) Get(id int64) (*models.WebhookSubscription, error) { return nil, nil }
func (f *fakeWebhookStore) GetEnabled() ([]*models.WebhookSubscription, error) {
	return f.subs, nil
}
func (f *fakeWebhookStore) Create(sub *models.WebhookSubscription) error { return nil }
func (f *fakeWebhookStore) SetEnabled(id int64, enabled bool) error      { return nil }
func (f *fakeWebhookStore) Delete(id int64) error                        { return nil }

func newTestDispatcher(t *testing.T, store *fakeWebhookStore) *Dispatcher {
	t.Helper()
	return NewDispatcher(Options{
		Store:          store,
		Workers:        1,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Timeout:        time.Second,
		Metrics:        metrics.New(),
	})
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, &fakeWebhookStore{})
	sub := &models.WebhookSubscription{ID: 1, URL: srv.URL}
	d.deliver(context.Background(), sub, "ADVERTISEMENT", []byte(`{}`))

	if got := calls.Load(); got != 3 {
		t.Errorf("delivery attempts = %d, want 3", got)
	}
}

func TestDeliverGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, &fakeWebhookStore{})
	sub := &models.WebhookSubscription{ID: 1, URL: srv.URL}
	d.deliver(context.Background(), sub, "ADVERTISEMENT", []byte(`{}`))

	if got := calls.Load(); got != 3 {
		t.Errorf("delivery attempts = %d, want exactly MaxAttempts", got)
	}
}

func TestDeliverBackoffIncreasesBetweenAttempts(t *testing.T) {
	mock := clock.NewMock()
	attempts := make(chan time.Time, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts <- mock.Now()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(Options{
		Store:          &fakeWebhookStore{},
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		Metrics:        metrics.New(),
		Clock:          mock,
	})

	done := make(chan struct{})
	go func() {
		d.deliver(context.Background(), &models.WebhookSubscription{ID: 1, URL: srv.URL}, "ADVERTISEMENT", []byte(`{}`))
		close(done)
	}()

	times := []time.Time{waitAttempt(t, attempts)}
	for _, backoff := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		// Let deliver reach its backoff timer before moving the clock.
		time.Sleep(50 * time.Millisecond)
		mock.Add(backoff)
		times = append(times, waitAttempt(t, attempts))
	}
	<-done

	var prev time.Duration
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		if gap <= prev {
			t.Errorf("delay before attempt %d = %v, want greater than %v", i+1, gap, prev)
		}
		prev = gap
	}
	if total := times[3].Sub(times[0]); total != 7*time.Second {
		t.Errorf("total backoff across attempts = %v, want 7s", total)
	}
}

func waitAttempt(t *testing.T, attempts chan time.Time) time.Time {
	t.Helper()
	select {
	case at := <-attempts:
		return at
	case <-time.After(5 * time.Second):
		t.Fatal("delivery attempt never happened")
		return time.Time{}
	}
}

func TestDeliverFinishesInFlightOnShutdown(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := metrics.New()
	d := NewDispatcher(Options{
		Store:       &fakeWebhookStore{},
		MaxAttempts: 1,
		Timeout:     5 * time.Second,
		Metrics:     m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.deliver(ctx, &models.WebhookSubscription{ID: 1, URL: srv.URL}, "ADVERTISEMENT", []byte(`{}`))
		close(done)
	}()

	// Cancel while the request is in flight, then let the endpoint answer.
	<-started
	cancel()
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deliver did not return after shutdown")
	}
	if got := testutil.ToFloat64(m.WebhookDelivered); got != 1 {
		t.Errorf("WebhookDelivered = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WebhookFailed); got != 0 {
		t.Errorf("WebhookFailed = %v, want 0", got)
	}
}

func TestDispatchFiltersPerSubscription(t *testing.T) {
	bodies := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf [512]byte
		n, _ := r.Body.Read(buf[:])
		bodies <- string(buf[:n])
	}))
	defer srv.Close()

	filter := "$.data.text"
	store := &fakeWebhookStore{subs: []*models.WebhookSubscription{
		{ID: 1, URL: srv.URL, EventTypes: "CHANNEL_MSG_RECV", PathFilter: &filter},
		{ID: 2, URL: srv.URL, EventTypes: "ADVERTISEMENT"}, // wrong event, skipped
	}}

	d := newTestDispatcher(t, store)
	if err := d.refresh(); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}

	env := NewEnvelope("CHANNEL_MSG_RECV", map[string]any{"text": "hi"}, time.Now())
	d.dispatch(context.Background(), env)

	select {
	case body := <-bodies:
		var got string
		if err := json.Unmarshal([]byte(body), &got); err != nil || got != "hi" {
			t.Errorf("body = %q, want filtered text", body)
		}
	default:
		t.Fatal("matching subscription got no delivery")
	}
	select {
	case body := <-bodies:
		t.Errorf("non-matching subscription was delivered: %q", body)
	default:
	}
}

func TestEnqueueShedsWhenFull(t *testing.T) {
	d := NewDispatcher(Options{
		Store:     &fakeWebhookStore{},
		QueueSize: 1,
		Metrics:   metrics.New(),
	})

	d.Enqueue("ADVERTISEMENT", map[string]any{}, time.Now())
	d.Enqueue("ADVERTISEMENT", map[string]any{}, time.Now()) // must not block

	if len(d.queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(d.queue))
	}
}
