package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleEvent() Event {
	return Event{
		ID:          "ev-1",
		RequestID:   "req-1",
		RequestType: RequestTypeBooking,
		Action:      "APPROVE",
		FromState:   "PENDING_FINAL_AUTHORITY",
		ToState:     "APPROVED",
		ActorID:     "hod-1",
		Recipients:  []string{"student-1"},
		Timestamp:   time.Unix(1700000000, 0).UTC(),
	}
}

func TestWebhookDispatcher_SignsBody(t *testing.T) {
	const secret = "s3cret"
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := WebhookDispatcher{URL: srv.URL, Secret: secret}
	require.NoError(t, d.Dispatch(context.Background(), sampleEvent()))

	assert.True(t, Verify(gotBody, gotSig, secret))
	assert.False(t, Verify(gotBody, gotSig, "other"))
	assert.Contains(t, string(gotBody), `"requestId":"req-1"`)
}

func TestWebhookDispatcher_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := WebhookDispatcher{URL: srv.URL}.Dispatch(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=502")
}

func TestWebhookDispatcher_DisabledWithoutURL(t *testing.T) {
	assert.NoError(t, WebhookDispatcher{}.Dispatch(context.Background(), sampleEvent()))
}

func TestMulti_JoinsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	m := Multi{rec, nil, DispatcherFunc(func(context.Context, Event) error { return boom })}

	err := m.Dispatch(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.Events(), 1, "earlier dispatchers still receive the event")
}

func TestHub_PushesToRecipient(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=student-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connected("student-1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Dispatch(context.Background(), sampleEvent()))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "APPROVED", got.ToState)
}

func TestAsync_DoesNotWaitForDelivery(t *testing.T) {
	release := make(chan struct{})
	rec := &Recorder{}
	slow := DispatcherFunc(func(ctx context.Context, ev Event) error {
		<-release
		return rec.Dispatch(ctx, ev)
	})
	a := NewAsync(slow, zap.NewNop(), 4, time.Second)

	start := time.Now()
	require.NoError(t, a.Dispatch(context.Background(), sampleEvent()))
	require.NoError(t, a.Dispatch(context.Background(), sampleEvent()))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, rec.Events())

	close(release)
	require.NoError(t, a.Close(context.Background()))
	assert.Len(t, rec.Events(), 2)
	assert.ErrorIs(t, a.Dispatch(context.Background(), sampleEvent()), ErrClosed)
}

func TestAsync_FullQueueRejects(t *testing.T) {
	release := make(chan struct{})
	picked := make(chan struct{}, 1)
	blocked := DispatcherFunc(func(context.Context, Event) error {
		picked <- struct{}{}
		<-release
		return nil
	})
	a := NewAsync(blocked, zap.NewNop(), 1, time.Second)

	require.NoError(t, a.Dispatch(context.Background(), sampleEvent()))
	<-picked
	require.NoError(t, a.Dispatch(context.Background(), sampleEvent()))
	assert.ErrorIs(t, a.Dispatch(context.Background(), sampleEvent()), ErrQueueFull)

	close(release)
	require.NoError(t, a.Close(context.Background()))
}
