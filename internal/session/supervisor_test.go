package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var upgrader = websocket.Upgrader{}

// newServer starts a websocket server that runs serve for every connection.
func newServer(t *testing.T, serve func(n int, ws *websocket.Conn)) (string, func()) {
	t.Helper()
	var mu sync.Mutex
	count := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		mu.Lock()
		count++
		n := count
		mu.Unlock()
		serve(n, ws)
	}))
	return "ws" + strings.TrimPrefix(srv.URL, "http"), srv.Close
}

type recorder struct {
	opened   chan struct{}
	frames   chan Frame
	closed   chan error
	received func(Frame) error
}

func newRecorder() *recorder {
	return &recorder{
		opened: make(chan struct{}, 16),
		frames: make(chan Frame, 16),
		closed: make(chan error, 16),
	}
}

func (r *recorder) Opened(*Conn) error {
	r.opened <- struct{}{}
	return nil
}

func (r *recorder) Received(_ *Conn, f Frame) error {
	r.frames <- f
	if r.received != nil {
		return r.received(f)
	}
	return nil
}

func (r *recorder) Closed(err error) { r.closed <- err }

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestExponentialBackoff(t *testing.T) {
	b := Exponential{Initial: time.Second, Max: 10 * time.Second, Factor: 1.5}
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 1500*time.Millisecond, b.Delay(1))
	assert.Equal(t, 2250*time.Millisecond, b.Delay(2))
	assert.Equal(t, 10*time.Second, b.Delay(20))
	assert.Equal(t, 3*time.Second, Fixed(3*time.Second).Delay(7))
}

func TestSendBeforeStart(t *testing.T) {
	s := New(Options{URL: "ws://127.0.0.1:1"}, newRecorder())
	assert.ErrorIs(t, s.Send(Heartbeat), ErrNotConnected)
	assert.Equal(t, NotConnected, s.State())
	s.Stop()
}

func TestReconnectsAfterServerClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	url, closeServer := newServer(t, func(n int, ws *websocket.Conn) {
		if n == 1 {
			return
		}
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"heartbeat":1}`))
		_, _, _ = ws.ReadMessage()
	})
	defer closeServer()

	rec := newRecorder()
	s := New(Options{Name: "test", URL: url, Backoff: Fixed(10 * time.Millisecond)}, rec)
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	waitFor(t, rec.opened)
	waitFor(t, rec.closed)
	waitFor(t, rec.opened)
	f := waitFor(t, rec.frames)
	assert.False(t, f.Binary)
	assert.JSONEq(t, `{"heartbeat":1}`, string(f.Data))

	s.Stop()
	waitFor(t, rec.closed)
	assert.Equal(t, NotConnected, s.State())
}

func TestFirstFrameMarksSynced(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	url, closeServer := newServer(t, func(_ int, ws *websocket.Conn) {
		<-release
		_ = ws.WriteMessage(websocket.BinaryMessage, []byte("hello"))
		_, _, _ = ws.ReadMessage()
	})
	defer closeServer()

	states := make(chan State, 16)
	rec := newRecorder()
	s := New(Options{URL: url, OnState: func(st State) { states <- st }}, rec)
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, Connecting, waitFor(t, states))
	assert.Equal(t, Open, waitFor(t, states))
	close(release)
	assert.Equal(t, Synced, waitFor(t, states))
	f := waitFor(t, rec.frames)
	assert.True(t, f.Binary)
	assert.Equal(t, "hello", string(f.Data))

	s.Stop()
}

func TestHaltStopsWithoutReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	url, closeServer := newServer(t, func(_ int, ws *websocket.Conn) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"site_info":null}`))
		_, _, _ = ws.ReadMessage()
	})
	defer closeServer()

	rec := newRecorder()
	rec.received = func(Frame) error { return ErrHalt }
	s := New(Options{URL: url, Backoff: Fixed(time.Millisecond)}, rec)
	require.NoError(t, s.Start(context.Background()))

	waitFor(t, s.Done())
	assert.ErrorIs(t, waitFor(t, rec.closed), ErrHalt)
	assert.Len(t, rec.opened, 1)
	s.Stop()
}

func TestHeartbeatBeforeData(t *testing.T) {
	defer goleak.VerifyNone(t)

	got := make(chan map[string]int, 1)
	url, closeServer := newServer(t, func(_ int, ws *websocket.Conn) {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]int
		_ = json.Unmarshal(data, &msg)
		got <- msg
		_, _, _ = ws.ReadMessage()
	})
	defer closeServer()

	s := New(Options{
		URL:                 url,
		Heartbeat:           10 * time.Millisecond,
		HeartbeatBeforeData: true,
	}, newRecorder())
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, map[string]int{"heartbeat": 1}, waitFor(t, got))
	s.Stop()
}

func TestStopCancelsPendingRetry(t *testing.T) {
	defer goleak.VerifyNone(t)

	states := make(chan State, 16)
	s := New(Options{
		URL:     "ws://127.0.0.1:1/unreachable",
		Backoff: Fixed(time.Hour),
		OnState: func(st State) { states <- st },
	}, newRecorder())
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, Connecting, waitFor(t, states))
	assert.Equal(t, RetryPending, waitFor(t, states))
	s.Stop()
	assert.Equal(t, NotConnected, s.State())
}
