package logs

import (
	"context"
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

	"director-console/internal/session"
)

func TestFollowerReplaysOnReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	count := 0
	done := make(chan struct{})
	upgrader := websocket.Upgrader{}
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

		_ = ws.WriteJSON(map[string]string{"line": "starting\n"})
		_ = ws.WriteJSON(map[string]int{"heartbeat": 1})
		_ = ws.WriteJSON(map[string]string{"line": "listening on :8080\n"})
		if n == 1 {
			return
		}
		<-done
	}))
	defer srv.Close()
	defer close(done)

	resets := make(chan struct{}, 8)
	f := New(Config{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Backoff: session.Fixed(10 * time.Millisecond),
		OnReset: func() { resets <- struct{}{} },
	})
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2 && len(resets) == 2 && len(f.Lines()) == 2
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "starting\nlistening on :8080\n", f.Text())
}

func TestFollowerBoundsBuffer(t *testing.T) {
	f := New(Config{MaxBytes: 10})
	f.append("12345")
	f.append("67890")
	f.append("abc")
	assert.Equal(t, []string{"67890", "abc"}, f.Lines())

	f.append(strings.Repeat("x", 20))
	assert.Equal(t, []string{strings.Repeat("x", 20)}, f.Lines(), "the newest chunk is always kept")
}
