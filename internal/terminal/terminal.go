// Package terminal attaches to a site's terminal socket.
//
// Output arrives as binary frames and control messages as JSON text frames.
// Input and resize requests are held back until the first output frame, so
// they never race the remote shell's own start-up.
package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"director-console/internal/session"
)

// DefaultTitle is shown while no program has set a title, and after the
// socket closes.
const DefaultTitle = "Terminal"

// ErrNotReady is returned by Write before the first output frame.
var ErrNotReady = errors.New("terminal not ready")

// DefaultBackoff is the reconnect policy for terminal sockets.
var DefaultBackoff = session.Exponential{Initial: time.Second, Max: 10 * time.Second, Factor: 1.5}

// DefaultHeartbeat is the keep-alive interval for terminal sockets.
const DefaultHeartbeat = 2 * time.Hour

// Config configures a Terminal.
type Config struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer

	Backoff   session.Backoff
	Heartbeat time.Duration
	Logger    *zap.Logger

	// OnData receives raw output bytes.
	OnData func(p []byte)
	// OnText receives output decoded into complete UTF-8 characters.
	OnText func(s string)
	// OnTitle receives window-title changes.
	OnTitle func(title string)
	// OnError receives error messages reported by the server.
	OnError func(msg string)
	// OnClose runs when the socket goes away.
	OnClose func()
}

type control struct {
	Connected bool   `json:"connected"`
	Heartbeat int    `json:"heartbeat"`
	Error     string `json:"error"`
}

type sizeMessage struct {
	Size [2]int `json:"size"`
}

// Terminal is one attached terminal panel.
type Terminal struct {
	// ID distinguishes terminal panels of the same site.
	ID string

	cfg Config
	log *zap.Logger
	sup *session.Supervisor

	mu        sync.Mutex
	connected bool
	ready     bool
	size      *sizeMessage
	title     string
	decoder   utf8Buffer
	titles    titleScanner
}

// New returns a detached terminal.
func New(cfg Config) *Terminal {
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	t := &Terminal{
		ID:    uuid.NewString(),
		cfg:   cfg,
		title: DefaultTitle,
	}
	t.log = log.Named("terminal").With(zap.String("id", t.ID))
	t.decoder.log = t.log
	t.sup = session.New(session.Options{
		Name:      "terminal",
		URL:       cfg.URL,
		Header:    cfg.Header,
		Dialer:    cfg.Dialer,
		Backoff:   cfg.Backoff,
		Heartbeat: cfg.Heartbeat,
		Logger:    log,
	}, (*handler)(t))
	return t
}

// Start attaches and keeps reattaching until Stop.
func (t *Terminal) Start(ctx context.Context) error { return t.sup.Start(ctx) }

// Stop detaches and waits for the session to exit.
func (t *Terminal) Stop() { t.sup.Stop() }

// State returns the session state.
func (t *Terminal) State() session.State { return t.sup.State() }

// Ready reports whether output has arrived on the current socket.
func (t *Terminal) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// Connected reports whether the server confirmed the attach.
func (t *Terminal) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Title returns the current window title.
func (t *Terminal) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.title
}

// Write sends input to the remote program.
func (t *Terminal) Write(p []byte) (int, error) {
	if !t.Ready() {
		return 0, ErrNotReady
	}
	if err := t.sup.SendBinary(p); err != nil {
		return 0, fmt.Errorf("failed to send terminal input: %w", err)
	}
	return len(p), nil
}

// Resize records the panel size and sends it once the terminal is ready.
func (t *Terminal) Resize(rows, cols int) error {
	t.mu.Lock()
	t.size = &sizeMessage{Size: [2]int{rows, cols}}
	ready := t.ready
	msg := *t.size
	t.mu.Unlock()
	if !ready {
		return nil
	}
	return t.sup.Send(msg)
}

func (t *Terminal) setTitle(title string) {
	t.mu.Lock()
	changed := t.title != title
	t.title = title
	t.mu.Unlock()
	if changed && t.cfg.OnTitle != nil {
		t.cfg.OnTitle(title)
	}
}

type handler Terminal

func (h *handler) Opened(*session.Conn) error {
	t := (*Terminal)(h)
	t.mu.Lock()
	t.connected, t.ready = false, false
	t.mu.Unlock()
	return nil
}

func (h *handler) Received(c *session.Conn, f session.Frame) error {
	t := (*Terminal)(h)
	if !f.Binary {
		var msg control
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return fmt.Errorf("failed to decode terminal control message: %w", err)
		}
		switch {
		case msg.Error != "":
			t.log.Warn("terminal error", zap.String("error", msg.Error))
			if t.cfg.OnError != nil {
				t.cfg.OnError(msg.Error)
			}
		case msg.Connected:
			t.mu.Lock()
			t.connected = true
			t.mu.Unlock()
		}
		return nil
	}

	t.mu.Lock()
	first := !t.ready
	t.ready = true
	size := t.size
	text := t.decoder.Append(f.Data)
	title, titled := t.titles.Scan(f.Data)
	t.mu.Unlock()

	if first && size != nil {
		if err := c.WriteJSON(*size); err != nil {
			t.log.Warn("failed to send terminal size", zap.Error(err))
		}
	}
	if t.cfg.OnData != nil {
		t.cfg.OnData(f.Data)
	}
	if text != "" && t.cfg.OnText != nil {
		t.cfg.OnText(text)
	}
	if titled {
		t.setTitle(title)
	}
	return nil
}

func (h *handler) Closed(error) {
	t := (*Terminal)(h)
	t.mu.Lock()
	t.connected, t.ready = false, false
	rest := t.decoder.Flush()
	t.titles = titleScanner{}
	t.mu.Unlock()

	if rest != "" && t.cfg.OnText != nil {
		t.cfg.OnText(rest)
	}
	t.setTitle(DefaultTitle)
	if t.cfg.OnClose != nil {
		t.cfg.OnClose()
	}
}
