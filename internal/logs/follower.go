// Package logs follows a site's process log over its log socket.
package logs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"director-console/internal/session"
)

const (
	DefaultHeartbeat = 30 * time.Second
	DefaultMaxBytes  = 1 << 20
)

// DefaultBackoff is the reconnect policy for log sockets.
var DefaultBackoff = session.Exponential{Initial: time.Second, Max: 10 * time.Second, Factor: 1.5}

// Config configures a Follower.
type Config struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer

	Backoff   session.Backoff
	Heartbeat time.Duration
	// MaxBytes bounds the retained log text; the oldest lines are dropped
	// first.
	MaxBytes int
	Logger   *zap.Logger

	// OnLine receives every appended chunk.
	OnLine func(line string)
	// OnReset runs when the buffer is cleared for a replay.
	OnReset func()
}

type message struct {
	Line      *string `json:"line"`
	Heartbeat int     `json:"heartbeat"`
}

// Follower keeps the tail of the process log.
type Follower struct {
	cfg Config
	sup *session.Supervisor

	mu    sync.Mutex
	lines []string
	size  int
}

// New returns a stopped follower.
func New(cfg Config) *Follower {
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	f := &Follower{cfg: cfg}
	f.sup = session.New(session.Options{
		Name:                "logs",
		URL:                 cfg.URL,
		Header:              cfg.Header,
		Dialer:              cfg.Dialer,
		Backoff:             cfg.Backoff,
		Heartbeat:           cfg.Heartbeat,
		HeartbeatBeforeData: true,
		Logger:              cfg.Logger,
	}, (*handler)(f))
	return f
}

// Start follows the log until Stop.
func (f *Follower) Start(ctx context.Context) error { return f.sup.Start(ctx) }

// Stop closes the socket and waits for the session to exit.
func (f *Follower) Stop() { f.sup.Stop() }

// State returns the session state.
func (f *Follower) State() session.State { return f.sup.State() }

// Text returns the retained log.
func (f *Follower) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.lines, "")
}

// Lines returns the retained chunks in arrival order.
func (f *Follower) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *Follower) reset() {
	f.mu.Lock()
	f.lines, f.size = nil, 0
	f.mu.Unlock()
	if f.cfg.OnReset != nil {
		f.cfg.OnReset()
	}
}

func (f *Follower) append(line string) {
	f.mu.Lock()
	f.lines = append(f.lines, line)
	f.size += len(line)
	drop := 0
	for f.size > f.cfg.MaxBytes && drop < len(f.lines)-1 {
		f.size -= len(f.lines[drop])
		drop++
	}
	if drop > 0 {
		f.lines = append([]string(nil), f.lines[drop:]...)
	}
	f.mu.Unlock()
	if f.cfg.OnLine != nil {
		f.cfg.OnLine(line)
	}
}

type handler Follower

// Opened clears the buffer: the server replays the log on every connect.
func (h *handler) Opened(*session.Conn) error {
	(*Follower)(h).reset()
	return nil
}

func (h *handler) Received(_ *session.Conn, fr session.Frame) error {
	var msg message
	if err := json.Unmarshal(fr.Data, &msg); err != nil {
		return fmt.Errorf("failed to decode log message: %w", err)
	}
	if msg.Line != nil {
		(*Follower)(h).append(*msg.Line)
	}
	return nil
}

func (h *handler) Closed(error) {}
