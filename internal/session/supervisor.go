// Package session supervises a single reconnecting WebSocket session.
//
// A Supervisor dials the socket, hands every frame to its Handler and, when
// the socket closes, waits according to its Backoff and dials again until it
// is stopped or the handler halts it. The handler callbacks all run on the
// supervisor goroutine, one at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"director-console/internal/metrics"
)

// State is the lifecycle position of a session.
type State int

const (
	NotConnected State = iota
	Connecting
	// Open means the socket is connected but no frame has arrived yet.
	Open
	// Synced means at least one frame has arrived on the current socket.
	Synced
	RetryPending
)

func (s State) String() string {
	switch s {
	case NotConnected:
		return "not connected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Synced:
		return "synced"
	case RetryPending:
		return "retry pending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrHalt is returned by Handler.Received to close the session for good.
	ErrHalt = errors.New("session halted")
	// ErrNotConnected is returned by Send when no socket is open.
	ErrNotConnected = errors.New("session not connected")
)

// Handler reacts to session events.
type Handler interface {
	// Opened runs right after a successful dial.
	Opened(c *Conn) error
	// Received runs for every frame. Returning ErrHalt stops the supervisor
	// without reconnecting.
	Received(c *Conn, f Frame) error
	// Closed runs when a socket that was opened goes away.
	Closed(err error)
}

// Options configures a Supervisor.
type Options struct {
	// Name labels logs and metrics.
	Name   string
	URL    string
	Header http.Header
	Dialer *websocket.Dialer

	Backoff Backoff
	// Heartbeat is the interval between {"heartbeat":1} messages. Zero
	// disables heartbeats.
	Heartbeat time.Duration
	// HeartbeatBeforeData also sends heartbeats while the session is Open.
	HeartbeatBeforeData bool

	Logger  *zap.Logger
	OnState func(State)
}

// Supervisor owns the retry loop of one session.
type Supervisor struct {
	opts    Options
	handler Handler
	log     *zap.Logger

	mu      sync.Mutex
	state   State
	conn    *Conn
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New returns a stopped supervisor.
func New(opts Options, h Handler) *Supervisor {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Backoff == nil {
		opts.Backoff = Fixed(3 * time.Second)
	}
	if opts.Name == "" {
		opts.Name = "session"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		opts:    opts,
		handler: h,
		log:     log.Named(opts.Name),
		done:    make(chan struct{}),
	}
}

// Start launches the retry loop. It returns an error if the supervisor was
// already started.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("session %s already started", s.opts.Name)
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
	return nil
}

// Stop cancels the retry loop, closes the socket and waits for the loop to
// exit. It is safe to call more than once, and before Start.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, started := s.cancel, s.started
	s.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-s.done
}

// Done is closed when the retry loop has exited.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send writes v as JSON on the current socket.
func (s *Supervisor) Send(v any) error {
	c := s.current()
	if c == nil {
		return ErrNotConnected
	}
	return c.WriteJSON(v)
}

// SendBinary writes p as a binary frame on the current socket.
func (s *Supervisor) SendBinary(p []byte) error {
	c := s.current()
	if c == nil {
		return ErrNotConnected
	}
	return c.WriteBinary(p)
}

func (s *Supervisor) current() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if !changed {
		return
	}
	metrics.SetSessionState(s.opts.Name, int(st))
	if s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(NotConnected)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		s.setState(Connecting)
		synced, halted := s.connectOnce(ctx)
		if synced {
			attempt = 0
		}
		if halted || ctx.Err() != nil {
			return
		}

		delay := s.opts.Backoff.Delay(attempt)
		attempt++
		s.setState(RetryPending)
		metrics.RecordRetry(s.opts.Name, delay)
		s.log.Debug("reconnecting", zap.Duration("delay", delay), zap.Int("attempt", attempt))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connectOnce runs one socket lifetime. It reports whether the socket
// received any frame and whether the handler halted the session.
func (s *Supervisor) connectOnce(ctx context.Context) (synced, halted bool) {
	ws, _, err := s.opts.Dialer.DialContext(ctx, s.opts.URL, s.opts.Header)
	metrics.RecordDial(s.opts.Name, err == nil)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("failed to connect", zap.String("url", s.opts.URL), zap.Error(err))
		}
		return false, false
	}
	s.log.Info("connected", zap.String("url", s.opts.URL))

	conn := &Conn{ws: ws}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(Open)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = conn.close()
		case <-stop:
		}
	}()
	if s.opts.Heartbeat > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.heartbeat(conn, stop)
		}()
	}

	var readErr error
	if err := s.handler.Opened(conn); err != nil {
		s.log.Warn("open handler failed", zap.Error(err))
	}
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		if !synced {
			synced = true
			s.setState(Synced)
		}
		frame := Frame{Binary: mt == websocket.BinaryMessage, Data: data}
		metrics.RecordFrame(s.opts.Name, frame.Binary)
		if err := s.handler.Received(conn, frame); err != nil {
			if errors.Is(err, ErrHalt) {
				halted = true
				readErr = err
				break
			}
			s.log.Warn("failed to handle frame", zap.Error(err))
		}
	}

	close(stop)
	_ = conn.close()
	wg.Wait()

	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()

	if ctx.Err() == nil && !halted {
		s.log.Info("disconnected", zap.Error(readErr))
	}
	s.handler.Closed(readErr)
	return synced, halted
}

func (s *Supervisor) heartbeat(conn *Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st := s.State()
			if st != Synced && !(st == Open && s.opts.HeartbeatBeforeData) {
				continue
			}
			if err := conn.WriteJSON(Heartbeat); err != nil {
				s.log.Debug("failed to send heartbeat", zap.Error(err))
			}
		}
	}
}

// Heartbeat is the keep-alive message shared by every socket protocol.
var Heartbeat = map[string]int{"heartbeat": 1}
