// Package filewatch keeps a filetree.Tree synced with the site's file-watch
// socket.
//
// On every (re)connect the root is watched again and a heartbeat is sent as
// a liveness check. The first frame on a socket, heartbeat reply included,
// marks the session synced: only then is the tree cleared, and the directories that
// were expanded before the disruption are put in expansion memory so they
// re-expand as their create events stream back in.
package filewatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"director-console/internal/filetree"
	"director-console/internal/metrics"
	"director-console/internal/notify"
	"director-console/internal/session"
)

const (
	DefaultRetryDelay = 3 * time.Second
	DefaultHeartbeat  = 30 * time.Second
	errorHideAfter    = 2 * time.Second
)

// DefaultInitialExpanded is expanded on the very first sync.
var DefaultInitialExpanded = []string{"public"}

// Config configures a Watcher.
type Config struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer

	RetryDelay      time.Duration
	Heartbeat       time.Duration
	InitialExpanded []string

	Logger   *zap.Logger
	Notifier notify.Notifier
}

// Watcher owns the tree and the socket session feeding it.
type Watcher struct {
	cfg      Config
	log      *zap.Logger
	notifier notify.Notifier
	sup      *session.Supervisor

	mu         sync.Mutex
	tree       *filetree.Tree
	synced     bool
	everSynced bool
	onChange   []func()
}

// New returns a stopped watcher.
func New(cfg Config) *Watcher {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.InitialExpanded == nil {
		cfg.InitialExpanded = DefaultInitialExpanded
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	w := &Watcher{
		cfg:      cfg,
		log:      log.Named("files"),
		notifier: cfg.Notifier,
	}
	w.sup = session.New(session.Options{
		Name:      "files",
		URL:       cfg.URL,
		Header:    cfg.Header,
		Dialer:    cfg.Dialer,
		Backoff:   session.Fixed(cfg.RetryDelay),
		Heartbeat: cfg.Heartbeat,
		Logger:    log,
		OnState:   func(session.State) { w.changed() },
	}, (*handler)(w))
	w.tree = filetree.New(sender{w.sup})
	return w
}

// Start connects and keeps reconnecting until Stop.
func (w *Watcher) Start(ctx context.Context) error { return w.sup.Start(ctx) }

// Stop closes the session and waits for it to exit.
func (w *Watcher) Stop() { w.sup.Stop() }

// State returns the session state.
func (w *Watcher) State() session.State { return w.sup.State() }

// Synced reports whether the current socket has delivered its first frame.
func (w *Watcher) Synced() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.synced
}

// View runs fn with the tree locked. fn must not retain the tree.
func (w *Watcher) View(fn func(t *filetree.Tree)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.tree)
}

// Toggle expands or collapses a directory.
func (w *Watcher) Toggle(path string) {
	w.mu.Lock()
	w.tree.Toggle(path)
	w.mu.Unlock()
	w.changed()
}

// PrepareMove carries expansion state to the destination of a rename. Call
// it before issuing the rename; the returned func undoes it when the rename
// fails.
func (w *Watcher) PrepareMove(oldPath, newPath string) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tree.PrepareMove(oldPath, newPath)
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.tree.Forget(newPath)
	}
}

// OnChange registers fn to run after the tree or session state changes.
func (w *Watcher) OnChange(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

func (w *Watcher) changed() {
	w.mu.Lock()
	fns := append([]func(){}, w.onChange...)
	w.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type handler Watcher

func (h *handler) Opened(c *session.Conn) error {
	w := (*Watcher)(h)
	w.mu.Lock()
	w.synced = false
	w.mu.Unlock()
	if err := c.WriteJSON(watchRequest{Action: "add", Path: ""}); err != nil {
		return err
	}
	return c.WriteJSON(session.Heartbeat)
}

func (h *handler) Received(_ *session.Conn, f session.Frame) error {
	w := (*Watcher)(h)
	w.mu.Lock()
	if !w.synced {
		remember := w.cfg.InitialExpanded
		if w.everSynced {
			remember = w.tree.ExpandedPaths("")
		}
		w.synced, w.everSynced = true, true
		w.tree.Reset(remember)
	}
	w.mu.Unlock()

	if f.Binary {
		w.changed()
		return nil
	}
	ev, err := decode(f.Data)
	if err != nil {
		return err
	}
	if ev == nil {
		w.changed()
		return nil
	}

	w.mu.Lock()
	w.tree.Apply(ev)
	size := w.tree.Len()
	w.mu.Unlock()

	metrics.RecordTreeEvent(eventName(ev))
	metrics.SetTreeSize(size)
	if e, ok := ev.(filetree.Error); ok {
		msg := e.Message
		if msg == "" {
			msg = filetree.DefaultErrorMessage
		}
		w.log.Warn("directory listing failed", zap.String("path", e.Path), zap.String("error", msg))
		w.notifier.Notify(notify.Notification{Level: notify.Error, Message: msg, HideAfter: errorHideAfter})
	}
	w.changed()
	return nil
}

func (h *handler) Closed(error) {
	w := (*Watcher)(h)
	w.mu.Lock()
	w.synced = false
	w.mu.Unlock()
	w.changed()
}

// sender forwards tree watch requests to the socket. Requests made while
// disconnected are dropped; the next sync re-expands from memory.
type sender struct {
	sup *session.Supervisor
}

func (s sender) Watch(path string) error { return s.send("add", path) }

func (s sender) Unwatch(path string) error { return s.send("remove", path) }

func (s sender) send(action, path string) error {
	err := s.sup.Send(watchRequest{Action: action, Path: path})
	if errors.Is(err, session.ErrNotConnected) {
		return nil
	}
	return err
}
