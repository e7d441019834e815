// Package status watches a site's status socket: site information, process
// state changes and recoverable operation failures.
//
// A null site_info means the site was deleted. That is the only fatal
// condition in the console: a blocking notification is raised and the
// session stops for good.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"director-console/internal/notify"
	"director-console/internal/session"
)

const (
	DeletedMessage    = "This site has been deleted"
	statusHideAfter   = 5 * time.Second
	DefaultHeartbeat  = 30 * time.Second
	imageBuildFailure = "update_docker_image"
)

// DefaultBackoff is the reconnect policy for status sockets.
var DefaultBackoff = session.Exponential{Initial: time.Second, Max: 10 * time.Second, Factor: 3}

// Config configures a Watcher.
type Config struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer

	Backoff   session.Backoff
	Heartbeat time.Duration
	Logger    *zap.Logger
	Notifier  notify.Notifier

	OnInfo    func(Info)
	OnStatus  func(SiteStatus)
	OnDeleted func()
}

// updater is implemented by notifiers that can replace a shown banner.
type updater interface {
	Update(id uint64, n notify.Notification) uint64
}

// Watcher tracks the latest site information and process state.
type Watcher struct {
	cfg Config
	log *zap.Logger
	sup *session.Supervisor

	mu       sync.Mutex
	info     Info
	status   *SiteStatus
	first    bool
	lastMsg  string
	noteID   uint64
	failedOp string
	deleted  bool
}

// New returns a stopped watcher.
func New(cfg Config) *Watcher {
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	w := &Watcher{cfg: cfg, log: log.Named("status")}
	w.sup = session.New(session.Options{
		Name:      "status",
		URL:       cfg.URL,
		Header:    cfg.Header,
		Dialer:    cfg.Dialer,
		Backoff:   cfg.Backoff,
		Heartbeat: cfg.Heartbeat,
		Logger:    log,
	}, (*handler)(w))
	return w
}

// Start watches until Stop or until the site is deleted.
func (w *Watcher) Start(ctx context.Context) error { return w.sup.Start(ctx) }

// Stop closes the socket and waits for the session to exit.
func (w *Watcher) Stop() { w.sup.Stop() }

// Done is closed when the session has exited.
func (w *Watcher) Done() <-chan struct{} { return w.sup.Done() }

// State returns the session state.
func (w *Watcher) State() session.State { return w.sup.State() }

// Info returns the latest site information.
func (w *Watcher) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.info
}

// Status returns the latest process state.
func (w *Watcher) Status() (SiteStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == nil {
		return SiteStatus{}, false
	}
	return *w.status, true
}

// Deleted reports whether the server said the site no longer exists.
func (w *Watcher) Deleted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deleted
}

// processNotification maps a process state to the banner it raises. The
// first status after connecting never reports a restart.
func processNotification(st SiteStatus, first bool) (notify.Notification, bool) {
	switch {
	case st.Running && st.Starting:
		return notify.Notification{Level: notify.Info, Message: "Site process shutting down..."}, true
	case st.Running:
		if first {
			return notify.Notification{}, false
		}
		return notify.Notification{Level: notify.Success, Message: "Site process restarted!", HideAfter: statusHideAfter}, true
	case st.Starting:
		return notify.Notification{Level: notify.Info, Message: "Site process starting..."}, true
	default:
		return notify.Notification{Level: notify.Error, Message: "Site process stopped", HideAfter: statusHideAfter}, true
	}
}

// FailedOperationMessage explains a recoverable operation failure.
func FailedOperationMessage(op string) string {
	if op == imageBuildFailure {
		return "The Docker image has failed to build. This is usually due to incorrect package names " +
			"(though there may be other causes). Please select the image again and retry."
	}
	return "An operation on your site has failed, but you can recover from it. " +
		"Try repeating what you were trying to do."
}

// post is only called from the session goroutine, which owns noteID.
func (w *Watcher) post(n notify.Notification) {
	if u, ok := w.cfg.Notifier.(updater); ok && w.noteID != 0 {
		w.noteID = u.Update(w.noteID, n)
		return
	}
	w.noteID = w.cfg.Notifier.Notify(n)
}

type handler Watcher

func (h *handler) Opened(*session.Conn) error {
	w := (*Watcher)(h)
	w.mu.Lock()
	w.first = true
	w.mu.Unlock()
	return nil
}

func (h *handler) Received(_ *session.Conn, f session.Frame) error {
	w := (*Watcher)(h)
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		return fmt.Errorf("failed to decode status message: %w", err)
	}

	if raw, ok := msg["site_info"]; ok {
		if string(raw) == "null" {
			return w.siteDeleted()
		}
		var info Info
		if err := json.Unmarshal(raw, &info); err != nil {
			return fmt.Errorf("failed to decode site info: %w", err)
		}
		w.mu.Lock()
		w.info = info
		w.mu.Unlock()
		if w.cfg.OnInfo != nil {
			w.cfg.OnInfo(info)
		}
		return nil
	}

	if raw, ok := msg["site_status"]; ok {
		var st SiteStatus
		if err := json.Unmarshal(raw, &st); err != nil {
			return fmt.Errorf("failed to decode site status: %w", err)
		}
		w.mu.Lock()
		w.status = &st
		n, show := processNotification(st, w.first)
		w.first = false
		show = show && n.Message != w.lastMsg
		if show {
			w.lastMsg = n.Message
		}
		w.mu.Unlock()
		if show {
			w.post(n)
		}
		if w.cfg.OnStatus != nil {
			w.cfg.OnStatus(st)
		}
		return nil
	}

	if raw, ok := msg["failed_operation_recoverable"]; ok {
		var op string
		if err := json.Unmarshal(raw, &op); err != nil {
			return fmt.Errorf("failed to decode failed operation: %w", err)
		}
		w.mu.Lock()
		repeat := w.failedOp == op
		w.failedOp = op
		w.mu.Unlock()
		if !repeat {
			w.log.Warn("recoverable operation failure", zap.String("operation", op))
			w.cfg.Notifier.Notify(notify.Notification{Level: notify.Error, Message: FailedOperationMessage(op)})
		}
	}
	return nil
}

func (w *Watcher) siteDeleted() error {
	w.mu.Lock()
	already := w.deleted
	w.deleted = true
	w.mu.Unlock()
	if already {
		return session.ErrHalt
	}
	w.log.Error("site deleted")
	w.cfg.Notifier.Notify(notify.Notification{Level: notify.Fatal, Message: DeletedMessage})
	if w.cfg.OnDeleted != nil {
		w.cfg.OnDeleted()
	}
	return session.ErrHalt
}

func (h *handler) Closed(error) {}
