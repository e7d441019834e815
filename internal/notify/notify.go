// Package notify holds the transient notification banners shown by the
// console.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is the severity of a notification.
type Level int

const (
	Info Level = iota
	Success
	Error
	// Fatal notifications block the console; they never auto-dismiss.
	Fatal
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return "info"
	}
}

// Notification is one banner. A zero HideAfter keeps it until dismissed.
type Notification struct {
	ID        uint64
	Level     Level
	Message   string
	HideAfter time.Duration
	Created   time.Time
}

func (n Notification) expired(now time.Time) bool {
	return n.Level != Fatal && n.HideAfter > 0 && now.Sub(n.Created) >= n.HideAfter
}

// Notifier accepts notifications.
type Notifier interface {
	Notify(n Notification) uint64
}

// Discard drops every notification.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Notification) uint64 { return 0 }

// Center keeps the visible notifications.
type Center struct {
	mu     sync.Mutex
	items  []Notification
	nextID uint64
	subs   []func(Notification)
	log    *zap.Logger

	now func() time.Time
}

// NewCenter returns an empty notification center.
func NewCenter(log *zap.Logger) *Center {
	if log == nil {
		log = zap.NewNop()
	}
	return &Center{log: log.Named("notify"), now: time.Now}
}

// Notify shows n and returns its id.
func (c *Center) Notify(n Notification) uint64 {
	c.mu.Lock()
	c.nextID++
	n.ID = c.nextID
	n.Created = c.now()
	c.items = append(c.items, n)
	subs := append([]func(Notification){}, c.subs...)
	c.mu.Unlock()

	c.log.Info(n.Message, zap.Stringer("level", n.Level))
	for _, fn := range subs {
		fn(n)
	}
	return n.ID
}

// Update replaces the notification with the given id, restarting its timer.
// It shows n as a new notification if the id is no longer visible.
func (c *Center) Update(id uint64, n Notification) uint64 {
	c.mu.Lock()
	for i := range c.items {
		if c.items[i].ID == id {
			n.ID = id
			n.Created = c.now()
			c.items[i] = n
			subs := append([]func(Notification){}, c.subs...)
			c.mu.Unlock()
			c.log.Info(n.Message, zap.Stringer("level", n.Level))
			for _, fn := range subs {
				fn(n)
			}
			return id
		}
	}
	c.mu.Unlock()
	return c.Notify(n)
}

// Dismiss hides a notification.
func (c *Center) Dismiss(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// Visible returns the notifications that have not expired, oldest first.
func (c *Center) Visible() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	kept := c.items[:0]
	for _, n := range c.items {
		if !n.expired(now) {
			kept = append(kept, n)
		}
	}
	c.items = kept
	return append([]Notification(nil), kept...)
}

// Latest returns the newest visible notification.
func (c *Center) Latest() (Notification, bool) {
	v := c.Visible()
	if len(v) == 0 {
		return Notification{}, false
	}
	return v[len(v)-1], true
}

// Subscribe registers fn to be called for every shown or updated
// notification.
func (c *Center) Subscribe(fn func(Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}
