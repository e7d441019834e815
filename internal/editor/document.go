// Package editor is the editing surface: one open file, loaded over the file
// API, tracked as saved or unsaved, and written back on save.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"director-console/internal/api"
	"director-console/internal/notify"
	"director-console/internal/pathutil"
	"director-console/internal/settings"
)

// ErrClosed is returned by every operation that completes after the
// document was closed. Such completions change nothing.
var ErrClosed = errors.New("document closed")

// ErrNotLoaded is returned when editing or saving before the content
// arrived.
var ErrNotLoaded = errors.New("document not loaded")

const saveErrorHideAfter = 10 * time.Second

// Status is the document's save state.
type Status int

const (
	Loading Status = iota
	Saved
	Unsaved
	Saving
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Saved:
		return "saved"
	case Unsaved:
		return "unsaved"
	case Saving:
		return "saving"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Marker is the glyph shown before the file name.
func (s Status) Marker() string {
	switch s {
	case Loading, Saving:
		return "◌"
	case Unsaved:
		return "●"
	default:
		return "○"
	}
}

// Backend reads and writes file contents. *api.Client and *remote.Backend
// satisfy it.
type Backend interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, content []byte) error
}

// Config configures a Document.
type Config struct {
	Path     string
	Backend  Backend
	Notifier notify.Notifier
	Logger   *zap.Logger
	// OnStatus is called after every status change.
	OnStatus func(Status)
	// OnClose is called once when the document closes, including when the
	// initial load fails.
	OnClose func()
}

// Document is one file open for editing.
type Document struct {
	path     string
	backend  Backend
	notifier notify.Notifier
	log      *zap.Logger
	onStatus func(Status)
	onClose  func()

	mu       sync.Mutex
	status   Status
	content  []byte
	revision uint64
	closed   bool
	settings settings.Settings
}

// New returns a document in the loading state. Call Load to fetch it.
func New(cfg Config) *Document {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	n := cfg.Notifier
	if n == nil {
		n = notify.Discard
	}
	return &Document{
		path:     cfg.Path,
		backend:  cfg.Backend,
		notifier: n,
		log:      log.Named("editor").With(zap.String("path", cfg.Path)),
		onStatus: cfg.OnStatus,
		onClose:  cfg.OnClose,
		status:   Loading,
		settings: settings.Defaults(),
	}
}

// Path returns the file's path.
func (d *Document) Path() string { return d.path }

// Status returns the current status.
func (d *Document) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Closed reports whether the document was closed.
func (d *Document) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Title is the status marker followed by the file's base name.
func (d *Document) Title() string {
	return d.Status().Marker() + " " + pathutil.Base(d.path)
}

// Content returns a copy of the current content.
func (d *Document) Content() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.content...)
}

// Settings returns the settings last pushed to the document.
func (d *Document) Settings() settings.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// UpdateSettings applies new editor preferences.
func (d *Document) UpdateSettings(s settings.Settings) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = s
}

// Load fetches the file. A failed load closes the document.
func (d *Document) Load(ctx context.Context) error {
	data, err := d.backend.Get(ctx, d.path)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		d.mu.Unlock()
		d.log.Warn("failed to load file", zap.Error(err))
		d.Close()
		return fmt.Errorf("failed to load %s: %w", d.path, err)
	}
	d.content = data
	d.revision = 0
	d.mu.Unlock()

	d.setStatus(Saved)
	return nil
}

// SetContent replaces the content and marks the document unsaved.
func (d *Document) SetContent(content []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.status == Loading {
		d.mu.Unlock()
		return ErrNotLoaded
	}
	d.content = append([]byte(nil), content...)
	d.revision++
	d.mu.Unlock()

	d.setStatus(Unsaved)
	return nil
}

// Save writes the content back. On failure the document stays unsaved and
// an error notification is shown. Edits made while the write is in flight
// keep the document unsaved after it completes.
func (d *Document) Save(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.status == Loading {
		d.mu.Unlock()
		return ErrNotLoaded
	}
	content := append([]byte(nil), d.content...)
	rev := d.revision
	d.mu.Unlock()

	d.setStatus(Saving)
	err := d.backend.Write(ctx, d.path, content)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	current := d.revision
	d.mu.Unlock()

	if err != nil {
		d.setStatus(Unsaved)
		d.notifier.Notify(notify.Notification{
			Level:     notify.Error,
			Message:   "Error saving file: " + errorMessage(err),
			HideAfter: saveErrorHideAfter,
		})
		return fmt.Errorf("failed to save %s: %w", d.path, err)
	}
	if current != rev {
		d.setStatus(Unsaved)
		return nil
	}
	d.setStatus(Saved)
	d.log.Debug("saved", zap.Int("bytes", len(content)))
	return nil
}

// Close closes the document. Completions of loads and saves still in
// flight become no-ops.
func (d *Document) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	if d.onClose != nil {
		d.onClose()
	}
}

func (d *Document) setStatus(s Status) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.status = s
	d.mu.Unlock()
	if d.onStatus != nil {
		d.onStatus(s)
	}
}

func errorMessage(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}
