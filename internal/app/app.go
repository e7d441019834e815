// Package app is the console's application state. It is created once and
// passed to every panel: panels register to receive settings, and every
// settings change goes through Dispatch.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"director-console/internal/api"
	"director-console/internal/editor"
	"director-console/internal/filewatch"
	"director-console/internal/logs"
	"director-console/internal/notify"
	"director-console/internal/settings"
	"director-console/internal/sqlconsole"
	"director-console/internal/status"
	"director-console/internal/terminal"
)

// Component is a panel that reacts to settings.
type Component interface {
	UpdateSettings(s settings.Settings)
}

// ComponentFunc adapts a function to Component.
type ComponentFunc func(s settings.Settings)

func (f ComponentFunc) UpdateSettings(s settings.Settings) { f(s) }

// Config holds the collaborators of an App.
type Config struct {
	Client *api.Client
	// Files serves document loads and saves. It defaults to Client.
	Files    api.Files
	Store    *settings.Store
	Notifier *notify.Center
	Logger   *zap.Logger
}

// App is the shared state of one console.
type App struct {
	client *api.Client
	files  api.Files
	store  *settings.Store
	center *notify.Center
	log    *zap.Logger

	mu         sync.Mutex
	components map[string]Component
	order      []string

	fileWatcher   *filewatch.Watcher
	statusWatcher *status.Watcher
	logFollower   *logs.Follower
	terminals     map[string]*terminal.Terminal
	sql           *sqlconsole.Console
}

// New creates the application state.
func New(cfg Config) (*App, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("app requires an API client")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("app requires a settings store")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	center := cfg.Notifier
	if center == nil {
		center = notify.NewCenter(log)
	}
	files := cfg.Files
	if files == nil {
		files = cfg.Client
	}
	a := &App{
		client:     cfg.Client,
		files:      files,
		store:      cfg.Store,
		center:     center,
		log:        log,
		components: make(map[string]Component),
		terminals:  make(map[string]*terminal.Terminal),
	}
	cfg.Store.OnChange(a.fanOut)
	return a, nil
}

// Client returns the API client.
func (a *App) Client() *api.Client { return a.client }

// Files returns the file backend.
func (a *App) Files() api.Files { return a.files }

// Store returns the settings store.
func (a *App) Store() *settings.Store { return a.store }

// Notifications returns the notification center.
func (a *App) Notifications() *notify.Center { return a.center }

// Settings returns the current settings.
func (a *App) Settings() settings.Settings { return a.store.Settings() }

// Notify shows a notification.
func (a *App) Notify(n notify.Notification) uint64 { return a.center.Notify(n) }

// Register adds c to the settings fan-out and immediately pushes the
// current settings to it. It returns the id to unregister with.
func (a *App) Register(c Component) string {
	id := uuid.NewString()
	a.mu.Lock()
	a.components[id] = c
	a.order = append(a.order, id)
	a.mu.Unlock()

	c.UpdateSettings(a.store.Settings())
	return id
}

// Unregister removes a component. Unknown ids are ignored.
func (a *App) Unregister(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.components[id]; !ok {
		return
	}
	delete(a.components, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Components returns the number of registered components.
func (a *App) Components() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.components)
}

// Dispatch changes one setting, persists it and pushes the result to every
// registered component. Invalid values change nothing.
func (a *App) Dispatch(key, value string) (settings.Settings, error) {
	s, err := a.store.Set(key, value)
	if err != nil {
		return s, err
	}
	a.fanOut(s)
	return s, nil
}

func (a *App) fanOut(s settings.Settings) {
	a.mu.Lock()
	targets := make([]Component, 0, len(a.order))
	for _, id := range a.order {
		targets = append(targets, a.components[id])
	}
	a.mu.Unlock()
	for _, c := range targets {
		c.UpdateSettings(s)
	}
}

// WatchFiles returns the file-tree watcher, creating it on first use.
func (a *App) WatchFiles() *filewatch.Watcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fileWatcher == nil {
		a.fileWatcher = filewatch.New(filewatch.Config{
			URL:      a.client.SocketURL("files/monitor/"),
			Header:   a.client.Header(),
			Logger:   a.log,
			Notifier: a.center,
		})
	}
	return a.fileWatcher
}

// WatchStatus returns the status watcher, creating it from cfg on first
// use. The connection fields of cfg are filled in.
func (a *App) WatchStatus(cfg status.Config) *status.Watcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.statusWatcher == nil {
		cfg.URL = a.client.SocketURL("")
		cfg.Header = a.client.Header()
		if cfg.Logger == nil {
			cfg.Logger = a.log
		}
		cfg.Notifier = a.center
		a.statusWatcher = status.New(cfg)
	}
	return a.statusWatcher
}

// FollowLogs returns the process log follower, creating it from cfg on
// first use.
func (a *App) FollowLogs(cfg logs.Config) *logs.Follower {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.logFollower == nil {
		cfg.URL = a.client.SocketURL("logs/")
		cfg.Header = a.client.Header()
		if cfg.Logger == nil {
			cfg.Logger = a.log
		}
		a.logFollower = logs.New(cfg)
	}
	return a.logFollower
}

// Rename moves a file or directory. When the file watcher is running, an
// expanded directory stays expanded at its new path.
func (a *App) Rename(ctx context.Context, oldPath, newPath string) error {
	a.mu.Lock()
	fw := a.fileWatcher
	a.mu.Unlock()

	cancel := func() {}
	if fw != nil {
		cancel = fw.PrepareMove(oldPath, newPath)
	}
	if err := a.files.Rename(ctx, oldPath, newPath); err != nil {
		cancel()
		return err
	}
	return nil
}

// OpenTerminal creates a new terminal session. Each call opens another
// terminal; close it with CloseTerminal.
func (a *App) OpenTerminal(cfg terminal.Config) *terminal.Terminal {
	cfg.URL = a.client.SocketURL("terminal/")
	cfg.Header = a.client.Header()
	if cfg.Logger == nil {
		cfg.Logger = a.log
	}
	t := terminal.New(cfg)
	a.mu.Lock()
	a.terminals[t.ID] = t
	a.mu.Unlock()
	return t
}

// CloseTerminal stops a terminal opened with OpenTerminal.
func (a *App) CloseTerminal(id string) {
	a.mu.Lock()
	t, ok := a.terminals[id]
	delete(a.terminals, id)
	a.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// OpenDocument returns an unloaded document for path, registered for
// settings until it closes.
func (a *App) OpenDocument(path string, onStatus func(editor.Status)) *editor.Document {
	var id string
	doc := editor.New(editor.Config{
		Path:     path,
		Backend:  a.files,
		Notifier: a.center,
		Logger:   a.log,
		OnStatus: onStatus,
		OnClose:  func() { a.Unregister(id) },
	})
	id = a.Register(doc)
	return doc
}

// SQL returns the database console.
func (a *App) SQL() *sqlconsole.Console {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sql == nil {
		a.sql = sqlconsole.New(a.client, a.log)
	}
	return a.sql
}

// Stop closes every session the app created.
func (a *App) Stop() {
	a.mu.Lock()
	stoppers := []interface{ Stop() }{}
	if a.fileWatcher != nil {
		stoppers = append(stoppers, a.fileWatcher)
	}
	if a.statusWatcher != nil {
		stoppers = append(stoppers, a.statusWatcher)
	}
	if a.logFollower != nil {
		stoppers = append(stoppers, a.logFollower)
	}
	for id, t := range a.terminals {
		stoppers = append(stoppers, t)
		delete(a.terminals, id)
	}
	a.mu.Unlock()

	for _, s := range stoppers {
		s.Stop()
	}
	a.log.Debug("stopped sessions", zap.Int("count", len(stoppers)))
}
