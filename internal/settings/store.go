package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce collapses the burst of events a single write produces.
const reloadDebounce = 100 * time.Millisecond

// DefaultDir returns the per-user state directory.
func DefaultDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(configDir, "director-console"), nil
}

// Store persists one site's settings and layout as
// editor-settings-<site>.json and editor-layout-<site>.json.
type Store struct {
	dir    string
	siteID int
	log    *zap.Logger

	mu      sync.Mutex
	current Settings
	subs    []func(Settings)
}

// Open loads the stored settings for siteID, creating dir if needed.
// Stored values override the defaults; a value that is no longer a valid
// choice falls back to its default.
func Open(dir string, siteID int, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	s := &Store{dir: dir, siteID: siteID, log: log.Named("settings")}
	current, err := s.read()
	if err != nil {
		return nil, err
	}
	s.current = current
	return s, nil
}

// SettingsPath is the settings file.
func (s *Store) SettingsPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("editor-settings-%d.json", s.siteID))
}

// LayoutPath is the layout file.
func (s *Store) LayoutPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("editor-layout-%d.json", s.siteID))
}

func (s *Store) read() (Settings, error) {
	settings := Defaults()
	data, err := os.ReadFile(s.SettingsPath())
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		s.log.Warn("ignoring unreadable settings file", zap.String("path", s.SettingsPath()), zap.Error(err))
		return Defaults(), nil
	}

	defaults := Defaults()
	for _, key := range Keys() {
		v, _ := settings.Get(key)
		allowed := choices[key]
		if allowed == nil || contains(allowed, v) {
			continue
		}
		s.log.Warn("stored setting is not a valid choice", zap.String("key", key), zap.String("value", v))
		d, _ := defaults.Get(key)
		settings, _ = settings.Set(key, d)
	}
	return settings, nil
}

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set changes one setting and writes the result.
func (s *Store) Set(key, value string) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.current.Set(key, value)
	if err != nil {
		return s.current, err
	}
	if err := writeJSON(s.SettingsPath(), next); err != nil {
		return s.current, err
	}
	s.current = next
	s.log.Debug("setting changed", zap.String("key", key), zap.String("value", value))
	return next, nil
}

// OnChange registers fn to run when another console instance rewrites the
// settings file. It is not called for changes made through Set.
func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Reload re-reads the settings file and notifies subscribers if it
// differs from the current settings.
func (s *Store) Reload() (bool, error) {
	next, err := s.read()
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	if next == s.current {
		s.mu.Unlock()
		return false, nil
	}
	s.current = next
	subs := append([]func(Settings){}, s.subs...)
	s.mu.Unlock()

	s.log.Info("settings changed on disk, reloading")
	for _, fn := range subs {
		fn(next)
	}
	return true, nil
}

// Watch reloads the settings whenever the file changes, until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	target := s.SettingsPath()
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if ctx.Err() != nil {
					return
				}
				if _, err := s.Reload(); err != nil {
					s.log.Warn("failed to reload settings", zap.Error(err))
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("settings watcher error", zap.Error(err))
		}
	}
}

// SaveLayout stores v as the layout.
func (s *Store) SaveLayout(v any) error {
	return writeJSON(s.LayoutPath(), v)
}

// LoadLayout decodes the stored layout into v. It reports false when no
// layout is stored.
func (s *Store) LoadLayout(v any) (bool, error) {
	data, err := os.ReadFile(s.LayoutPath())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read layout file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("invalid JSON in layout file: %w", err)
	}
	return true, nil
}

// ResetLayout removes the stored layout.
func (s *Store) ResetLayout() error {
	if err := os.Remove(s.LayoutPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove layout file: %w", err)
	}
	return nil
}

// writeJSON replaces path through a temporary file so readers never see a
// partial write.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to chmod %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
