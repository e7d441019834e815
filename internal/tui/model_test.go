package tui

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"director-console/internal/filetree"
	"director-console/internal/notify"
	"director-console/internal/session"
	"director-console/internal/settings"
)

type fakeFiles struct {
	tree    *filetree.Tree
	toggled []string
}

func (f *fakeFiles) View(fn func(t *filetree.Tree)) { fn(f.tree) }

func (f *fakeFiles) Toggle(path string) {
	f.toggled = append(f.toggled, path)
	f.tree.Toggle(path)
}

func (f *fakeFiles) State() session.State { return session.Synced }

type fakeLogs struct{ text string }

func (f *fakeLogs) Text() string         { return f.text }
func (f *fakeLogs) State() session.State { return session.Open }

type fakeApp struct {
	s        settings.Settings
	dispatch []string
}

func (f *fakeApp) Dispatch(key, value string) (settings.Settings, error) {
	f.dispatch = append(f.dispatch, key+"="+value)
	s, err := f.s.Set(key, value)
	if err == nil {
		f.s = s
	}
	return s, err
}

func (f *fakeApp) Settings() settings.Settings { return f.s }

type memLayout struct{ data []byte }

func (m *memLayout) SaveLayout(v any) error {
	data, err := json.Marshal(v)
	m.data = data
	return err
}

func (m *memLayout) LoadLayout(v any) (bool, error) {
	if m.data == nil {
		return false, nil
	}
	return true, json.Unmarshal(m.data, v)
}

func newFiles() *fakeFiles {
	t := filetree.New(nil)
	for _, info := range []filetree.Info{
		{Path: "public", Kind: filetree.KindDir},
		{Path: "run.sh", Kind: filetree.KindFile, Mode: 0o755},
		{Path: ".bashrc", Kind: filetree.KindFile, Mode: 0o644},
		{Path: "current", Kind: filetree.KindLink, Target: "public"},
		{Path: "private", Kind: filetree.KindDir},
	} {
		t.ApplyCreate(info)
	}
	return &fakeFiles{tree: t}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestTreeProjection(t *testing.T) {
	files := newFiles()
	m := New(Options{Files: files, App: &fakeApp{s: settings.Defaults()}})

	assert.Equal(t, []string{
		"▸ private/",
		"▸ public/",
		"  current → public",
		"  run.sh*",
	}, m.Lines())
	assert.Equal(t, "private", m.Selected())
}

func TestToggleAndNavigate(t *testing.T) {
	files := newFiles()
	m := New(Options{Files: files, App: &fakeApp{s: settings.Defaults()}})

	m = press(t, m, "j", "enter")
	assert.Equal(t, []string{"public"}, files.toggled)
	files.tree.ApplyCreate(filetree.Info{Path: "public/index.html", Kind: filetree.KindFile})
	next, _ := m.Update(RefreshMsg{})
	m = next.(Model)

	assert.Equal(t, []string{
		"▸ private/",
		"▾ public/",
		"    index.html",
		"  current → public",
		"  run.sh*",
	}, m.Lines())
	assert.Equal(t, "public", m.Selected(), "selection follows the path across refreshes")

	m = press(t, m, "down", "enter")
	assert.Equal(t, []string{"public"}, files.toggled, "files do not toggle")
	m = press(t, m, "up", "up", "up", "k")
	assert.Equal(t, "private", m.Selected())
}

func TestErrorMarker(t *testing.T) {
	files := newFiles()
	files.tree.Toggle("private")
	files.tree.ApplyError("private", "")
	m := New(Options{Files: files})

	assert.Equal(t, []string{
		"▾ private/",
		"  ⚠ Error opening directory",
		"▸ public/",
		"  current → public",
		"  run.sh*",
	}, m.Lines())
}

func TestHiddenToggleDispatches(t *testing.T) {
	files := newFiles()
	a := &fakeApp{s: settings.Defaults()}
	m := New(Options{Files: files, App: a})
	require.Len(t, m.Lines(), 4)

	m = press(t, m, "h")
	assert.Equal(t, []string{"show-hidden=true"}, a.dispatch)
	assert.Len(t, m.Lines(), 5)
	assert.Contains(t, m.Lines(), "  .bashrc")

	s, err := a.s.Set(settings.ShowHidden, "false")
	require.NoError(t, err)
	next, _ := m.Update(SettingsMsg{Settings: s})
	m = next.(Model)
	assert.Len(t, m.Lines(), 4, "settings pushed from elsewhere apply")
}

func TestLayoutPersisted(t *testing.T) {
	store := &memLayout{}
	center := notify.NewCenter(nil)
	m := New(Options{Files: newFiles(), Logs: &fakeLogs{}, Layout: store, Notifications: center})
	_, ok := center.Latest()
	assert.False(t, ok, "nothing restored yet")

	m = press(t, m, ">", ">", "l")
	var saved Layout
	require.NoError(t, json.Unmarshal(store.data, &saved))
	assert.Equal(t, Layout{TreeWidth: defaultTreeWidth + 8, ShowLogs: false}, saved)

	m = New(Options{Files: newFiles(), Logs: &fakeLogs{}, Layout: store, Notifications: center})
	assert.Equal(t, defaultTreeWidth+8, m.layout.TreeWidth)
	assert.False(t, m.layout.ShowLogs)
	n, ok := center.Latest()
	require.True(t, ok)
	assert.Contains(t, n.Message, "restored")
}

func TestViewRendersPanes(t *testing.T) {
	logs := &fakeLogs{text: "Starting server on :8080\n"}
	center := notify.NewCenter(nil)
	m := New(Options{Title: Header(7, "https://director.example.com"), Files: newFiles(), Logs: logs, Notifications: center})
	assert.Equal(t, "loading...", m.View())

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m = next.(Model)
	center.Notify(notify.Notification{Level: notify.Error, Message: "Error opening directory"})
	next, _ = m.Update(LogsMsg{})
	m = next.(Model)

	view := m.View()
	for _, want := range []string{"Files", "public/", "Process Log", "Starting server", "site 7", "files: synced", "Error opening directory"} {
		assert.True(t, strings.Contains(view, want), "view missing %q", want)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

type fakeRenamer struct {
	moves []string
	err   error
}

func (f *fakeRenamer) Rename(_ context.Context, oldPath, newPath string) error {
	f.moves = append(f.moves, oldPath+" -> "+newPath)
	return f.err
}

func TestRenameSelected(t *testing.T) {
	renamer := &fakeRenamer{}
	m := New(Options{Files: newFiles(), Renamer: renamer})

	m = press(t, m, "r")
	require.True(t, m.renaming)
	assert.Equal(t, "private", m.input.Value())
	m = press(t, m, "2")
	assert.Equal(t, "private2", m.input.Value())

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.False(t, m.renaming)
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, []string{"private -> private2"}, renamer.moves)
	assert.NoError(t, m.err)

	renamer.err = errors.New("Permission denied")
	m = press(t, m, "r")
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	assert.False(t, m.renaming)
	assert.Len(t, renamer.moves, 1, "escape cancels")

	m = press(t, m, "r", "x")
	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.EqualError(t, m.err, "Permission denied")
}
