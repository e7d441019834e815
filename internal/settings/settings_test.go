package settings

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetValidatesChoices(t *testing.T) {
	s := Defaults()

	_, err := s.Set(EditorFontSize, "48")
	assert.Error(t, err, "48px is not offered")
	_, err = s.Set(TerminalFontSize, "28")
	assert.Error(t, err)
	_, err = s.Set(EditorKeybinding, "vim")
	assert.Error(t, err)
	_, err = s.Set(ShowHidden, "maybe")
	assert.Error(t, err)
	_, err = s.Set("font", "12")
	assert.Error(t, err)

	s, err = s.Set(EditorFontSize, "52")
	require.NoError(t, err)
	assert.Equal(t, FontSize(52), s.EditorFontSize)

	s, err = s.Set(EditorKeybinding, "ace/keyboard/vim")
	require.NoError(t, err)
	s, err = s.Set(ShowHidden, "true")
	require.NoError(t, err)
	assert.True(t, s.ShowHidden)
	assert.NoError(t, s.Validate())
}

func TestLayoutThemeCarriesEditorTheme(t *testing.T) {
	s, err := Defaults().Set(LayoutTheme, "dark")
	require.NoError(t, err)
	assert.Equal(t, "ace/theme/monokai", s.EditorTheme)

	s, err = s.Set(LayoutTheme, "light")
	require.NoError(t, err)
	assert.Equal(t, "ace/theme/chrome", s.EditorTheme)

	s, err = s.Set(EditorTheme, "ace/theme/solarized_dark")
	require.NoError(t, err)
	s, err = s.Set(LayoutTheme, "dark")
	require.NoError(t, err)
	assert.Equal(t, "ace/theme/solarized_dark", s.EditorTheme, "a chosen theme is kept")
}

func TestFontSizeDecodesStrings(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"editor-font-size": "20", "terminal-font-size": 12}`), &s))
	assert.Equal(t, FontSize(20), s.EditorFontSize)
	assert.Equal(t, FontSize(12), s.TerminalFontSize)

	assert.Error(t, json.Unmarshal([]byte(`{"editor-font-size": "big"}`), &s))
}

func TestStorePersistsPerSite(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), st.Settings())

	_, err = st.Set(LayoutTheme, "dark")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "editor-settings-7.json"))

	again, err := Open(dir, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, "dark", again.Settings().LayoutTheme)
	assert.Equal(t, "ace/theme/monokai", again.Settings().EditorTheme)

	other, err := Open(dir, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), other.Settings())
}

func TestStoreOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "editor-settings-3.json"),
		[]byte(`{"show-hidden": true, "editor-font-size": "24", "layout-theme": "purple"}`), 0644))

	st, err := Open(dir, 3, nil)
	require.NoError(t, err)
	got := st.Settings()
	assert.True(t, got.ShowHidden)
	assert.Equal(t, FontSize(24), got.EditorFontSize)
	assert.Equal(t, "light", got.LayoutTheme, "invalid stored choice falls back")
	assert.True(t, got.EditorLiveAutocompletion, "missing keys keep defaults")
}

func TestStoreLayout(t *testing.T) {
	st, err := Open(t.TempDir(), 1, nil)
	require.NoError(t, err)

	var layout map[string]int
	ok, err := st.LoadLayout(&layout)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SaveLayout(map[string]int{"tree-width": 40}))
	ok, err = st.LoadLayout(&layout)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 40, layout["tree-width"])

	require.NoError(t, st.ResetLayout())
	require.NoError(t, st.ResetLayout(), "reset without a layout is fine")
	ok, err = st.LoadLayout(&layout)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreReload(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, 5, nil)
	require.NoError(t, err)

	var got []Settings
	st.OnChange(func(s Settings) { got = append(got, s) })

	changed, err := st.Reload()
	require.NoError(t, err)
	assert.False(t, changed)

	other, err := Open(dir, 5, nil)
	require.NoError(t, err)
	_, err = other.Set(TerminalFontSize, "20")
	require.NoError(t, err)

	changed, err = st.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, got, 1)
	assert.Equal(t, FontSize(20), got[0].TerminalFontSize)
}

func TestStoreWatch(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, 9, nil)
	require.NoError(t, err)

	changes := make(chan Settings, 4)
	st.OnChange(func(s Settings) { changes <- s })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- st.Watch(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	other, err := Open(dir, 9, nil)
	require.NoError(t, err)
	// The watcher may not be registered yet; keep writing until it reports.
	require.Eventually(t, func() bool {
		_, _ = other.Set(ShowHidden, "true")
		select {
		case s := <-changes:
			return s.ShowHidden
		default:
			return false
		}
	}, 5*time.Second, 200*time.Millisecond)
}
