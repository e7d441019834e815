// Package settings holds the console's UI preferences and their per-site
// persistence.
package settings

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Setting keys.
const (
	ShowHidden               = "show-hidden"
	LayoutTheme              = "layout-theme"
	EditorTheme              = "editor-theme"
	EditorKeybinding         = "editor-keybinding"
	EditorFontSize           = "editor-font-size"
	EditorLiveAutocompletion = "editor-live-autocompletion"
	TerminalFontSize         = "terminal-font-size"
)

const (
	themeChrome  = "ace/theme/chrome"
	themeMonokai = "ace/theme/monokai"
)

// FontSize is a pixel size. Older consoles stored it as a string, so it
// decodes from either a JSON number or a JSON string.
type FontSize int

func (f *FontSize) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FontSize(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("font size must be a number or a string: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid font size %q", s)
	}
	*f = FontSize(n)
	return nil
}

// Settings is the full preference set.
type Settings struct {
	ShowHidden               bool     `json:"show-hidden"`
	LayoutTheme              string   `json:"layout-theme"`
	EditorTheme              string   `json:"editor-theme"`
	EditorKeybinding         string   `json:"editor-keybinding"`
	EditorFontSize           FontSize `json:"editor-font-size"`
	EditorLiveAutocompletion bool     `json:"editor-live-autocompletion"`
	TerminalFontSize         FontSize `json:"terminal-font-size"`
}

// Defaults returns the settings of a console that has never stored any.
func Defaults() Settings {
	return Settings{
		ShowHidden:               false,
		LayoutTheme:              "light",
		EditorTheme:              themeChrome,
		EditorKeybinding:         "",
		EditorFontSize:           16,
		EditorLiveAutocompletion: true,
		TerminalFontSize:         16,
	}
}

// Dark reports whether the dark layout theme is selected.
func (s Settings) Dark() bool { return s.LayoutTheme == "dark" }

var choices = map[string][]string{
	LayoutTheme: {"light", "dark"},
	EditorTheme: {
		themeChrome,
		"ace/theme/clouds",
		themeMonokai,
		"ace/theme/solarized_light",
		"ace/theme/solarized_dark",
	},
	EditorKeybinding: {"", "ace/keyboard/vim", "ace/keyboard/emacs"},
	EditorFontSize:   sizes(8, 12, 16, 20, 24, 28, 32, 36, 40, 44, 52, 56, 60, 64, 68, 72, 76, 80),
	TerminalFontSize: sizes(8, 12, 16, 20, 24),
}

func sizes(n ...int) []string {
	out := make([]string, len(n))
	for i, v := range n {
		out[i] = strconv.Itoa(v)
	}
	return out
}

// Keys returns every setting key in a stable order.
func Keys() []string {
	return []string{
		LayoutTheme,
		EditorTheme,
		EditorKeybinding,
		EditorFontSize,
		TerminalFontSize,
		EditorLiveAutocompletion,
		ShowHidden,
	}
}

// Choices returns the allowed values of a select setting, or nil for a
// boolean one.
func Choices(key string) []string {
	return append([]string(nil), choices[key]...)
}

// Get returns a setting formatted as a string.
func (s Settings) Get(key string) (string, error) {
	switch key {
	case ShowHidden:
		return strconv.FormatBool(s.ShowHidden), nil
	case LayoutTheme:
		return s.LayoutTheme, nil
	case EditorTheme:
		return s.EditorTheme, nil
	case EditorKeybinding:
		return s.EditorKeybinding, nil
	case EditorFontSize:
		return strconv.Itoa(int(s.EditorFontSize)), nil
	case EditorLiveAutocompletion:
		return strconv.FormatBool(s.EditorLiveAutocompletion), nil
	case TerminalFontSize:
		return strconv.Itoa(int(s.TerminalFontSize)), nil
	}
	return "", fmt.Errorf("unknown setting %q", key)
}

// Set returns s with key changed to value. Select values must be one of
// their choices. Changing the layout theme carries the editor theme along
// when it is still the default for the old theme.
func (s Settings) Set(key, value string) (Settings, error) {
	if allowed, ok := choices[key]; ok {
		if !contains(allowed, value) {
			return s, fmt.Errorf("invalid value %q for %s (choices: %s)", value, key, strings.Join(quoted(allowed), ", "))
		}
	}

	switch key {
	case ShowHidden, EditorLiveAutocompletion:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return s, fmt.Errorf("invalid value %q for %s: want true or false", value, key)
		}
		if key == ShowHidden {
			s.ShowHidden = b
		} else {
			s.EditorLiveAutocompletion = b
		}
	case LayoutTheme:
		s.LayoutTheme = value
		if s.Dark() && s.EditorTheme == themeChrome {
			s.EditorTheme = themeMonokai
		} else if !s.Dark() && s.EditorTheme == themeMonokai {
			s.EditorTheme = themeChrome
		}
	case EditorTheme:
		s.EditorTheme = value
	case EditorKeybinding:
		s.EditorKeybinding = value
	case EditorFontSize, TerminalFontSize:
		n, _ := strconv.Atoi(value)
		if key == EditorFontSize {
			s.EditorFontSize = FontSize(n)
		} else {
			s.TerminalFontSize = FontSize(n)
		}
	default:
		return s, fmt.Errorf("unknown setting %q", key)
	}
	return s, nil
}

// Validate checks every select setting against its choices.
func (s Settings) Validate() error {
	keys := make([]string, 0, len(choices))
	for k := range choices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := s.Get(k)
		if !contains(choices[k], v) {
			return fmt.Errorf("invalid value %q for %s", v, k)
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, c := range list {
		if c == v {
			return true
		}
	}
	return false
}

func quoted(list []string) []string {
	out := make([]string, len(list))
	for i, v := range list {
		out[i] = strconv.Quote(v)
	}
	return out
}
