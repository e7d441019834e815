// Package tui is the terminal UI: the live file tree, the process log and a
// status line.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"director-console/internal/filetree"
	"director-console/internal/notify"
	"director-console/internal/pathutil"
	"director-console/internal/session"
	"director-console/internal/settings"
)

const (
	defaultTreeWidth = 40
	minTreeWidth     = 20
	layoutHideAfter  = 5 * time.Second
	tickInterval     = time.Second
)

// FileView is the file tree source. *filewatch.Watcher satisfies it.
type FileView interface {
	View(fn func(t *filetree.Tree))
	Toggle(path string)
	State() session.State
}

// LogView is the process log source. *logs.Follower satisfies it.
type LogView interface {
	Text() string
	State() session.State
}

// Dispatcher applies settings changes. *app.App satisfies it.
type Dispatcher interface {
	Dispatch(key, value string) (settings.Settings, error)
	Settings() settings.Settings
}

// LayoutStore persists the pane layout. *settings.Store satisfies it.
type LayoutStore interface {
	SaveLayout(v any) error
	LoadLayout(v any) (bool, error)
}

// Renamer moves files on the site. *app.App satisfies it.
type Renamer interface {
	Rename(ctx context.Context, oldPath, newPath string) error
}

// Layout is the persisted pane arrangement.
type Layout struct {
	TreeWidth int  `json:"tree-width"`
	ShowLogs  bool `json:"show-logs"`
}

// Messages sent into the program from session callbacks.
type (
	// RefreshMsg reports a tree or session change.
	RefreshMsg struct{}
	// LogsMsg reports new log output.
	LogsMsg struct{}
	// SettingsMsg carries settings changed elsewhere.
	SettingsMsg struct{ Settings settings.Settings }
	// NotifyMsg carries a new notification.
	NotifyMsg struct{ Notification notify.Notification }
)

type tickMsg time.Time

type renamedMsg struct {
	to  string
	err error
}

// Options configures a Model.
type Options struct {
	Title         string
	Files         FileView
	Logs          LogView
	App           Dispatcher
	Notifications *notify.Center
	Layout        LayoutStore
	Renamer       Renamer
}

type row struct {
	path  string
	node  bool
	depth int
	name  string
	kind  filetree.Kind
	exec  bool
	open  bool
	link  string
	err   string
}

// Model is the bubbletea model of the console.
type Model struct {
	opts     Options
	settings settings.Settings
	styles   styles
	layout   Layout

	rows     []row
	cursor   int
	offset   int
	selected string

	renaming   bool
	renameFrom string
	input      textinput.Model

	logs   viewport.Model
	width  int
	height int
	ready  bool
	err    error
}

// New builds the model and restores the stored layout.
func New(opts Options) Model {
	m := Model{
		opts:   opts,
		layout: Layout{TreeWidth: defaultTreeWidth, ShowLogs: opts.Logs != nil},
	}
	if opts.App != nil {
		m.settings = opts.App.Settings()
	} else {
		m.settings = settings.Defaults()
	}
	m.styles = newStyles(m.settings.Dark())

	if opts.Layout != nil {
		var stored Layout
		if ok, err := opts.Layout.LoadLayout(&stored); err == nil && ok {
			if stored.TreeWidth >= minTreeWidth {
				m.layout.TreeWidth = stored.TreeWidth
			}
			m.layout.ShowLogs = stored.ShowLogs && opts.Logs != nil
			if opts.Notifications != nil {
				opts.Notifications.Notify(notify.Notification{
					Level:     notify.Info,
					Message:   "Your layout has been restored from your last session.",
					HideAfter: layoutHideAfter,
				})
			}
		}
	}
	m.logs = viewport.New(0, 0)
	m.rebuild()
	return m
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the notification expiry tick.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles input and session messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.resize()
	case RefreshMsg:
		m.rebuild()
	case LogsMsg:
		m.refreshLogs()
	case SettingsMsg:
		m.applySettings(msg.Settings)
	case NotifyMsg:
		// The status line reads the center; redraw only.
	case tickMsg:
		return m, tick()
	case renamedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.selected = msg.to
		}
		m.rebuild()
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.renaming {
		return m.handleRenameKey(msg)
	}
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		if r, ok := m.current(); ok && r.node && m.opts.Renamer != nil {
			m.renaming = true
			m.renameFrom = r.path
			m.input = textinput.New()
			m.input.Prompt = "rename to: "
			m.input.SetValue(r.path)
			return m, m.input.Focus()
		}
	case "up", "k":
		m.move(-1)
	case "down", "j":
		m.move(1)
	case "enter", " ":
		if r, ok := m.current(); ok && r.node && r.kind == filetree.KindDir && m.opts.Files != nil {
			m.opts.Files.Toggle(r.path)
			m.rebuild()
		}
	case "h":
		if m.opts.App != nil {
			s, err := m.opts.App.Dispatch(settings.ShowHidden, strconv.FormatBool(!m.settings.ShowHidden))
			m.err = err
			if err == nil {
				m.applySettings(s)
			}
		}
	case "l":
		if m.opts.Logs != nil {
			m.layout.ShowLogs = !m.layout.ShowLogs
			m.saveLayout()
			m.resize()
		}
	case "<":
		if m.layout.TreeWidth-4 >= minTreeWidth {
			m.layout.TreeWidth -= 4
			m.saveLayout()
			m.resize()
		}
	case ">":
		if m.width == 0 || m.layout.TreeWidth+4 <= m.width-minTreeWidth {
			m.layout.TreeWidth += 4
			m.saveLayout()
			m.resize()
		}
	}
	return m, nil
}

func (m Model) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.renaming = false
		return m, nil
	case "enter":
		m.renaming = false
		from := m.renameFrom
		to := pathutil.JoinPaths(pathutil.Segments(m.input.Value())...)
		if to == "" || to == from {
			return m, nil
		}
		renamer := m.opts.Renamer
		return m, func() tea.Msg {
			return renamedMsg{to: to, err: renamer.Rename(context.Background(), from, to)}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) saveLayout() {
	if m.opts.Layout != nil {
		m.err = m.opts.Layout.SaveLayout(m.layout)
	}
}

func (m *Model) applySettings(s settings.Settings) {
	m.settings = s
	m.styles = newStyles(s.Dark())
	m.rebuild()
}

// rebuild projects the tree into rows, keeping the selection on the same
// path when it is still shown.
func (m *Model) rebuild() {
	rows := make([]row, 0, len(m.rows))
	if m.opts.Files != nil {
		m.opts.Files.View(func(t *filetree.Tree) {
			t.Walk(m.settings.ShowHidden, func(n *filetree.Node, depth int) {
				r := row{
					path:  n.Path(),
					node:  true,
					depth: depth,
					name:  n.Name,
					kind:  n.Kind,
					exec:  n.Kind == filetree.KindFile && n.Executable(),
					open:  n.Expanded,
					link:  n.Target,
				}
				rows = append(rows, r)
				if n.Err != "" {
					rows = append(rows, row{path: r.path, depth: depth + 1, err: n.Err})
				}
			})
		})
	}
	m.rows = rows

	m.cursor = clamp(m.cursor, 0, len(m.rows)-1)
	for i, r := range m.rows {
		if r.node && r.path == m.selected {
			m.cursor = i
			break
		}
	}
	if r, ok := m.current(); ok {
		m.selected = r.path
	}
	m.scroll()
}

func (m *Model) move(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, len(m.rows)-1)
	if r, ok := m.current(); ok {
		m.selected = r.path
	}
	m.scroll()
}

func (m Model) current() (row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

// Selected returns the path under the cursor.
func (m Model) Selected() string { return m.selected }

func (m *Model) treeHeight() int {
	// Borders, pane title and status line.
	h := m.height - 4
	if h < 1 {
		h = 1
	}
	return h
}

func (m *Model) scroll() {
	h := m.treeHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m *Model) resize() {
	w := m.width - m.layout.TreeWidth - 4
	if w < 0 {
		w = 0
	}
	m.logs.Width = w
	m.logs.Height = m.treeHeight()
	m.refreshLogs()
	m.scroll()
}

func (m *Model) refreshLogs() {
	if m.opts.Logs == nil {
		return
	}
	atBottom := m.logs.AtBottom()
	m.logs.SetContent(m.opts.Logs.Text())
	if atBottom {
		m.logs.GotoBottom()
	}
}

func (m Model) renderRow(r row) string {
	indent := strings.Repeat("  ", r.depth)
	if !r.node {
		return indent + m.styles.errMark.Render("⚠ "+r.err)
	}
	switch {
	case r.kind == filetree.KindDir:
		marker := "▸ "
		if r.open {
			marker = "▾ "
		}
		return indent + m.styles.dir.Render(marker+r.name+"/")
	case r.kind == filetree.KindLink:
		label := r.name
		if r.link != "" {
			label += " → " + r.link
		}
		return indent + "  " + m.styles.link.Render(label)
	case r.exec:
		return indent + "  " + m.styles.exec.Render(r.name+"*")
	default:
		return indent + "  " + m.styles.file.Render(r.name)
	}
}

func (m Model) treeView() string {
	h := m.treeHeight()
	var b strings.Builder
	b.WriteString(m.styles.title.Render("Files"))
	end := m.offset + h
	if end > len(m.rows) {
		end = len(m.rows)
	}
	for i := m.offset; i < end; i++ {
		line := m.renderRow(m.rows[i])
		if i == m.cursor {
			line = m.styles.selected.Render(line)
		}
		b.WriteString("\n")
		b.WriteString(line)
	}
	if len(m.rows) == 0 {
		b.WriteString("\n")
		b.WriteString(m.styles.title.Render("(waiting for files)"))
	}
	return b.String()
}

func (m Model) statusLine() string {
	if m.renaming {
		return m.styles.status.Width(max(m.width, 1)).Render(m.input.View())
	}
	parts := []string{}
	if m.opts.Title != "" {
		parts = append(parts, m.opts.Title)
	}
	if m.opts.Files != nil {
		parts = append(parts, "files: "+m.opts.Files.State().String())
	}
	if m.opts.Logs != nil {
		parts = append(parts, "logs: "+m.opts.Logs.State().String())
	}
	if m.settings.ShowHidden {
		parts = append(parts, "hidden shown")
	}
	line := strings.Join(parts, " | ")
	if m.err != nil {
		line += " | " + m.styles.note["error"].Render(m.err.Error())
	} else if m.opts.Notifications != nil {
		if n, ok := m.opts.Notifications.Latest(); ok {
			line += " | " + m.styles.note[n.Level.String()].Render(n.Message)
		}
	}
	return m.styles.status.Width(max(m.width, 1)).Render(line)
}

// View renders the panes and the status line.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	tree := m.styles.pane.
		Width(m.layout.TreeWidth).
		Height(m.treeHeight() + 1).
		Render(m.treeView())
	body := tree
	if m.layout.ShowLogs && m.opts.Logs != nil && m.logs.Width > 0 {
		logs := m.styles.pane.
			Width(m.logs.Width).
			Height(m.treeHeight() + 1).
			Render(m.styles.title.Render("Process Log") + "\n" + m.logs.View())
		body = lipgloss.JoinHorizontal(lipgloss.Top, tree, logs)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusLine())
}

// Lines returns the tree rows without styling.
func (m Model) Lines() []string {
	out := make([]string, len(m.rows))
	plain := m
	plain.styles = plainStyles()
	for i, r := range m.rows {
		out[i] = plain.renderRow(r)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Header formats a title for the status line.
func Header(siteID int, url string) string {
	return fmt.Sprintf("site %d @ %s", siteID, url)
}
