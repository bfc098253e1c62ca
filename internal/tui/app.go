package tui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/xkit"
	"github.com/1broseidon/xkit/internal/watchcfg"
	"github.com/1broseidon/xkit/keymap"
	"github.com/1broseidon/xkit/xwin"
)

const (
	// maxScrollback caps the retained event lines.
	maxScrollback = 2000

	keymapTimeout   = 5 * time.Second
	monitorsTimeout = 10 * time.Second
)

type eventMsg struct{ ev xgb.Event }

type connErrMsg struct{ err error }

type keymapMsg struct {
	table *keymap.Table
	err   error
}

type monitorsMsg struct {
	monitors []xwin.Monitor
	err      error
}

// eventLine is one rendered scrollback entry. The event name is kept
// separately so the filter can match it without parsing the text.
type eventLine struct {
	name string
	text string
}

// model is the root bubbletea model for the event monitor.
type model struct {
	conn *xkit.Conn
	reg  *xwin.Registry

	events  <-chan xgb.Event
	errs    <-chan error
	dropped *atomic.Int64

	watching    string // selector summary for the status bar
	scope       string // hex window id when scoped, empty otherwise
	wantMapping bool   // MappingNotify was selected, not just ridden along

	table     *keymap.Table
	keymapErr error

	lines  []eventLine
	total  int
	shown  int
	missed int
	paused bool

	vp        viewport.Model
	filter    textinput.Model
	filtering bool
	follow    bool

	monitors       []xwin.Monitor
	monitorsErr    error
	monitorsLoaded bool
	showMonitors   bool

	fatal error

	width  int
	height int
	ready  bool
}

func newModel(conn *xkit.Conn, reg *xwin.Registry, events <-chan xgb.Event, errs <-chan error, dropped *atomic.Int64, watching, scope string, wantMapping bool) model {
	ti := textinput.New()
	ti.Placeholder = "event name"
	ti.Prompt = "/"
	ti.CharLimit = 32
	return model{
		conn:        conn,
		reg:         reg,
		events:      events,
		errs:        errs,
		dropped:     dropped,
		watching:    watching,
		scope:       scope,
		wantMapping: wantMapping,
		filter:      ti,
		follow:      true,
	}
}

// waitForEvent blocks until the filter delivers another event or the
// connection dies. Update re-issues it after every delivery.
func waitForEvent(events <-chan xgb.Event, errs <-chan error) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-events:
			return eventMsg{ev: ev}
		case err := <-errs:
			return connErrMsg{err: err}
		}
	}
}

func fetchKeymap(conn *xkit.Conn) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), keymapTimeout)
		defer cancel()
		table, err := keymap.Fetch(ctx, conn)
		return keymapMsg{table: table, err: err}
	}
}

func fetchMonitors(reg *xwin.Registry) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), monitorsTimeout)
		defer cancel()
		monitors, err := reg.Monitors(ctx)
		return monitorsMsg{monitors: monitors, err: err}
	}
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events, m.errs), fetchKeymap(m.conn))
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m.handleEvent(msg.ev)

	case connErrMsg:
		m.fatal = msg.err
		return m, tea.Quit

	case keymapMsg:
		m.table, m.keymapErr = msg.table, msg.err
		return m, nil

	case monitorsMsg:
		m.monitors, m.monitorsErr = msg.monitors, msg.err
		m.monitorsLoaded = true
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.ready {
			m.vp = viewport.New(m.width, m.contentHeight())
			m.ready = true
		}
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleEvent(ev xgb.Event) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{waitForEvent(m.events, m.errs)}

	code := xkit.EventCode(ev)
	display := true
	if mn, ok := ev.(xproto.MappingNotifyEvent); ok {
		if mn.Request != xproto.MappingPointer {
			m.table = nil
			cmds = append(cmds, fetchKeymap(m.conn))
		}
		display = m.wantMapping
	}

	if display {
		m.total++
		if m.paused {
			m.missed++
		} else {
			m.appendLine(m.formatLine(ev, code))
		}
	}
	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			m.filtering = false
			m.filter.Blur()
			m.layout()
			return m, nil
		case "esc":
			m.filtering = false
			m.filter.Blur()
			m.filter.Reset()
			m.layout()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.refreshViewport()
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "p":
		m.paused = !m.paused
		if !m.paused {
			m.missed = 0
		}
		return m, nil

	case "c":
		m.lines = nil
		m.missed = 0
		m.refreshViewport()
		return m, nil

	case "/":
		m.filtering = true
		m.layout()
		return m, m.filter.Focus()

	case "m":
		if m.showMonitors {
			m.showMonitors = false
			return m, nil
		}
		m.showMonitors = true
		m.monitorsLoaded = false
		m.monitors, m.monitorsErr = nil, nil
		return m, fetchMonitors(m.reg)

	case "esc":
		if m.showMonitors {
			m.showMonitors = false
			return m, nil
		}
		if m.filter.Value() != "" {
			m.filter.Reset()
			m.layout()
		}
		return m, nil

	case "g", "home":
		m.vp.GotoTop()
		m.follow = false
		return m, nil

	case "G", "end":
		m.vp.GotoBottom()
		m.follow = true
		return m, nil
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	m.follow = m.vp.AtBottom()
	return m, cmd
}

// contentHeight returns the height left for the scrollback between the
// status bar and the help bar.
func (m model) contentHeight() int {
	h := m.height - 2
	if m.filterVisible() {
		h--
	}
	if h < 1 {
		h = 1
	}
	return h
}

func (m model) filterVisible() bool {
	return m.filtering || m.filter.Value() != ""
}

// layout resizes the viewport to the space the bars leave over and
// rebuilds its content.
func (m *model) layout() {
	if !m.ready {
		return
	}
	m.vp.Width = m.width
	m.vp.Height = m.contentHeight()
	m.refreshViewport()
}

func (m *model) appendLine(line eventLine) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxScrollback {
		m.lines = append(m.lines[:0], m.lines[len(m.lines)-maxScrollback:]...)
	}
	m.refreshViewport()
}

// refreshViewport rebuilds the viewport content from the scrollback with
// the name filter applied. Follow mode keeps the view pinned to the
// newest line.
func (m *model) refreshViewport() {
	if !m.ready {
		return
	}
	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	lines := make([]string, 0, len(m.lines))
	for _, l := range m.lines {
		if needle != "" && !strings.Contains(strings.ToLower(l.name), needle) {
			continue
		}
		lines = append(lines, l.text)
	}
	m.shown = len(lines)
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.vp.GotoBottom()
	}
}

// formatLine renders one event for the scrollback. Key events get their
// keysym appended when the mapping table is available.
func (m *model) formatLine(ev xgb.Event, code byte) eventLine {
	name := watchcfg.EventName(code)
	text := timeStyle.Render(time.Now().Format("15:04:05.000")) + " " + strings.TrimSpace(ev.String())
	if kc, state, ok := keyState(ev); ok && m.table != nil {
		if sym := m.table.Resolve(kc, state); sym != keymap.NoSymbol {
			text += " " + symStyle.Render("sym="+symLabel(sym))
		}
	}
	return eventLine{name: name, text: text}
}

func keyState(ev xgb.Event) (xproto.Keycode, uint16, bool) {
	switch e := ev.(type) {
	case xproto.KeyPressEvent:
		return e.Detail, e.State, true
	case xproto.KeyReleaseEvent:
		return e.Detail, e.State, true
	}
	return 0, 0, false
}

func symLabel(sym xproto.Keysym) string {
	if name := keybind.KeysymToStr(sym); name != "" {
		return name
	}
	return fmt.Sprintf("0x%04x", uint32(sym))
}

// View implements tea.Model.
func (m model) View() string {
	if !m.ready {
		return ""
	}

	status := m.renderStatus()
	help := renderHelpBar(m.filtering, m.width)

	content := m.vp.View()
	if m.showMonitors {
		content = renderMonitorsOverlay(m.monitors, m.monitorsErr, m.monitorsLoaded, m.width, m.vp.Height)
	}

	parts := []string{status}
	if m.filterVisible() {
		parts = append(parts, renderFilterBar(m.filter, m.width))
	}
	parts = append(parts, content, help)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
