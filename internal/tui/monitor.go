package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/ssdp/internal/discovery"
	"github.com/muurk/ssdp/internal/protocol"
	"github.com/muurk/ssdp/internal/ui"
)

// DefaultRefresh is how often the table is rebuilt from the source.
const DefaultRefresh = time.Second

// Source supplies the rows of the monitor table.
type Source interface {
	Entries() []discovery.Entry
}

// Options configures the monitor.
type Options struct {
	Target  string // Search target shown in the header
	Source  Source
	Rescan  func() // Bound to 'r'; nil disables the key
	Now     func() time.Time
	Refresh time.Duration
}

type tickMsg time.Time

// EventMsg carries one rendered message line into the event log.
type EventMsg struct {
	Sent bool
	Line string
}

// monitorKeyMap defines key bindings for the monitor
type monitorKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Rescan key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Rescan, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Rescan, k.Quit},
	}
}

// Model is the live view of a discovery cache.
type Model struct {
	opts Options

	Table  table.Model
	Help   help.Model
	Keys   monitorKeyMap
	Events []string
	Status string

	Width    int
	Height   int
	quitting bool
}

// NewModel creates the monitor model
func NewModel(opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Refresh <= 0 {
		opts.Refresh = DefaultRefresh
	}
	if opts.Target == "" {
		opts.Target = protocol.SearchAll
	}

	t := table.New(
		table.WithColumns(columns(MinTerminalWidth)),
		table.WithFocused(true),
		table.WithHeight(MinTableHeight),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ui.MutedColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(ui.TextColor).
		Background(ui.PrimaryColor)
	t.SetStyles(styles)

	keys := monitorKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan"),
			key.WithDisabled(),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
	if opts.Rescan != nil {
		keys.Rescan.SetEnabled(true)
	}

	m := Model{
		opts:   opts,
		Table:  t,
		Help:   help.New(),
		Keys:   keys,
		Status: "Waiting for announcements...",
	}
	m.refresh()
	return m
}

// Init starts the refresh ticker
func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.resize()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, m.tick()

	case EventMsg:
		m.Events = append(m.Events, msg.Line)
		if len(m.Events) > EventLogLines {
			m.Events = m.Events[len(m.Events)-EventLogLines:]
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.Keys.Rescan):
			m.Status = fmt.Sprintf("Searching for %s...", m.opts.Target)
			return m, rescan(m.opts.Rescan)
		}
	}

	var cmd tea.Cmd
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

// rescan runs fn off the event loop. The search is delivered to Listener,
// which sends back into the program.
func rescan(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

// refresh rebuilds the table rows from the source.
func (m *Model) refresh() {
	if m.opts.Source == nil {
		return
	}

	now := m.opts.Now()
	entries := m.opts.Source.Entries()

	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		rows[i] = table.Row{e.USN, e.Type, e.Location, ui.FormatTTL(e.TTL(now))}
	}
	m.Table.SetRows(rows)

	if len(entries) > 0 || !strings.HasPrefix(m.Status, "Waiting") {
		m.Status = fmt.Sprintf("%d entries, updated %s", len(entries), now.Format("15:04:05"))
	}
}

// resize fits the table to the window.
func (m *Model) resize() {
	width := m.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	m.Table.SetColumns(columns(width - 6))
	m.Table.SetWidth(width - 6)

	// Header, footer, status line, event log and borders.
	chrome := 2 + 2 + 1 + (EventLogLines + 2) + 2 + 2
	height := m.Height - chrome
	if height < MinTableHeight {
		height = MinTableHeight
	}
	m.Table.SetHeight(height)
	m.Help.Width = width - 6
}

// columns splits width across USN, TYPE, LOCATION and TTL.
func columns(width int) []table.Column {
	const ttl = 8
	rest := width - ttl - 8 // cell padding
	if rest < 30 {
		rest = 30
	}
	usn := rest * 2 / 5
	typ := rest * 3 / 10
	return []table.Column{
		{Title: ui.EntryColumns[0], Width: usn},
		{Title: ui.EntryColumns[1], Width: typ},
		{Title: ui.EntryColumns[2], Width: rest - usn - typ},
		{Title: ui.EntryColumns[3], Width: ttl},
	}
}

// View renders the monitor
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	log := "No traffic yet"
	if len(m.Events) > 0 {
		log = strings.Join(m.Events, "\n")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		m.Table.View(),
		StatusStyle.Render(m.Status),
		EventLogStyle.Render(log),
	)

	return RenderApplicationContainer(
		BuildHeaderContent(m.opts.Target),
		content,
		m.Help.View(m.Keys),
		m.Width, m.Height,
	)
}

// Listener forwards every message the service sends or receives to p as an
// EventMsg.
func Listener(p *tea.Program) *discovery.Funcs {
	return &discovery.Funcs{
		Send: func(_ *discovery.Service, msg protocol.Message) {
			p.Send(EventMsg{Sent: true, Line: ui.FormatEvent(true, msg)})
		},
		Receive: func(_ *discovery.Service, msg protocol.Message) {
			p.Send(EventMsg{Line: ui.FormatEvent(false, msg)})
		},
	}
}

// Run shows the monitor full-screen until the user quits. The event log is
// fed from svc for as long as the monitor runs.
func Run(opts Options, svc *discovery.Service) error {
	p := tea.NewProgram(NewModel(opts), tea.WithAltScreen())

	l := Listener(p)
	if err := svc.AddListener(l); err != nil {
		return err
	}
	defer svc.RemoveListener(l)

	_, err := p.Run()
	return err
}
