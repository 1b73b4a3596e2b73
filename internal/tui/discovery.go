package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/projecta-dev/projecta/internal/discovery"
)

// pollInterval is how often the discovery screen drives Session.Poll
const pollInterval = 20 * time.Millisecond

// Messages for the discovery loop
type scanStartMsg struct{}
type discoveryPollMsg time.Time

// DiscoveryOptions configures a UDP discovery run
type DiscoveryOptions struct {
	Port          uint16
	Timeout       time.Duration
	ProbeCount    int
	BroadcastAddr string // empty means the limited broadcast address
}

// discoveryKeyMap defines key bindings for the discovery screen
type discoveryKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k discoveryKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k discoveryKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Quit},
	}
}

// DiscoveryModel is the device discovery screen. It owns a discovery
// session and polls it from tea.Tick; no goroutine touches the socket.
type DiscoveryModel struct {
	Options  DiscoveryOptions
	Session  *discovery.Session
	Scanning bool
	Devices  []discovery.Device
	Selected bool
	Err      error

	Width   int
	Height  int
	Table   table.Model
	Spinner spinner.Model
	Help    help.Model
	Keys    discoveryKeyMap
}

// NewDiscoveryModel creates a discovery screen; scanning starts on Init
func NewDiscoveryModel(opts DiscoveryOptions) DiscoveryModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Name", Width: 24},
			{Title: "Address", Width: 22},
			{Title: "Source", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	t.SetStyles(tableStyles())

	session := discovery.NewSession()
	if opts.BroadcastAddr != "" {
		session.BroadcastAddr = opts.BroadcastAddr
	}
	if opts.Port == 0 {
		opts.Port = discovery.DefaultPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = discovery.DefaultTimeout
	}

	return DiscoveryModel{
		Options: opts,
		Session: session,
		Table:   t,
		Spinner: s,
		Help:    help.New(),
		Keys: discoveryKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up", "k"),
				key.WithHelp("↑/k", "move up"),
			),
			Down: key.NewBinding(
				key.WithKeys("down", "j"),
				key.WithHelp("↓/j", "move down"),
			),
			Enter: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "connect"),
			),
			Rescan: key.NewBinding(
				key.WithKeys("r"),
				key.WithHelp("r", "rescan"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// Init starts the first scan
func (m DiscoveryModel) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return scanStartMsg{} },
		m.Spinner.Tick,
	)
}

func pollDiscovery() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return discoveryPollMsg(t)
	})
}

// Update handles messages and updates the model
func (m DiscoveryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetHeight(max(3, msg.Height-12))

	case scanStartMsg:
		if m.Scanning {
			return m, nil
		}
		m.Err = nil
		m.Selected = false
		if err := m.Session.Start(m.Options.Port, m.Options.Timeout, m.Options.ProbeCount); err != nil {
			m.Err = err
			return m, nil
		}
		m.Scanning = true
		m.setDevices(nil)
		return m, pollDiscovery()

	case discoveryPollMsg:
		if !m.Scanning {
			return m, nil
		}
		status, err := m.Session.Poll(time.Time(msg))
		m.setDevices(m.Session.Devices())
		if status == discovery.StatusFinished {
			m.Scanning = false
			m.Err = err
			return m, nil
		}
		return m, pollDiscovery()

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Enter):
			if !m.Scanning && len(m.Devices) > 0 {
				m.Selected = true
			}
			return m, nil
		case key.Matches(msg, m.Keys.Rescan):
			if !m.Scanning {
				return m, func() tea.Msg { return scanStartMsg{} }
			}
			return m, nil
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m *DiscoveryModel) setDevices(devices []discovery.Device) {
	m.Devices = devices
	rows := make([]table.Row, len(devices))
	for i, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		rows[i] = table.Row{name, d.Addr(), d.Source}
	}
	m.Table.SetRows(rows)
}

// GetSelectedDevice returns the device under the cursor, or nil
func (m DiscoveryModel) GetSelectedDevice() *discovery.Device {
	i := m.Table.Cursor()
	if i < 0 || i >= len(m.Devices) {
		return nil
	}
	d := m.Devices[i]
	return &d
}

// View renders the discovery screen
func (m DiscoveryModel) View() string {
	var b strings.Builder

	b.WriteString(RenderTitle("Discover Devices"))
	b.WriteString("\n")

	switch {
	case m.Scanning:
		fmt.Fprintf(&b, "%s Probing UDP port %d for %s...\n\n",
			m.Spinner.View(), m.Options.Port, m.Options.Timeout)
	case m.Err != nil:
		b.WriteString(RenderError(m.Err.Error()))
		b.WriteString("\n\n")
	case len(m.Devices) == 0:
		b.WriteString(WarningStyle.Render("No devices answered. Press r to scan again."))
		b.WriteString("\n\n")
	default:
		b.WriteString(SubtitleStyle.Render(strconv.Itoa(len(m.Devices)) + " device(s) found"))
		b.WriteString("\n\n")
	}

	if len(m.Devices) > 0 {
		b.WriteString(m.Table.View())
		b.WriteString("\n")
	}

	return RenderApplicationContainer(b.String(), m.Help.View(m.Keys), m.Width, m.Height)
}
