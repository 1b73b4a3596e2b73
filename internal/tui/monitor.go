package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/projecta-dev/projecta/internal/control"
	"github.com/projecta-dev/projecta/internal/deverr"
	"github.com/projecta-dev/projecta/internal/protocol"
)

// IntervalStep is how much +/- change the telemetry interval
const IntervalStep = 50 * time.Millisecond

// Device is the control surface the monitor screen drives
type Device interface {
	QueryStepperInfo() ([]protocol.StepperInfo, error)
	MoveStepperTo(stepper uint8, position int32) error
	SetStepperEnabled(stepper uint8, enabled bool) error
	Addr() string
	Close() error
}

// Messages for the telemetry loop
type telemetryDueMsg struct{}

type telemetryMsg struct {
	steppers []protocol.StepperInfo
	err      error
	at       time.Time
}

type commandDoneMsg struct {
	action string
	err    error
}

// monitorKeyMap defines key bindings for the monitor screen
type monitorKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Move   key.Binding
	Faster key.Binding
	Slower key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Move, k.Faster, k.Slower, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Toggle, k.Move},
		{k.Faster, k.Slower, k.Quit},
	}
}

// editKeyMap defines key bindings while a target position is typed
type editKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k editKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Confirm, k.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (k editKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Confirm, k.Cancel}}
}

// MonitorModel shows live telemetry for one connected device
type MonitorModel struct {
	Device   Device
	Name     string
	Labels   func(motor int) string
	Interval time.Duration

	Steppers   []protocol.StepperInfo
	LastUpdate time.Time
	Status     string
	Err        error
	Lost       bool // the connection failed; polling has stopped
	Closed     bool // the user asked to leave

	Editing     bool
	TargetInput textinput.Model

	Width    int
	Height   int
	Table    table.Model
	Help     help.Model
	Keys     monitorKeyMap
	EditKeys editKeyMap
}

// NewMonitorModel creates a monitor screen for a connected device
func NewMonitorModel(device Device, name string, interval time.Duration) MonitorModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Stepper", Width: 16},
			{Title: "Status", Width: 72},
		}),
		table.WithFocused(true),
		table.WithHeight(6),
	)
	t.SetStyles(tableStyles())

	input := textinput.New()
	input.Placeholder = "target position"
	input.CharLimit = 11
	input.Width = 16

	if name == "" {
		name = device.Addr()
	}

	return MonitorModel{
		Device:      device,
		Name:        name,
		Interval:    control.ClampInterval(interval),
		TargetInput: input,
		Table:       t,
		Help:        help.New(),
		Keys: monitorKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up", "k"),
				key.WithHelp("↑/k", "move up"),
			),
			Down: key.NewBinding(
				key.WithKeys("down", "j"),
				key.WithHelp("↓/j", "move down"),
			),
			Toggle: key.NewBinding(
				key.WithKeys("e"),
				key.WithHelp("e", "enable/disable"),
			),
			Move: key.NewBinding(
				key.WithKeys("m"),
				key.WithHelp("m", "move to"),
			),
			Faster: key.NewBinding(
				key.WithKeys("-"),
				key.WithHelp("-", "poll faster"),
			),
			Slower: key.NewBinding(
				key.WithKeys("+", "="),
				key.WithHelp("+", "poll slower"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc"),
				key.WithHelp("q", "close"),
			),
		},
		EditKeys: editKeyMap{
			Confirm: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "send"),
			),
			Cancel: key.NewBinding(
				key.WithKeys("esc"),
				key.WithHelp("esc", "cancel"),
			),
		},
	}
}

// Init requests the first telemetry snapshot
func (m MonitorModel) Init() tea.Cmd {
	return queryTelemetry(m.Device)
}

func queryTelemetry(d Device) tea.Cmd {
	return func() tea.Msg {
		steppers, err := d.QueryStepperInfo()
		return telemetryMsg{steppers: steppers, err: err, at: time.Now()}
	}
}

func (m MonitorModel) scheduleTelemetry() tea.Cmd {
	return tea.Tick(m.Interval, func(time.Time) tea.Msg { return telemetryDueMsg{} })
}

func runCommand(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{action: action, err: fn()}
	}
}

// Update handles messages and updates the model
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case telemetryDueMsg:
		if m.Lost || m.Closed {
			return m, nil
		}
		return m, queryTelemetry(m.Device)

	case telemetryMsg:
		return m.handleTelemetry(msg)

	case commandDoneMsg:
		if msg.err != nil {
			m.Err = fmt.Errorf("%s: %w", msg.action, msg.err)
			if deverr.IsTransportError(msg.err) {
				m.Lost = true
			}
			return m, nil
		}
		m.Err = nil
		m.Status = msg.action + " sent"
		return m, nil

	case tea.KeyMsg:
		if m.Editing {
			return m.updateEditing(msg)
		}
		return m.updateNormal(msg)
	}

	return m, cmd
}

func (m MonitorModel) handleTelemetry(msg telemetryMsg) (tea.Model, tea.Cmd) {
	if m.Closed {
		return m, nil
	}

	switch {
	case msg.err == nil && msg.steppers == nil:
		// the device answered with something other than telemetry
	case msg.err == nil:
		m.setSteppers(msg.steppers)
		m.LastUpdate = msg.at
	case deverr.IsProtocolError(msg.err):
		m.Err = msg.err
	default:
		m.Err = msg.err
		m.Lost = true
		return m, nil
	}
	return m, m.scheduleTelemetry()
}

func (m MonitorModel) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch {
	case key.Matches(msg, m.Keys.Quit):
		m.Closed = true
		return m, nil

	case key.Matches(msg, m.Keys.Slower):
		m.Interval = control.ClampInterval(m.Interval + IntervalStep)
		return m, nil

	case key.Matches(msg, m.Keys.Faster):
		m.Interval = control.ClampInterval(max(m.Interval-IntervalStep, control.MinInterval))
		return m, nil

	case key.Matches(msg, m.Keys.Toggle):
		s, ok := m.selected()
		if !ok || m.Lost {
			return m, nil
		}
		enable := !s.Enabled()
		action := "disable"
		if enable {
			action = "enable"
		}
		dev := m.Device
		return m, runCommand(fmt.Sprintf("%s %s", action, m.label(int(s.Motor))), func() error {
			return dev.SetStepperEnabled(s.Motor, enable)
		})

	case key.Matches(msg, m.Keys.Move):
		s, ok := m.selected()
		if !ok || m.Lost {
			return m, nil
		}
		m.Editing = true
		m.TargetInput.SetValue("")
		m.TargetInput.Placeholder = strconv.Itoa(int(s.TargetPos))
		return m, m.TargetInput.Focus()
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m MonitorModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch {
	case key.Matches(msg, m.EditKeys.Cancel):
		m.Editing = false
		m.TargetInput.Blur()
		return m, nil

	case key.Matches(msg, m.EditKeys.Confirm):
		target, err := strconv.ParseInt(strings.TrimSpace(m.TargetInput.Value()), 10, 32)
		if err != nil {
			m.Err = fmt.Errorf("invalid target position %q", m.TargetInput.Value())
			return m, nil
		}
		s, ok := m.selected()
		m.Editing = false
		m.TargetInput.Blur()
		if !ok {
			return m, nil
		}
		dev := m.Device
		position := int32(target)
		return m, runCommand(fmt.Sprintf("move %s to %d", m.label(int(s.Motor)), position), func() error {
			return dev.MoveStepperTo(s.Motor, position)
		})
	}

	m.TargetInput, cmd = m.TargetInput.Update(msg)
	return m, cmd
}

func (m *MonitorModel) setSteppers(steppers []protocol.StepperInfo) {
	m.Steppers = steppers
	rows := make([]table.Row, len(steppers))
	for i, s := range steppers {
		rows[i] = table.Row{m.label(int(s.Motor)), s.String()}
	}
	m.Table.SetRows(rows)
}

func (m MonitorModel) selected() (protocol.StepperInfo, bool) {
	i := m.Table.Cursor()
	if i < 0 || i >= len(m.Steppers) {
		return protocol.StepperInfo{}, false
	}
	return m.Steppers[i], true
}

func (m MonitorModel) label(motor int) string {
	if m.Labels != nil {
		if l := m.Labels(motor); l != "" {
			return l
		}
	}
	return fmt.Sprintf("Stepper %d", motor)
}

// View renders the monitor screen
func (m MonitorModel) View() string {
	var b strings.Builder

	b.WriteString(RenderTitle(m.Name))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s   %s %s",
		LabelStyle.Render("Device:"), m.Device.Addr(),
		LabelStyle.Render("Interval:"), m.Interval)
	if !m.LastUpdate.IsZero() {
		fmt.Fprintf(&b, "   %s %s", LabelStyle.Render("Updated:"), m.LastUpdate.Format("15:04:05.000"))
	}
	b.WriteString("\n\n")

	if len(m.Steppers) == 0 {
		b.WriteString(SubtitleStyle.Render("Waiting for telemetry..."))
	} else {
		b.WriteString(m.Table.View())
	}
	b.WriteString("\n\n")

	if m.Editing {
		b.WriteString("Target: ")
		b.WriteString(m.TargetInput.View())
		b.WriteString("\n")
	}

	switch {
	case m.Lost:
		b.WriteString(RenderError("Connection lost: " + m.Err.Error()))
	case m.Err != nil:
		b.WriteString(RenderError(m.Err.Error()))
	case m.Status != "":
		b.WriteString(SuccessStyle.Render("✓ " + m.Status))
	}

	footer := m.Help.View(m.Keys)
	if m.Editing {
		footer = m.Help.View(m.EditKeys)
	}
	return RenderApplicationContainer(b.String(), footer, m.Width, m.Height)
}
