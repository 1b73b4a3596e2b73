package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/projecta-dev/projecta/internal/control"
	"github.com/projecta-dev/projecta/internal/discovery"
	"github.com/projecta-dev/projecta/internal/logging"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenDiscovery  Screen = "discovery"
	ScreenConnecting Screen = "connecting"
	ScreenMonitor    Screen = "monitor"
)

// ConnectFunc opens a ready control session to a discovered device
type ConnectFunc func(ctx context.Context, d discovery.Device) (Device, error)

// Options configures the application
type Options struct {
	Discovery DiscoveryOptions

	// Device skips discovery and connects straight away when set
	Device *discovery.Device

	// Interval is the initial telemetry interval
	Interval time.Duration

	// ConnectTimeout bounds dial plus handshake
	ConnectTimeout time.Duration

	// Connect overrides how sessions are opened; DialControl by default
	Connect ConnectFunc

	// Labels returns stepper labels for a device name; may be nil
	Labels func(deviceName string) func(motor int) string
}

type connectedMsg struct {
	device  discovery.Device
	session Device
	err     error
}

// AppModel is the top-level model that switches between screens
type AppModel struct {
	Options Options

	CurrentScreen Screen
	Discovery     DiscoveryModel
	Monitor       MonitorModel

	Target    *discovery.Device
	Session   Device
	LastError error

	Width   int
	Height  int
	Spinner spinner.Model
}

// DialControl connects and handshakes with the device's control port
func DialControl(ctx context.Context, d discovery.Device) (Device, error) {
	c := control.NewClient(d.IP, d.Port)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// NewAppModel creates the application model
func NewAppModel(opts Options) AppModel {
	if opts.Connect == nil {
		opts.Connect = DialControl
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = control.DefaultDialTimeout
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	m := AppModel{
		Options:       opts,
		CurrentScreen: ScreenDiscovery,
		Discovery:     NewDiscoveryModel(opts.Discovery),
		Spinner:       s,
	}
	if opts.Device != nil {
		d := *opts.Device
		m.Target = &d
		m.CurrentScreen = ScreenConnecting
	}
	return m
}

// Init starts discovery or the initial connection
func (m AppModel) Init() tea.Cmd {
	if m.CurrentScreen == ScreenConnecting {
		return tea.Batch(m.connect(*m.Target), m.Spinner.Tick)
	}
	return m.Discovery.Init()
}

func (m AppModel) connect(d discovery.Device) tea.Cmd {
	connectFn := m.Options.Connect
	timeout := m.Options.ConnectTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		session, err := connectFn(ctx, d)
		return connectedMsg{device: d, session: session, err: err}
	}
}

// Update handles all messages and routes them to the active screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Monitor.Width = msg.Width
		m.Monitor.Height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.shutdown()
			return m, tea.Quit
		}

	case connectedMsg:
		return m.handleConnected(msg)
	}

	switch m.CurrentScreen {
	case ScreenDiscovery:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && key.Matches(keyMsg, m.Discovery.Keys.Quit) {
			m.shutdown()
			return m, tea.Quit
		}

		updated, cmd := m.Discovery.Update(msg)
		m.Discovery = updated.(DiscoveryModel)
		if m.Discovery.Selected {
			m.Discovery.Selected = false
			if d := m.Discovery.GetSelectedDevice(); d != nil {
				m.Target = d
				m.LastError = nil
				m.CurrentScreen = ScreenConnecting
				return m, tea.Batch(cmd, m.connect(*d), m.Spinner.Tick)
			}
		}
		return m, cmd

	case ScreenConnecting:
		if tick, ok := msg.(spinner.TickMsg); ok {
			var cmd tea.Cmd
			m.Spinner, cmd = m.Spinner.Update(tick)
			return m, cmd
		}

	case ScreenMonitor:
		updated, cmd := m.Monitor.Update(msg)
		m.Monitor = updated.(MonitorModel)
		if m.Monitor.Closed {
			m.shutdown()
			return m, tea.Quit
		}
		return m, cmd
	}

	return m, nil
}

func (m AppModel) handleConnected(msg connectedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		logging.Warn("Connection failed",
			zap.String("device", msg.device.Addr()),
			zap.Error(msg.err),
		)
		m.LastError = msg.err
		m.Target = nil
		m.CurrentScreen = ScreenDiscovery
		if m.Options.Device != nil {
			// No discovery to fall back to
			return m, tea.Quit
		}
		return m, nil
	}

	m.Session = msg.session
	m.CurrentScreen = ScreenMonitor
	m.Monitor = NewMonitorModel(msg.session, msg.device.Name, m.Options.Interval)
	m.Monitor.Width = m.Width
	m.Monitor.Height = m.Height
	if m.Options.Labels != nil {
		m.Monitor.Labels = m.Options.Labels(msg.device.Name)
	}
	return m, m.Monitor.Init()
}

// shutdown releases the discovery socket and the control session
func (m *AppModel) shutdown() {
	if m.Discovery.Session != nil && m.Discovery.Session.Active() {
		_ = m.Discovery.Session.Close()
	}
	if m.Session != nil {
		if err := m.Session.Close(); err != nil {
			logging.Debug("Close failed", zap.Error(err))
		}
		m.Session = nil
	}
}

// View renders the current screen
func (m AppModel) View() string {
	switch m.CurrentScreen {
	case ScreenMonitor:
		return m.Monitor.View()
	case ScreenConnecting:
		var b strings.Builder
		b.WriteString(RenderTitle("Connecting"))
		b.WriteString("\n")
		if m.Target != nil {
			fmt.Fprintf(&b, "%s Opening control session with %s...", m.Spinner.View(), m.Target.Addr())
		}
		return RenderApplicationContainer(b.String(), "ctrl+c quit", m.Width, m.Height)
	default:
		view := m.Discovery.View()
		if m.LastError != nil {
			view = RenderError(m.LastError.Error()) + "\n" + view
		}
		return view
	}
}

// Run starts the interactive program and blocks until the user quits or ctx
// is cancelled. It returns the connection error when a direct connection to
// Options.Device fails.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(NewAppModel(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()

	if app, ok := final.(AppModel); ok {
		app.shutdown()
		if err == nil && app.LastError != nil && opts.Device != nil {
			return app.LastError
		}
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
