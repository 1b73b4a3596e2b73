// Package tui implements the interactive terminal interface used by
// "projecta watch".
//
// The application has two screens:
//
//   - Discovery: broadcasts probes and lists responding devices. The UDP
//     session is driven from tea.Tick messages calling Session.Poll, so the
//     Bubble Tea event loop is the only scheduler involved.
//   - Monitor: shows one row per stepper with its status line, refreshes it
//     on the telemetry interval and sends enable, disable and move commands.
//
// Key bindings on the monitor screen:
//
//	e      toggle enable on the selected stepper
//	m      type a target position for the selected stepper
//	+ / -  slow down or speed up telemetry (50ms steps, 50ms..1s)
//	q      close the connection and exit
//
// Components:
//   - bubbletea: Elm-architecture runtime
//   - bubbles/table: device and stepper lists
//   - bubbles/spinner, textinput, help, key
//   - lipgloss: styling
package tui
