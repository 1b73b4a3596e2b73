package bridge

import (
	"encoding/json"
	"time"

	"github.com/projecta-dev/projecta/internal/control"
	"github.com/projecta-dev/projecta/internal/protocol"
)

// Message types exchanged over the socket
const (
	TypeTelemetry = "telemetry"
	TypeMove      = "move"
	TypeEnable    = "enable"
	TypeAck       = "ack"
	TypeError     = "error"
)

// Command is a client request. Move uses Position, enable uses Enabled.
type Command struct {
	Type     string `json:"type"`
	Stepper  uint8  `json:"stepper"`
	Position int32  `json:"position,omitempty"`
	Enabled  bool   `json:"enabled,omitempty"`
}

// Event is anything the bridge sends to clients
type Event struct {
	Type     string                 `json:"type"`
	At       *time.Time             `json:"at,omitempty"`
	Steppers []protocol.StepperInfo `json:"steppers,omitempty"`
	Command  string                 `json:"command,omitempty"`
	Stepper  *uint8                 `json:"stepper,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func telemetryEvent(s control.Snapshot) Event {
	at := s.At
	if s.Err != nil {
		return Event{Type: TypeError, At: &at, Error: s.Err.Error()}
	}
	return Event{Type: TypeTelemetry, At: &at, Steppers: s.Steppers}
}

func ackEvent(cmd Command) Event {
	stepper := cmd.Stepper
	return Event{Type: TypeAck, Command: cmd.Type, Stepper: &stepper}
}

func errorEvent(command string, err error) Event {
	return Event{Type: TypeError, Command: command, Error: err.Error()}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}
