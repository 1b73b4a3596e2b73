package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/projecta-dev/projecta/internal/deverr"
)

// Header and packet sizes
const (
	HeaderSize               = 4  // u16 length + u16 opcode
	ConnectRequestSize       = 4  // header only
	StepperInfoRequestSize   = 4  // header only
	StepperMoveToSize        = 10 // header + u8 + i32 + bool
	StepperEnableDisableSize = 7  // header + u8 + bool + bool
	StepperInfoRecordSize    = 17 // u8 + u8 + i32 + i32 + u16 + u16 + u16 + bool

	// MaxHandshakeResponseSize is the read ceiling for handshake replies
	MaxHandshakeResponseSize = 128

	// MaxInfoResponseSize is the read ceiling for stepper info replies
	MaxInfoResponseSize = 1024

	// MaxStepperRecords is how many records fit under the info read ceiling
	MaxStepperRecords = (MaxInfoResponseSize - HeaderSize) / StepperInfoRecordSize
)

// Stepper info flag bits
const (
	StepperFlagEnabled   = 1 << 0
	StepperFlagAutomatic = 1 << 1
	StepperFlagMoving    = 1 << 2
)

// Opcode identifies a control packet type
type Opcode uint16

// Control opcodes
const (
	OpConnectionRequest         Opcode = 0
	OpConnectionRequestApproved Opcode = 1
	OpConnectionRequestRejected Opcode = 2
	OpStepperInfoRequest        Opcode = 4
	OpStepperMoveTo             Opcode = 5
	OpStepperEnableDisable      Opcode = 6
	OpStepperInfoResponse       Opcode = 7
)

// Decode failure sentinels, wrapped by deverr protocol errors
var (
	ErrShortPacket   = errors.New("packet too short")
	ErrBadLength     = errors.New("length field does not match packet type")
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrTruncated     = errors.New("record chain ends without terminator")
	ErrForeignDevice = errors.New("device id mismatch")
	ErrNotResponse   = errors.New("response flag not set")
	ErrNotRequest    = errors.New("request flag not set")
	ErrMalformedName = errors.New("malformed device name")
)

// String returns a human-readable opcode name
func (o Opcode) String() string {
	switch o {
	case OpConnectionRequest:
		return "ConnectionRequest"
	case OpConnectionRequestApproved:
		return "ConnectionRequestApproved"
	case OpConnectionRequestRejected:
		return "ConnectionRequestRejected"
	case OpStepperInfoRequest:
		return "StepperInfoRequest"
	case OpStepperMoveTo:
		return "StepperMoveTo"
	case OpStepperEnableDisable:
		return "StepperEnableDisable"
	case OpStepperInfoResponse:
		return "StepperInfoResponse"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(o))
	}
}

// IsKnown reports whether the opcode belongs to the closed control opcode set
func (o Opcode) IsKnown() bool {
	switch o {
	case OpConnectionRequest,
		OpConnectionRequestApproved,
		OpConnectionRequestRejected,
		OpStepperInfoRequest,
		OpStepperMoveTo,
		OpStepperEnableDisable,
		OpStepperInfoResponse:
		return true
	default:
		return false
	}
}

// Header is the 4-byte prefix of every control packet
type Header struct {
	Length uint16 // Total packet length, header included
	Opcode Opcode
}

// String returns a debug representation of the header
func (h Header) String() string {
	return fmt.Sprintf("Header{len=%d, op=%s}", h.Length, h.Opcode)
}

// StepperInfo is the telemetry of a single motor
type StepperInfo struct {
	Motor        uint8  `json:"motor"`
	Flags        uint8  `json:"flags"`
	TargetPos    int32  `json:"target_pos"`
	CurrentPos   int32  `json:"current_pos"`
	MinSpeed     uint16 `json:"min_speed"`
	CurrentSpeed uint16 `json:"current_speed"`
	MaxSpeed     uint16 `json:"max_speed"`
}

func (s StepperInfo) Enabled() bool   { return s.Flags&StepperFlagEnabled != 0 }
func (s StepperInfo) Automatic() bool { return s.Flags&StepperFlagAutomatic != 0 }
func (s StepperInfo) Moving() bool    { return s.Flags&StepperFlagMoving != 0 }

// String renders the status line shown for a stepper in the control views
func (s StepperInfo) String() string {
	moving, enabled, mode := "NM", "NE", "MA"
	if s.Moving() {
		moving = "IM"
	}
	if s.Enabled() {
		enabled = "EN"
	}
	if s.Automatic() {
		mode = "AT"
	}
	return fmt.Sprintf("Pos: %d/%d, Speed: %d/%d/%d, %s | %s | %s",
		s.CurrentPos, s.TargetPos, s.CurrentSpeed, s.MinSpeed, s.MaxSpeed, moving, enabled, mode)
}

// Packet is a decoded control packet
type Packet interface {
	Opcode() Opcode
}

type ConnectionRequest struct{}
type ConnectionApproved struct{}
type ConnectionRejected struct{}
type StepperInfoRequest struct{}

// StepperMoveTo commands a stepper to a target position
type StepperMoveTo struct {
	Stepper  uint8
	Position int32
}

// StepperEnableDisable powers a stepper driver on or off
type StepperEnableDisable struct {
	Stepper uint8
	Enabled bool
}

// StepperInfoResponse carries telemetry for every motor, in wire order
type StepperInfoResponse struct {
	Steppers []StepperInfo
}

func (*ConnectionRequest) Opcode() Opcode    { return OpConnectionRequest }
func (*ConnectionApproved) Opcode() Opcode   { return OpConnectionRequestApproved }
func (*ConnectionRejected) Opcode() Opcode   { return OpConnectionRequestRejected }
func (*StepperInfoRequest) Opcode() Opcode   { return OpStepperInfoRequest }
func (*StepperMoveTo) Opcode() Opcode        { return OpStepperMoveTo }
func (*StepperEnableDisable) Opcode() Opcode { return OpStepperEnableDisable }
func (*StepperInfoResponse) Opcode() Opcode  { return OpStepperInfoResponse }

// ParseHeader parses the 4-byte control header
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, deverr.NewProtocolError("parse_header",
			fmt.Sprintf("header needs %d bytes, got %d", HeaderSize, len(data)), ErrShortPacket)
	}
	return Header{
		Length: binary.LittleEndian.Uint16(data[0:2]),
		Opcode: Opcode(binary.LittleEndian.Uint16(data[2:4])),
	}, nil
}

// Decode parses a complete control packet into its typed form
func Decode(data []byte) (Packet, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	switch h.Opcode {
	case OpConnectionRequest:
		if err := expectFixed(h, data, ConnectRequestSize); err != nil {
			return nil, err
		}
		return &ConnectionRequest{}, nil

	case OpConnectionRequestApproved:
		if err := expectFixed(h, data, ConnectRequestSize); err != nil {
			return nil, err
		}
		return &ConnectionApproved{}, nil

	case OpConnectionRequestRejected:
		if err := expectFixed(h, data, ConnectRequestSize); err != nil {
			return nil, err
		}
		return &ConnectionRejected{}, nil

	case OpStepperInfoRequest:
		if err := expectFixed(h, data, StepperInfoRequestSize); err != nil {
			return nil, err
		}
		return &StepperInfoRequest{}, nil

	case OpStepperMoveTo:
		if err := expectFixed(h, data, StepperMoveToSize); err != nil {
			return nil, err
		}
		// data[9] is the reserved flag
		return &StepperMoveTo{
			Stepper:  data[4],
			Position: int32(binary.LittleEndian.Uint32(data[5:9])),
		}, nil

	case OpStepperEnableDisable:
		if err := expectFixed(h, data, StepperEnableDisableSize); err != nil {
			return nil, err
		}
		return &StepperEnableDisable{
			Stepper: data[4],
			Enabled: data[5] != 0,
		}, nil

	case OpStepperInfoResponse:
		steppers, _, err := ParseStepperInfoRecords(data)
		if err != nil {
			return nil, err
		}
		return &StepperInfoResponse{Steppers: steppers}, nil

	default:
		return nil, deverr.NewProtocolError("decode",
			fmt.Sprintf("opcode %d is not part of the control protocol", uint16(h.Opcode)), ErrUnknownOpcode)
	}
}

// expectFixed validates the length field and buffer of a fixed-size packet
func expectFixed(h Header, data []byte, size int) error {
	if int(h.Length) != size {
		return deverr.NewProtocolError("decode",
			fmt.Sprintf("%s length field is %d, expected %d", h.Opcode, h.Length, size), ErrBadLength)
	}
	if len(data) < size {
		return deverr.NewProtocolError("decode",
			fmt.Sprintf("%s needs %d bytes, got %d", h.Opcode, size, len(data)), ErrShortPacket)
	}
	return nil
}

// ParseStepperInfoRecords decodes the has_next record chain of a stepper info
// response. data must start with the packet header. It returns the records in
// wire order and the number of bytes consumed (header included).
func ParseStepperInfoRecords(data []byte) ([]StepperInfo, int, error) {
	if len(data) < HeaderSize {
		return nil, 0, deverr.NewProtocolError("parse_stepper_info",
			fmt.Sprintf("header needs %d bytes, got %d", HeaderSize, len(data)), ErrShortPacket)
	}

	var records []StepperInfo
	offset := HeaderSize
	for {
		if offset+StepperInfoRecordSize > len(data) {
			return nil, offset, deverr.NewProtocolError("parse_stepper_info",
				fmt.Sprintf("record %d needs %d bytes at offset %d, only %d available",
					len(records), StepperInfoRecordSize, offset, len(data)-offset), ErrTruncated)
		}

		rec := data[offset : offset+StepperInfoRecordSize]
		records = append(records, StepperInfo{
			Motor:        rec[0],
			Flags:        rec[1],
			TargetPos:    int32(binary.LittleEndian.Uint32(rec[2:6])),
			CurrentPos:   int32(binary.LittleEndian.Uint32(rec[6:10])),
			MinSpeed:     binary.LittleEndian.Uint16(rec[10:12]),
			CurrentSpeed: binary.LittleEndian.Uint16(rec[12:14]),
			MaxSpeed:     binary.LittleEndian.Uint16(rec[14:16]),
		})
		offset += StepperInfoRecordSize

		if rec[16] == 0 {
			return records, offset, nil
		}
	}
}

// Summary formats a raw packet with DescribePacket when it is printed, so a
// log field built from it costs nothing unless the entry is written.
type Summary []byte

func (s Summary) String() string {
	return DescribePacket(s)
}

// DescribePacket returns a short human-readable summary of a raw packet,
// used for logging. It never fails.
func DescribePacket(data []byte) string {
	pkt, err := Decode(data)
	if err != nil {
		if h, herr := ParseHeader(data); herr == nil {
			return fmt.Sprintf("%s (undecodable: %v)", h, errors.Unwrap(err))
		}
		return fmt.Sprintf("raw[%d]", len(data))
	}

	switch p := pkt.(type) {
	case *StepperMoveTo:
		return fmt.Sprintf("StepperMoveTo{stepper=%d, position=%d}", p.Stepper, p.Position)
	case *StepperEnableDisable:
		return fmt.Sprintf("StepperEnableDisable{stepper=%d, enabled=%v}", p.Stepper, p.Enabled)
	case *StepperInfoResponse:
		parts := make([]string, len(p.Steppers))
		for i, s := range p.Steppers {
			parts[i] = fmt.Sprintf("#%d %s", s.Motor, s)
		}
		return fmt.Sprintf("StepperInfoResponse{%s}", strings.Join(parts, "; "))
	default:
		return pkt.Opcode().String()
	}
}
