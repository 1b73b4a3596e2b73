package protocol

import (
	"encoding/binary"
	"fmt"
)

// BuildHeaderOnly constructs a 4-byte packet consisting of the header alone
//
// Packet Structure:
//
//	[0-1]   4              Total length (little-endian uint16)
//	[2-3]   opcode         Opcode (little-endian uint16)
func BuildHeaderOnly(op Opcode) []byte {
	pkt := make([]byte, HeaderSize)
	putHeader(pkt, HeaderSize, op)
	return pkt
}

// BuildConnectionRequest constructs the handshake request sent after TCP connect
func BuildConnectionRequest() []byte {
	return BuildHeaderOnly(OpConnectionRequest)
}

// BuildConnectionApproved constructs the handshake approval (device side)
func BuildConnectionApproved() []byte {
	return BuildHeaderOnly(OpConnectionRequestApproved)
}

// BuildConnectionRejected constructs the handshake rejection (device side)
func BuildConnectionRejected() []byte {
	return BuildHeaderOnly(OpConnectionRequestRejected)
}

// BuildStepperInfoRequest constructs the telemetry query
func BuildStepperInfoRequest() []byte {
	return BuildHeaderOnly(OpStepperInfoRequest)
}

// BuildStepperMoveTo constructs a move command
//
// Packet Structure:
//
//	[0-1]   10             Total length
//	[2-3]   5              Opcode (StepperMoveTo)
//	[4]     stepper        Stepper index
//	[5-8]   target         Target position (little-endian int32)
//	[9]     0x00           Reserved flag, always false
func BuildStepperMoveTo(stepper uint8, target int32) []byte {
	pkt := make([]byte, StepperMoveToSize)
	putHeader(pkt, StepperMoveToSize, OpStepperMoveTo)
	pkt[4] = stepper
	binary.LittleEndian.PutUint32(pkt[5:9], uint32(target))
	return pkt
}

// BuildStepperEnableDisable constructs an enable/disable command
//
// Packet Structure:
//
//	[0-1]   7              Total length
//	[2-3]   6              Opcode (StepperEnableDisable)
//	[4]     stepper        Stepper index
//	[5]     enabled        0x01 = enable driver, 0x00 = disable
//	[6]     0x00           Reserved flag, always false
func BuildStepperEnableDisable(stepper uint8, enabled bool) []byte {
	pkt := make([]byte, StepperEnableDisableSize)
	putHeader(pkt, StepperEnableDisableSize, OpStepperEnableDisable)
	pkt[4] = stepper
	pkt[5] = boolByte(enabled)
	return pkt
}

// BuildStepperInfoResponse constructs a telemetry reply (device side)
//
// Each record is 17 bytes; the last record carries has_next = false.
// Returns an error for an empty set or more records than fit under the
// client read ceiling.
func BuildStepperInfoResponse(steppers []StepperInfo) ([]byte, error) {
	if len(steppers) == 0 {
		return nil, fmt.Errorf("stepper info response needs at least one record")
	}
	if len(steppers) > MaxStepperRecords {
		return nil, fmt.Errorf("too many stepper records: %d (max %d)", len(steppers), MaxStepperRecords)
	}

	size := HeaderSize + len(steppers)*StepperInfoRecordSize
	pkt := make([]byte, size)
	putHeader(pkt, size, OpStepperInfoResponse)

	offset := HeaderSize
	for i, s := range steppers {
		rec := pkt[offset : offset+StepperInfoRecordSize]
		rec[0] = s.Motor
		rec[1] = s.Flags
		binary.LittleEndian.PutUint32(rec[2:6], uint32(s.TargetPos))
		binary.LittleEndian.PutUint32(rec[6:10], uint32(s.CurrentPos))
		binary.LittleEndian.PutUint16(rec[10:12], s.MinSpeed)
		binary.LittleEndian.PutUint16(rec[12:14], s.CurrentSpeed)
		binary.LittleEndian.PutUint16(rec[14:16], s.MaxSpeed)
		rec[16] = boolByte(i < len(steppers)-1)
		offset += StepperInfoRecordSize
	}

	return pkt, nil
}

// Encode serializes a typed packet
func Encode(p Packet) ([]byte, error) {
	switch pkt := p.(type) {
	case *ConnectionRequest:
		return BuildConnectionRequest(), nil
	case *ConnectionApproved:
		return BuildConnectionApproved(), nil
	case *ConnectionRejected:
		return BuildConnectionRejected(), nil
	case *StepperInfoRequest:
		return BuildStepperInfoRequest(), nil
	case *StepperMoveTo:
		return BuildStepperMoveTo(pkt.Stepper, pkt.Position), nil
	case *StepperEnableDisable:
		return BuildStepperEnableDisable(pkt.Stepper, pkt.Enabled), nil
	case *StepperInfoResponse:
		return BuildStepperInfoResponse(pkt.Steppers)
	default:
		return nil, fmt.Errorf("cannot encode packet of type %T", p)
	}
}

func putHeader(pkt []byte, length int, op Opcode) {
	binary.LittleEndian.PutUint16(pkt[0:2], uint16(length))
	binary.LittleEndian.PutUint16(pkt[2:4], uint16(op))
}

func boolByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}
