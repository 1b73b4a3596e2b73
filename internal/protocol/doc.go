// Package protocol implements the Project-A device binary protocol.
//
// This package handles parsing, validation, and construction of the two wire
// formats spoken by Project-A stepper controllers: the UDP discovery exchange
// and the TCP control exchange. All multi-byte fields are little-endian.
//
// # Control Packets (TCP)
//
// Every control packet starts with a 4-byte header:
//   - Total length: 2 bytes (header included)
//   - Opcode: 2 bytes
//
// Fixed-size packets:
//
//	ConnectionRequest            4   header only
//	ConnectionRequestApproved    4   header only
//	ConnectionRequestRejected    4   header only
//	StepperInfoRequest           4   header only
//	StepperMoveTo               10   u8 stepper, i32 target, bool reserved
//	StepperEnableDisable         7   u8 stepper, bool enabled, bool reserved
//
// StepperInfoResponse carries a chain of 17-byte records after the header.
// There is no record count: each record ends with a has_next boolean and the
// chain stops at the first record where it is false.
//
// # Discovery Packets (UDP)
//
//	Probe     3   u16 device id (0x7132), u8 flags (REQUEST)
//	Response  7+  u16 device id, u8 flags (RESPONSE), u16 port, u16 name_len,
//	              name_len-1 bytes of UTF-8 name
//
// The name length includes a terminator that is not transmitted as part of
// the name.
//
// # Usage Example - Construction
//
//	pkt := protocol.BuildStepperMoveTo(3, -1000)
//	_, err := conn.Write(pkt)
//
// # Usage Example - Parsing
//
//	n, err := protocol.ReadStepperInfoReply(conn, buf)
//	if err != nil {
//	    return err
//	}
//	pkt, err := protocol.Decode(buf[:n])
//	switch p := pkt.(type) {
//	case *protocol.StepperInfoResponse:
//	    for _, s := range p.Steppers {
//	        fmt.Println(s)
//	    }
//	}
//
// # Error Handling
//
// Decode failures are deverr Protocol errors that also wrap one of the
// package sentinels (ErrShortPacket, ErrBadLength, ErrUnknownOpcode,
// ErrTruncated, ErrForeignDevice, ErrNotResponse, ErrMalformedName), so both
// deverr.IsProtocolError and errors.Is work.
//
// # Thread Safety
//
// All parsing and construction functions are stateless and safe for concurrent use.
package protocol
