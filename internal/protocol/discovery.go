package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/projecta-dev/projecta/internal/deverr"
)

// Discovery constants
const (
	// DeviceIDProjectA identifies Project-A devices in discovery packets
	DeviceIDProjectA uint16 = 0x7132

	DiscoveryFlagRequest  = 1 << 0
	DiscoveryFlagResponse = 1 << 1

	ProbeSize                   = 3 // u16 device id + u8 flags
	DiscoveryResponseHeaderSize = 7 // u16 device id + u8 flags + u16 port + u16 name_len

	// MaxDatagramSize is the receive buffer for discovery datagrams
	MaxDatagramSize = 1024
)

// DiscoveryResponse is a decoded device answer to a probe
type DiscoveryResponse struct {
	DeviceID uint16
	Flags    uint8
	Port     uint16
	Name     string
}

// String returns a debug representation of the response
func (r *DiscoveryResponse) String() string {
	return fmt.Sprintf("DiscoveryResponse{id=0x%04x, flags=0x%02x, port=%d, name=%q}",
		r.DeviceID, r.Flags, r.Port, r.Name)
}

// BuildProbe constructs the 3-byte discovery probe broadcast by clients
func BuildProbe() []byte {
	pkt := make([]byte, ProbeSize)
	binary.LittleEndian.PutUint16(pkt[0:2], DeviceIDProjectA)
	pkt[2] = DiscoveryFlagRequest
	return pkt
}

// ParseProbe validates a probe (device side)
func ParseProbe(data []byte) error {
	if len(data) < ProbeSize {
		return deverr.NewProtocolError("parse_probe",
			fmt.Sprintf("probe needs %d bytes, got %d", ProbeSize, len(data)), ErrShortPacket)
	}
	if id := binary.LittleEndian.Uint16(data[0:2]); id != DeviceIDProjectA {
		return deverr.NewProtocolError("parse_probe", fmt.Sprintf("device id 0x%04x", id), ErrForeignDevice)
	}
	if data[2]&DiscoveryFlagRequest == 0 {
		return deverr.NewProtocolError("parse_probe", fmt.Sprintf("flags 0x%02x", data[2]), ErrNotRequest)
	}
	return nil
}

// BuildDiscoveryResponse constructs a device answer to a probe (device side)
//
// Packet Structure:
//
//	[0-1]   0x7132         Device id (little-endian uint16)
//	[2]     0x02           Flags (RESPONSE)
//	[3-4]   port           Control port (little-endian uint16)
//	[5-6]   len(name)+1    Name length, terminator included
//	[7+]    name           UTF-8 name bytes
//	[N]     0x00           Terminator
func BuildDiscoveryResponse(port uint16, name string) ([]byte, error) {
	if len(name)+1 > MaxDatagramSize-DiscoveryResponseHeaderSize {
		return nil, fmt.Errorf("device name too long: %d bytes", len(name))
	}

	pkt := make([]byte, DiscoveryResponseHeaderSize+len(name)+1)
	binary.LittleEndian.PutUint16(pkt[0:2], DeviceIDProjectA)
	pkt[2] = DiscoveryFlagResponse
	binary.LittleEndian.PutUint16(pkt[3:5], port)
	binary.LittleEndian.PutUint16(pkt[5:7], uint16(len(name)+1))
	copy(pkt[7:], name)
	return pkt, nil
}

// ParseDiscoveryResponse decodes a device answer to a probe.
//
// It rejects packets whose device id is not Project-A or whose RESPONSE flag
// is unset. The name occupies name_len-1 bytes from offset 7; a trailing
// terminator byte is not required on the wire.
func ParseDiscoveryResponse(data []byte) (*DiscoveryResponse, error) {
	if len(data) < DiscoveryResponseHeaderSize {
		return nil, deverr.NewProtocolError("parse_discovery_response",
			fmt.Sprintf("response needs %d bytes, got %d", DiscoveryResponseHeaderSize, len(data)), ErrShortPacket)
	}

	resp := &DiscoveryResponse{
		DeviceID: binary.LittleEndian.Uint16(data[0:2]),
		Flags:    data[2],
		Port:     binary.LittleEndian.Uint16(data[3:5]),
	}
	nameLen := int(binary.LittleEndian.Uint16(data[5:7]))

	if resp.DeviceID != DeviceIDProjectA {
		return nil, deverr.NewProtocolError("parse_discovery_response",
			fmt.Sprintf("device id 0x%04x", resp.DeviceID), ErrForeignDevice)
	}
	if resp.Flags&DiscoveryFlagResponse == 0 {
		return nil, deverr.NewProtocolError("parse_discovery_response",
			fmt.Sprintf("flags 0x%02x", resp.Flags), ErrNotResponse)
	}
	if nameLen == 0 {
		return nil, deverr.NewProtocolError("parse_discovery_response",
			"name length 0 leaves no room for the terminator", ErrMalformedName)
	}

	end := DiscoveryResponseHeaderSize + nameLen - 1
	if end > len(data) {
		return nil, deverr.NewProtocolError("parse_discovery_response",
			fmt.Sprintf("name length %d exceeds datagram of %d bytes", nameLen, len(data)), ErrMalformedName)
	}

	name := data[DiscoveryResponseHeaderSize:end]
	if !utf8.Valid(name) {
		return nil, deverr.NewProtocolError("parse_discovery_response", "name is not valid UTF-8", ErrMalformedName)
	}
	resp.Name = string(name)

	return resp, nil
}
