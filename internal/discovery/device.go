package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Discovery sources
const (
	SourceUDP  = "udp"
	SourceMDNS = "mdns"
)

// Device represents a Project-A controller found on the network
type Device struct {
	// Name is the device name from its discovery response (may be empty)
	Name string

	// IP is the IPv4 source address the response came from
	IP string

	// Port is the TCP control port the device announced
	Port uint16

	// DiscoveredAt is when the response was accepted
	DiscoveredAt time.Time

	// Source is how the device was found (SourceUDP or SourceMDNS)
	Source string
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	name := d.Name
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("Project-A %s at %s", name, d.Addr())
}

// Addr returns the control endpoint as host:port
func (d *Device) Addr() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(int(d.Port)))
}
