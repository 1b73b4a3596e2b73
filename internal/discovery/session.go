package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/projecta-dev/projecta/internal/deverr"
	"github.com/projecta-dev/projecta/internal/logging"
	"github.com/projecta-dev/projecta/internal/protocol"
)

const (
	// DefaultPort is the UDP port devices listen on for probes
	DefaultPort = 8084

	// DefaultTimeout is how long a session collects responses
	DefaultTimeout = 500 * time.Millisecond

	// DefaultProbeCount is how many probes a session broadcasts
	DefaultProbeCount = 2

	// DefaultPollWait bounds the receive wait of a single Poll call
	DefaultPollWait = 10 * time.Millisecond

	// DefaultBroadcastAddr is the limited broadcast address
	DefaultBroadcastAddr = "255.255.255.255"
)

// ListenConfig returns a listen configuration that enables broadcast and
// address/port reuse on the sockets it creates. Device-side responders use it
// too so several can share the discovery port on one host.
func ListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: controlBroadcast}
}

// Status is the result of a Poll step
type Status int

const (
	// StatusContinue means the session is still collecting responses
	StatusContinue Status = iota
	// StatusFinished means the deadline passed and the session is idle again
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "continue"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Session is a single UDP discovery run.
//
// A session is idle until Start, active while collecting, and idle again
// once Poll reports StatusFinished. It runs no goroutines: the caller drives
// it by calling Poll from whatever loop it already has. A Session is not safe
// for concurrent use.
type Session struct {
	// BroadcastAddr is where probes are sent. Tests point it at loopback.
	BroadcastAddr string

	// PollWait bounds the receive wait inside Poll
	PollWait time.Duration

	conn     net.PacketConn
	deadline time.Time
	devices  []Device
	seen     map[string]struct{}
	buf      []byte
}

// NewSession creates an idle session with default settings
func NewSession() *Session {
	return &Session{
		BroadcastAddr: DefaultBroadcastAddr,
		PollWait:      DefaultPollWait,
	}
}

// Active reports whether the session owns a socket and a deadline
func (s *Session) Active() bool {
	return s.conn != nil
}

// LocalAddr returns the address of the session socket, or nil when idle
func (s *Session) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Start opens the broadcast socket, sends probeCount probes to port and arms
// the deadline at now + timeout. The device set of a previous run is cleared.
func (s *Session) Start(port uint16, timeout time.Duration, probeCount int) error {
	if s.Active() {
		return deverr.NewPreconditionError("discovery_start", "session is already active")
	}
	if probeCount < 0 {
		return deverr.NewPreconditionError("discovery_start", fmt.Sprintf("negative probe count %d", probeCount))
	}

	bcast := s.BroadcastAddr
	if bcast == "" {
		bcast = DefaultBroadcastAddr
	}
	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(bcast, strconv.Itoa(int(port))))
	if err != nil {
		return deverr.NewSocketError("discovery_start", "invalid broadcast address", err)
	}

	lc := ListenConfig()
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return deverr.NewSocketError("discovery_start", "failed to open UDP socket", err)
	}

	probe := protocol.BuildProbe()
	for i := 0; i < probeCount; i++ {
		if _, err := conn.WriteTo(probe, dst); err != nil {
			_ = conn.Close()
			return deverr.NewSocketError("discovery_start",
				fmt.Sprintf("failed to send probe %d of %d", i+1, probeCount), err)
		}
		logging.LogDatagram(dst, "sent", probe, fmt.Sprintf("probe %d/%d", i+1, probeCount))
	}

	s.conn = conn
	s.deadline = time.Now().Add(timeout)
	s.devices = nil
	s.seen = make(map[string]struct{})
	if s.buf == nil {
		s.buf = make([]byte, protocol.MaxDatagramSize)
	}
	if s.PollWait <= 0 {
		s.PollWait = DefaultPollWait
	}

	logging.Info("Discovery started",
		zap.Uint16("port", port),
		zap.Duration("timeout", timeout),
		zap.Int("probes", probeCount),
		zap.String("broadcast", dst.String()),
	)

	return nil
}

// Poll waits at most PollWait for one datagram, records it if it is a new
// valid response, then checks the deadline against now. Once the deadline
// has passed the socket is closed and StatusFinished is returned; the devices
// collected stay available through Devices.
//
// A read error other than the wait expiring ends the session and is returned
// as a socket error together with StatusFinished.
func (s *Session) Poll(now time.Time) (Status, error) {
	if !s.Active() {
		return StatusFinished, deverr.NewPreconditionError("discovery_poll", "session is not active")
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.PollWait)); err != nil {
		s.finish()
		return StatusFinished, deverr.NewSocketError("discovery_poll", "failed to set read deadline", err)
	}

	n, addr, err := s.conn.ReadFrom(s.buf)
	switch {
	case err == nil:
		s.HandleDatagram(s.buf[:n], addr)
	case errors.Is(err, os.ErrDeadlineExceeded):
		// nothing arrived within the wait
	default:
		s.finish()
		return StatusFinished, deverr.NewSocketError("discovery_poll", "failed to receive datagram", err)
	}

	if now.After(s.deadline) {
		s.finish()
		logging.Info("Discovery finished", zap.Int("devices", len(s.devices)))
		return StatusFinished, nil
	}

	return StatusContinue, nil
}

// HandleDatagram applies the response filter to one datagram. It returns
// true when the datagram added a new device. Foreign, malformed and
// duplicate datagrams are dropped and only logged.
func (s *Session) HandleDatagram(data []byte, addr net.Addr) bool {
	resp, err := protocol.ParseDiscoveryResponse(data)
	if err != nil {
		logging.LogRawBytes("Dropped discovery datagram", data,
			zap.String("remote_addr", remoteString(addr)),
			zap.String("reason", dropReason(err)),
		)
		return false
	}

	ip := sourceIP(addr)
	if ip == "" {
		logging.LogDatagram(addr, "dropped", data, "unknown source address")
		return false
	}

	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, dup := s.seen[ip]; dup {
		logging.LogDatagram(addr, "dropped", data, "duplicate source")
		return false
	}
	s.seen[ip] = struct{}{}

	s.devices = append(s.devices, Device{
		Name:         resp.Name,
		IP:           ip,
		Port:         resp.Port,
		DiscoveredAt: time.Now(),
		Source:       SourceUDP,
	})

	logging.Info("Discovered device",
		zap.String("name", resp.Name),
		zap.String("ip", ip),
		zap.Uint16("port", resp.Port),
	)

	return true
}

// Devices returns a copy of the devices collected so far, in arrival order
func (s *Session) Devices() []Device {
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// Close abandons an active session and releases its socket. Closing an idle
// session is a no-op.
func (s *Session) Close() error {
	if !s.Active() {
		return nil
	}
	return s.finish()
}

func (s *Session) finish() error {
	err := s.conn.Close()
	s.conn = nil
	s.deadline = time.Time{}
	s.seen = nil
	return err
}

func dropReason(err error) string {
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}
	return err.Error()
}

func remoteString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

func sourceIP(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case nil:
		return ""
	default:
		host, _, err := net.SplitHostPort(a.String())
		if err != nil {
			return ""
		}
		return host
	}
}
