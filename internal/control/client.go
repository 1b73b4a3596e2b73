package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/projecta-dev/projecta/internal/deverr"
	"github.com/projecta-dev/projecta/internal/logging"
	"github.com/projecta-dev/projecta/internal/protocol"
)

// ErrRejected reports that the device refused the protocol handshake
var ErrRejected = errors.New("connection request rejected")

// State is the lifecycle position of a Client
type State int

const (
	// StateUnconnected is the initial state; no socket is open
	StateUnconnected State = iota
	// StateConnected means the TCP connection is open but not yet approved
	StateConnected
	// StateReady means the handshake was approved; commands may be sent
	StateReady
	// StateClosed is terminal; the socket has been released
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Client owns one TCP control session with one device.
//
// Operations are serialized, so a UI and a Monitor may share a client.
// Close and Reset do not wait for an operation in flight: they close the
// socket, which unblocks any pending read with an error.
type Client struct {
	addr        string
	dialTimeout time.Duration
	ioTimeout   time.Duration
	dialer      Dialer

	// opMu is held for a whole request/response exchange
	opMu sync.Mutex

	// mu guards the fields below
	mu           sync.Mutex
	conn         net.Conn
	state        State
	handshakeErr error

	buf []byte
}

// NewClient creates an unconnected client for host:port
func NewClient(host string, port uint16, opts ...Option) *Client {
	c := &Client{
		addr:        net.JoinHostPort(host, strconv.Itoa(int(port))),
		dialTimeout: DefaultDialTimeout,
		state:       StateUnconnected,
		buf:         make([]byte, protocol.MaxInfoResponseSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &net.Dialer{}
	}
	return c
}

// Addr returns the device address as host:port
func (c *Client) Addr() string {
	return c.addr
}

// State returns the current lifecycle state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandshakeError returns why the last ProtoConnect returned false, or nil
func (c *Client) HandshakeError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshakeErr
}

// TCPConnect opens the TCP connection. It is only valid on a fresh client.
func (c *Client) TCPConnect(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if _, err := c.require("tcp_connect", StateUnconnected); err != nil {
		return err
	}

	if c.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		logging.Warn("TCP connect failed", zap.String("remote_addr", c.addr), zap.Error(err))
		return deverr.NewConnectError(c.addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	logging.LogConnection(c.addr, "tcp_connected")
	return nil
}

// ProtoConnect performs the protocol handshake on a connected client.
//
// It returns true when the device approves. Any other outcome (rejection, a
// reply with the wrong length or opcode, a transport failure) resets the
// connection and returns false; HandshakeError reports which one it was.
// The error result is only used for precondition violations.
func (c *Client) ProtoConnect() (bool, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	conn, err := c.require("proto_connect", StateConnected)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.handshakeErr = nil
	c.mu.Unlock()

	if err := c.send(conn, protocol.BuildConnectionRequest(), protocol.OpConnectionRequest); err != nil {
		return false, c.refuse(conn, deverr.NewTransportError("proto_connect", c.addr, err))
	}

	c.armDeadline(conn)
	buf := c.buf[:protocol.MaxHandshakeResponseSize]
	n, err := protocol.ReadReply(conn, buf)
	if err != nil {
		return false, c.refuse(conn, deverr.NewTransportError("proto_connect", c.addr, err))
	}

	h, err := protocol.ParseHeader(buf[:n])
	if err != nil {
		return false, c.refuse(conn, err)
	}
	logging.LogPacket(c.addr, "received", h.Opcode, buf[:n], zap.Stringer("summary", protocol.Summary(buf[:n])))

	switch {
	case h.Length != protocol.ConnectRequestSize:
		return false, c.refuse(conn, deverr.NewProtocolError("proto_connect",
			fmt.Sprintf("handshake reply length is %d, expected %d", h.Length, protocol.ConnectRequestSize),
			protocol.ErrBadLength))

	case h.Opcode == protocol.OpConnectionRequestApproved:
		c.mu.Lock()
		if c.conn == conn {
			c.setStateLocked(StateReady)
		}
		c.mu.Unlock()
		logging.LogConnection(c.addr, "handshake_approved")
		return true, nil

	case h.Opcode == protocol.OpConnectionRequestRejected:
		return false, c.refuse(conn, ErrRejected)

	default:
		return false, c.refuse(conn, deverr.NewProtocolError("proto_connect",
			fmt.Sprintf("unexpected handshake reply %s", h.Opcode), protocol.ErrUnknownOpcode))
	}
}

// refuse records the handshake failure and resets the connection. It always
// returns a nil error so ProtoConnect can return it directly.
func (c *Client) refuse(conn net.Conn, reason error) error {
	logging.Warn("Handshake failed",
		zap.String("remote_addr", c.addr),
		zap.Error(reason),
	)

	c.mu.Lock()
	c.handshakeErr = reason
	if c.conn == conn {
		c.resetLocked()
	}
	c.mu.Unlock()
	return nil
}

// SendStepperMoveTo commands a stepper to a target position. No reply is read.
func (c *Client) SendStepperMoveTo(stepper uint8, target int32) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	conn, err := c.require("stepper_move_to", StateReady)
	if err != nil {
		return err
	}

	if err := c.send(conn, protocol.BuildStepperMoveTo(stepper, target), protocol.OpStepperMoveTo); err != nil {
		return c.lost(conn, "stepper_move_to", err)
	}
	return nil
}

// StepperEnableDisable powers a stepper driver on or off. No reply is read.
func (c *Client) StepperEnableDisable(stepper uint8, enabled bool) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	conn, err := c.require("stepper_enable_disable", StateReady)
	if err != nil {
		return err
	}

	if err := c.send(conn, protocol.BuildStepperEnableDisable(stepper, enabled), protocol.OpStepperEnableDisable); err != nil {
		return c.lost(conn, "stepper_enable_disable", err)
	}
	return nil
}

// GetStepperInfo requests telemetry for every stepper.
//
// A reply with an opcode other than StepperInfoResponse yields (nil, nil):
// the caller should treat it as no data. A reply whose record chain is
// malformed yields a protocol error and leaves the connection open. Transport
// failures close the connection.
func (c *Client) GetStepperInfo() ([]protocol.StepperInfo, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	conn, err := c.require("get_stepper_info", StateReady)
	if err != nil {
		return nil, err
	}

	if err := c.send(conn, protocol.BuildStepperInfoRequest(), protocol.OpStepperInfoRequest); err != nil {
		return nil, c.lost(conn, "get_stepper_info", err)
	}

	c.armDeadline(conn)
	n, err := protocol.ReadStepperInfoReply(conn, c.buf[:protocol.MaxInfoResponseSize])
	if err != nil {
		return nil, c.lost(conn, "get_stepper_info", err)
	}
	data := c.buf[:n]

	h, err := protocol.ParseHeader(data)
	if err != nil {
		return nil, err
	}
	logging.LogPacket(c.addr, "received", h.Opcode, data, zap.Stringer("summary", protocol.Summary(data)))

	if h.Opcode != protocol.OpStepperInfoResponse {
		logging.Debug("Telemetry reply carried no stepper info",
			zap.String("remote_addr", c.addr),
			zap.Stringer("opcode", h.Opcode),
		)
		return nil, nil
	}

	steppers, _, err := protocol.ParseStepperInfoRecords(data)
	if err != nil {
		logging.Warn("Malformed telemetry reply",
			zap.String("remote_addr", c.addr),
			zap.Error(err),
		)
		return nil, err
	}

	out := make([]protocol.StepperInfo, len(steppers))
	copy(out, steppers)
	return out, nil
}

// Reset half-closes the connection in both directions and releases it. The
// client is closed afterwards; calling Reset again is a precondition
// violation.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected && c.state != StateReady {
		return deverr.NewPreconditionError("reset",
			fmt.Sprintf("no open connection (state %s)", c.state))
	}
	c.resetLocked()
	return nil
}

// Connect opens the TCP connection and performs the handshake. A refused
// handshake returns an error matching ErrRejected that also wraps the
// underlying reason.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.TCPConnect(ctx); err != nil {
		return err
	}

	ok, err := c.ProtoConnect()
	if err != nil {
		return err
	}
	if !ok {
		reason := c.HandshakeError()
		if reason == nil || errors.Is(reason, ErrRejected) {
			return fmt.Errorf("%s: %w", c.addr, ErrRejected)
		}
		return fmt.Errorf("%s: %w: %w", c.addr, ErrRejected, reason)
	}
	return nil
}

// MoveStepperTo is SendStepperMoveTo for presentation code
func (c *Client) MoveStepperTo(stepper uint8, position int32) error {
	return c.SendStepperMoveTo(stepper, position)
}

// SetStepperEnabled is StepperEnableDisable for presentation code
func (c *Client) SetStepperEnabled(stepper uint8, enabled bool) error {
	return c.StepperEnableDisable(stepper, enabled)
}

// QueryStepperInfo is GetStepperInfo for presentation code
func (c *Client) QueryStepperInfo() ([]protocol.StepperInfo, error) {
	return c.GetStepperInfo()
}

// Close releases the connection if one is open. Unlike Reset it is safe to
// call in any state and more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnected, StateReady:
		c.resetLocked()
	case StateUnconnected:
		c.setStateLocked(StateClosed)
	}
	return nil
}

// require checks the state and returns the connection to use
func (c *Client) require(op string, want State) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != want {
		return nil, deverr.NewPreconditionError(op,
			fmt.Sprintf("requires state %s, client is %s", want, c.state))
	}
	return c.conn, nil
}

func (c *Client) send(conn net.Conn, pkt []byte, op protocol.Opcode) error {
	c.armDeadline(conn)
	logging.LogPacket(c.addr, "sent", op, pkt, zap.Stringer("summary", protocol.Summary(pkt)))
	_, err := conn.Write(pkt)
	return err
}

func (c *Client) armDeadline(conn net.Conn) {
	if c.ioTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.ioTimeout))
	} else {
		_ = conn.SetDeadline(time.Time{})
	}
}

// lost closes the connection after a transport failure
func (c *Client) lost(conn net.Conn, op string, err error) error {
	terr := deverr.NewTransportError(op, c.addr, err)
	logging.Warn("Connection lost", zap.String("remote_addr", c.addr), zap.Error(terr))

	c.mu.Lock()
	if c.conn == conn {
		c.resetLocked()
	}
	c.mu.Unlock()
	return terr
}

func (c *Client) resetLocked() {
	if c.conn != nil {
		if tcp, ok := c.conn.(*net.TCPConn); ok {
			_ = tcp.CloseRead()
			_ = tcp.CloseWrite()
		}
		_ = c.conn.Close()
		c.conn = nil
		logging.LogConnection(c.addr, "closed")
	}
	c.setStateLocked(StateClosed)
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	logging.LogStateChange(c.addr, c.state, s)
	c.state = s
}
