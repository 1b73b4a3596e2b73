package deverr

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeSocket indicates a socket could not be created, configured or bound
	ErrTypeSocket ErrorType = iota
	// ErrTypeConnect indicates the TCP connection to the device could not be opened
	ErrTypeConnect
	// ErrTypeTransport indicates a send or receive failed on an established connection
	ErrTypeTransport
	// ErrTypeProtocol indicates a malformed header, unexpected opcode or wrong length
	ErrTypeProtocol
	// ErrTypePrecondition indicates an operation was invoked in the wrong state
	ErrTypePrecondition
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
	NetworkErrorConnectionReset
	NetworkErrorBrokenPipe
	NetworkErrorClosed
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeSocket:
		return "Socket Error"
	case ErrTypeConnect:
		return "Connect Error"
	case ErrTypeTransport:
		return "Transport Error"
	case ErrTypeProtocol:
		return "Protocol Error"
	case ErrTypePrecondition:
		return "Precondition Violation"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Kind sentinels for errors.Is matching. Any *Error of the same type matches.
var (
	ErrSocket       = &Error{Type: ErrTypeSocket, Message: "socket error"}
	ErrConnect      = &Error{Type: ErrTypeConnect, Message: "connect error"}
	ErrTransport    = &Error{Type: ErrTypeTransport, Message: "transport error"}
	ErrProtocol     = &Error{Type: ErrTypeProtocol, Message: "protocol error"}
	ErrPrecondition = &Error{Type: ErrTypePrecondition, Message: "precondition violation"}
)

// Error represents an error that occurred while talking to a device
type Error struct {
	Type           ErrorType           // Category of error
	Op             string              // Operation that failed (e.g. "proto_connect")
	Message        string              // Human-readable error message
	Addr           string              // Device address (for context)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Type.String())
	b.WriteString(": ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Addr != "" {
		fmt.Fprintf(&b, " [%s]", e.Addr)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a kind sentinel of the same type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Addr == "" && t.Err == nil && t.Type == e.Type
}

// ClassifyNetworkError determines the network subtype of a low-level error
func ClassifyNetworkError(err error) NetworkErrorSubtype {
	if err == nil {
		return NetworkErrorGeneral
	}

	if os.IsTimeout(err) {
		return NetworkErrorTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NetworkErrorDNS
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return NetworkErrorConnectionRefused
	case errors.Is(err, syscall.EHOSTUNREACH):
		return NetworkErrorHostUnreachable
	case errors.Is(err, syscall.ENETUNREACH):
		return NetworkErrorNetworkUnreachable
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return NetworkErrorConnectionReset
	case errors.Is(err, syscall.EPIPE):
		return NetworkErrorBrokenPipe
	case errors.Is(err, net.ErrClosed):
		return NetworkErrorClosed
	}

	return NetworkErrorGeneral
}

// NewSocketError creates a socket create/bind/configure error
func NewSocketError(op, message string, err error) *Error {
	return &Error{
		Type:           ErrTypeSocket,
		Op:             op,
		Message:        message,
		Err:            err,
		NetworkSubtype: ClassifyNetworkError(err),
	}
}

// NewConnectError creates a TCP connect error with automatic classification
func NewConnectError(addr string, err error) *Error {
	subtype := ClassifyNetworkError(err)

	message := "failed to connect"
	switch subtype {
	case NetworkErrorTimeout:
		message = "connection timed out"
	case NetworkErrorConnectionRefused:
		message = "device refused connection"
	case NetworkErrorDNS:
		message = "host name resolution failed"
	case NetworkErrorHostUnreachable:
		message = "host unreachable"
	case NetworkErrorNetworkUnreachable:
		message = "network unreachable"
	}

	return &Error{
		Type:           ErrTypeConnect,
		Op:             "tcp_connect",
		Message:        message,
		Addr:           addr,
		Err:            err,
		NetworkSubtype: subtype,
	}
}

// NewTransportError creates a send/receive failure on an established connection
func NewTransportError(op, addr string, err error) *Error {
	subtype := ClassifyNetworkError(err)

	message := "i/o failure"
	switch subtype {
	case NetworkErrorConnectionReset:
		message = "connection reset by device"
	case NetworkErrorBrokenPipe:
		message = "broken pipe"
	case NetworkErrorTimeout:
		message = "i/o timeout"
	case NetworkErrorClosed:
		message = "connection closed"
	}

	return &Error{
		Type:           ErrTypeTransport,
		Op:             op,
		Message:        message,
		Addr:           addr,
		Err:            err,
		NetworkSubtype: subtype,
	}
}

// NewProtocolError creates a framing/opcode error
func NewProtocolError(op, message string, err error) *Error {
	return &Error{
		Type:    ErrTypeProtocol,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewPreconditionError creates an error for an operation invoked in the wrong state
func NewPreconditionError(op, message string) *Error {
	return &Error{
		Type:    ErrTypePrecondition,
		Op:      op,
		Message: message,
	}
}

func isType(err error, t ErrorType) bool {
	var devErr *Error
	if errors.As(err, &devErr) {
		return devErr.Type == t
	}
	return false
}

// IsSocketError checks if an error is a socket error
func IsSocketError(err error) bool { return isType(err, ErrTypeSocket) }

// IsConnectError checks if an error is a TCP connect error
func IsConnectError(err error) bool { return isType(err, ErrTypeConnect) }

// IsTransportError checks if an error is a transport error
func IsTransportError(err error) bool { return isType(err, ErrTypeTransport) }

// IsProtocolError checks if an error is a protocol error
func IsProtocolError(err error) bool { return isType(err, ErrTypeProtocol) }

// IsPrecondition checks if an error is a precondition violation
func IsPrecondition(err error) bool { return isType(err, ErrTypePrecondition) }

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var devErr *Error
	if !errors.As(err, &devErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Type {
	case ErrTypeSocket:
		return strings.Join([]string{
			"The local UDP socket could not be opened.",
			"Troubleshooting:",
			"  • Check that no other tool holds the discovery port exclusively",
			"  • Broadcast may be blocked by your firewall",
			"  • Try a different --port value",
		}, "\n")

	case ErrTypeConnect:
		switch devErr.NetworkSubtype {
		case NetworkErrorConnectionRefused:
			return strings.Join([]string{
				"The device refused the connection.",
				"Troubleshooting:",
				"  • Verify the control port (default is 8085)",
				"  • Another client may already hold the control session",
				"  • Try rebooting the device",
			}, "\n")
		case NetworkErrorTimeout:
			return strings.Join([]string{
				"The device did not answer in time.",
				"Troubleshooting:",
				"  • Check that the device is powered on",
				"  • Run 'projecta scan' to confirm its current address",
			}, "\n")
		case NetworkErrorHostUnreachable, NetworkErrorNetworkUnreachable:
			return strings.Join([]string{
				"The device is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify you're on the same network segment as the device",
				"  • Try pinging the device: ping " + strings.Split(devErr.Addr, ":")[0],
			}, "\n")
		default:
			return "Could not connect to the device. Check the address and port."
		}

	case ErrTypeTransport:
		return strings.Join([]string{
			"The connection to the device was lost.",
			"Troubleshooting:",
			"  • The session is closed; create a new connection",
			"  • Check the device power supply and network link",
		}, "\n")

	case ErrTypeProtocol:
		return strings.Join([]string{
			"The device sent a packet that could not be understood.",
			"This may indicate a firmware mismatch.",
		}, "\n")

	case ErrTypePrecondition:
		return "The operation was used in the wrong connection state. This is a bug in the caller."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var devErr *Error
	if !errors.As(err, &devErr) {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeSocket:
		return "Cannot open discovery socket"
	case ErrTypeConnect:
		switch devErr.NetworkSubtype {
		case NetworkErrorConnectionRefused:
			return "Device refused connection"
		case NetworkErrorTimeout:
			return "Device not responding (timeout)"
		case NetworkErrorDNS:
			return "Cannot resolve device hostname"
		default:
			return "Cannot connect to device"
		}
	case ErrTypeTransport:
		return "Connection to device lost"
	case ErrTypeProtocol:
		return "Device sent an invalid packet"
	default:
		return devErr.Message
	}
}
