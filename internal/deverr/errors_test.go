package deverr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
)

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		et   ErrorType
		want string
	}{
		{ErrTypeSocket, "Socket Error"},
		{ErrTypeConnect, "Connect Error"},
		{ErrTypeTransport, "Transport Error"},
		{ErrTypeProtocol, "Protocol Error"},
		{ErrTypePrecondition, "Precondition Violation"},
		{ErrorType(42), "ErrorType(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.et.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	err := NewTransportError("send_stepper_move_to", "10.0.0.2:8085", syscall.EPIPE)
	msg := err.Error()

	for _, want := range []string{"Transport Error", "send_stepper_move_to", "broken pipe", "10.0.0.2:8085", "caused by"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, should contain %q", msg, want)
		}
	}
}

func TestError_IsSentinel(t *testing.T) {
	err := fmt.Errorf("query: %w", NewPreconditionError("get_stepper_info", "client is not ready"))

	if !errors.Is(err, ErrPrecondition) {
		t.Error("errors.Is(err, ErrPrecondition) = false, want true")
	}
	if errors.Is(err, ErrTransport) {
		t.Error("errors.Is(err, ErrTransport) = true, want false")
	}
	if !IsPrecondition(err) {
		t.Error("IsPrecondition() = false, want true")
	}
	if IsProtocolError(err) {
		t.Error("IsProtocolError() = true, want false")
	}
}

func TestError_Unwrap(t *testing.T) {
	err := NewSocketError("start", "failed to bind", syscall.EADDRINUSE)
	if !errors.Is(err, syscall.EADDRINUSE) {
		t.Error("underlying error should be reachable through Unwrap")
	}
}

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want NetworkErrorSubtype
	}{
		{"nil", nil, NetworkErrorGeneral},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, NetworkErrorConnectionRefused},
		{"host unreachable", &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, NetworkErrorHostUnreachable},
		{"network unreachable", &net.OpError{Op: "dial", Err: syscall.ENETUNREACH}, NetworkErrorNetworkUnreachable},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, NetworkErrorConnectionReset},
		{"eof", io.EOF, NetworkErrorConnectionReset},
		{"broken pipe", &net.OpError{Op: "write", Err: syscall.EPIPE}, NetworkErrorBrokenPipe},
		{"dns", &net.DNSError{Name: "nowhere.invalid", Err: "no such host"}, NetworkErrorDNS},
		{"closed", fmt.Errorf("read: %w", net.ErrClosed), NetworkErrorClosed},
		{"deadline", context.DeadlineExceeded, NetworkErrorTimeout},
		{"other", errors.New("boom"), NetworkErrorGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyNetworkError(tt.err); got != tt.want {
				t.Errorf("ClassifyNetworkError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewConnectError_Message(t *testing.T) {
	err := NewConnectError("192.168.1.20:8085", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED})

	if err.Type != ErrTypeConnect {
		t.Errorf("Type = %v, want %v", err.Type, ErrTypeConnect)
	}
	if err.Message != "device refused connection" {
		t.Errorf("Message = %q, want %q", err.Message, "device refused connection")
	}
	if !IsConnectError(err) {
		t.Error("IsConnectError() = false, want true")
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain error", errors.New("x"), "unexpected error"},
		{"socket", NewSocketError("start", "bind", nil), "UDP socket"},
		{"refused", NewConnectError("1.2.3.4:8085", syscall.ECONNREFUSED), "refused"},
		{"transport", NewTransportError("op", "a", io.EOF), "connection to the device was lost"},
		{"protocol", NewProtocolError("op", "bad", nil), "firmware mismatch"},
		{"precondition", NewPreconditionError("op", "not ready"), "wrong connection state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hint := GetTroubleshootingHint(tt.err)
			if !strings.Contains(hint, tt.want) {
				t.Errorf("GetTroubleshootingHint() = %q, should contain %q", hint, tt.want)
			}
		})
	}
}

func TestGetShortErrorMessage(t *testing.T) {
	if got := GetShortErrorMessage(errors.New("plain")); got != "plain" {
		t.Errorf("GetShortErrorMessage(plain) = %q, want %q", got, "plain")
	}
	if got := GetShortErrorMessage(NewTransportError("op", "a", io.EOF)); got != "Connection to device lost" {
		t.Errorf("GetShortErrorMessage(transport) = %q", got)
	}
	if got := GetShortErrorMessage(NewPreconditionError("op", "client is closed")); got != "client is closed" {
		t.Errorf("GetShortErrorMessage(precondition) = %q", got)
	}
}
