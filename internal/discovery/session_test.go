package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/projecta-dev/projecta/internal/deverr"
	"github.com/projecta-dev/projecta/internal/logging"
	"github.com/projecta-dev/projecta/internal/protocol"
)

func udpAddr(ip string, port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
}

func mustResponse(t *testing.T, port uint16, name string) []byte {
	t.Helper()
	pkt, err := protocol.BuildDiscoveryResponse(port, name)
	if err != nil {
		t.Fatalf("BuildDiscoveryResponse() error = %v", err)
	}
	return pkt
}

func TestDevice_String(t *testing.T) {
	d := &Device{Name: "bench", IP: "192.168.1.20", Port: 8085}
	if got, want := d.String(), "Project-A bench at 192.168.1.20:8085"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	d.Name = ""
	if got, want := d.String(), "Project-A (unnamed) at 192.168.1.20:8085"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestSession_HandleDatagram_Dedup(t *testing.T) {
	s := NewSession()

	if !s.HandleDatagram(mustResponse(t, 8085, "first"), udpAddr("10.0.0.7", 40000)) {
		t.Fatal("first response should be accepted")
	}
	if s.HandleDatagram(mustResponse(t, 9000, "second"), udpAddr("10.0.0.7", 40001)) {
		t.Error("second response from same IP should be dropped")
	}
	if !s.HandleDatagram(mustResponse(t, 8085, "other"), udpAddr("10.0.0.8", 40000)) {
		t.Error("response from a different IP should be accepted")
	}

	devices := s.Devices()
	if len(devices) != 2 {
		t.Fatalf("Devices() = %d entries, want 2", len(devices))
	}
	if devices[0].Name != "first" || devices[0].Port != 8085 {
		t.Errorf("first device = %+v, want name first port 8085", devices[0])
	}
	if devices[1].IP != "10.0.0.8" {
		t.Errorf("second device IP = %q, want 10.0.0.8", devices[1].IP)
	}
	if devices[0].Source != SourceUDP {
		t.Errorf("Source = %q, want %q", devices[0].Source, SourceUDP)
	}
}

func TestSession_HandleDatagram_Filtering(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"probe echo", protocol.BuildProbe()},
		{"foreign device id", []byte{0x11, 0x22, 0x02, 0x95, 0x1F, 0x01, 0x00}},
		{"response flag unset", []byte{0x32, 0x71, 0x00, 0x95, 0x1F, 0x01, 0x00}},
		{"zero name length", []byte{0x32, 0x71, 0x02, 0x95, 0x1F, 0x00, 0x00}},
		{"truncated name", []byte{0x32, 0x71, 0x02, 0x95, 0x1F, 0x09, 0x00, 'a'}},
		{"empty datagram", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession()
			if s.HandleDatagram(tt.data, udpAddr("10.0.0.9", 1)) {
				t.Error("datagram should be dropped")
			}
			if len(s.Devices()) != 0 {
				t.Error("no device should be recorded")
			}
		})
	}
}

func TestSession_HandleDatagram_LogsDroppedBytes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	defer logging.SetLogger(nil)

	s := NewSession()
	foreign := []byte{0x11, 0x22, 0x02, 0x95, 0x1F, 0x03, 0x00, 'h', 'i'}
	if s.HandleDatagram(foreign, udpAddr("10.0.0.9", 4000)) {
		t.Fatal("datagram should be dropped")
	}

	entries := logs.FilterMessage("Dropped discovery datagram").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d drop entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["remote_addr"] != "10.0.0.9:4000" {
		t.Errorf("remote_addr = %v, want 10.0.0.9:4000", fields["remote_addr"])
	}
	if fields["ascii"] != ".\".....hi" {
		t.Errorf("ascii = %q, want %q", fields["ascii"], ".\".....hi")
	}
	if fields["reason"] == "" {
		t.Error("reason should be set")
	}
}

func TestSession_Preconditions(t *testing.T) {
	s := NewSession()

	if _, err := s.Poll(time.Now()); !deverr.IsPrecondition(err) {
		t.Errorf("Poll() on idle session error = %v, want precondition violation", err)
	}

	s.BroadcastAddr = "127.0.0.1"
	if err := s.Start(9, time.Second, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()

	if err := s.Start(9, time.Second, 0); !deverr.IsPrecondition(err) {
		t.Errorf("second Start() error = %v, want precondition violation", err)
	}
	if !s.Active() {
		t.Error("session should still be active")
	}
}

func TestSession_ZeroProbesWaitsOutTimeout(t *testing.T) {
	s := NewSession()
	s.BroadcastAddr = "127.0.0.1"

	const timeout = 60 * time.Millisecond
	begin := time.Now()
	if err := s.Start(9, timeout, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for {
		status, err := s.Poll(time.Now())
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if status == StatusFinished {
			break
		}
	}

	if elapsed := time.Since(begin); elapsed < timeout {
		t.Errorf("session finished after %v, before the %v timeout", elapsed, timeout)
	}
	if s.Active() {
		t.Error("session should be idle after finishing")
	}
	if len(s.Devices()) != 0 {
		t.Errorf("Devices() = %d entries, want 0", len(s.Devices()))
	}
}

func TestSession_PollHonoursNow(t *testing.T) {
	s := NewSession()
	s.BroadcastAddr = "127.0.0.1"
	if err := s.Start(9, time.Hour, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	status, err := s.Poll(time.Now())
	if err != nil || status != StatusContinue {
		t.Fatalf("Poll(now) = %v, %v; want continue", status, err)
	}

	status, err = s.Poll(time.Now().Add(2 * time.Hour))
	if err != nil || status != StatusFinished {
		t.Fatalf("Poll(now+2h) = %v, %v; want finished", status, err)
	}
	if s.Active() {
		t.Error("session should be idle")
	}
}

// mockDevice answers every valid probe it receives with a fixed response
func mockDevice(t *testing.T, port uint16, name string, extra ...[]byte) (*net.UDPConn, uint16) {
	t.Helper()

	conn, err := net.ListenUDP("udp4", udpAddr("127.0.0.1", 0))
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}

	resp := mustResponse(t, port, name)
	go func() {
		buf := make([]byte, 64)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if protocol.ParseProbe(buf[:n]) != nil {
				continue
			}
			for _, e := range extra {
				_, _ = conn.WriteToUDP(e, from)
			}
			_, _ = conn.WriteToUDP(resp, from)
		}
	}()

	return conn, uint16(conn.LocalAddr().(*net.UDPAddr).Port)
}

func TestScanner_Loopback(t *testing.T) {
	noise := []byte{0xde, 0xad, 0xbe, 0xef}
	dev, port := mockDevice(t, 8085, "loop-rig", noise)
	defer dev.Close()

	scanner := &Scanner{
		Port:          port,
		Timeout:       300 * time.Millisecond,
		ProbeCount:    2,
		BroadcastAddr: "127.0.0.1",
	}

	devices, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	// two probes produce two responses, but only one device per source IP
	if len(devices) != 1 {
		t.Fatalf("Scan() = %d devices, want 1: %+v", len(devices), devices)
	}
	if devices[0].Name != "loop-rig" || devices[0].IP != "127.0.0.1" || devices[0].Port != 8085 {
		t.Errorf("device = %+v", devices[0])
	}
	if devices[0].Addr() != "127.0.0.1:8085" {
		t.Errorf("Addr() = %q", devices[0].Addr())
	}
}

func TestScanner_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := &Scanner{Port: 9, Timeout: time.Hour, BroadcastAddr: "127.0.0.1"}
	_, err := scanner.Scan(ctx)
	if err != context.Canceled {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
}

func TestStatus_String(t *testing.T) {
	if StatusContinue.String() != "continue" || StatusFinished.String() != "finished" {
		t.Error("unexpected Status names")
	}
}
