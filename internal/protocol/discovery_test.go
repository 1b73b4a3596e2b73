package protocol

import (
	"errors"
	"testing"
)

func TestBuildProbe(t *testing.T) {
	want := []byte{0x32, 0x71, 0x01}
	if got := BuildProbe(); string(got) != string(want) {
		t.Errorf("BuildProbe() = % x, want % x", got, want)
	}
	if err := ParseProbe(BuildProbe()); err != nil {
		t.Errorf("ParseProbe(BuildProbe()) error = %v", err)
	}
}

func TestParseProbe_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"short", []byte{0x32, 0x71}, ErrShortPacket},
		{"foreign id", []byte{0x00, 0x10, 0x01}, ErrForeignDevice},
		{"response flag only", []byte{0x32, 0x71, 0x02}, ErrNotRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ParseProbe(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseProbe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDiscoveryResponse_RoundTrip(t *testing.T) {
	pkt, err := BuildDiscoveryResponse(8085, "bench-rig")
	if err != nil {
		t.Fatalf("BuildDiscoveryResponse() error = %v", err)
	}

	resp, err := ParseDiscoveryResponse(pkt)
	if err != nil {
		t.Fatalf("ParseDiscoveryResponse() error = %v", err)
	}
	if resp.Port != 8085 {
		t.Errorf("Port = %d, want 8085", resp.Port)
	}
	if resp.Name != "bench-rig" {
		t.Errorf("Name = %q, want %q", resp.Name, "bench-rig")
	}
	if resp.DeviceID != DeviceIDProjectA {
		t.Errorf("DeviceID = 0x%04x", resp.DeviceID)
	}
}

func TestParseDiscoveryResponse(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantName string
		wantErr  error
	}{
		{
			name:     "name without terminator on the wire",
			data:     []byte{0x32, 0x71, 0x02, 0x95, 0x1F, 0x04, 0x00, 'a', 'b', 'c'},
			wantName: "abc",
		},
		{
			name:     "response flag with extra bits",
			data:     []byte{0x32, 0x71, 0x03, 0x95, 0x1F, 0x02, 0x00, 'x', 0x00},
			wantName: "x",
		},
		{
			name:     "empty name",
			data:     []byte{0x32, 0x71, 0x02, 0x95, 0x1F, 0x01, 0x00},
			wantName: "",
		},
		{
			name:    "foreign device",
			data:    []byte{0x33, 0x71, 0x02, 0x95, 0x1F, 0x01, 0x00},
			wantErr: ErrForeignDevice,
		},
		{
			name:    "request instead of response",
			data:    []byte{0x32, 0x71, 0x01, 0x95, 0x1F, 0x01, 0x00},
			wantErr: ErrNotResponse,
		},
		{
			name:    "zero name length",
			data:    []byte{0x32, 0x71, 0x02, 0x95, 0x1F, 0x00, 0x00},
			wantErr: ErrMalformedName,
		},
		{
			name:    "name longer than datagram",
			data:    []byte{0x32, 0x71, 0x02, 0x95, 0x1F, 0x10, 0x00, 'a'},
			wantErr: ErrMalformedName,
		},
		{
			name:    "invalid utf-8",
			data:    []byte{0x32, 0x71, 0x02, 0x95, 0x1F, 0x02, 0x00, 0xFF},
			wantErr: ErrMalformedName,
		},
		{
			name:    "short header",
			data:    []byte{0x32, 0x71, 0x02, 0x95},
			wantErr: ErrShortPacket,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseDiscoveryResponse(tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error = %v", err)
			}
			if resp.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", resp.Name, tt.wantName)
			}
			if resp.Port != 0x1F95 {
				t.Errorf("Port = %d, want %d", resp.Port, 0x1F95)
			}
		})
	}
}
