package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/projecta-dev/projecta/internal/config"
	"github.com/projecta-dev/projecta/internal/control"
	"github.com/projecta-dev/projecta/internal/discovery"
)

func withFlags(t *testing.T, device string, port uint16) {
	t.Helper()
	oldReg, oldDevice, oldPort, oldInterval := registry, deviceFlag, portFlag, watchInterval
	t.Cleanup(func() {
		registry, deviceFlag, portFlag, watchInterval = oldReg, oldDevice, oldPort, oldInterval
	})
	registry = config.NewRegistry()
	deviceFlag = device
	portFlag = port
	watchInterval = 0
}

func TestParseStepper(t *testing.T) {
	tests := []struct {
		arg     string
		want    uint8
		wantErr bool
	}{
		{"0", 0, false},
		{"7", 7, false},
		{"255", 255, false},
		{"256", 0, true},
		{"-1", 0, true},
		{"x", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseStepper(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseStepper(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseStepper(%q) = %d, want %d", tt.arg, got, tt.want)
			}
		})
	}
}

func TestResolveDevice(t *testing.T) {
	tests := []struct {
		name     string
		device   string
		port     uint16
		setup    func(r *config.Registry)
		wantName string
		wantIP   string
		wantPort uint16
		wantErr  bool
	}{
		{
			name:     "plain IP uses preference port",
			device:   "192.168.1.40",
			wantIP:   "192.168.1.40",
			wantPort: config.DefaultControlPort,
		},
		{
			name:     "port flag overrides",
			device:   "192.168.1.40",
			port:     9000,
			wantIP:   "192.168.1.40",
			wantPort: 9000,
		},
		{
			name:     "host and port",
			device:   "10.0.0.2:7000",
			wantIP:   "10.0.0.2",
			wantPort: 7000,
		},
		{
			name:    "bad port",
			device:  "10.0.0.2:http",
			wantErr: true,
		},
		{
			name:   "registry name",
			device: "bench",
			setup: func(r *config.Registry) {
				r.UpdateDeviceLastSeen("bench", "192.168.1.50", 8095)
			},
			wantName: "bench",
			wantIP:   "192.168.1.50",
			wantPort: 8095,
		},
		{
			name:   "nickname",
			device: "Lathe",
			setup: func(r *config.Registry) {
				r.UpdateDeviceLastSeen("ctrl-01", "192.168.1.51", 8085)
				r.SetDeviceNickname("ctrl-01", "lathe")
			},
			wantName: "ctrl-01",
			wantIP:   "192.168.1.51",
			wantPort: 8085,
		},
		{
			name:   "registry entry without address is a host",
			device: "bench",
			setup: func(r *config.Registry) {
				r.SetDeviceNickname("bench", "b")
			},
			wantIP:   "bench",
			wantPort: config.DefaultControlPort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFlags(t, tt.device, tt.port)
			if tt.setup != nil {
				tt.setup(registry)
			}

			got, err := resolveDevice(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveDevice() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Name != tt.wantName || got.IP != tt.wantIP || got.Port != tt.wantPort {
				t.Errorf("resolveDevice() = %q %s:%d, want %q %s:%d",
					got.Name, got.IP, got.Port, tt.wantName, tt.wantIP, tt.wantPort)
			}
		})
	}
}

func TestTelemetryInterval(t *testing.T) {
	withFlags(t, "", 0)

	if got := telemetryInterval(); got != control.DefaultInterval {
		t.Errorf("default interval = %v, want %v", got, control.DefaultInterval)
	}

	registry.Preferences.InfoIntervalMs = 500
	if got := telemetryInterval(); got != 500*time.Millisecond {
		t.Errorf("preference interval = %v, want 500ms", got)
	}

	watchInterval = 5 * time.Second
	if got := telemetryInterval(); got != control.MaxInterval {
		t.Errorf("flag interval = %v, want clamp to %v", got, control.MaxInterval)
	}
}

func TestRememberDevicesSkipsUnnamed(t *testing.T) {
	withFlags(t, "", 0)
	reg, err := config.LoadRegistryFrom(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	registry = reg

	rememberDevices([]discovery.Device{
		{Name: "bench", IP: "192.168.1.50", Port: 8085},
		{IP: "192.168.1.60", Port: 8085},
	})

	if len(registry.Devices) != 1 {
		t.Fatalf("Devices = %d, want 1", len(registry.Devices))
	}
	if d := registry.GetDevice("bench"); d == nil || d.LastIP != "192.168.1.50" {
		t.Errorf("bench = %+v, want last_ip 192.168.1.50", d)
	}

	saved, err := config.LoadRegistryFrom(registry.Path())
	if err != nil {
		t.Fatal(err)
	}
	if saved.GetDevice("bench") == nil {
		t.Error("bench was not saved")
	}
}
