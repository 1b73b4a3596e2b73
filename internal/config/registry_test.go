package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "windows" && runtime.GOOS != "darwin" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
		dir, err := GetConfigDir()
		if err != nil {
			t.Fatalf("GetConfigDir() error = %v", err)
		}
		if dir != filepath.Join("/tmp/xdg-test", "projecta") {
			t.Errorf("GetConfigDir() = %v, want /tmp/xdg-test/projecta", dir)
		}
	}

	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", path)
	}
	if !strings.Contains(path, "projecta") {
		t.Errorf("GetConfigPath() = %v, should contain 'projecta'", path)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("Version = %v, want 1", reg.Version)
	}
	if reg.Devices == nil {
		t.Error("Devices should not be nil")
	}

	p := reg.Preferences
	if p.DiscoveryPort != 8084 || p.ControlPort != 8085 {
		t.Errorf("ports = %d/%d, want 8084/8085", p.DiscoveryPort, p.ControlPort)
	}
	if p.DiscoveryTimeout() != 500*time.Millisecond {
		t.Errorf("DiscoveryTimeout() = %v, want 500ms", p.DiscoveryTimeout())
	}
	if p.ProbeCount != 2 {
		t.Errorf("ProbeCount = %d, want 2", p.ProbeCount)
	}
	if p.InfoInterval() != 200*time.Millisecond {
		t.Errorf("InfoInterval() = %v, want 200ms", p.InfoInterval())
	}
	if err := reg.Validate(); err != nil {
		t.Errorf("default registry should be valid: %v", err)
	}
}

func TestPreferencesValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Preferences)
		wantErr string
	}{
		{"defaults", func(p *Preferences) {}, ""},
		{"zero discovery port", func(p *Preferences) { p.DiscoveryPort = 0 }, "discovery_port"},
		{"zero control port", func(p *Preferences) { p.ControlPort = 0 }, "control_port"},
		{"zero probes allowed", func(p *Preferences) { p.ProbeCount = 0 }, ""},
		{"too many probes", func(p *Preferences) { p.ProbeCount = 41 }, "probe_count"},
		{"interval too short", func(p *Preferences) { p.InfoIntervalMs = 49 }, "info_interval_ms"},
		{"interval too long", func(p *Preferences) { p.InfoIntervalMs = 1001 }, "info_interval_ms"},
		{"negative timeout", func(p *Preferences) { p.DiscoveryTimeoutMs = -1 }, "discovery_timeout_ms"},
		{"bad log level", func(p *Preferences) { p.LogLevel = "trace" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPreferences()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryEnsureDevice(t *testing.T) {
	reg := NewRegistry()

	device1 := reg.EnsureDevice("bench")
	if device1 == nil {
		t.Fatal("EnsureDevice() returned nil")
	}
	if device2 := reg.EnsureDevice("bench"); device1 != device2 {
		t.Error("EnsureDevice() should return same instance for same name")
	}
	if device3 := reg.EnsureDevice("lathe"); device1 == device3 {
		t.Error("EnsureDevice() should create new instance for different name")
	}
}

func TestRegistryUpdateDeviceLastSeen(t *testing.T) {
	reg := NewRegistry()

	before := time.Now()
	reg.UpdateDeviceLastSeen("bench", "192.168.1.100", 8085)
	after := time.Now()

	device := reg.GetDevice("bench")
	if device == nil {
		t.Fatal("Device should exist after UpdateDeviceLastSeen()")
	}
	if device.LastIP != "192.168.1.100" || device.LastPort != 8085 {
		t.Errorf("last address = %s:%d", device.LastIP, device.LastPort)
	}
	if device.LastSeen.Before(before) || device.LastSeen.After(after) {
		t.Errorf("LastSeen = %v, should be between %v and %v", device.LastSeen, before, after)
	}
}

func TestRegistryLabelsAndLookup(t *testing.T) {
	reg := NewRegistry()
	reg.SetDeviceNickname("projecta-01", "Camera Slider")
	reg.SetStepperLabel("projecta-01", 0, "Pan")
	reg.SetStepperLabel("projecta-01", 1, "Tilt")
	reg.SetStepperLabel("projecta-01", 1, "")

	name, dev := reg.Lookup("camera slider")
	if name != "projecta-01" || dev == nil {
		t.Fatalf("Lookup(nickname) = %q, %v", name, dev)
	}
	if dev.StepperLabel(0) != "Pan" {
		t.Errorf("StepperLabel(0) = %q, want Pan", dev.StepperLabel(0))
	}
	if dev.StepperLabel(1) != "Stepper 1" {
		t.Errorf("StepperLabel(1) = %q, want default label", dev.StepperLabel(1))
	}
	if dev.DisplayName(name) != "Camera Slider" {
		t.Errorf("DisplayName() = %q", dev.DisplayName(name))
	}

	if name, dev := reg.Lookup("missing"); name != "" || dev != nil {
		t.Errorf("Lookup(missing) = %q, %v", name, dev)
	}

	var none *Device
	if none.StepperLabel(3) != "Stepper 3" {
		t.Error("nil device should fall back to default label")
	}
}

func TestRegistrySaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.Preferences.ProbeCount = 5
	reg.Preferences.LogLevel = "debug"
	reg.UpdateDeviceLastSeen("bench", "10.0.0.4", 9000)
	reg.SetStepperLabel("bench", 2, "Lift")

	if err := reg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain after save")
	}

	raw, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(raw), "# projecta configuration") {
		t.Error("saved file should start with the header comment")
	}

	loaded, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}
	if loaded.Path() != path {
		t.Errorf("Path() = %q, want %q", loaded.Path(), path)
	}
	if loaded.Preferences.ProbeCount != 5 || loaded.Preferences.LogLevel != "debug" {
		t.Errorf("preferences not preserved: %+v", loaded.Preferences)
	}
	dev := loaded.GetDevice("bench")
	if dev == nil || dev.LastPort != 9000 || dev.StepperLabel(2) != "Lift" {
		t.Errorf("device not preserved: %+v", dev)
	}

	// Save on a loaded registry writes back to the same file
	loaded.SetDeviceNickname("bench", "Bench Rig")
	if err := loaded.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	again, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}
	if again.GetDevice("bench").Nickname != "Bench Rig" {
		t.Error("Save() did not write back to the loaded path")
	}
}

func TestLoadRegistryFrom_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	reg, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}
	if reg.Preferences.ControlPort != DefaultControlPort {
		t.Error("missing file should yield defaults")
	}
	if reg.Path() != path {
		t.Errorf("Path() = %q, want %q", reg.Path(), path)
	}
}

func TestLoadRegistryFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "version: [1", "failed to parse"},
		{"wrong version", "version: 2\n", "unsupported config version"},
		{"bad interval", "version: 1\npreferences:\n  discovery_port: 8084\n  discovery_timeout_ms: 500\n  control_port: 8085\n  info_interval_ms: 5\n", "info_interval_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			_, err := LoadRegistryFrom(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadRegistryFrom() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRegistry_Global(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux and other Unix systems")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	reg, err := ReloadRegistry()
	if err != nil {
		t.Fatalf("ReloadRegistry() error = %v", err)
	}
	reg.SetDeviceNickname("global", "G")
	if err := reg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	same, err := LoadRegistry()
	if err != nil || same != reg {
		t.Errorf("LoadRegistry() should return the cached instance")
	}

	fresh, err := ReloadRegistry()
	if err != nil {
		t.Fatalf("ReloadRegistry() error = %v", err)
	}
	if fresh.GetDevice("global") == nil {
		t.Error("reloaded registry should contain the saved device")
	}
}
