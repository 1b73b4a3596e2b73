package config

import (
	"fmt"
	"strings"
	"time"
)

// CurrentVersion is the registry file format version
const CurrentVersion = 1

// Preference defaults and limits
const (
	DefaultDiscoveryPort      = 8084
	DefaultDiscoveryTimeoutMs = 500
	DefaultProbeCount         = 2
	DefaultControlPort        = 8085
	DefaultInfoIntervalMs     = 200

	MinProbeCount     = 0
	MaxProbeCount     = 40
	MinInfoIntervalMs = 50
	MaxInfoIntervalMs = 1000
)

// Registry represents the entire user configuration file.
// It stores preferences and remembered devices.
type Registry struct {
	Version     int                `yaml:"version"`
	Preferences *Preferences       `yaml:"preferences,omitempty"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by the device's discovery name

	// path is where the registry was loaded from; Save writes back there
	path string
}

// Preferences holds the defaults used by every command. Command-line flags
// override them for a single run.
type Preferences struct {
	DiscoveryPort      uint16 `yaml:"discovery_port"`
	DiscoveryTimeoutMs int    `yaml:"discovery_timeout_ms"`
	ProbeCount         int    `yaml:"probe_count"`
	ControlPort        uint16 `yaml:"control_port"`
	InfoIntervalMs     int    `yaml:"info_interval_ms"`
	LogLevel           string `yaml:"log_level,omitempty"` // Empty keeps logging silent
}

// Device is what the user has told us about one controller
type Device struct {
	Nickname string               `yaml:"nickname,omitempty"`
	LastIP   string               `yaml:"last_ip,omitempty"`
	LastPort uint16               `yaml:"last_port,omitempty"`
	LastSeen time.Time            `yaml:"last_seen,omitempty"`
	Steppers map[int]*StepperMeta `yaml:"steppers,omitempty"` // Keyed by motor index
}

// StepperMeta labels a single motor, e.g. "X axis" or "Turntable"
type StepperMeta struct {
	Label string `yaml:"label"`
}

// DefaultPreferences returns the built-in preferences
func DefaultPreferences() *Preferences {
	return &Preferences{
		DiscoveryPort:      DefaultDiscoveryPort,
		DiscoveryTimeoutMs: DefaultDiscoveryTimeoutMs,
		ProbeCount:         DefaultProbeCount,
		ControlPort:        DefaultControlPort,
		InfoIntervalMs:     DefaultInfoIntervalMs,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Preferences: DefaultPreferences(),
		Devices:     make(map[string]*Device),
	}
}

// DiscoveryTimeout returns the discovery window as a duration
func (p *Preferences) DiscoveryTimeout() time.Duration {
	return time.Duration(p.DiscoveryTimeoutMs) * time.Millisecond
}

// InfoInterval returns the telemetry refresh interval as a duration
func (p *Preferences) InfoInterval() time.Duration {
	return time.Duration(p.InfoIntervalMs) * time.Millisecond
}

// Validate checks preferences against the supported ranges
func (p *Preferences) Validate() error {
	var problems []string

	if p.DiscoveryPort == 0 {
		problems = append(problems, "discovery_port must be non-zero")
	}
	if p.ControlPort == 0 {
		problems = append(problems, "control_port must be non-zero")
	}
	if p.DiscoveryTimeoutMs <= 0 {
		problems = append(problems, fmt.Sprintf("discovery_timeout_ms must be positive, got %d", p.DiscoveryTimeoutMs))
	}
	if p.ProbeCount < MinProbeCount || p.ProbeCount > MaxProbeCount {
		problems = append(problems, fmt.Sprintf("probe_count must be in [%d, %d], got %d",
			MinProbeCount, MaxProbeCount, p.ProbeCount))
	}
	if p.InfoIntervalMs < MinInfoIntervalMs || p.InfoIntervalMs > MaxInfoIntervalMs {
		problems = append(problems, fmt.Sprintf("info_interval_ms must be in [%d, %d], got %d",
			MinInfoIntervalMs, MaxInfoIntervalMs, p.InfoIntervalMs))
	}
	switch strings.ToLower(p.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", p.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid preferences: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Validate checks the whole registry
func (r *Registry) Validate() error {
	if r.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", r.Version, CurrentVersion)
	}
	if r.Preferences == nil {
		return fmt.Errorf("preferences section is missing")
	}
	return r.Preferences.Validate()
}

// GetDevice retrieves device metadata by name.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(name string) *Device {
	return r.Devices[name]
}

// Lookup finds a device by name or nickname. Names win over nicknames.
func (r *Registry) Lookup(key string) (string, *Device) {
	if d, ok := r.Devices[key]; ok {
		return key, d
	}
	for name, d := range r.Devices {
		if d.Nickname != "" && strings.EqualFold(d.Nickname, key) {
			return name, d
		}
	}
	return "", nil
}

// EnsureDevice returns the entry for name, creating it if needed.
func (r *Registry) EnsureDevice(name string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[name]; exists {
		return device
	}

	device := &Device{
		Steppers: make(map[int]*StepperMeta),
	}
	r.Devices[name] = device
	return device
}

// UpdateDeviceLastSeen records where and when a device was last seen.
func (r *Registry) UpdateDeviceLastSeen(name, ip string, port uint16) {
	device := r.EnsureDevice(name)
	device.LastSeen = time.Now()
	device.LastIP = ip
	device.LastPort = port
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(name, nickname string) {
	device := r.EnsureDevice(name)
	device.Nickname = nickname
}

// SetStepperLabel labels one motor of a device. An empty label removes it.
func (r *Registry) SetStepperLabel(name string, motor int, label string) {
	device := r.EnsureDevice(name)

	if device.Steppers == nil {
		device.Steppers = make(map[int]*StepperMeta)
	}
	if label == "" {
		delete(device.Steppers, motor)
		return
	}
	device.Steppers[motor] = &StepperMeta{Label: label}
}

// StepperLabel returns the label for a motor, or "Stepper N" when unset
func (d *Device) StepperLabel(motor int) string {
	if d != nil {
		if meta, ok := d.Steppers[motor]; ok && meta != nil && meta.Label != "" {
			return meta.Label
		}
	}
	return fmt.Sprintf("Stepper %d", motor)
}

// DisplayName returns the nickname if set, else name
func (d *Device) DisplayName(name string) string {
	if d != nil && d.Nickname != "" {
		return d.Nickname
	}
	return name
}
