// Package config manages the projecta user configuration file.
//
// The file is YAML and holds two things: preferences (discovery port and
// window, probe count, control port, telemetry interval, log level) and a
// registry of devices seen before, with nicknames and per-stepper labels.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/projecta/config.yaml or $HOME/.config/projecta/config.yaml
//   - macOS: $HOME/.config/projecta/config.yaml
//   - Windows: %LOCALAPPDATA%\projecta\config.yaml
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    return err
//	}
//	registry.UpdateDeviceLastSeen(dev.Name, dev.IP, dev.Port)
//	registry.SetStepperLabel(dev.Name, 0, "Turntable")
//	if err := registry.Save(); err != nil {
//	    return err
//	}
//
// Saves are atomic: the file is written to a temporary path and renamed.
package config
