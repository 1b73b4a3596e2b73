// Projecta controls Project-A stepper motor controllers on the local network.
//
// It discovers devices with a UDP broadcast (or mDNS), opens the TCP control
// session and sends move and enable commands, prints or watches telemetry,
// and can bridge a device to WebSocket clients. A built-in simulator stands
// in for hardware.
//
// Usage:
//
//	projecta [command] [flags]
//
// See 'projecta --help' for available commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/projecta-dev/projecta/internal/config"
	"github.com/projecta-dev/projecta/internal/deverr"
	"github.com/projecta-dev/projecta/internal/logging"
	"github.com/projecta-dev/projecta/internal/urls"
	"github.com/projecta-dev/projecta/internal/version"
)

// Global flags
var (
	deviceFlag string
	portFlag   uint16
	logLevel   string
	configPath string
)

// registry is loaded before every command runs
var registry *config.Registry

// effectiveLogLevel is the level logging was initialized with, "" if silent
var effectiveLogLevel string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var devErr *deverr.Error
		if errors.As(err, &devErr) {
			fmt.Fprintf(os.Stderr, "\n%s\n", deverr.GetTroubleshootingHint(err))
			fmt.Fprintf(os.Stderr, "\nSee: %s\n", urls.Troubleshooting)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "projecta",
	Short: "Project-A stepper controller utility",
	Long: `A command-line utility for Project-A stepper motor controllers.

Devices are found with a UDP broadcast on the discovery port (8084 by default)
and controlled over TCP (8085 by default). Preferences and remembered devices
live in a YAML file; see 'projecta config show'.

Running without arguments opens the interactive monitor.`,
	Version:           version.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd, args)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "Device IP, name or nickname (skips discovery)")
	rootCmd.PersistentFlags().Uint16Var(&portFlag, "port", 0, "Device control port (default from config, 8085)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default silent)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/projecta/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

// setup loads the registry and initializes logging. Flag beats environment
// beats the config file.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		registry, err = config.LoadRegistryFrom(configPath)
	} else {
		registry, err = config.LoadRegistry()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := logLevel
	if level == "" {
		level = os.Getenv(logging.LogLevelEnvVar)
	}
	if level == "" {
		level = registry.Preferences.LogLevel
	}
	if err := logging.Initialize(level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	effectiveLogLevel = level

	return nil
}

// ensureLogging turns on info logging for long-running servers when the user
// has not chosen a level
func ensureLogging() error {
	if effectiveLogLevel != "" {
		return nil
	}
	effectiveLogLevel = "info"
	return logging.Initialize(effectiveLogLevel)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Detailed())
	},
}
