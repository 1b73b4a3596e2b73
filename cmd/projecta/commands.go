package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/projecta-dev/projecta/internal/bridge"
	"github.com/projecta-dev/projecta/internal/control"
	"github.com/projecta-dev/projecta/internal/discovery"
	"github.com/projecta-dev/projecta/internal/logging"
	"github.com/projecta-dev/projecta/internal/protocol"
	"github.com/projecta-dev/projecta/internal/simulator"
	"github.com/projecta-dev/projecta/internal/tui"
	"github.com/projecta-dev/projecta/internal/urls"
)

// Command flags
var (
	scanTimeout    time.Duration
	scanProbes     int
	scanMDNS       bool
	jsonOutput     bool
	watchInterval  time.Duration
	bridgeListen   string
	simName        string
	simSteppers    int
	simDiscovery   uint16
	simControl     uint16
	simReject      bool
	simAdvertise   bool
	simStepRate    int32
	connectTimeout time.Duration
)

func init() {
	rootCmd.PersistentFlags().DurationVar(&connectTimeout, "connect-timeout", control.DefaultDialTimeout, "Dial and handshake timeout")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(bridgeCmd)
}

// scanCmd discovers devices on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Project-A devices on the network",
	Long: `Broadcast discovery probes and list every device that answers.

Responses are de-duplicated by source address. With --mdns the scan browses
for the _projecta._tcp service instead.`,
	Example: `  # Default scan (500ms, 2 probes)
  projecta scan

  # Slow network
  projecta scan --timeout 2s --probes 5

  # Use mDNS
  projecta scan --mdns`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "Collection window (default from config, 500ms)")
	scanCmd.Flags().IntVar(&scanProbes, "probes", -1, "Number of probes to send (default from config, 2)")
	scanCmd.Flags().BoolVar(&scanMDNS, "mdns", false, "Discover with mDNS instead of UDP broadcast")
	scanCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var (
		devices []discovery.Device
		err     error
	)
	if scanMDNS {
		scanner := discovery.NewMDNSScanner()
		if scanTimeout > 0 {
			scanner.Timeout = scanTimeout
		}
		if !jsonOutput {
			fmt.Printf("Browsing mDNS for %s (timeout: %s)...\n\n", discovery.ServiceType, scanner.Timeout)
		}
		devices, err = scanner.Scan(ctx)
	} else {
		scanner := newScanner()
		if !jsonOutput {
			fmt.Printf("Probing UDP port %d (timeout: %s)...\n\n", scanner.Port, scanner.Timeout)
		}
		devices, err = scanner.Scan(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scan failed: %w", err)
	}

	rememberDevices(devices)

	if jsonOutput {
		return printJSON(devices)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the device is powered on and on the same network")
		fmt.Println("  - Broadcasts may be blocked by a firewall or client isolation")
		fmt.Println("  - Try increasing --timeout or --probes")
		fmt.Println("  - Use --device to specify the address manually")
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		meta := registry.GetDevice(d.Name)
		fmt.Printf("%d. %s\n", i+1, meta.DisplayName(displayName(d)))
		fmt.Printf("   Address: %s\n", d.Addr())
		fmt.Printf("   Source:  %s\n", d.Source)
		fmt.Println()
	}

	fmt.Println("Use 'projecta info --device <ip>' to read stepper telemetry")
	return nil
}

// infoCmd prints stepper telemetry once
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show stepper telemetry",
	Example: `  projecta info --device 192.168.1.40
  projecta info --device bench --json`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
}

func runInfo(cmd *cobra.Command, args []string) error {
	target, client, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	steppers, err := client.QueryStepperInfo()
	if err != nil {
		return fmt.Errorf("failed to read telemetry: %w", err)
	}
	if steppers == nil {
		return fmt.Errorf("device %s sent no telemetry", target.Addr())
	}

	if jsonOutput {
		return printJSON(steppers)
	}

	meta := registry.GetDevice(target.Name)
	fmt.Printf("%s (%s)\n\n", meta.DisplayName(displayName(target)), target.Addr())
	for _, s := range steppers {
		fmt.Printf("  %-12s %s\n", meta.StepperLabel(int(s.Motor)), s)
	}
	return nil
}

// moveCmd sends a stepper to a position
var moveCmd = &cobra.Command{
	Use:   "move <stepper> <position>",
	Short: "Move a stepper to an absolute position",
	Example: `  projecta move 0 1200 --device 192.168.1.40
  projecta move 1 -400 --device bench`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

func runMove(cmd *cobra.Command, args []string) error {
	stepper, err := parseStepper(args[0])
	if err != nil {
		return err
	}
	position, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid position %q: %w", args[1], err)
	}

	target, client, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.MoveStepperTo(stepper, int32(position)); err != nil {
		return fmt.Errorf("move failed: %w", err)
	}

	fmt.Printf("✓ %s: stepper %d → %d\n", target.Addr(), stepper, position)
	return nil
}

var enableCmd = &cobra.Command{
	Use:   "enable <stepper>",
	Short: "Enable a stepper driver",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetEnabled(cmd, args[0], true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <stepper>",
	Short: "Disable a stepper driver",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetEnabled(cmd, args[0], false)
	},
}

func runSetEnabled(cmd *cobra.Command, arg string, enabled bool) error {
	stepper, err := parseStepper(arg)
	if err != nil {
		return err
	}

	target, client, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SetStepperEnabled(stepper, enabled); err != nil {
		return fmt.Errorf("enable/disable failed: %w", err)
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("✓ %s: stepper %d %s\n", target.Addr(), stepper, state)
	return nil
}

// watchCmd shows live telemetry
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch live telemetry (interactive)",
	Long: `Open the interactive monitor. Without --device a discovery screen lists
the devices on the network first.

When stdout is not a terminal, telemetry is printed as one line per stepper
on every poll instead.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Telemetry interval, 50ms..1s (default from config, 200ms)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	interval := telemetryInterval()

	if !tui.IsTerminal(os.Stdout) {
		return watchPlain(ctx, interval)
	}

	opts := tui.Options{
		Discovery: tui.DiscoveryOptions{
			Port:       registry.Preferences.DiscoveryPort,
			Timeout:    registry.Preferences.DiscoveryTimeout(),
			ProbeCount: registry.Preferences.ProbeCount,
		},
		Interval:       interval,
		ConnectTimeout: connectTimeout,
		Labels: func(name string) func(int) string {
			return registry.GetDevice(name).StepperLabel
		},
	}
	if deviceFlag != "" {
		target, err := resolveDevice(ctx)
		if err != nil {
			return err
		}
		opts.Device = &target
	}

	return tui.Run(ctx, opts)
}

func watchPlain(ctx context.Context, interval time.Duration) error {
	target, client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	meta := registry.GetDevice(target.Name)
	monitor := control.NewMonitor(client, interval)

	errc := make(chan error, 1)
	go func() {
		errc <- monitor.Run(ctx)
	}()

	for snap := range monitor.Snapshots() {
		ts := snap.At.Format("15:04:05.000")
		if snap.Err != nil {
			fmt.Printf("%s  error: %v\n", ts, snap.Err)
			continue
		}
		for _, s := range snap.Steppers {
			fmt.Printf("%s  %-12s %s\n", ts, meta.StepperLabel(int(s.Motor)), s)
		}
	}
	return <-errc
}

// simulateCmd runs a software device
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated Project-A device",
	Long: `Run a software device that answers discovery probes and accepts control
sessions. Steppers move toward their targets at a fixed rate once enabled.`,
	Example: `  # Simulate on the standard ports
  projecta simulate

  # Four steppers, advertised over mDNS
  projecta simulate --steppers 4 --mdns

  # A device that rejects every handshake
  projecta simulate --reject`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simName, "name", simulator.DefaultName, "Announced device name")
	simulateCmd.Flags().IntVar(&simSteppers, "steppers", simulator.DefaultSteppers, "Number of steppers")
	simulateCmd.Flags().Uint16Var(&simDiscovery, "discovery-port", 0, "UDP discovery port (default from config, 8084)")
	simulateCmd.Flags().Uint16Var(&simControl, "control-port", 0, "TCP control port (default from config, 8085)")
	simulateCmd.Flags().BoolVar(&simReject, "reject", false, "Reject every connection request")
	simulateCmd.Flags().BoolVar(&simAdvertise, "mdns", false, "Advertise the device over mDNS")
	simulateCmd.Flags().Int32Var(&simStepRate, "step-rate", simulator.DefaultStepRate, "Positions moved per tick")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := ensureLogging(); err != nil {
		return err
	}
	if simSteppers < 1 || simSteppers > protocol.MaxStepperRecords {
		return fmt.Errorf("--steppers must be between 1 and %d", protocol.MaxStepperRecords)
	}

	cfg := simulator.Config{
		Name:              simName,
		DiscoveryPort:     simDiscovery,
		ControlPort:       simControl,
		Steppers:          simSteppers,
		RejectConnections: simReject,
		Advertise:         simAdvertise,
		StepRate:          simStepRate,
	}
	if cfg.DiscoveryPort == 0 {
		cfg.DiscoveryPort = registry.Preferences.DiscoveryPort
	}
	if cfg.ControlPort == 0 {
		cfg.ControlPort = controlPort()
	}

	ctx := cmd.Context()
	sim := simulator.New(cfg)
	if err := sim.Start(ctx); err != nil {
		return err
	}
	defer sim.Close()

	fmt.Printf("Simulating %q: discovery udp/%d, control tcp/%d, %d stepper(s)\n",
		sim.Name(), sim.DiscoveryPort(), sim.ControlPort(), simSteppers)
	fmt.Println("Press Ctrl+C to stop.")

	<-ctx.Done()
	return nil
}

// bridgeCmd exposes a device over WebSocket
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve a device to WebSocket clients",
	Long: `Connect to a device and serve it over HTTP:

  GET /ws       telemetry stream and command channel (JSON)
  GET /healthz  bridge and connection status

Commands:
  {"type":"move","stepper":0,"position":1200}
  {"type":"enable","stepper":0,"enabled":true}

Full message reference: ` + urls.BridgeProtocol,
	Example: `  projecta bridge --device 192.168.1.40 --listen :8090`,
	Args:    cobra.NoArgs,
	RunE:    runBridge,
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgeListen, "listen", "127.0.0.1:8090", "HTTP listen address")
	bridgeCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Telemetry interval, 50ms..1s (default from config, 200ms)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	if err := ensureLogging(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	target, client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	b := bridge.New(client, telemetryInterval())

	runErr := make(chan error, 1)
	go func() {
		err := b.Run(ctx)
		if err != nil {
			logging.Error("Device connection lost", zap.String("device", target.Addr()), zap.Error(err))
		}
		runErr <- err
		cancel()
	}()

	fmt.Printf("Bridging %s on http://%s/ws\n", target.Addr(), bridgeListen)
	if err := b.Serve(ctx, bridgeListen); err != nil {
		return err
	}

	cancel()
	return <-runErr
}

// connect resolves the target device and opens a ready control session
func connect(ctx context.Context) (discovery.Device, *control.Client, error) {
	target, err := resolveDevice(ctx)
	if err != nil {
		return discovery.Device{}, nil, err
	}

	client := control.NewClient(target.IP, target.Port, control.WithDialTimeout(connectTimeout))
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return target, nil, err
	}

	if target.Name != "" {
		registry.UpdateDeviceLastSeen(target.Name, target.IP, target.Port)
		saveRegistry()
	}
	return target, client, nil
}

// resolveDevice turns --device into an endpoint. Registry names and
// nicknames resolve to their last known address; anything else is taken as a
// host. Without --device a UDP scan must find exactly one device.
func resolveDevice(ctx context.Context) (discovery.Device, error) {
	if deviceFlag != "" {
		if name, meta := registry.Lookup(deviceFlag); meta != nil && meta.LastIP != "" {
			port := meta.LastPort
			if portFlag != 0 || port == 0 {
				port = controlPort()
			}
			return discovery.Device{Name: name, IP: meta.LastIP, Port: port}, nil
		}

		host := deviceFlag
		port := controlPort()
		if h, p, err := net.SplitHostPort(deviceFlag); err == nil {
			n, err := strconv.ParseUint(p, 10, 16)
			if err != nil {
				return discovery.Device{}, fmt.Errorf("invalid port in --device %q", deviceFlag)
			}
			host, port = h, uint16(n)
		}
		return discovery.Device{IP: host, Port: port}, nil
	}

	fmt.Fprintln(os.Stderr, "No device specified, scanning...")
	devices, err := newScanner().Scan(ctx)
	if err != nil {
		return discovery.Device{}, fmt.Errorf("discovery failed: %w", err)
	}
	rememberDevices(devices)

	switch len(devices) {
	case 0:
		return discovery.Device{}, errors.New("no devices found. Use --device to specify the address manually")
	case 1:
		d := devices[0]
		if portFlag != 0 {
			d.Port = portFlag
		}
		fmt.Fprintf(os.Stderr, "Found %s\n\n", d.String())
		return d, nil
	default:
		fmt.Fprintf(os.Stderr, "Found %d devices:\n", len(devices))
		for i, d := range devices {
			fmt.Fprintf(os.Stderr, "%d. %s\n", i+1, d.String())
		}
		return discovery.Device{}, errors.New("multiple devices found. Use --device to pick one")
	}
}

func newScanner() *discovery.Scanner {
	prefs := registry.Preferences
	s := discovery.NewScanner()
	s.Port = prefs.DiscoveryPort
	s.Timeout = prefs.DiscoveryTimeout()
	s.ProbeCount = prefs.ProbeCount
	if scanTimeout > 0 {
		s.Timeout = scanTimeout
	}
	if scanProbes >= 0 {
		s.ProbeCount = scanProbes
	}
	return s
}

func controlPort() uint16 {
	if portFlag != 0 {
		return portFlag
	}
	return registry.Preferences.ControlPort
}

func telemetryInterval() time.Duration {
	if watchInterval > 0 {
		return control.ClampInterval(watchInterval)
	}
	return registry.Preferences.InfoInterval()
}

func parseStepper(arg string) (uint8, error) {
	n, err := strconv.ParseUint(arg, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid stepper index %q: must be 0-255", arg)
	}
	return uint8(n), nil
}

func displayName(d discovery.Device) string {
	if d.Name == "" {
		return "(unnamed)"
	}
	return d.Name
}

// rememberDevices records named devices in the registry
func rememberDevices(devices []discovery.Device) {
	changed := false
	for _, d := range devices {
		if d.Name == "" {
			continue
		}
		registry.UpdateDeviceLastSeen(d.Name, d.IP, d.Port)
		changed = true
	}
	if changed {
		saveRegistry()
	}
}

// saveRegistry persists the registry; failures are logged, not fatal
func saveRegistry() {
	if err := registry.Save(); err != nil {
		logging.Warn("Failed to save config", zap.Error(err))
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
