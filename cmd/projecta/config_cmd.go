package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/projecta-dev/projecta/internal/config"
)

var configForce bool

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configLabelCmd)
	configCmd.AddCommand(configNicknameCmd)
	rootCmd.AddCommand(configCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage preferences and remembered devices",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := registryPath()
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", path, err)
		}

		if err := config.NewRegistry().SaveTo(path); err != nil {
			return err
		}
		fmt.Printf("✓ Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := registryPath()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(registry)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Printf("# %s\n", path)
		fmt.Print(string(data))
		return nil
	},
}

var configLabelCmd = &cobra.Command{
	Use:   "label <device> <stepper> <label>",
	Short: "Name a stepper of a remembered device",
	Example: `  projecta config label bench 0 "X axis"
  projecta config label bench 1 ""   # back to "Stepper 1"`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := deviceName(args[0])
		motor, err := parseStepper(args[1])
		if err != nil {
			return err
		}

		registry.SetStepperLabel(name, int(motor), strings.TrimSpace(args[2]))
		if err := registry.Save(); err != nil {
			return err
		}

		fmt.Printf("✓ %s: stepper %d is %q\n", name, motor, registry.GetDevice(name).StepperLabel(int(motor)))
		return nil
	},
}

var configNicknameCmd = &cobra.Command{
	Use:   "nickname <device> <nickname>",
	Short: "Give a device a nickname usable with --device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := deviceName(args[0])
		nickname := strings.TrimSpace(args[1])

		if other, d := registry.Lookup(nickname); d != nil && other != name && nickname != "" {
			return fmt.Errorf("%q already refers to device %s", nickname, other)
		}

		registry.SetDeviceNickname(name, nickname)
		if err := registry.Save(); err != nil {
			return err
		}

		if nickname == "" {
			fmt.Printf("✓ Cleared nickname of %s\n", name)
		} else {
			fmt.Printf("✓ %s is now %q\n", name, nickname)
		}
		return nil
	},
}

// deviceName maps a nickname back to the device name; unknown keys are taken
// as new device names
func deviceName(key string) string {
	if name, d := registry.Lookup(key); d != nil {
		return name
	}
	return key
}

func registryPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	if p := registry.Path(); p != "" {
		return p, nil
	}
	return config.GetConfigPath()
}
