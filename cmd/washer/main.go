// Command washer runs the IntelliVerter washing machine controller on a
// Raspberry Pi and reports its progress to MQTT.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atharvap8/intelliverter/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "washer",
		Short: "IntelliVerter washing machine controller",
		Long: `washer drives the inlet valve, drain motors and inverter of a
top-loading washing machine through its wash, rinse, spin and soak
programs, publishing every phase to MQTT.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (built-in defaults when empty)")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newStateCmd(&configPath))
	root.AddCommand(newConsoleCmd(&configPath))
	return root
}

// loadConfig reads the env files, the YAML file and the env overrides, in
// that order, and validates the result.
func loadConfig(path string) (config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return config.Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
