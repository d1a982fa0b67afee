// Smartrelay turns a host with a relay, a status LED and a push button into
// a virtual WeMo switch that voice assistants discover and control, while
// the physical button keeps working locally.
//
// Usage:
//
//	smartrelay run            # start the daemon
//	smartrelay console        # daemon on simulated pins with a front panel
//	smartrelay on|off|toggle  # control a running daemon
//
// See 'smartrelay --help' for all commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/smartrelay/internal/config"
	"github.com/muurk/smartrelay/internal/logging"
	"github.com/muurk/smartrelay/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "smartrelay",
	Short: "Relay controller that appears as a WeMo switch",
	Long: `smartrelay drives a relay, a status LED and a push button, and exposes the
relay to the network as a Belkin WeMo compatible switch.

The push button toggles the relay locally at all times. Voice assistants find
the device with SSDP and switch it over UPnP SOAP. A local REST/WebSocket API,
optional MQTT bridge and an MCP tool server are available for automation.`,
	Version:       version.Full(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/smartrelay/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("smartrelay %s\n", version.Full())
	},
}

// loadConfig reads the config file; a missing file yields the defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// initDaemonLogging enables logging for long-running commands: the flag
// wins, then SMARTRELAY_LOG_LEVEL, then the config file.
func initDaemonLogging(cfg *config.Config) error {
	level := logLevel
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		level = cfg.LogLevel
	}
	return logging.Initialize(level)
}

// initClientLogging keeps one-shot commands quiet unless asked.
func initClientLogging() error {
	return logging.Initialize(logLevel)
}
