package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/smartrelay/internal/config"
	"github.com/muurk/smartrelay/internal/daemon"
	"github.com/muurk/smartrelay/internal/device"
	"github.com/muurk/smartrelay/internal/gpio"
	"github.com/muurk/smartrelay/internal/logging"
	"github.com/muurk/smartrelay/internal/ui"
)

var (
	runBackend     string
	consoleLogFile string
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(consoleCmd)

	runCmd.Flags().StringVar(&runBackend, "backend", "", "I/O backend (sim, sysfs, modbus); overrides the config file")
	consoleCmd.Flags().StringVar(&consoleLogFile, "log-file", "", "Write daemon logs to this file (logs are discarded otherwise)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon",
	Long: `Run the relay daemon in the foreground.

At boot the relay is released and the LED lit. The daemon then waits for the
network (forever by default; set network.max_attempts to give up and run
button-only), starts the WeMo transport, the REST API, the MQTT bridge and the
mDNS advertisement as configured, and polls the button every loop.tick_ms.

Stop with Ctrl+C or SIGTERM.`,
	Example: `  # Run with the default config file
  smartrelay run

  # Try it without hardware
  smartrelay run --backend sim --log-level debug

  # Use another config file
  smartrelay run --config /etc/smartrelay/config.yaml`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runBackend != "" {
		cfg.IO.Backend = runBackend
	}
	if err := initDaemonLogging(cfg); err != nil {
		return err
	}
	defer logging.Sync()

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the daemon on simulated pins with an interactive front panel",
	Long: `Run the full daemon against the simulated I/O backend and show a front
panel in the terminal. Space presses the push button, 'h' holds it down.

Everything else is real: the WeMo device answers discovery, the REST API and
MQTT bridge run as configured, so a voice assistant or 'smartrelay toggle'
from another terminal moves the simulated relay.`,
	RunE: runConsole,
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.IO.Backend = config.BackendSim

	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	logOut, closeLog, err := consoleLogWriter(consoleLogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	logging.InitializeWriter(level, logOut)
	defer logging.Sync()

	pins := device.PinsFromConfig(cfg.Pins)
	sim := gpio.NewSim(pins.Button.Level(false))
	d, err := daemon.New(cfg, daemon.WithPins(sim))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		_ = d.Shutdown(context.Background())
		return err
	}

	network := d.Station().Status().String()
	if addr := d.Station().LocalAddress(); addr != "" {
		network += " (" + addr + ")"
	}
	api := ""
	if addr := d.APIAddr(); addr != "" {
		api = "http://" + addr
	}
	console := ui.NewConsole(sim, pins, ui.ConsoleInfo{
		Device:  cfg.Device.Name,
		UDN:     d.UDN(),
		WeMo:    d.WeMoLocation(),
		API:     api,
		Network: network,
	}, cfg.Loop.Tick())
	d.AddReporter(console)

	ctx, cancel := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- d.Serve(ctx) }()

	uiErr := console.Run(ctx)
	cancel()
	<-served

	shutdownCtx, done := context.WithTimeout(context.Background(), daemon.ShutdownTimeout)
	defer done()
	if err := d.Shutdown(shutdownCtx); err != nil && uiErr == nil {
		return err
	}
	return uiErr
}

// consoleLogWriter returns where console logs go. The panel owns the
// terminal, so without a log file they are discarded.
func consoleLogWriter(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
