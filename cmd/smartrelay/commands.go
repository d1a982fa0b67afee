package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/smartrelay/internal/api"
	"github.com/muurk/smartrelay/internal/client"
	"github.com/muurk/smartrelay/internal/config"
	"github.com/muurk/smartrelay/internal/discovery"
	"github.com/muurk/smartrelay/internal/logging"
	"github.com/muurk/smartrelay/internal/mcp"
	"github.com/muurk/smartrelay/internal/ui"
	"github.com/muurk/smartrelay/internal/wemo"
)

// Target flags shared by the commands that talk to a running daemon
var (
	targetHost   string
	targetPort   int
	targetDevice string
	timeoutSec   int
	outputJSON   bool
	scanTimeout  int
	forceInit    bool
)

func init() {
	for _, cmd := range []*cobra.Command{statusCmd, onCmd, offCmd, toggleCmd, watchCmd, mcpCmd} {
		addTargetFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{statusCmd, onCmd, offCmd, toggleCmd} {
		cmd.Flags().BoolVar(&outputJSON, "json", false, "Print the raw JSON response")
	}

	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", 0, "Scan timeout in seconds (default: a quick 2s scan)")
	rootCmd.AddCommand(discoverCmd)

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&targetHost, "host", "127.0.0.1", "Daemon host")
	cmd.Flags().IntVar(&targetPort, "port", 0, "Daemon API port (default: from api.listen in the config)")
	cmd.Flags().StringVar(&targetDevice, "device", "", "Find the daemon by device name with mDNS instead of --host")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 5, "Request timeout in seconds")
}

// newClient resolves the target daemon from the flags.
func newClient(ctx context.Context) (*client.Client, error) {
	timeout := time.Duration(timeoutSec) * time.Second

	if targetDevice != "" {
		scanner := discovery.NewScanner()
		scanner.Timeout = timeout
		dev, err := scanner.WaitForDevice(ctx, targetDevice)
		if err != nil {
			return nil, fmt.Errorf("device %q not found: %w", targetDevice, err)
		}
		c := client.NewClientWithURL(dev.BaseURL())
		c.SetTimeout(timeout)
		return c, nil
	}

	port := targetPort
	if port == 0 {
		port = configuredAPIPort()
	}
	c := client.NewClient(targetHost, port)
	c.SetTimeout(timeout)
	return c, nil
}

// configuredAPIPort reads the API port from the config file, falling back
// to the default port.
func configuredAPIPort() int {
	cfg, err := config.Load(configPath)
	if err != nil {
		return client.DefaultPort
	}
	_, portStr, err := net.SplitHostPort(cfg.API.Listen)
	if err != nil {
		return client.DefaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		return client.DefaultPort
	}
	return port
}

// printState prints a state response, or the failure with a hint.
func printState(title string, resp *api.StateResponse, err error) error {
	p := ui.NewPrinter(nil)
	if err != nil {
		p.PrintError(title, errors.New(client.GetShortErrorMessage(err)), client.GetTroubleshootingHint(err))
		return err
	}
	if outputJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	state := "OFF"
	if resp.State.On {
		state = "ON"
	}
	details := map[string]string{
		"Device": resp.State.Device,
		"State":  state,
	}
	if resp.Pending {
		details["Pending"] = "queued, not yet confirmed"
	}
	if !resp.State.UpdatedAt.IsZero() {
		details["Updated"] = resp.State.UpdatedAt.Local().Format(time.RFC3339)
	}
	p.PrintSuccess(title, details)
	return nil
}

func remoteCommand(title string, fn func(context.Context, *client.Client) (*api.StateResponse, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := initClientLogging(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		resp, err := fn(ctx, c)
		return printState(title, resp, err)
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running daemon",
	Example: `  smartrelay status
  smartrelay status --host 192.168.1.20
  smartrelay status --device "office light" --json`,
	RunE: remoteCommand("Device status", func(ctx context.Context, c *client.Client) (*api.StateResponse, error) {
		return c.GetState(ctx)
	}),
}

var onCmd = &cobra.Command{
	Use:   "on",
	Short: "Switch the relay on",
	RunE: remoteCommand("Turned on", func(ctx context.Context, c *client.Client) (*api.StateResponse, error) {
		return c.SetState(ctx, true)
	}),
}

var offCmd = &cobra.Command{
	Use:   "off",
	Short: "Switch the relay off",
	RunE: remoteCommand("Turned off", func(ctx context.Context, c *client.Client) (*api.StateResponse, error) {
		return c.SetState(ctx, false)
	}),
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Invert the relay state, like pressing the button",
	RunE: remoteCommand("Toggled", func(ctx context.Context, c *client.Client) (*api.StateResponse, error) {
		return c.Toggle(ctx)
	}),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream state changes from a running daemon",
	Long: `Print one line per state change until interrupted. The first line is the
current state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initClientLogging(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		err = c.Watch(ctx, func(ev api.Event) {
			if ev.State == nil {
				return
			}
			state := "OFF"
			if ev.State.On {
				state = "ON"
			}
			fmt.Printf("%s  %-20s %s\n", ev.Timestamp.Local().Format("15:04:05.000"), ev.State.Device, state)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, client.GetTroubleshootingHint(err))
		}
		return err
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools for a running daemon over stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing the tools
get_health, get_state, turn_on, turn_off and toggle. Configure it as a stdio
server in an MCP client. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.InitializeStderr(logLevel); err != nil {
			return err
		}
		defer logging.Sync()

		c, err := newClient(context.Background())
		if err != nil {
			return err
		}
		return mcp.NewServer(c).ServeStdio()
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find smartrelay daemons and WeMo devices on the network",
	Long: `Search the local network two ways at once: an SSDP M-SEARCH for WeMo
devices (what a voice assistant sees) and an mDNS browse for smartrelay API
endpoints.`,
	Example: `  smartrelay discover
  smartrelay discover --timeout 10`,
	RunE: runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if err := initClientLogging(); err != nil {
		return err
	}
	timeout := scanWindow(scanTimeout)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := ui.NewPrinter(nil)
	p.PrintTitle("Scanning", fmt.Sprintf("SSDP and mDNS, %v", timeout))

	var (
		wg      sync.WaitGroup
		wemos   []wemo.SearchResult
		wemoErr error
		apis    []*discovery.Device
		mdnsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		wemos, wemoErr = wemo.Search(ctx, wemo.STControllee, timeout)
		for i := range wemos {
			desc, err := wemo.FetchDescription(ctx, nil, wemos[i].Location)
			if err == nil {
				wemos[i].Description = desc
			}
		}
	}()
	go func() {
		defer wg.Done()
		if scanTimeout <= 0 {
			apis, mdnsErr = discovery.QuickScan(ctx)
			return
		}
		scanner := discovery.NewScanner()
		scanner.Timeout = timeout
		apis, mdnsErr = scanner.ScanForDevices(ctx)
	}()
	wg.Wait()

	if wemoErr != nil && !errors.Is(wemoErr, context.Canceled) {
		p.PrintError("WeMo search failed", wemoErr, "Multicast may be blocked on this network.")
	}
	if mdnsErr != nil && !errors.Is(mdnsErr, context.Canceled) {
		p.PrintError("mDNS browse failed", mdnsErr, "")
	}

	if len(wemos) == 0 && len(apis) == 0 {
		p.PrintError("No devices found", nil, "Check that the daemon is running and on this network.\nTry a longer --timeout.")
		return nil
	}

	for _, res := range wemos {
		details := map[string]string{"Location": res.Location, "USN": res.USN}
		title := "WeMo " + res.From
		if d := res.Description; d != nil {
			title = "WeMo " + d.FriendlyName
			details["Model"] = d.ModelName
			details["Serial"] = d.SerialNumber
			details["State"] = "OFF"
			if d.BinaryState != 0 {
				details["State"] = "ON"
			}
		}
		p.PrintSuccess(title, details)
	}
	for _, dev := range apis {
		p.PrintSuccess("API "+dev.Name, map[string]string{
			"URL":     dev.BaseURL(),
			"Host":    dev.Hostname,
			"UDN":     dev.UDN,
			"Version": dev.Version,
		})
	}
	return nil
}

// scanWindow converts the --timeout flag; zero or less means a quick scan.
func scanWindow(seconds int) time.Duration {
	if seconds <= 0 {
		return discovery.QuickScanTimeout
	}
	return time.Duration(seconds) * time.Second
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			path, err = config.GetConfigPath()
			if err != nil {
				return err
			}
		}
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}
