// Command ecu-monitor talks to an engine controller over its serial link:
// it downloads the dictionary, polls status, fires bench test pulses and
// republishes telemetry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"sparkcore/config"
	"sparkcore/host/ecu"
	"sparkcore/host/serial"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Device     string
	Verbose    bool

	cfg *config.Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ecu-monitor",
		Short: "Engine controller monitor",
		Long: `ecu-monitor connects to an engine controller over USB serial or a
WebSocket bridge.

Connection:
  Serial:    --device /dev/ttyACM0
  WebSocket: --device ws://gateway:8080/link`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(opts.Verbose)
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVarP(&opts.Device, "device", "d", "", "serial device or ws:// URL (overrides the config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newIdentifyCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newPulseCommand(opts))
	cmd.AddCommand(newStopCommand(opts))
	cmd.AddCommand(newRestartCommand(opts))
	cmd.AddCommand(newPortsCommand())
	cmd.AddCommand(newHistoryCommand(opts))
	return cmd
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func (o *rootOptions) load() error {
	var err error
	if o.ConfigPath == "" {
		o.cfg, err = config.Load(nil)
	} else {
		o.cfg, err = config.LoadFile(o.ConfigPath)
	}
	if err != nil {
		return err
	}
	if o.Device != "" {
		o.cfg.Serial.Device = o.Device
	}
	return nil
}

// connect opens the configured device and identifies the controller.
func (o *rootOptions) connect(ctx context.Context) (*ecu.Client, error) {
	sc := o.cfg.Serial
	if sc.Device == "" {
		return nil, fmt.Errorf("no device: set serial.device or pass --device")
	}
	slog.Info("connecting", "device", sc.Device)
	return ecu.Dial(ctx, &serial.Config{
		Device:      sc.Device,
		Baud:        sc.Baud,
		ReadTimeout: sc.ReadTimeout,
	}, slog.Default())
}
