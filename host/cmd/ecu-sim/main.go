// Command ecu-sim runs the scheduling core against a virtual crank, either
// for a fixed number of revolutions or as a live controller served over a
// WebSocket link that ecu-monitor can connect to.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"sparkcore/config"
	"sparkcore/core"
	"sparkcore/host/serial"
	"sparkcore/outputs"
	"sparkcore/sim"
)

type options struct {
	ConfigPath string
	Verbose    bool
	RPM        uint16
	NoCam      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "ecu-sim",
		Short:        "Engine scheduling simulator",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().Uint16Var(&opts.RPM, "rpm", 0, "crank speed (overrides sim.rpm)")
	cmd.PersistentFlags().BoolVar(&opts.NoCam, "no-cam", false, "run without a cam signal (half sync)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	return cmd
}

// build loads the configuration and creates the simulator. The returned
// closer releases any mirrored output hardware.
func (o *options) build() (*sim.Simulator, *config.Config, io.Closer, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.ConfigPath == "" {
		cfg, err = config.Load(nil)
	} else {
		cfg, err = config.LoadFile(o.ConfigPath)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if o.RPM != 0 {
		cfg.Sim.RPM = o.RPM
	}

	var (
		extra  core.OutputDriver
		closer io.Closer = nopCloser{}
	)
	if cfg.Outputs.Driver == "gpiocdev" {
		g, err := outputs.NewGPIOCDev(cfg.Outputs.Chip, cfg.Outputs.Injectors, cfg.Outputs.Coils, cfg.Outputs.Tacho)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("mirroring outputs", "chip", cfg.Outputs.Chip)
		extra, closer = g, g
	}

	s := sim.New(cfg, extra, slog.Default())
	s.SetCam(!o.NoCam)
	return s, cfg, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newRunCommand(opts *options) *cobra.Command {
	var (
		revs  int
		trace bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a number of revolutions and report every channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, closer, err := opts.build()
			if err != nil {
				return err
			}
			defer closer.Close()
			if revs == 0 {
				revs = cfg.Sim.Revolutions
			}
			core.ClearTimingRing()
			r := s.Simulate(cfg.Sim.RPM, revs)
			if err := printReport(cmd.OutOrStdout(), &r); err != nil {
				return err
			}
			if trace {
				printTrace(cmd.OutOrStdout(), core.TimingEvents())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&revs, "revolutions", "n", 0, "revolutions to run (overrides sim.revolutions)")
	cmd.Flags().BoolVar(&trace, "trace", false, "print the last schedule transitions")
	return cmd
}

func printReport(w io.Writer, r *sim.Report) error {
	d := &r.Diagnostics
	fmt.Fprintf(w, "%d revolutions at %d rpm in %v simulated\n", r.Revolutions, r.RPM, r.Duration)
	fmt.Fprintf(w, "sync full=%v cut=%s injections=%d sparks=%d overdwells=%d tacho=%d\n\n",
		d.FullSync, d.Cut.Status, d.Injections, d.Sparks, d.Overdwells, r.Tacho)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BANK\tCHANNEL\tPULSES\tMEAN WIDTH")
	for _, bank := range []struct {
		name string
		chs  []sim.ChannelReport
	}{{"fuel", r.Fuel}, {"ignition", r.Ignition}} {
		for _, ch := range bank.chs {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%dµs\n", bank.name, ch.Channel, ch.Pulses, ch.MeanWidth)
		}
	}
	return tw.Flush()
}

func printTrace(w io.Writer, events []core.TimingEvent) {
	fmt.Fprintf(w, "\nlast %d schedule transitions:\n", len(events))
	for _, e := range events {
		fmt.Fprintln(w, " ", e.String())
	}
}

func newServeCommand(opts *options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run in real time and serve the controller link over WebSocket",
		Long: `Run the simulator against the wall clock and accept controller link
connections at ws://<listen>/link, for example:

  ecu-sim serve --listen :8080
  ecu-monitor --device ws://localhost:8080/link watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			s, cfg, closer, err := opts.build()
			if err != nil {
				return err
			}
			defer closer.Close()
			return serve(ctx, s, cfg.Sim.RPM, listen)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "listen address")
	return cmd
}

// recorderLimit keeps a long-running simulation's edge log bounded.
const recorderLimit = 4096

func serve(ctx context.Context, s *sim.Simulator, rpm uint16, listen string) error {
	s.Recorder().Limit = recorderLimit
	s.SetRPM(rpm)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/link", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("upgrade failed", "err", err)
			return
		}
		slog.Info("host connected", "remote", r.RemoteAddr)
		err = s.ServeLink(ctx, serial.NewWebSocketPort(conn))
		slog.Info("host disconnected", "remote", r.RemoteAddr, "err", err)
	})
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		errc <- s.RunRealtime(ctx, time.Millisecond)
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	slog.Info("serving", "addr", listen, "rpm", rpm)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
