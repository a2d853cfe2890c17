package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sparkcore/core"
	"sparkcore/host/serial"
	"sparkcore/telemetry"
)

const commandTimeout = 5 * time.Second

func newIdentifyCommand(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Download and print the controller dictionary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			c, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, string(c.RawDictionary()))
				return nil
			}
			fmt.Fprint(out, renderDictionary(c.Dictionary()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the dictionary JSON")
	return cmd
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll status and republish it",
		Long: `Poll the controller's status at telemetry.interval. Each poll is
printed, published to telemetry.broker over MQTT when set, and recorded in
the telemetry.database SQLite file when set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, opts, quiet, cmd)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print each poll")
	return cmd
}

func watch(ctx context.Context, opts *rootOptions, quiet bool, cmd *cobra.Command) error {
	tc := opts.cfg.Telemetry
	var sinks []telemetry.Publisher
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				slog.Error("closing telemetry sink", "err", err)
			}
		}
	}()
	if tc.Broker != "" {
		pub, err := telemetry.NewMQTTPublisher(telemetry.MQTTOptions{
			Broker:   tc.Broker,
			ClientID: tc.ClientID,
			Topic:    tc.Topic,
			QoS:      tc.QoS,
		})
		if err != nil {
			return err
		}
		slog.Info("publishing telemetry", "broker", tc.Broker, "topic", tc.Topic)
		sinks = append(sinks, pub)
	}
	if tc.Database != "" {
		st, err := telemetry.OpenStore(tc.Database)
		if err != nil {
			return err
		}
		slog.Info("recording telemetry", "database", tc.Database, "session", st.Session())
		sinks = append(sinks, st)
	}

	c, err := opts.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	ticker := time.NewTicker(tc.Interval)
	defer ticker.Stop()
	for {
		pollCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		d, err := c.Status(pollCtx)
		cancel()
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			slog.Warn("status poll failed", "err", err)
		default:
			snap := telemetry.FromDiagnostics(&d, time.Now())
			for _, s := range sinks {
				if err := s.Publish(snap); err != nil {
					slog.Warn("publish failed", "err", err)
				}
			}
			if !quiet {
				fmt.Fprintln(cmd.OutOrStdout(), renderStatus(&snap))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func newPulseCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pulse <fuel|ignition> <channel> <microseconds>",
		Short: "Fire one bench test pulse",
		Long:  "Fire one output once. The controller refuses while the engine turns.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ch, us, err := parsePulse(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			c, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.TestPulse(ctx, kind, ch, us); err != nil {
				return fmt.Errorf("%s channel %d: %w", kind, ch, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s channel %d: %dµs pulse fired\n", kind, ch, us)
			return nil
		},
	}
}

func parsePulse(args []string) (core.OutputKind, uint8, uint32, error) {
	var kind core.OutputKind
	switch args[0] {
	case "fuel", "injector":
		kind = core.OutputFuel
	case "ignition", "coil":
		kind = core.OutputIgnition
	default:
		return 0, 0, 0, fmt.Errorf("unknown output kind %q", args[0])
	}
	ch, err := strconv.ParseUint(args[1], 10, 8)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("channel: %w", err)
	}
	us, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("pulse width: %w", err)
	}
	return kind, uint8(ch), uint32(us), nil
}

func newStopCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "estop",
		Short: "Latch every output off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			c, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.EmergencyStop(ctx); err != nil {
				return err
			}
			slog.Warn("emergency stop latched")
			return nil
		},
	}
}

func newRestartCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Clear an emergency stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			c, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Restart(ctx)
		},
	}
}

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial devices",
		Args:  cobra.NoArgs,
		// No config or device needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		session string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recorded status from the telemetry database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := opts.cfg.Telemetry.Database
			if db == "" {
				return errors.New("no database: set telemetry.database")
			}
			st, err := telemetry.OpenStore(db)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if session == "" {
				sessions, err := st.Sessions(ctx)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no recorded sessions")
					return nil
				}
				session = sessions[len(sessions)-1]
			}
			snaps, err := st.Recent(ctx, session, limit)
			if err != nil {
				return err
			}
			sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].Time < snaps[j].Time })
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(session, snaps))
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session id (default: the latest)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of snapshots")
	return cmd
}
