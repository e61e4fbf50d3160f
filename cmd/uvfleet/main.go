package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"uvfleet/internal/bootstrap"
	"uvfleet/internal/ipc"
	sessiondto "uvfleet/internal/modules/session/dto"
	"uvfleet/internal/platform/config"
	"uvfleet/internal/ui/dashboard"
)

const dateLayout = "2006-01-02 15:04"

type globals struct {
	dataDir string
	asJSON  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "uvfleet",
		Short:         "UV disinfection fleet controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "data directory (default ~/.uvfleet)")
	root.PersistentFlags().BoolVar(&g.asJSON, "json", false, "print JSON output")

	root.AddCommand(newDaemonCmd(g))
	root.AddCommand(newDeviceCmd(g))
	root.AddCommand(newSessionCmd(g))
	root.AddCommand(newScheduleCmd(g))
	root.AddCommand(newLogsCmd(g))
	root.AddCommand(newDebugCmd(g))
	root.AddCommand(newConfigCmd(g))
	root.AddCommand(newTUICmd(g))
	return root
}

func (g *globals) client() (*ipc.Client, error) {
	cfg, err := config.Load(g.dataDir)
	if err != nil {
		return nil, err
	}
	return ipc.NewClient(cfg.SocketPath()), nil
}

// emit prints v as JSON with --json, otherwise through text.
func (g *globals) emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if g.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func newDaemonCmd(g *globals) *cobra.Command {
	daemon := &cobra.Command{Use: "daemon", Short: "Fleet daemon lifecycle"}

	var noHTTP bool
	run := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(g.dataDir)
			if err != nil {
				return err
			}
			app, err := bootstrap.New(cfg, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer app.Close()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, bootstrap.RunOptions{DisableHTTP: noHTTP})
		},
	}
	run.Flags().BoolVar(&noHTTP, "no-http", false, "do not serve the HTTP API")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			st, err := client.Status(context.Background())
			if err != nil {
				return err
			}
			return g.emit(cmd, st, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "pid: %d\nup since: %s\ntransport: %s\nstorage: %s\nhttp: %s\ndevices: %d (%d connected)\nactive sessions: %d\npending schedules: %d\n",
					st.PID, st.StartedAt.Local().Format(time.RFC3339), st.Transport, st.Storage, st.HTTPAddr,
					st.Devices, st.Connected, st.ActiveSessions, st.PendingSchedules)
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			if err := client.Stop(context.Background()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "daemon stopping")
			return nil
		},
	}

	daemon.AddCommand(run, status, stopCmd)
	return daemon
}

func newDeviceCmd(g *globals) *cobra.Command {
	device := &cobra.Command{Use: "device", Short: "Device discovery and links"}

	device.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			devices, err := client.DeviceList(context.Background())
			if err != nil {
				return err
			}
			return g.emit(cmd, devices, func(w io.Writer) {
				if len(devices) == 0 {
					_, _ = fmt.Fprintln(w, "no devices")
					return
				}
				for _, d := range devices {
					battery := "-"
					if d.Battery != nil {
						battery = fmt.Sprintf("%d%%", *d.Battery)
					}
					_, _ = fmt.Fprintf(w, "%s\t%s\tconnected=%t\t%s\tbattery=%s\n", d.ID, d.Name, d.Connected, d.Status, battery)
				}
			})
		},
	})

	device.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "Scan for devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			result, err := client.DeviceScan(context.Background())
			if err != nil {
				return err
			}
			return g.emit(cmd, result, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "%d devices, %d new\n", len(result.Devices), len(result.Discovered))
				for _, id := range result.Discovered {
					_, _ = fmt.Fprintf(w, "new: %s\n", id)
				}
			})
		},
	})

	device.AddCommand(&cobra.Command{
		Use:   "connect <device-id>",
		Short: "Connect a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			d, err := client.DeviceConnect(context.Background(), args[0])
			if err != nil {
				return err
			}
			return g.emit(cmd, d, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "connected %s (%s)\n", d.ID, d.Name)
			})
		},
	})

	device.AddCommand(&cobra.Command{
		Use:   "disconnect <device-id>",
		Short: "Disconnect a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			if err := client.DeviceDisconnect(context.Background(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "disconnected %s\n", args[0])
			return nil
		},
	})
	return device
}

func newSessionCmd(g *globals) *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Disinfection session control"}

	var intensity string
	var seconds int
	start := &cobra.Command{
		Use:   "start <device-id>",
		Short: "Start a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			view, err := client.SessionStart(context.Background(), args[0], intensity, seconds)
			if err != nil {
				return err
			}
			return g.emit(cmd, view, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "session started: %s device=%s intensity=%s duration=%ds\n", view.SessionID, view.DeviceID, view.Intensity, view.Planned)
			})
		},
	}
	start.Flags().StringVar(&intensity, "intensity", "medium", "low|medium|high|max")
	start.Flags().IntVar(&seconds, "duration", 300, "seconds, clamped to [5,7200]")
	session.AddCommand(start)

	type op func(ctx context.Context, client *ipc.Client, deviceID string) (any, string, error)
	deviceOp := func(use, short string, fn op) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <device-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := g.client()
				if err != nil {
					return err
				}
				v, line, err := fn(context.Background(), client, args[0])
				if err != nil {
					if line != "" {
						_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
					}
					return err
				}
				return g.emit(cmd, v, func(w io.Writer) { _, _ = fmt.Fprintln(w, line) })
			},
		}
	}
	session.AddCommand(deviceOp("pause", "Pause the running session", func(ctx context.Context, c *ipc.Client, id string) (any, string, error) {
		v, err := c.SessionPause(ctx, id)
		return v, fmt.Sprintf("paused %s with %ds remaining", id, v.Remaining), err
	}))
	session.AddCommand(deviceOp("resume", "Resume a paused session", func(ctx context.Context, c *ipc.Client, id string) (any, string, error) {
		v, err := c.SessionResume(ctx, id)
		return v, fmt.Sprintf("resumed %s with %ds remaining", id, v.Remaining), err
	}))
	session.AddCommand(deviceOp("stop", "Stop the active session", func(ctx context.Context, c *ipc.Client, id string) (any, string, error) {
		v, err := c.SessionStop(ctx, id)
		if v.State == "" {
			return v, "", err
		}
		line := fmt.Sprintf("stopped %s after %ds", id, v.Elapsed)
		if v.Detail != "" {
			line += " (" + v.Detail + ")"
		}
		return v, line, err
	}))
	session.AddCommand(deviceOp("status", "Show a device's session", func(ctx context.Context, c *ipc.Client, id string) (any, string, error) {
		v, err := c.SessionStatus(ctx, id)
		return v, formatSession(v), err
	}))

	session.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions for every device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			views, err := client.SessionList(context.Background())
			if err != nil {
				return err
			}
			return g.emit(cmd, views, func(w io.Writer) {
				if len(views) == 0 {
					_, _ = fmt.Fprintln(w, "no sessions")
					return
				}
				for _, v := range views {
					_, _ = fmt.Fprintln(w, formatSession(v))
				}
			})
		},
	})
	return session
}

func formatSession(v sessiondto.SessionView) string {
	if v.State == "idle" {
		return fmt.Sprintf("%s\tidle", v.DeviceID)
	}
	return fmt.Sprintf("%s\t%s\t%s\t%ds/%ds\t%s", v.DeviceID, v.State, v.Intensity, v.Remaining, v.Planned, v.SessionID)
}

func newScheduleCmd(g *globals) *cobra.Command {
	schedule := &cobra.Command{Use: "schedule", Short: "Deferred sessions"}

	var at, intensity string
	var seconds int
	create := &cobra.Command{
		Use:   "create <device-id> --at <datetime>",
		Short: "Schedule a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(at) == "" {
				return fmt.Errorf("--at is required")
			}
			client, err := g.client()
			if err != nil {
				return err
			}
			view, err := client.ScheduleCreate(context.Background(), args[0], at, intensity, seconds)
			if err != nil {
				return err
			}
			return g.emit(cmd, view, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "scheduled %s device=%s at=%s\n", view.ID, view.DeviceID, view.Datetime.Local().Format(dateLayout))
			})
		},
	}
	create.Flags().StringVar(&at, "at", "", "RFC3339 or local \"YYYY-MM-DD HH:MM\"")
	create.Flags().StringVar(&intensity, "intensity", "medium", "low|medium|high|max")
	create.Flags().IntVar(&seconds, "duration", 300, "seconds, clamped to [5,7200]")
	schedule.AddCommand(create)

	schedule.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			views, err := client.ScheduleList(context.Background())
			if err != nil {
				return err
			}
			return g.emit(cmd, views, func(w io.Writer) {
				if len(views) == 0 {
					_, _ = fmt.Fprintln(w, "no schedules")
					return
				}
				for _, s := range views {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%ds\t%s\n", s.ID, s.Datetime.Local().Format(dateLayout), s.DeviceID, s.Intensity, s.Duration, s.Status)
				}
			})
		},
	})

	schedule.AddCommand(&cobra.Command{
		Use:   "delete <schedule-id>",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			if err := client.ScheduleDelete(context.Background(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})

	schedule.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Promote due schedules now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			result, err := client.ScheduleSweep(context.Background())
			if err != nil {
				return err
			}
			return g.emit(cmd, result, func(w io.Writer) {
				if result.Skipped {
					_, _ = fmt.Fprintln(w, "a sweep is already running")
					return
				}
				_, _ = fmt.Fprintf(w, "claimed %d schedule(s)\n", len(result.Claimed))
			})
		},
	})
	return schedule
}

func newLogsCmd(g *globals) *cobra.Command {
	logs := &cobra.Command{Use: "logs", Short: "Session history"}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List session logs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			entries, err := client.LogList(context.Background(), limit)
			if err != nil {
				return err
			}
			return g.emit(cmd, entries, func(w io.Writer) {
				if len(entries) == 0 {
					_, _ = fmt.Fprintln(w, "no logs")
					return
				}
				for _, l := range entries {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%ds\t%s\n", l.Timestamp.Local().Format(dateLayout), l.DeviceName, l.Intensity, l.Duration, l.Outcome)
				}
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "max entries (0 for all)")
	logs.AddCommand(list)

	logs.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every session log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			if err := client.LogClear(context.Background()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "logs cleared")
			return nil
		},
	})
	return logs
}

func newDebugCmd(g *globals) *cobra.Command {
	debug := &cobra.Command{Use: "debug", Short: "Diagnostics"}
	debug.AddCommand(&cobra.Command{
		Use:   "logs",
		Short: "Print the daemon's recent log lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			lines, err := client.DebugLogs(context.Background())
			if err != nil {
				return err
			}
			return g.emit(cmd, lines, func(w io.Writer) {
				for _, line := range lines {
					_, _ = fmt.Fprint(w, strings.TrimRight(line, "\n")+"\n")
				}
			})
		},
	})
	return debug
}

func newConfigCmd(g *globals) *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "write-default",
		Short: "Write the default config.yaml into the data directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := g.dataDir
			if dir == "" {
				resolved, err := config.DefaultDataDir()
				if err != nil {
					return err
				}
				dir = resolved
			}
			path, err := config.WriteDefault(dir)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(g.dataDir)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	})
	return cfgCmd
}

func newTUICmd(g *globals) *cobra.Command {
	var intensity string
	var seconds int
	tui := &cobra.Command{
		Use:   "tui",
		Short: "Run the fleet dashboard",
		RunE: func(_ *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			if err := client.WaitReady(context.Background(), 2*time.Second); err != nil {
				return err
			}
			return dashboard.Run(client, dashboard.Options{DefaultIntensity: intensity, DefaultSeconds: seconds})
		},
	}
	tui.Flags().StringVar(&intensity, "intensity", "medium", "intensity used by the start key")
	tui.Flags().IntVar(&seconds, "duration", 300, "duration used by the start key")
	return tui
}
