package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"uvfleet/internal/httpapi"
	"uvfleet/internal/ipc"

	"golang.org/x/sync/errgroup"
)

// RunOptions toggles the outer surfaces of the daemon.
type RunOptions struct {
	// SocketPath overrides the configured socket; "-" disables it.
	SocketPath string
	// DisableHTTP skips the REST and websocket listener.
	DisableHTTP bool
}

// Run starts every background loop and blocks until ctx ends, a loop fails
// or a client asks the daemon to stop over the socket.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	a.Prime(ctx)

	g.Go(func() error { return a.recorder.Run(ctx) })
	g.Go(func() error { return a.Schedules.Run(ctx) })
	g.Go(func() error { return a.Devices.MonitorLinks(ctx) })

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = a.Config.SocketPath()
	}
	if socketPath != "-" {
		backend := &daemonBackend{app: a, stop: cancel}
		g.Go(func() error {
			if err := ipc.Serve(ctx, socketPath, backend); err != nil {
				return fmt.Errorf("ipc: %w", err)
			}
			return nil
		})
	}

	if !opts.DisableHTTP && a.Config.HTTP.Addr != "" {
		hub := httpapi.NewHub(a.Logger, a.Config.HTTP.AllowedOrigins)
		states, outcomes := a.Sessions.SubscribeStates(), a.Sessions.SubscribeOutcomes()
		g.Go(func() error {
			hub.Run(ctx, states, outcomes)
			return nil
		})
		router := httpapi.NewRouter(httpapi.Deps{
			Devices:        a.Devices,
			Sessions:       a.Sessions,
			Schedules:      a.Schedules,
			Logs:           a.Logs,
			DebugLines:     a.Ring.Lines,
			Metrics:        a.Metrics.Handler(),
			Hub:            hub,
			Logger:         a.Logger,
			AllowedOrigins: a.Config.HTTP.AllowedOrigins,
		})
		g.Go(func() error {
			if err := httpapi.Serve(ctx, a.Config.HTTP.Addr, router, a.Logger); err != nil {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
	}

	a.Logger.Info().
		Str("transport", a.Config.Transport.Driver).
		Str("storage", a.Config.Storage.Driver).
		Str("socket", socketPath).
		Msg("daemon started")

	err := g.Wait()
	a.Logger.Info().Msg("daemon stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
