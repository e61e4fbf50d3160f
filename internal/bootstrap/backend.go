package bootstrap

import (
	"context"
	"os"
	"sync"

	"uvfleet/internal/ipc"
	devicedto "uvfleet/internal/modules/device/dto"
	outcomedto "uvfleet/internal/modules/outcome/dto"
	scheduledto "uvfleet/internal/modules/schedule/dto"
	sessiondto "uvfleet/internal/modules/session/dto"
)

// daemonBackend serves the socket from the in-process handlers.
type daemonBackend struct {
	app  *App
	once sync.Once
	stop context.CancelFunc
}

var _ ipc.Backend = (*daemonBackend)(nil)

func (b *daemonBackend) DeviceList(ctx context.Context) ([]devicedto.DeviceInfo, error) {
	return b.app.DeviceCLI.List(ctx)
}

func (b *daemonBackend) DeviceScan(ctx context.Context) (devicedto.ScanResult, error) {
	return b.app.DeviceCLI.Scan(ctx)
}

func (b *daemonBackend) DeviceConnect(ctx context.Context, deviceID string) (devicedto.DeviceInfo, error) {
	return b.app.DeviceCLI.Connect(ctx, deviceID)
}

func (b *daemonBackend) DeviceDisconnect(ctx context.Context, deviceID string) error {
	return b.app.DeviceCLI.Disconnect(ctx, deviceID)
}

func (b *daemonBackend) SessionStart(ctx context.Context, deviceID, intensity string, seconds int) (sessiondto.SessionView, error) {
	return b.app.SessionCLI.Start(ctx, deviceID, intensity, seconds)
}

func (b *daemonBackend) SessionPause(ctx context.Context, deviceID string) (sessiondto.SessionView, error) {
	return b.app.SessionCLI.Pause(ctx, deviceID)
}

func (b *daemonBackend) SessionResume(ctx context.Context, deviceID string) (sessiondto.SessionView, error) {
	return b.app.SessionCLI.Resume(ctx, deviceID)
}

func (b *daemonBackend) SessionStop(ctx context.Context, deviceID string) (sessiondto.SessionView, error) {
	return b.app.SessionCLI.Stop(ctx, deviceID)
}

func (b *daemonBackend) SessionStatus(ctx context.Context, deviceID string) (sessiondto.SessionView, error) {
	return b.app.SessionCLI.Status(ctx, deviceID)
}

func (b *daemonBackend) SessionList(ctx context.Context) ([]sessiondto.SessionView, error) {
	return b.app.SessionCLI.List(ctx)
}

func (b *daemonBackend) ScheduleCreate(ctx context.Context, deviceID, at, intensity string, seconds int) (scheduledto.ScheduleView, error) {
	return b.app.ScheduleCLI.Create(ctx, deviceID, at, intensity, seconds)
}

func (b *daemonBackend) ScheduleList(ctx context.Context) ([]scheduledto.ScheduleView, error) {
	return b.app.ScheduleCLI.List(ctx)
}

func (b *daemonBackend) ScheduleDelete(ctx context.Context, scheduleID string) error {
	return b.app.ScheduleCLI.Delete(ctx, scheduleID)
}

func (b *daemonBackend) ScheduleSweep(ctx context.Context) (scheduledto.SweepResult, error) {
	return b.app.ScheduleCLI.Sweep(ctx)
}

func (b *daemonBackend) LogList(ctx context.Context, limit int) ([]outcomedto.LogEntry, error) {
	return b.app.OutcomeCLI.ListLogs(ctx, limit)
}

func (b *daemonBackend) LogClear(ctx context.Context) error {
	return b.app.OutcomeCLI.ClearLogs(ctx)
}

func (b *daemonBackend) DebugLogs(context.Context) ([]string, error) {
	return b.app.Ring.Lines(), nil
}

func (b *daemonBackend) Status(ctx context.Context) (ipc.DaemonStatus, error) {
	return b.app.Status(ctx)
}

func (b *daemonBackend) Stop(context.Context) error {
	b.once.Do(func() {
		b.app.Logger.Info().Msg("stop requested over socket")
		if b.stop != nil {
			b.stop()
		}
	})
	return nil
}

// Status summarises the fleet for `daemon status`.
func (a *App) Status(ctx context.Context) (ipc.DaemonStatus, error) {
	status := ipc.DaemonStatus{
		PID:       os.Getpid(),
		StartedAt: a.StartedAt,
		Transport: a.Config.Transport.Driver,
		Storage:   a.Config.Storage.Driver,
		HTTPAddr:  a.Config.HTTP.Addr,
	}
	devices, err := a.Devices.List(ctx)
	if err != nil {
		return ipc.DaemonStatus{}, err
	}
	status.Devices = len(devices)
	for _, d := range devices {
		if d.Connected {
			status.Connected++
		}
	}
	sessions, err := a.Sessions.List(ctx)
	if err != nil {
		return ipc.DaemonStatus{}, err
	}
	for _, s := range sessions {
		if s.State == "running" || s.State == "paused" {
			status.ActiveSessions++
		}
	}
	schedules, err := a.Schedules.List(ctx)
	if err != nil {
		return ipc.DaemonStatus{}, err
	}
	for _, s := range schedules {
		if s.Status == "pending" {
			status.PendingSchedules++
		}
	}
	return status, nil
}
