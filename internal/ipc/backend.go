package ipc

import (
	"context"
	"time"

	devicedto "uvfleet/internal/modules/device/dto"
	outcomedto "uvfleet/internal/modules/outcome/dto"
	scheduledto "uvfleet/internal/modules/schedule/dto"
	sessiondto "uvfleet/internal/modules/session/dto"
)

// Backend is everything the daemon exposes over its socket. The daemon
// implements it over the module handlers and Client implements it remotely.
type Backend interface {
	DeviceList(ctx context.Context) ([]devicedto.DeviceInfo, error)
	DeviceScan(ctx context.Context) (devicedto.ScanResult, error)
	DeviceConnect(ctx context.Context, deviceID string) (devicedto.DeviceInfo, error)
	DeviceDisconnect(ctx context.Context, deviceID string) error

	SessionStart(ctx context.Context, deviceID, intensity string, seconds int) (sessiondto.SessionView, error)
	SessionPause(ctx context.Context, deviceID string) (sessiondto.SessionView, error)
	SessionResume(ctx context.Context, deviceID string) (sessiondto.SessionView, error)
	SessionStop(ctx context.Context, deviceID string) (sessiondto.SessionView, error)
	SessionStatus(ctx context.Context, deviceID string) (sessiondto.SessionView, error)
	SessionList(ctx context.Context) ([]sessiondto.SessionView, error)

	ScheduleCreate(ctx context.Context, deviceID, at, intensity string, seconds int) (scheduledto.ScheduleView, error)
	ScheduleList(ctx context.Context) ([]scheduledto.ScheduleView, error)
	ScheduleDelete(ctx context.Context, scheduleID string) error
	ScheduleSweep(ctx context.Context) (scheduledto.SweepResult, error)

	LogList(ctx context.Context, limit int) ([]outcomedto.LogEntry, error)
	LogClear(ctx context.Context) error
	DebugLogs(ctx context.Context) ([]string, error)

	Status(ctx context.Context) (DaemonStatus, error)
	Stop(ctx context.Context) error
}

type DaemonStatus struct {
	PID              int
	StartedAt        time.Time
	Transport        string
	Storage          string
	HTTPAddr         string
	Devices          int
	Connected        int
	ActiveSessions   int
	PendingSchedules int
}
