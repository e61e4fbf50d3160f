package in

import (
	"context"

	"uvfleet/internal/modules/device/dto"
)

type Usecase interface {
	List(ctx context.Context) ([]dto.DeviceInfo, error)
	Get(ctx context.Context, deviceID string) (dto.DeviceInfo, error)
	Scan(ctx context.Context) (dto.ScanResult, error)
	Connect(ctx context.Context, deviceID string) (dto.DeviceInfo, error)
	Disconnect(ctx context.Context, deviceID string) error
	SendCommand(ctx context.Context, input dto.CommandInput) error
	SetStatus(ctx context.Context, deviceID, status string) error
	// WatchDisconnects registers fn for link losses and returns its cancel.
	WatchDisconnects(fn func(deviceID string)) func()
	MonitorLinks(ctx context.Context) error
}
