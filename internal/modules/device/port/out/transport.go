package out

import (
	"context"

	"uvfleet/internal/modules/device/domain"
)

type TransportHandlers struct {
	OnDisconnected func(deviceID string)
}

// Transport is the command channel to physical devices. Implementations
// never retry; callers bound every call with a context deadline.
type Transport interface {
	ListDevices(ctx context.Context) ([]domain.Device, error)
	Connect(ctx context.Context, deviceID string) error
	SendCommand(ctx context.Context, deviceID string, command domain.Command) error
	Disconnect(ctx context.Context, deviceID string) error
	SetHandlers(handlers TransportHandlers)
	Close() error
}

type Metrics interface {
	SetConnectedDevices(n int)
}
