package out

import (
	"context"
	"time"

	"uvfleet/internal/modules/session/domain"
)

type DeviceRef struct {
	ID        string
	Name      string
	Connected bool
}

// DeviceDirectory is the controller's view of the device registry.
type DeviceDirectory interface {
	Lookup(ctx context.Context, deviceID string) (DeviceRef, error)
	SetStatus(ctx context.Context, deviceID, status string) error
	WatchDisconnects(fn func(deviceID string)) func()
}

type CommandSender interface {
	Send(ctx context.Context, deviceID string, command domain.Command) error
}

type Metrics interface {
	SessionTransition(state string)
	SessionOutcome(outcome string)
	SetActiveSessions(n int)
	ObserveCommand(command string, err error, elapsed time.Duration)
}
