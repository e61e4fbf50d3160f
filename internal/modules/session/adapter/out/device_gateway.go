package out

import (
	"context"

	devicedto "uvfleet/internal/modules/device/dto"
	devicein "uvfleet/internal/modules/device/port/in"
	"uvfleet/internal/modules/session/domain"
	sessionout "uvfleet/internal/modules/session/port/out"
)

// DeviceGateway serves the controller's directory and command ports from the
// device module.
type DeviceGateway struct {
	devices devicein.Usecase
}

var (
	_ sessionout.DeviceDirectory = DeviceGateway{}
	_ sessionout.CommandSender   = DeviceGateway{}
)

func NewDeviceGateway(devices devicein.Usecase) DeviceGateway {
	return DeviceGateway{devices: devices}
}

func (g DeviceGateway) Lookup(ctx context.Context, deviceID string) (sessionout.DeviceRef, error) {
	info, err := g.devices.Get(ctx, deviceID)
	if err != nil {
		return sessionout.DeviceRef{}, err
	}
	return sessionout.DeviceRef{ID: info.ID, Name: info.Name, Connected: info.Connected}, nil
}

func (g DeviceGateway) SetStatus(ctx context.Context, deviceID, status string) error {
	return g.devices.SetStatus(ctx, deviceID, status)
}

func (g DeviceGateway) WatchDisconnects(fn func(deviceID string)) func() {
	return g.devices.WatchDisconnects(fn)
}

func (g DeviceGateway) Send(ctx context.Context, deviceID string, command domain.Command) error {
	return g.devices.SendCommand(ctx, devicedto.CommandInput{
		DeviceID:  deviceID,
		Type:      string(command.Kind),
		Intensity: string(command.Intensity),
		Duration:  command.Duration,
	})
}
