package usecase

import (
	"context"

	"uvfleet/internal/modules/device/dto"
	devicein "uvfleet/internal/modules/device/port/in"
	"uvfleet/internal/modules/device/service"
)

type Interactor struct {
	svc *service.DeviceService
}

func NewInteractor(svc *service.DeviceService) devicein.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) List(ctx context.Context) ([]dto.DeviceInfo, error) {
	return i.svc.List(ctx)
}

func (i *Interactor) Get(ctx context.Context, deviceID string) (dto.DeviceInfo, error) {
	return i.svc.Get(ctx, deviceID)
}

func (i *Interactor) Scan(ctx context.Context) (dto.ScanResult, error) {
	return i.svc.Scan(ctx)
}

func (i *Interactor) Connect(ctx context.Context, deviceID string) (dto.DeviceInfo, error) {
	return i.svc.Connect(ctx, deviceID)
}

func (i *Interactor) Disconnect(ctx context.Context, deviceID string) error {
	return i.svc.Disconnect(ctx, deviceID)
}

func (i *Interactor) SendCommand(ctx context.Context, input dto.CommandInput) error {
	return i.svc.SendCommand(ctx, input)
}

func (i *Interactor) SetStatus(ctx context.Context, deviceID, status string) error {
	return i.svc.SetStatus(ctx, deviceID, status)
}

func (i *Interactor) WatchDisconnects(fn func(deviceID string)) func() {
	return i.svc.WatchDisconnects(fn)
}

func (i *Interactor) MonitorLinks(ctx context.Context) error {
	return i.svc.MonitorLinks(ctx)
}
