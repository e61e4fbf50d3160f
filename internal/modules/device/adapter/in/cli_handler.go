package in

import (
	"context"

	"uvfleet/internal/modules/device/dto"
	devicein "uvfleet/internal/modules/device/port/in"
)

type CLIHandler struct {
	usecase devicein.Usecase
}

func NewCLIHandler(usecase devicein.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) List(ctx context.Context) ([]dto.DeviceInfo, error) {
	return h.usecase.List(ctx)
}

func (h CLIHandler) Scan(ctx context.Context) (dto.ScanResult, error) {
	return h.usecase.Scan(ctx)
}

func (h CLIHandler) Connect(ctx context.Context, deviceID string) (dto.DeviceInfo, error) {
	return h.usecase.Connect(ctx, deviceID)
}

func (h CLIHandler) Disconnect(ctx context.Context, deviceID string) error {
	return h.usecase.Disconnect(ctx, deviceID)
}

func (h CLIHandler) Get(ctx context.Context, deviceID string) (dto.DeviceInfo, error) {
	return h.usecase.Get(ctx, deviceID)
}
