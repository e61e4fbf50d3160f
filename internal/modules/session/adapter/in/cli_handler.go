package in

import (
	"context"

	"uvfleet/internal/modules/session/dto"
	sessionin "uvfleet/internal/modules/session/port/in"
)

type CLIHandler struct {
	usecase sessionin.Usecase
}

func NewCLIHandler(usecase sessionin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

// Start clamps the requested duration into the accepted range.
func (h CLIHandler) Start(ctx context.Context, deviceID, intensity string, seconds int) (dto.SessionView, error) {
	return h.usecase.Start(ctx, dto.StartInput{
		DeviceID:  deviceID,
		Intensity: intensity,
		Duration:  dto.ClampDuration(seconds),
		Tag:       "manual",
	})
}

func (h CLIHandler) Pause(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return h.usecase.Pause(ctx, deviceID)
}

func (h CLIHandler) Resume(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return h.usecase.Resume(ctx, deviceID)
}

func (h CLIHandler) Stop(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return h.usecase.Stop(ctx, deviceID)
}

func (h CLIHandler) Status(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return h.usecase.Get(ctx, deviceID)
}

func (h CLIHandler) List(ctx context.Context) ([]dto.SessionView, error) {
	return h.usecase.List(ctx)
}
