package usecase

import (
	"context"
	"fmt"
	"strings"

	"uvfleet/internal/modules/session/dto"
	sessionin "uvfleet/internal/modules/session/port/in"
	"uvfleet/internal/modules/session/service"
	apperrors "uvfleet/internal/platform/errors"
	"uvfleet/internal/platform/events"
)

type Interactor struct {
	ctl *service.Controller
}

func NewInteractor(ctl *service.Controller) sessionin.Usecase {
	return &Interactor{ctl: ctl}
}

func (i *Interactor) Start(ctx context.Context, input dto.StartInput) (dto.SessionView, error) {
	input.DeviceID = strings.TrimSpace(input.DeviceID)
	input.Intensity = strings.ToLower(strings.TrimSpace(input.Intensity))
	if input.DeviceID == "" {
		return dto.SessionView{}, fmt.Errorf("%w: device id is required", apperrors.ErrInvalidInput)
	}
	return i.ctl.Start(ctx, input)
}

func (i *Interactor) Pause(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return i.ctl.Pause(ctx, strings.TrimSpace(deviceID))
}

func (i *Interactor) Resume(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return i.ctl.Resume(ctx, strings.TrimSpace(deviceID))
}

func (i *Interactor) Stop(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return i.ctl.Stop(ctx, strings.TrimSpace(deviceID))
}

func (i *Interactor) Get(ctx context.Context, deviceID string) (dto.SessionView, error) {
	return i.ctl.Get(ctx, strings.TrimSpace(deviceID))
}

func (i *Interactor) List(ctx context.Context) ([]dto.SessionView, error) {
	return i.ctl.List(ctx)
}

func (i *Interactor) SubscribeStates() *events.Subscription[dto.StateEvent] {
	return i.ctl.SubscribeStates()
}

func (i *Interactor) SubscribeOutcomes() *events.Subscription[dto.OutcomeEvent] {
	return i.ctl.SubscribeOutcomes()
}
