package usecase

import (
	"context"

	"uvfleet/internal/modules/outcome/dto"
	outcomein "uvfleet/internal/modules/outcome/port/in"
	"uvfleet/internal/modules/outcome/service"
)

type Interactor struct {
	svc *service.Recorder
}

func NewInteractor(svc *service.Recorder) outcomein.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) ListLogs(ctx context.Context) ([]dto.LogEntry, error) {
	return i.svc.ListLogs(ctx)
}

func (i *Interactor) ClearLogs(ctx context.Context) error {
	return i.svc.ClearLogs(ctx)
}

func (i *Interactor) ResolveSchedule(ctx context.Context, input dto.ScheduleResolution) error {
	return i.svc.ResolveSchedule(ctx, input)
}
