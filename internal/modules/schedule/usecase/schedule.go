package usecase

import (
	"context"

	"uvfleet/internal/modules/schedule/dto"
	schedulein "uvfleet/internal/modules/schedule/port/in"
	"uvfleet/internal/modules/schedule/service"
)

type Interactor struct {
	svc *service.Engine
}

func NewInteractor(svc *service.Engine) schedulein.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Create(ctx context.Context, input dto.CreateInput) (dto.ScheduleView, error) {
	return i.svc.Create(ctx, input)
}

func (i *Interactor) Delete(ctx context.Context, id string) error {
	return i.svc.Delete(ctx, id)
}

func (i *Interactor) List(ctx context.Context) ([]dto.ScheduleView, error) {
	return i.svc.List(ctx)
}

func (i *Interactor) Sweep(ctx context.Context) (dto.SweepResult, error) {
	return i.svc.Sweep(ctx)
}

func (i *Interactor) Run(ctx context.Context) error {
	return i.svc.Run(ctx)
}
