package in

import (
	"context"

	"uvfleet/internal/modules/schedule/dto"
)

type Usecase interface {
	Create(ctx context.Context, input dto.CreateInput) (dto.ScheduleView, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]dto.ScheduleView, error)
	Sweep(ctx context.Context) (dto.SweepResult, error)
	Run(ctx context.Context) error
}
