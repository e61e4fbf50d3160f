package in

import (
	"context"

	"uvfleet/internal/modules/session/dto"
	"uvfleet/internal/platform/events"
)

type Usecase interface {
	Start(ctx context.Context, input dto.StartInput) (dto.SessionView, error)
	Pause(ctx context.Context, deviceID string) (dto.SessionView, error)
	Resume(ctx context.Context, deviceID string) (dto.SessionView, error)
	Stop(ctx context.Context, deviceID string) (dto.SessionView, error)
	Get(ctx context.Context, deviceID string) (dto.SessionView, error)
	List(ctx context.Context) ([]dto.SessionView, error)
	SubscribeStates() *events.Subscription[dto.StateEvent]
	SubscribeOutcomes() *events.Subscription[dto.OutcomeEvent]
}
