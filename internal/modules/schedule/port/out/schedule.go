package out

import (
	"context"
	"time"

	"uvfleet/internal/modules/schedule/domain"
	sessiondto "uvfleet/internal/modules/session/dto"
	"uvfleet/internal/platform/events"
)

type Repository interface {
	Save(ctx context.Context, schedule domain.Schedule) error
	// List returns schedules by datetime ascending.
	List(ctx context.Context) ([]domain.Schedule, error)
	Delete(ctx context.Context, id string) error
	MarkPromoted(ctx context.Context, id string, at time.Time) error
}

type DeviceLookup interface {
	// DeviceName fails with ErrUnknownDevice for ids the registry never saw.
	DeviceName(ctx context.Context, deviceID string) (string, error)
}

type SessionStarter interface {
	Start(ctx context.Context, input sessiondto.StartInput) error
	SubscribeOutcomes() *events.Subscription[sessiondto.OutcomeEvent]
}

// Resolver persists a terminal schedule status.
type Resolver interface {
	Resolve(ctx context.Context, scheduleID string, status domain.Status) error
}

type Metrics interface {
	PromotionResult(result string)
}
