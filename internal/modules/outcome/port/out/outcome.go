package out

import (
	"context"

	"uvfleet/internal/modules/outcome/domain"
	sessiondto "uvfleet/internal/modules/session/dto"
	"uvfleet/internal/platform/events"
)

type LogStore interface {
	Append(ctx context.Context, log domain.SessionLog) error
	// List returns logs oldest first.
	List(ctx context.Context) ([]domain.SessionLog, error)
	Clear(ctx context.Context) error
}

type ScheduleStatusStore interface {
	SetStatus(ctx context.Context, scheduleID, status string) error
}

type OutcomeSource interface {
	SubscribeOutcomes() *events.Subscription[sessiondto.OutcomeEvent]
}

type Metrics interface {
	PersistenceFailure(op string)
}
