package in

import (
	"context"

	"uvfleet/internal/modules/outcome/dto"
)

type Usecase interface {
	// ListLogs returns session logs newest first.
	ListLogs(ctx context.Context) ([]dto.LogEntry, error)
	ClearLogs(ctx context.Context) error
	// ResolveSchedule queues a terminal schedule status for persistence.
	ResolveSchedule(ctx context.Context, input dto.ScheduleResolution) error
}
