package in

import (
	"context"

	"uvfleet/internal/modules/outcome/dto"
	outcomein "uvfleet/internal/modules/outcome/port/in"
)

type CLIHandler struct {
	usecase outcomein.Usecase
}

func NewCLIHandler(usecase outcomein.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

// ListLogs returns at most limit entries, newest first. A non-positive limit
// returns everything.
func (h CLIHandler) ListLogs(ctx context.Context, limit int) ([]dto.LogEntry, error) {
	logs, err := h.usecase.ListLogs(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (h CLIHandler) ClearLogs(ctx context.Context) error {
	return h.usecase.ClearLogs(ctx)
}
