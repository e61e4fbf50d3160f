package in

import (
	"context"
	"fmt"
	"time"

	"uvfleet/internal/modules/schedule/dto"
	schedulein "uvfleet/internal/modules/schedule/port/in"
	sessiondto "uvfleet/internal/modules/session/dto"
	apperrors "uvfleet/internal/platform/errors"
)

type CLIHandler struct {
	usecase schedulein.Usecase
}

func NewCLIHandler(usecase schedulein.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

// Create accepts RFC3339 or local "2006-01-02 15:04" datetimes and clamps the
// duration into the accepted range.
func (h CLIHandler) Create(ctx context.Context, deviceID, at, intensity string, seconds int) (dto.ScheduleView, error) {
	when, err := ParseDatetime(at, time.Local)
	if err != nil {
		return dto.ScheduleView{}, err
	}
	return h.usecase.Create(ctx, dto.CreateInput{
		DeviceID:  deviceID,
		Datetime:  when,
		Intensity: intensity,
		Duration:  sessiondto.ClampDuration(seconds),
	})
}

func (h CLIHandler) List(ctx context.Context) ([]dto.ScheduleView, error) {
	return h.usecase.List(ctx)
}

func (h CLIHandler) Delete(ctx context.Context, id string) error {
	return h.usecase.Delete(ctx, id)
}

func ParseDatetime(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised datetime %q", apperrors.ErrInvalidInput, value)
}

func (h CLIHandler) Sweep(ctx context.Context) (dto.SweepResult, error) {
	return h.usecase.Sweep(ctx)
}
