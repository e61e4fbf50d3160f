package in

import (
	"context"
	"errors"
	"testing"
	"time"

	"uvfleet/internal/modules/schedule/dto"
	apperrors "uvfleet/internal/platform/errors"
)

func TestParseDatetime(t *testing.T) {
	t.Parallel()
	utc := time.UTC

	got, err := ParseDatetime("2026-07-01T08:30:00Z", utc)
	if err != nil || !got.Equal(time.Date(2026, 7, 1, 8, 30, 0, 0, utc)) {
		t.Fatalf("RFC3339 parse = %v, %v", got, err)
	}
	got, err = ParseDatetime("2026-07-01 08:30", utc)
	if err != nil || !got.Equal(time.Date(2026, 7, 1, 8, 30, 0, 0, utc)) {
		t.Fatalf("local parse = %v, %v", got, err)
	}
	if _, err := ParseDatetime("tomorrow", utc); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("bad datetime error = %v", err)
	}
}

type recordingUsecase struct {
	created []dto.CreateInput
}

func (u *recordingUsecase) Create(_ context.Context, input dto.CreateInput) (dto.ScheduleView, error) {
	u.created = append(u.created, input)
	return dto.ScheduleView{ID: "sch-1"}, nil
}
func (u *recordingUsecase) Delete(context.Context, string) error { return nil }
func (u *recordingUsecase) List(context.Context) ([]dto.ScheduleView, error) {
	return nil, nil
}
func (u *recordingUsecase) Sweep(context.Context) (dto.SweepResult, error) {
	return dto.SweepResult{}, nil
}
func (u *recordingUsecase) Run(context.Context) error { return nil }

func TestCreateClampsDuration(t *testing.T) {
	t.Parallel()
	uc := &recordingUsecase{}
	h := NewCLIHandler(uc)

	for _, seconds := range []int{1, 9000, 60} {
		if _, err := h.Create(context.Background(), "dev-1", "2030-01-01T00:00:00Z", "low", seconds); err != nil {
			t.Fatalf("create %d: %v", seconds, err)
		}
	}
	got := []int{uc.created[0].Duration, uc.created[1].Duration, uc.created[2].Duration}
	if got[0] != 5 || got[1] != 7200 || got[2] != 60 {
		t.Fatalf("durations = %v", got)
	}
	if _, err := h.Create(context.Background(), "dev-1", "soon", "low", 60); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("bad datetime error = %v", err)
	}
	if len(uc.created) != 3 {
		t.Fatalf("bad datetime reached the usecase")
	}
}
