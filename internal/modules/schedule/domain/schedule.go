package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "uvfleet/internal/platform/errors"
)

const (
	MinDuration = 5
	MaxDuration = 7200
	// TagPrefix marks sessions started by a schedule.
	TagPrefix = "schedule:"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusOverdue is derived for display and never stored.
	StatusOverdue Status = "overdue"
)

type Schedule struct {
	ID         string     `json:"id"`
	DeviceID   string     `json:"deviceId"`
	DeviceName string     `json:"deviceName"`
	Datetime   time.Time  `json:"datetime"`
	Intensity  string     `json:"intensity"`
	Duration   int        `json:"duration"`
	Status     Status     `json:"status"`
	PromotedAt *time.Time `json:"promotedAt,omitempty"`
}

func ValidateDuration(seconds int) error {
	if seconds < MinDuration || seconds > MaxDuration {
		return fmt.Errorf("%w: %d not in [%d,%d]", apperrors.ErrInvalidDuration, seconds, MinDuration, MaxDuration)
	}
	return nil
}

func ValidateIntensity(intensity string) error {
	switch intensity {
	case "low", "medium", "high", "max":
		return nil
	default:
		return fmt.Errorf("%w: unknown intensity %q", apperrors.ErrInvalidInput, intensity)
	}
}

// DerivedStatus is the display status at now.
func DerivedStatus(s Schedule, now time.Time) Status {
	if s.Status == StatusPending && s.Datetime.Before(now) {
		return StatusOverdue
	}
	return s.Status
}

// Due reports a pending schedule whose time has come and that no sweep has
// claimed yet.
func (s Schedule) Due(now time.Time) bool {
	return s.Status == StatusPending && s.PromotedAt == nil && !s.Datetime.After(now)
}

func (s Schedule) Tag() string {
	return TagPrefix + s.ID
}

// ScheduleIDFromTag returns the schedule a session tag points to.
func ScheduleIDFromTag(tag string) (string, bool) {
	if !strings.HasPrefix(tag, TagPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(tag, TagPrefix)
	return id, id != ""
}
