package domain

import (
	"fmt"
	"time"

	apperrors "uvfleet/internal/platform/errors"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeStopped Outcome = "stopped"
	OutcomeError   Outcome = "error"
)

func (o Outcome) Validate() error {
	switch o {
	case OutcomeSuccess, OutcomeStopped, OutcomeError:
		return nil
	default:
		return fmt.Errorf("%w: unknown outcome %q", apperrors.ErrInvalidInput, string(o))
	}
}

// SessionLog is the audit record of one finished session. Duration is the
// elapsed run time in seconds, never the planned one.
type SessionLog struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	Intensity  string    `json:"intensity"`
	Duration   int       `json:"duration"`
	Outcome    Outcome   `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (l SessionLog) Validate() error {
	if l.ID == "" || l.DeviceID == "" {
		return fmt.Errorf("%w: log id and device id are required", apperrors.ErrInvalidInput)
	}
	if l.Duration < 0 {
		return fmt.Errorf("%w: negative duration %d", apperrors.ErrInvalidInput, l.Duration)
	}
	return l.Outcome.Validate()
}

// ClampElapsed bounds a reported elapsed time by the planned duration.
func ClampElapsed(elapsed, planned int) int {
	if elapsed < 0 {
		return 0
	}
	if planned > 0 && elapsed > planned {
		return planned
	}
	return elapsed
}
