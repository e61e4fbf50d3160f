package domain

import (
	"fmt"
	"time"

	"uvfleet/internal/modules/session/dto"
	apperrors "uvfleet/internal/platform/errors"
)

const (
	MinDuration = dto.MinDuration
	MaxDuration = dto.MaxDuration
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateErrored   State = "errored"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeStopped Outcome = "stopped"
	OutcomeError   Outcome = "error"
)

type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
	IntensityMax    Intensity = "max"
)

func (i Intensity) Validate() error {
	switch i {
	case IntensityLow, IntensityMedium, IntensityHigh, IntensityMax:
		return nil
	default:
		return fmt.Errorf("%w: unknown intensity %q", apperrors.ErrInvalidInput, string(i))
	}
}

// ValidateDuration rejects out of range input. Operator boundaries clamp
// with dto.ClampDuration first.
func ValidateDuration(seconds int) error {
	if seconds < MinDuration || seconds > MaxDuration {
		return fmt.Errorf("%w: %d not in [%d,%d]", apperrors.ErrInvalidDuration, seconds, MinDuration, MaxDuration)
	}
	return nil
}

var transitions = map[State][]State{
	StateIdle:      {StateRunning},
	StateRunning:   {StatePaused, StateCompleted, StateStopped, StateErrored},
	StatePaused:    {StateRunning, StateStopped, StateErrored},
	StateCompleted: {StateIdle},
	StateStopped:   {StateIdle},
	StateErrored:   {StateIdle},
}

func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is the live run on one device. The zero value with a DeviceID is
// an idle device.
type Session struct {
	ID         string
	DeviceID   string
	DeviceName string
	Intensity  Intensity
	Planned    int
	Remaining  int
	State      State
	Tag        string
	StartedAt  time.Time
}

func Idle(deviceID string) Session {
	return Session{DeviceID: deviceID, State: StateIdle}
}

func (s *Session) Transition(to State) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, s.State, to)
	}
	s.State = to
	return nil
}

// Active reports a session holding the device.
func (s Session) Active() bool {
	return s.State == StateRunning || s.State == StatePaused
}

func (s Session) Elapsed() int {
	elapsed := s.Planned - s.Remaining
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Tick consumes one second. It reports true when the countdown hit zero.
func (s *Session) Tick() bool {
	if s.State != StateRunning || s.Remaining <= 0 {
		return false
	}
	s.Remaining--
	return s.Remaining == 0
}

type CommandKind string

const (
	CommandStart CommandKind = "start"
	CommandPause CommandKind = "pause"
	CommandStop  CommandKind = "stop"
)

type Command struct {
	Kind      CommandKind
	Intensity Intensity
	Duration  int
}
