package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxFleetSize bounds how many devices one controller tracks.
const MaxFleetSize = 10

type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
)

func (s Status) Validate() error {
	switch s {
	case StatusIdle, StatusRunning, StatusPaused:
		return nil
	default:
		return fmt.Errorf("unknown device status: %s", s)
	}
}

type Device struct {
	ID        string
	Name      string
	Connected bool
	Status    Status
	Battery   *int
	LastSeen  time.Time
}

func (d Device) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("device id is required")
	}
	if err := d.Status.Validate(); err != nil {
		return err
	}
	if d.Status != StatusIdle && !d.Connected {
		return fmt.Errorf("device %s cannot be %s while disconnected", d.ID, d.Status)
	}
	if d.Battery != nil && (*d.Battery < 0 || *d.Battery > 100) {
		return fmt.Errorf("device %s battery out of range: %d", d.ID, *d.Battery)
	}
	return nil
}

// Busy reports a device carrying a live session.
func (d Device) Busy() bool {
	return d.Status == StatusRunning || d.Status == StatusPaused
}
