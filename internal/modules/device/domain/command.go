package domain

import "fmt"

type CommandType string

const (
	CommandStart CommandType = "start"
	CommandPause CommandType = "pause"
	CommandStop  CommandType = "stop"
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
		return fmt.Errorf("unknown intensity: %q", string(i))
	}
}

// Command is what travels over the link. Intensity and Duration only
// accompany start.
type Command struct {
	Type      CommandType
	Intensity Intensity
	Duration  int
}

func (c Command) Validate() error {
	switch c.Type {
	case CommandStart:
		if err := c.Intensity.Validate(); err != nil {
			return err
		}
		if c.Duration <= 0 {
			return fmt.Errorf("start requires a positive duration")
		}
		return nil
	case CommandPause, CommandStop:
		return nil
	default:
		return fmt.Errorf("unknown command type: %q", string(c.Type))
	}
}
