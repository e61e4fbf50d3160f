package dto

import "time"

type CreateInput struct {
	DeviceID  string    `json:"deviceId"`
	Datetime  time.Time `json:"datetime"`
	Intensity string    `json:"intensity"`
	Duration  int       `json:"duration"`
}

type ScheduleView struct {
	ID         string     `json:"id"`
	DeviceID   string     `json:"deviceId"`
	DeviceName string     `json:"deviceName"`
	Datetime   time.Time  `json:"datetime"`
	Intensity  string     `json:"intensity"`
	Duration   int        `json:"duration"`
	Status     string     `json:"status"`
	PromotedAt *time.Time `json:"promotedAt,omitempty"`
}

type SweepResult struct {
	Claimed []string `json:"claimed"`
	// Skipped is set when another sweep was still running.
	Skipped bool `json:"skipped,omitempty"`
}
