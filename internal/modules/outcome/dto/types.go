package dto

import "time"

type LogEntry struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	Intensity  string    `json:"intensity"`
	Duration   int       `json:"duration"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type ScheduleResolution struct {
	ScheduleID string `json:"scheduleId"`
	Status     string `json:"status"`
}
