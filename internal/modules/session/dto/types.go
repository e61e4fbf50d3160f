package dto

import "time"

type StartInput struct {
	DeviceID  string `json:"deviceId"`
	Intensity string `json:"intensity"`
	Duration  int    `json:"duration"`
	// Tag is echoed on the outcome event so the caller can correlate it.
	Tag string `json:"tag,omitempty"`
}

type SessionView struct {
	SessionID  string    `json:"sessionId,omitempty"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName,omitempty"`
	State      string    `json:"state"`
	Intensity  string    `json:"intensity,omitempty"`
	Planned    int       `json:"plannedDuration"`
	Remaining  int       `json:"remaining"`
	Elapsed    int       `json:"elapsed"`
	Tag        string    `json:"tag,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	// Detail carries a command failure that did not prevent the transition.
	Detail string `json:"detail,omitempty"`
}

type StateEvent struct {
	SessionID string    `json:"sessionId,omitempty"`
	DeviceID  string    `json:"deviceId"`
	State     string    `json:"state"`
	Intensity string    `json:"intensity,omitempty"`
	Planned   int       `json:"plannedDuration"`
	Remaining int       `json:"remaining"`
	At        time.Time `json:"at"`
}

type OutcomeEvent struct {
	SessionID  string    `json:"sessionId"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	Intensity  string    `json:"intensity"`
	Planned    int       `json:"plannedDuration"`
	Elapsed    int       `json:"elapsed"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	Tag        string    `json:"tag,omitempty"`
	EndedAt    time.Time `json:"endedAt"`
}
