package dto

import "time"

type DeviceInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	Status    string    `json:"status"`
	Battery   *int      `json:"battery"`
	LastSeen  time.Time `json:"lastSeen"`
}

type CommandInput struct {
	DeviceID  string `json:"deviceId"`
	Type      string `json:"type"`
	Intensity string `json:"intensity,omitempty"`
	Duration  int    `json:"duration,omitempty"`
}

type ScanResult struct {
	Devices    []DeviceInfo `json:"devices"`
	Discovered []string     `json:"discovered"`
}
