package apperrors

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrDeviceOffline     = errors.New("device offline")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrUnknownDevice     = errors.New("unknown device")
	ErrConnectFailed     = errors.New("connect failed")
	ErrNotConnected      = errors.New("device not connected")
	ErrCommandFailed     = errors.New("command failed")
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrPastDatetime      = errors.New("datetime is not in the future")
	ErrPersistence       = errors.New("persistence error")
	ErrTimeout           = errors.New("timeout")
	ErrSessionActive     = errors.New("session already active")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrFleetFull         = errors.New("fleet is full")
)

// Known lists every sentinel so error text received over IPC can be mapped back.
var Known = []error{
	ErrInvalidInput,
	ErrNotFound,
	ErrDeviceOffline,
	ErrDeviceNotFound,
	ErrUnknownDevice,
	ErrConnectFailed,
	ErrNotConnected,
	ErrCommandFailed,
	ErrInvalidDuration,
	ErrPastDatetime,
	ErrPersistence,
	ErrTimeout,
	ErrSessionActive,
	ErrInvalidTransition,
	ErrFleetFull,
}
