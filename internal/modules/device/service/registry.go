package service

import (
	"fmt"
	"sync"
	"time"

	"uvfleet/internal/modules/device/domain"
	apperrors "uvfleet/internal/platform/errors"
)

// Registry is the authoritative in-memory view of the fleet.
type Registry struct {
	mu        sync.RWMutex
	devices   map[string]domain.Device
	order     []string
	listeners map[int]func(deviceID string)
	nextID    int
}

func NewRegistry() *Registry {
	return &Registry{
		devices:   map[string]domain.Device{},
		listeners: map[int]func(string){},
	}
}

// Upsert adds a device or refreshes its descriptive fields. Status of a known
// device is kept; connectivity goes through MarkConnected/MarkDisconnected.
func (r *Registry) Upsert(device domain.Device) (bool, error) {
	if device.Status == "" {
		device.Status = domain.StatusIdle
	}
	if err := device.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.devices[device.ID]
	if !ok {
		if len(r.order) >= domain.MaxFleetSize {
			return false, fmt.Errorf("%w: cannot track %s", apperrors.ErrFleetFull, device.ID)
		}
		r.devices[device.ID] = device
		r.order = append(r.order, device.ID)
		return true, nil
	}
	if device.Name != "" {
		existing.Name = device.Name
	}
	if device.Battery != nil {
		battery := *device.Battery
		existing.Battery = &battery
	}
	if device.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = device.LastSeen
	}
	r.devices[device.ID] = existing
	return false, nil
}

func (r *Registry) Get(deviceID string) (domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	device, ok := r.devices[deviceID]
	if !ok {
		return domain.Device{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}
	return device, nil
}

func (r *Registry) List() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id])
	}
	return out
}

func (r *Registry) SetStatus(deviceID string, status domain.Status, at time.Time) error {
	if err := status.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	device, ok := r.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}
	if status != domain.StatusIdle && !device.Connected {
		return fmt.Errorf("%w: %s", apperrors.ErrDeviceOffline, deviceID)
	}
	device.Status = status
	if at.After(device.LastSeen) {
		device.LastSeen = at
	}
	r.devices[deviceID] = device
	return nil
}

func (r *Registry) MarkConnected(deviceID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	device, ok := r.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}
	device.Connected = true
	if at.After(device.LastSeen) {
		device.LastSeen = at
	}
	r.devices[deviceID] = device
	return nil
}

// MarkDisconnected forces the device idle and offline and notifies
// listeners when the device was connected.
func (r *Registry) MarkDisconnected(deviceID string) error {
	r.mu.Lock()
	device, ok := r.devices[deviceID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownDevice, deviceID)
	}
	wasConnected := device.Connected
	device.Connected = false
	device.Status = domain.StatusIdle
	r.devices[deviceID] = device
	listeners := make([]func(string), 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	if wasConnected {
		for _, fn := range listeners {
			fn(deviceID)
		}
	}
	return nil
}

func (r *Registry) OnDisconnected(fn func(deviceID string)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, device := range r.devices {
		if device.Connected {
			n++
		}
	}
	return n
}
