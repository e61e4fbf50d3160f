package out

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"uvfleet/internal/modules/device/domain"
	deviceout "uvfleet/internal/modules/device/port/out"
	"uvfleet/internal/platform/clock"
	apperrors "uvfleet/internal/platform/errors"
)

type SimOptions struct {
	Seed               int64
	ConnectFailureRate float64
	CommandFailureRate float64
	DiscoveryRate      float64
	// CommandDelay holds every command for this long before it is answered.
	CommandDelay time.Duration
	Clock        clock.Clock
	// Devices overrides the default fleet.
	Devices []domain.Device
}

// SentCommand is one command the simulator accepted.
type SentCommand struct {
	DeviceID string
	Command  domain.Command
}

// SimTransport simulates the radio link with a seeded random source so runs
// are reproducible.
type SimTransport struct {
	mu       sync.Mutex
	rng      *rand.Rand
	opts     SimOptions
	clock    clock.Clock
	devices  map[string]domain.Device
	order    []string
	handlers deviceout.TransportHandlers
	sent     []SentCommand
	closed   bool
}

func NewSimTransport(opts SimOptions) *SimTransport {
	clk := opts.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	t := &SimTransport{
		rng:     rand.New(rand.NewSource(opts.Seed)),
		opts:    opts,
		clock:   clk,
		devices: map[string]domain.Device{},
	}
	fleet := opts.Devices
	if fleet == nil {
		fleet = DefaultSimFleet(clk.Now())
	}
	for _, device := range fleet {
		if device.Status == "" {
			device.Status = domain.StatusIdle
		}
		t.devices[device.ID] = device
		t.order = append(t.order, device.ID)
	}
	return t
}

// DefaultSimFleet is three connected disinfectors and one that has been
// offline for five minutes.
func DefaultSimFleet(now time.Time) []domain.Device {
	battery := func(v int) *int { return &v }
	return []domain.Device{
		{ID: "sim-device-001", Name: "Disinfector #001", Connected: true, Status: domain.StatusIdle, Battery: battery(85), LastSeen: now},
		{ID: "sim-device-002", Name: "Disinfector #002", Connected: true, Status: domain.StatusIdle, Battery: battery(67), LastSeen: now},
		{ID: "sim-device-003", Name: "Disinfector #003", Connected: true, Status: domain.StatusIdle, Battery: battery(92), LastSeen: now},
		{ID: "sim-device-004", Name: "Disinfector #004", Connected: false, Status: domain.StatusIdle, LastSeen: now.Add(-5 * time.Minute)},
	}
}

func (t *SimTransport) ListDevices(ctx context.Context) ([]domain.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("%w: transport closed", apperrors.ErrCommandFailed)
	}
	if len(t.order) < domain.MaxFleetSize && t.opts.DiscoveryRate > 0 && t.rng.Float64() < t.opts.DiscoveryRate {
		n := len(t.order) + 1
		device := domain.Device{
			ID:       fmt.Sprintf("sim-device-%03d", n),
			Name:     fmt.Sprintf("Disinfector #%03d", n),
			Status:   domain.StatusIdle,
			LastSeen: t.clock.Now(),
		}
		if _, exists := t.devices[device.ID]; !exists {
			t.devices[device.ID] = device
			t.order = append(t.order, device.ID)
		}
	}
	out := make([]domain.Device, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.devices[id])
	}
	return out, nil
}

func (t *SimTransport) Connect(ctx context.Context, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	device, ok := t.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrDeviceNotFound, deviceID)
	}
	if t.opts.ConnectFailureRate > 0 && t.rng.Float64() < t.opts.ConnectFailureRate {
		return fmt.Errorf("%w: %s (simulated)", apperrors.ErrConnectFailed, deviceID)
	}
	device.Connected = true
	device.LastSeen = t.clock.Now()
	t.devices[deviceID] = device
	return nil
}

func (t *SimTransport) SendCommand(ctx context.Context, deviceID string, command domain.Command) error {
	if t.opts.CommandDelay > 0 {
		timer := time.NewTimer(t.opts.CommandDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	device, ok := t.devices[deviceID]
	if !ok || !device.Connected {
		return fmt.Errorf("%w: %s", apperrors.ErrNotConnected, deviceID)
	}
	if t.opts.CommandFailureRate > 0 && t.rng.Float64() < t.opts.CommandFailureRate {
		return fmt.Errorf("%w: %s rejected %s (simulated)", apperrors.ErrCommandFailed, deviceID, command.Type)
	}
	switch command.Type {
	case domain.CommandStart:
		device.Status = domain.StatusRunning
	case domain.CommandPause:
		device.Status = domain.StatusPaused
	case domain.CommandStop:
		device.Status = domain.StatusIdle
	}
	device.LastSeen = t.clock.Now()
	t.devices[deviceID] = device
	t.sent = append(t.sent, SentCommand{DeviceID: deviceID, Command: command})
	return nil
}

func (t *SimTransport) Disconnect(ctx context.Context, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	device, ok := t.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrDeviceNotFound, deviceID)
	}
	device.Connected = false
	device.Status = domain.StatusIdle
	t.devices[deviceID] = device
	return nil
}

func (t *SimTransport) SetHandlers(handlers deviceout.TransportHandlers) {
	t.mu.Lock()
	t.handlers = handlers
	t.mu.Unlock()
}

// Drop simulates an unexpected link loss.
func (t *SimTransport) Drop(deviceID string) {
	t.mu.Lock()
	device, ok := t.devices[deviceID]
	if ok {
		device.Connected = false
		device.Status = domain.StatusIdle
		t.devices[deviceID] = device
	}
	handler := t.handlers.OnDisconnected
	t.mu.Unlock()
	if ok && handler != nil {
		handler(deviceID)
	}
}

func (t *SimTransport) Sent() []SentCommand {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SentCommand, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *SimTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}
