package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uvfleet/internal/modules/device/domain"
	"uvfleet/internal/modules/device/dto"
	deviceout "uvfleet/internal/modules/device/port/out"
	"uvfleet/internal/platform/clock"
	apperrors "uvfleet/internal/platform/errors"

	"github.com/rs/zerolog"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPollInterval   = 15 * time.Second
)

type Options struct {
	ConnectTimeout time.Duration
	PollInterval   time.Duration
}

type DeviceService struct {
	registry  *Registry
	transport deviceout.Transport
	clock     clock.Clock
	logger    zerolog.Logger
	metrics   deviceout.Metrics
	opts      Options
}

func NewDeviceService(registry *Registry, transport deviceout.Transport, clk clock.Clock, logger zerolog.Logger, metrics deviceout.Metrics, opts Options) *DeviceService {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	s := &DeviceService{
		registry:  registry,
		transport: transport,
		clock:     clk,
		logger:    logger.With().Str("component", "device").Logger(),
		metrics:   metrics,
		opts:      opts,
	}
	transport.SetHandlers(deviceout.TransportHandlers{OnDisconnected: s.handleLinkLoss})
	return s
}

func (s *DeviceService) List(_ context.Context) ([]dto.DeviceInfo, error) {
	devices := s.registry.List()
	out := make([]dto.DeviceInfo, 0, len(devices))
	for _, device := range devices {
		out = append(out, toInfo(device))
	}
	return out, nil
}

func (s *DeviceService) Get(_ context.Context, deviceID string) (dto.DeviceInfo, error) {
	device, err := s.registry.Get(deviceID)
	if err != nil {
		return dto.DeviceInfo{}, err
	}
	return toInfo(device), nil
}

// Scan lists the transport, adds new devices and reconciles connectivity of
// known ones.
func (s *DeviceService) Scan(ctx context.Context) (dto.ScanResult, error) {
	s.logger.Info().Msg("starting device scan")
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	reported, err := s.transport.ListDevices(callCtx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scan failed")
		return dto.ScanResult{}, fmt.Errorf("list devices: %w", err)
	}

	discovered := []string{}
	for _, device := range reported {
		created, err := s.registry.Upsert(device)
		if err != nil {
			if errors.Is(err, apperrors.ErrFleetFull) {
				s.logger.Warn().Str("device", device.ID).Msg("fleet is full, ignoring device")
				continue
			}
			s.logger.Warn().Err(err).Str("device", device.ID).Msg("ignoring invalid device")
			continue
		}
		if created {
			discovered = append(discovered, device.ID)
			s.logger.Info().Str("device", device.ID).Str("name", device.Name).Msg("found new device")
		}
		s.reconcile(device)
	}
	s.publishConnected()
	s.logger.Info().Int("found", len(discovered)).Msg("device scan completed")

	devices, err := s.List(ctx)
	if err != nil {
		return dto.ScanResult{}, err
	}
	return dto.ScanResult{Devices: devices, Discovered: discovered}, nil
}

func (s *DeviceService) Connect(ctx context.Context, deviceID string) (dto.DeviceInfo, error) {
	if _, err := s.registry.Get(deviceID); err != nil {
		return dto.DeviceInfo{}, err
	}
	s.logger.Info().Str("device", deviceID).Msg("attempting to connect")
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.transport.Connect(callCtx, deviceID); err != nil {
		s.logger.Error().Err(err).Str("device", deviceID).Msg("connection failed")
		return dto.DeviceInfo{}, fmt.Errorf("connect %s: %w", deviceID, err)
	}
	if err := s.registry.MarkConnected(deviceID, s.clock.Now()); err != nil {
		return dto.DeviceInfo{}, err
	}
	s.publishConnected()
	s.logger.Info().Str("device", deviceID).Msg("connected")
	return s.Get(ctx, deviceID)
}

func (s *DeviceService) Disconnect(ctx context.Context, deviceID string) error {
	if _, err := s.registry.Get(deviceID); err != nil {
		return err
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.transport.Disconnect(callCtx, deviceID); err != nil {
		s.logger.Warn().Err(err).Str("device", deviceID).Msg("transport disconnect failed")
	}
	if err := s.registry.MarkDisconnected(deviceID); err != nil {
		return err
	}
	s.publishConnected()
	s.logger.Info().Str("device", deviceID).Msg("disconnected")
	return nil
}

// SendCommand uses the caller's context as the only deadline.
func (s *DeviceService) SendCommand(ctx context.Context, input dto.CommandInput) error {
	device, err := s.registry.Get(input.DeviceID)
	if err != nil {
		return err
	}
	command := domain.Command{
		Type:      domain.CommandType(input.Type),
		Intensity: domain.Intensity(input.Intensity),
		Duration:  input.Duration,
	}
	if err := command.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if !device.Connected {
		return fmt.Errorf("%w: %s", apperrors.ErrNotConnected, input.DeviceID)
	}
	s.logger.Debug().Str("device", input.DeviceID).Str("command", input.Type).Msg("sending command")
	if err := s.transport.SendCommand(ctx, input.DeviceID, command); err != nil {
		s.logger.Error().Err(err).Str("device", input.DeviceID).Str("command", input.Type).Msg("command failed")
		return fmt.Errorf("%s %s: %w", input.Type, input.DeviceID, err)
	}
	return nil
}

func (s *DeviceService) SetStatus(_ context.Context, deviceID, status string) error {
	return s.registry.SetStatus(deviceID, domain.Status(status), s.clock.Now())
}

func (s *DeviceService) WatchDisconnects(fn func(deviceID string)) func() {
	return s.registry.OnDisconnected(fn)
}

// MonitorLinks polls the transport until ctx ends and marks devices the
// transport no longer reports as connected.
func (s *DeviceService) MonitorLinks(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.CheckLinks(ctx)
		}
	}
}

func (s *DeviceService) CheckLinks(ctx context.Context) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	reported, err := s.transport.ListDevices(callCtx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("link check skipped")
		return
	}
	byID := make(map[string]domain.Device, len(reported))
	for _, device := range reported {
		byID[device.ID] = device
	}
	for _, known := range s.registry.List() {
		seen, ok := byID[known.ID]
		if ok && seen.Battery != nil {
			_, _ = s.registry.Upsert(domain.Device{ID: known.ID, Battery: seen.Battery, LastSeen: seen.LastSeen})
		}
		if known.Connected && (!ok || !seen.Connected) {
			s.logger.Warn().Str("device", known.ID).Msg("link lost")
			_ = s.registry.MarkDisconnected(known.ID)
		}
	}
	s.publishConnected()
}

func (s *DeviceService) handleLinkLoss(deviceID string) {
	s.logger.Warn().Str("device", deviceID).Msg("transport reported link loss")
	if err := s.registry.MarkDisconnected(deviceID); err != nil {
		s.logger.Debug().Err(err).Str("device", deviceID).Msg("link loss for untracked device")
		return
	}
	s.publishConnected()
}

func (s *DeviceService) reconcile(reported domain.Device) {
	known, err := s.registry.Get(reported.ID)
	if err != nil {
		return
	}
	switch {
	case reported.Connected && !known.Connected:
		at := reported.LastSeen
		if at.IsZero() {
			at = s.clock.Now()
		}
		_ = s.registry.MarkConnected(reported.ID, at)
	case !reported.Connected && known.Connected:
		_ = s.registry.MarkDisconnected(reported.ID)
	}
}

func (s *DeviceService) publishConnected() {
	if s.metrics != nil {
		s.metrics.SetConnectedDevices(s.registry.ConnectedCount())
	}
}

func (s *DeviceService) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.opts.ConnectTimeout)
}

func toInfo(device domain.Device) dto.DeviceInfo {
	var battery *int
	if device.Battery != nil {
		value := *device.Battery
		battery = &value
	}
	return dto.DeviceInfo{
		ID:        device.ID,
		Name:      device.Name,
		Connected: device.Connected,
		Status:    string(device.Status),
		Battery:   battery,
		LastSeen:  device.LastSeen,
	}
}
