package rpc

import (
	"context"
	"time"

	"uvfleet/internal/modules/device/domain"
	deviceout "uvfleet/internal/modules/device/port/out"
)

const (
	eventBuffer      = 64
	defaultEventWait = 5 * time.Second
)

// TransportServer serves any Transport over the driver contract. Link losses
// are queued until the host collects them with NextEvent.
type TransportServer struct {
	transport deviceout.Transport
	events    chan LinkEvent
}

func NewTransportServer(transport deviceout.Transport) *TransportServer {
	s := &TransportServer{transport: transport, events: make(chan LinkEvent, eventBuffer)}
	transport.SetHandlers(deviceout.TransportHandlers{OnDisconnected: func(deviceID string) {
		select {
		case s.events <- LinkEvent{DeviceID: deviceID, Kind: EventDisconnected}:
		default:
			// host is not draining; the link monitor will still catch it
		}
	}})
	return s
}

func (s *TransportServer) ListDevices(ctx context.Context, _ *Empty) (*ListDevicesResponse, error) {
	devices, err := s.transport.ListDevices(ctx)
	if err != nil {
		return nil, ToStatus(err)
	}
	out := make([]Device, 0, len(devices))
	for _, device := range devices {
		out = append(out, Device{
			ID:        device.ID,
			Name:      device.Name,
			Connected: device.Connected,
			Status:    string(device.Status),
			Battery:   device.Battery,
			LastSeen:  device.LastSeen,
		})
	}
	return &ListDevicesResponse{Devices: out}, nil
}

func (s *TransportServer) Connect(ctx context.Context, in *DeviceRequest) (*Empty, error) {
	if err := s.transport.Connect(ctx, in.DeviceID); err != nil {
		return nil, ToStatus(err)
	}
	return &Empty{}, nil
}

func (s *TransportServer) SendCommand(ctx context.Context, in *CommandRequest) (*Empty, error) {
	command := domain.Command{
		Type:      domain.CommandType(in.Type),
		Intensity: domain.Intensity(in.Intensity),
		Duration:  int(in.Duration),
	}
	if err := s.transport.SendCommand(ctx, in.DeviceID, command); err != nil {
		return nil, ToStatus(err)
	}
	return &Empty{}, nil
}

func (s *TransportServer) Disconnect(ctx context.Context, in *DeviceRequest) (*Empty, error) {
	if err := s.transport.Disconnect(ctx, in.DeviceID); err != nil {
		return nil, ToStatus(err)
	}
	return &Empty{}, nil
}

func (s *TransportServer) NextEvent(ctx context.Context, in *NextEventRequest) (*LinkEvent, error) {
	wait := time.Duration(in.WaitMS) * time.Millisecond
	if wait <= 0 {
		wait = defaultEventWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case event := <-s.events:
		return &event, nil
	case <-timer.C:
		return &LinkEvent{}, nil
	case <-ctx.Done():
		return nil, ToStatus(ctx.Err())
	}
}
