package out

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	driverrpc "uvfleet/internal/modules/device/adapter/out/rpc"
	"uvfleet/internal/modules/device/domain"
	deviceout "uvfleet/internal/modules/device/port/out"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	"github.com/rs/zerolog"
)

const (
	defaultStartTimeout = 3 * time.Second
	eventWait           = 5 * time.Second
	eventRetryDelay     = time.Second
)

type PluginOptions struct {
	Binary       string
	Args         []string
	StartTimeout time.Duration
	Logger       zerolog.Logger
}

// PluginTransport drives devices through an out-of-process driver binary.
// The driver process lives as long as the transport.
type PluginTransport struct {
	client *plugin.Client
	driver driverrpc.DriverClient
	logger zerolog.Logger

	mu       sync.Mutex
	handlers deviceout.TransportHandlers

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPluginTransport(opts PluginOptions) (*PluginTransport, error) {
	if opts.Binary == "" {
		return nil, fmt.Errorf("driver binary is required")
	}
	startTimeout := opts.StartTimeout
	if startTimeout <= 0 {
		startTimeout = defaultStartTimeout
	}
	logger := opts.Logger.With().Str("component", "driver").Logger()
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  driverrpc.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          driverrpc.PluginMap(nil),
		Cmd:              exec.Command(opts.Binary, opts.Args...),
		Managed:          true,
		StartTimeout:     startTimeout,
		Logger:           hclog.New(&hclog.LoggerOptions{Name: "driver", Output: logger, Level: hclog.Warn}),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("start driver: %w", err)
	}
	raw, err := rpcClient.Dispense(driverrpc.PluginMapKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense driver: %w", err)
	}
	driver, ok := raw.(driverrpc.DriverClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("driver rpc client type mismatch")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &PluginTransport{
		client: client,
		driver: driver,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.watchEvents(ctx)
	return t, nil
}

func (t *PluginTransport) ListDevices(ctx context.Context) ([]domain.Device, error) {
	response, err := t.driver.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make([]domain.Device, 0, len(response.Devices))
	for _, device := range response.Devices {
		out = append(out, domain.Device{
			ID:        device.ID,
			Name:      device.Name,
			Connected: device.Connected,
			Status:    domain.Status(device.Status),
			Battery:   device.Battery,
			LastSeen:  device.LastSeen,
		})
	}
	return out, nil
}

func (t *PluginTransport) Connect(ctx context.Context, deviceID string) error {
	return t.driver.Connect(ctx, &driverrpc.DeviceRequest{DeviceID: deviceID})
}

func (t *PluginTransport) SendCommand(ctx context.Context, deviceID string, command domain.Command) error {
	return t.driver.SendCommand(ctx, &driverrpc.CommandRequest{
		DeviceID:  deviceID,
		Type:      string(command.Type),
		Intensity: string(command.Intensity),
		Duration:  int32(command.Duration),
	})
}

func (t *PluginTransport) Disconnect(ctx context.Context, deviceID string) error {
	return t.driver.Disconnect(ctx, &driverrpc.DeviceRequest{DeviceID: deviceID})
}

func (t *PluginTransport) SetHandlers(handlers deviceout.TransportHandlers) {
	t.mu.Lock()
	t.handlers = handlers
	t.mu.Unlock()
}

func (t *PluginTransport) Close() error {
	t.cancel()
	<-t.done
	t.client.Kill()
	return nil
}

// watchEvents long-polls the driver for link changes.
func (t *PluginTransport) watchEvents(ctx context.Context) {
	defer close(t.done)
	for {
		callCtx, cancel := context.WithTimeout(ctx, eventWait+2*time.Second)
		event, err := t.driver.NextEvent(callCtx, &driverrpc.NextEventRequest{WaitMS: int32(eventWait / time.Millisecond)})
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			t.logger.Warn().Err(err).Msg("driver event poll failed")
			timer := time.NewTimer(eventRetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		if event.Kind != driverrpc.EventDisconnected || event.DeviceID == "" {
			continue
		}
		t.mu.Lock()
		handler := t.handlers.OnDisconnected
		t.mu.Unlock()
		if handler != nil {
			handler(event.DeviceID)
		}
	}
}
