package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"time"

	devicedto "uvfleet/internal/modules/device/dto"
	outcomedto "uvfleet/internal/modules/outcome/dto"
	scheduledto "uvfleet/internal/modules/schedule/dto"
	sessiondto "uvfleet/internal/modules/session/dto"
	apperrors "uvfleet/internal/platform/errors"
)

const callDeadline = 15 * time.Second

// ErrDaemonUnavailable reports that nothing listens on the socket.
var ErrDaemonUnavailable = errors.New("daemon is not running")

type Client struct {
	socketPath string
}

var _ Backend = (*Client)(nil)

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) call(ctx context.Context, method string, args, reply any) error {
	client, err := dialClient(ctx, c.socketPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer client.Close()
	return decodeError(client.Call(serviceName+"."+method, args, reply))
}

func (c *Client) DeviceList(ctx context.Context) ([]devicedto.DeviceInfo, error) {
	resp := []devicedto.DeviceInfo{}
	if err := c.call(ctx, "DeviceList", Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) DeviceScan(ctx context.Context) (devicedto.ScanResult, error) {
	resp := devicedto.ScanResult{}
	if err := c.call(ctx, "DeviceScan", Empty{}, &resp); err != nil {
		return devicedto.ScanResult{}, err
	}
	return resp, nil
}

func (c *Client) DeviceConnect(ctx context.Context, deviceID string) (devicedto.DeviceInfo, error) {
	resp := devicedto.DeviceInfo{}
	if err := c.call(ctx, "DeviceConnect", DeviceArgs{DeviceID: deviceID}, &resp); err != nil {
		return devicedto.DeviceInfo{}, err
	}
	return resp, nil
}

func (c *Client) DeviceDisconnect(ctx context.Context, deviceID string) error {
	return c.call(ctx, "DeviceDisconnect", DeviceArgs{DeviceID: deviceID}, &Empty{})
}

func (c *Client) SessionStart(ctx context.Context, deviceID, intensity string, seconds int) (sessiondto.SessionView, error) {
	resp := sessiondto.SessionView{}
	if err := c.call(ctx, "SessionStart", StartArgs{DeviceID: deviceID, Intensity: intensity, Seconds: seconds}, &resp); err != nil {
		return sessiondto.SessionView{}, err
	}
	return resp, nil
}

func (c *Client) SessionPause(ctx context.Context, deviceID string) (sessiondto.SessionView, error) {
	return c.session(ctx, "SessionPause", deviceID)
}

func (c *Client) SessionResume(ctx context.Context, deviceID string) (sessiondto.SessionView, error) {
	return c.session(ctx, "SessionResume", deviceID)
}

func (c *Client) SessionStop(ctx context.Context, deviceID string) (sessiondto.SessionView, error) {
	return c.session(ctx, "SessionStop", deviceID)
}

func (c *Client) SessionStatus(ctx context.Context, deviceID string) (sessiondto.SessionView, error) {
	return c.session(ctx, "SessionStatus", deviceID)
}

func (c *Client) session(ctx context.Context, method, deviceID string) (sessiondto.SessionView, error) {
	resp := sessiondto.SessionView{}
	if err := c.call(ctx, method, DeviceArgs{DeviceID: deviceID}, &resp); err != nil {
		return sessiondto.SessionView{}, err
	}
	return resp, nil
}

func (c *Client) SessionList(ctx context.Context) ([]sessiondto.SessionView, error) {
	resp := []sessiondto.SessionView{}
	if err := c.call(ctx, "SessionList", Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ScheduleCreate(ctx context.Context, deviceID, at, intensity string, seconds int) (scheduledto.ScheduleView, error) {
	resp := scheduledto.ScheduleView{}
	args := ScheduleCreateArgs{DeviceID: deviceID, At: at, Intensity: intensity, Seconds: seconds}
	if err := c.call(ctx, "ScheduleCreate", args, &resp); err != nil {
		return scheduledto.ScheduleView{}, err
	}
	return resp, nil
}

func (c *Client) ScheduleList(ctx context.Context) ([]scheduledto.ScheduleView, error) {
	resp := []scheduledto.ScheduleView{}
	if err := c.call(ctx, "ScheduleList", Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ScheduleDelete(ctx context.Context, scheduleID string) error {
	return c.call(ctx, "ScheduleDelete", ScheduleArgs{ScheduleID: scheduleID}, &Empty{})
}

func (c *Client) ScheduleSweep(ctx context.Context) (scheduledto.SweepResult, error) {
	resp := scheduledto.SweepResult{}
	if err := c.call(ctx, "ScheduleSweep", Empty{}, &resp); err != nil {
		return scheduledto.SweepResult{}, err
	}
	return resp, nil
}

func (c *Client) LogList(ctx context.Context, limit int) ([]outcomedto.LogEntry, error) {
	resp := []outcomedto.LogEntry{}
	if err := c.call(ctx, "LogList", LogListArgs{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) LogClear(ctx context.Context) error {
	return c.call(ctx, "LogClear", Empty{}, &Empty{})
}

func (c *Client) DebugLogs(ctx context.Context) ([]string, error) {
	resp := []string{}
	if err := c.call(ctx, "DebugLogs", Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	resp := DaemonStatus{}
	if err := c.call(ctx, "Status", Empty{}, &resp); err != nil {
		return DaemonStatus{}, err
	}
	return resp, nil
}

func (c *Client) Stop(ctx context.Context) error {
	return c.call(ctx, "Stop", Empty{}, &Empty{})
}

// WaitReady polls the socket until the daemon answers or timeout passes.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		_, err := c.Status(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func dialClient(ctx context.Context, socketPath string) (*rpc.Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(callDeadline))
	return rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)), nil
}

// decodeError restores the sentinel a server-side error was wrapped with.
// JSON-RPC only carries the message text.
func decodeError(err error) error {
	if err == nil {
		return nil
	}
	var serverErr rpc.ServerError
	if !errors.As(err, &serverErr) {
		return err
	}
	msg := string(serverErr)
	for _, sentinel := range apperrors.Known {
		prefix := sentinel.Error()
		if msg == prefix {
			return sentinel
		}
		if strings.HasPrefix(msg, prefix+": ") {
			return fmt.Errorf("%w: %s", sentinel, strings.TrimPrefix(msg, prefix+": "))
		}
	}
	return errors.New(msg)
}
