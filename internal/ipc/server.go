package ipc

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"

	devicedto "uvfleet/internal/modules/device/dto"
	outcomedto "uvfleet/internal/modules/outcome/dto"
	scheduledto "uvfleet/internal/modules/schedule/dto"
	sessiondto "uvfleet/internal/modules/session/dto"
)

const serviceName = "Fleet"

// Argument types are exported because net/rpc skips methods that take
// unexported ones.
type Empty struct{}

type DeviceArgs struct {
	DeviceID string
}

type StartArgs struct {
	DeviceID  string
	Intensity string
	Seconds   int
}

type ScheduleCreateArgs struct {
	DeviceID  string
	At        string
	Intensity string
	Seconds   int
}

type ScheduleArgs struct {
	ScheduleID string
}

type LogListArgs struct {
	Limit int
}

type rpcHandler struct {
	ctx context.Context
	b   Backend
}

func (s *rpcHandler) DeviceList(_ Empty, resp *[]devicedto.DeviceInfo) error {
	out, err := s.b.DeviceList(s.ctx)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) DeviceScan(_ Empty, resp *devicedto.ScanResult) error {
	out, err := s.b.DeviceScan(s.ctx)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) DeviceConnect(req DeviceArgs, resp *devicedto.DeviceInfo) error {
	out, err := s.b.DeviceConnect(s.ctx, req.DeviceID)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) DeviceDisconnect(req DeviceArgs, _ *Empty) error {
	return s.b.DeviceDisconnect(s.ctx, req.DeviceID)
}

func (s *rpcHandler) SessionStart(req StartArgs, resp *sessiondto.SessionView) error {
	out, err := s.b.SessionStart(s.ctx, req.DeviceID, req.Intensity, req.Seconds)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) SessionPause(req DeviceArgs, resp *sessiondto.SessionView) error {
	return s.session(s.b.SessionPause, req, resp)
}

func (s *rpcHandler) SessionResume(req DeviceArgs, resp *sessiondto.SessionView) error {
	return s.session(s.b.SessionResume, req, resp)
}

func (s *rpcHandler) SessionStop(req DeviceArgs, resp *sessiondto.SessionView) error {
	return s.session(s.b.SessionStop, req, resp)
}

func (s *rpcHandler) SessionStatus(req DeviceArgs, resp *sessiondto.SessionView) error {
	return s.session(s.b.SessionStatus, req, resp)
}

func (s *rpcHandler) session(fn func(context.Context, string) (sessiondto.SessionView, error), req DeviceArgs, resp *sessiondto.SessionView) error {
	out, err := fn(s.ctx, req.DeviceID)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) SessionList(_ Empty, resp *[]sessiondto.SessionView) error {
	out, err := s.b.SessionList(s.ctx)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) ScheduleCreate(req ScheduleCreateArgs, resp *scheduledto.ScheduleView) error {
	out, err := s.b.ScheduleCreate(s.ctx, req.DeviceID, req.At, req.Intensity, req.Seconds)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) ScheduleList(_ Empty, resp *[]scheduledto.ScheduleView) error {
	out, err := s.b.ScheduleList(s.ctx)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) ScheduleDelete(req ScheduleArgs, _ *Empty) error {
	return s.b.ScheduleDelete(s.ctx, req.ScheduleID)
}

func (s *rpcHandler) ScheduleSweep(_ Empty, resp *scheduledto.SweepResult) error {
	out, err := s.b.ScheduleSweep(s.ctx)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) LogList(req LogListArgs, resp *[]outcomedto.LogEntry) error {
	out, err := s.b.LogList(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) LogClear(_ Empty, _ *Empty) error {
	return s.b.LogClear(s.ctx)
}

func (s *rpcHandler) DebugLogs(_ Empty, resp *[]string) error {
	out, err := s.b.DebugLogs(s.ctx)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) Status(_ Empty, resp *DaemonStatus) error {
	out, err := s.b.Status(s.ctx)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *rpcHandler) Stop(_ Empty, _ *Empty) error {
	return s.b.Stop(s.ctx)
}

// Serve accepts JSON-RPC connections on socketPath until ctx ends.
func Serve(ctx context.Context, socketPath string, backend Backend) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("create ipc dir: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale ipc socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen ipc socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod ipc socket: %w", err)
	}
	defer ln.Close()
	defer os.Remove(socketPath)

	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName(serviceName, &rpcHandler{ctx: ctx, b: backend}); err != nil {
		return fmt.Errorf("register ipc handler: %w", err)
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		go rpcSrv.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}
