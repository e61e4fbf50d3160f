package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	PluginMapKey      = "driver"
	serviceName       = "uvfleet.driver.v1.Driver"
	jsonCodecName     = "json"
	methodListDevices = "/" + serviceName + "/ListDevices"
	methodConnect     = "/" + serviceName + "/Connect"
	methodSendCommand = "/" + serviceName + "/SendCommand"
	methodDisconnect  = "/" + serviceName + "/Disconnect"
	methodNextEvent   = "/" + serviceName + "/NextEvent"
)

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "UVFLEET_DRIVER",
	MagicCookieValue: "uvfleet",
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Empty struct{}

type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	Status    string    `json:"status"`
	Battery   *int      `json:"battery"`
	LastSeen  time.Time `json:"last_seen"`
}

type ListDevicesResponse struct {
	Devices []Device `json:"devices"`
}

type DeviceRequest struct {
	DeviceID string `json:"device_id"`
}

type CommandRequest struct {
	DeviceID  string `json:"device_id"`
	Type      string `json:"type"`
	Intensity string `json:"intensity,omitempty"`
	Duration  int32  `json:"duration,omitempty"`
}

type NextEventRequest struct {
	WaitMS int32 `json:"wait_ms"`
}

// LinkEvent is empty when the wait elapsed without a link change.
type LinkEvent struct {
	DeviceID string `json:"device_id"`
	Kind     string `json:"kind"`
}

const EventDisconnected = "disconnected"

type DriverServer interface {
	ListDevices(ctx context.Context, in *Empty) (*ListDevicesResponse, error)
	Connect(ctx context.Context, in *DeviceRequest) (*Empty, error)
	SendCommand(ctx context.Context, in *CommandRequest) (*Empty, error)
	Disconnect(ctx context.Context, in *DeviceRequest) (*Empty, error)
	NextEvent(ctx context.Context, in *NextEventRequest) (*LinkEvent, error)
}

type DriverClient interface {
	ListDevices(ctx context.Context) (*ListDevicesResponse, error)
	Connect(ctx context.Context, in *DeviceRequest) error
	SendCommand(ctx context.Context, in *CommandRequest) error
	Disconnect(ctx context.Context, in *DeviceRequest) error
	NextEvent(ctx context.Context, in *NextEventRequest) (*LinkEvent, error)
}

type driverClient struct {
	conn *grpc.ClientConn
}

func NewDriverClient(conn *grpc.ClientConn) DriverClient {
	return &driverClient{conn: conn}
}

func (c *driverClient) ListDevices(ctx context.Context) (*ListDevicesResponse, error) {
	out := &ListDevicesResponse{}
	if err := c.conn.Invoke(ctx, methodListDevices, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, FromStatus(err)
	}
	return out, nil
}

func (c *driverClient) Connect(ctx context.Context, in *DeviceRequest) error {
	if err := c.conn.Invoke(ctx, methodConnect, in, &Empty{}, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return FromStatus(err)
	}
	return nil
}

func (c *driverClient) SendCommand(ctx context.Context, in *CommandRequest) error {
	if err := c.conn.Invoke(ctx, methodSendCommand, in, &Empty{}, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return FromStatus(err)
	}
	return nil
}

func (c *driverClient) Disconnect(ctx context.Context, in *DeviceRequest) error {
	if err := c.conn.Invoke(ctx, methodDisconnect, in, &Empty{}, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return FromStatus(err)
	}
	return nil
}

func (c *driverClient) NextEvent(ctx context.Context, in *NextEventRequest) (*LinkEvent, error) {
	out := &LinkEvent{}
	if err := c.conn.Invoke(ctx, methodNextEvent, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, FromStatus(err)
	}
	return out, nil
}

func unary[Req any](method string, call func(ctx context.Context, in *Req) (any, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*Req)
			if !ok {
				return nil, fmt.Errorf("invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, in, info, handler)
	}
}

func RegisterDriverServer(server grpc.ServiceRegistrar, impl DriverServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*DriverServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ListDevices",
				Handler: unary(methodListDevices, func(ctx context.Context, in *Empty) (any, error) {
					return impl.ListDevices(ctx, in)
				}),
			},
			{
				MethodName: "Connect",
				Handler: unary(methodConnect, func(ctx context.Context, in *DeviceRequest) (any, error) {
					return impl.Connect(ctx, in)
				}),
			},
			{
				MethodName: "SendCommand",
				Handler: unary(methodSendCommand, func(ctx context.Context, in *CommandRequest) (any, error) {
					return impl.SendCommand(ctx, in)
				}),
			},
			{
				MethodName: "Disconnect",
				Handler: unary(methodDisconnect, func(ctx context.Context, in *DeviceRequest) (any, error) {
					return impl.Disconnect(ctx, in)
				}),
			},
			{
				MethodName: "NextEvent",
				Handler: unary(methodNextEvent, func(ctx context.Context, in *NextEventRequest) (any, error) {
					return impl.NextEvent(ctx, in)
				}),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "driver-rpc-v1",
	}, impl)
}

type GRPCPlugin struct {
	plugin.NetRPCUnsupportedPlugin
	Impl DriverServer
}

func (p *GRPCPlugin) GRPCServer(_ *plugin.GRPCBroker, server *grpc.Server) error {
	RegisterDriverServer(server, p.Impl)
	return nil
}

func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, conn *grpc.ClientConn) (any, error) {
	return NewDriverClient(conn), nil
}

func PluginMap(impl DriverServer) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginMapKey: &GRPCPlugin{Impl: impl},
	}
}
