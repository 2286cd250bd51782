package distributed

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// wireMessage is the over-the-wire shape of ports.Message.
type wireMessage struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

type getRequest struct {
	Topic string `json:"topic"`
}

type ack struct{}

// brokerServer is the interface the hand-registered grpc service dispatches
// to — implemented by *Server in server.go.
type brokerServer interface {
	publish(ctx context.Context, msg wireMessage) (ack, error)
	get(ctx context.Context, req getRequest) (wireMessage, error)
}

func publishHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req wireMessage
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(brokerServer).publish(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Publish"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(brokerServer).publish(ctx, req.(wireMessage))
	}
	return interceptor(ctx, req, info, handler)
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req getRequest
	if err := dec(&req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(brokerServer).get(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Get"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(brokerServer).get(ctx, req.(getRequest))
	}
	return interceptor(ctx, req, info, handler)
}

const serviceName = "orchestrator.distributed.Broker"

// serviceDesc is the hand-authored equivalent of what protoc-gen-go-grpc
// would emit for a two-method unary service: Publish(wireMessage) -> ack,
// Get(getRequest) -> wireMessage. Built directly since no .proto compiler
// is available in this module's toolchain.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*brokerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
		{MethodName: "Get", Handler: getHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orchestrator/distributed.proto",
}

// invokePublish calls the Publish unary RPC on conn.
func invokePublish(ctx context.Context, conn *grpc.ClientConn, msg wireMessage) error {
	var out ack
	method := fmt.Sprintf("/%s/Publish", serviceName)
	return conn.Invoke(ctx, method, msg, &out, grpc.CallContentSubtype(codecName))
}

// invokeGet calls the Get unary RPC on conn.
func invokeGet(ctx context.Context, conn *grpc.ClientConn, topic string) (wireMessage, error) {
	var out wireMessage
	method := fmt.Sprintf("/%s/Get", serviceName)
	err := conn.Invoke(ctx, method, getRequest{Topic: topic}, &out, grpc.CallContentSubtype(codecName))
	return out, err
}
