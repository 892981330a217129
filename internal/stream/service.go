package stream

import (
	"context"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "storyboard.v1.GestureEvents"

const (
	subscribeMethod   = "/" + ServiceName + "/Subscribe"
	removeFrameMethod = "/" + ServiceName + "/RemoveFrame"
)

// GestureEventsServer is the server API of storyboard.v1.GestureEvents.
type GestureEventsServer interface {
	// Subscribe streams events, optionally filtered by {"kinds": [...]}.
	Subscribe(*structpb.Struct, grpc.ServerStream) error
	// RemoveFrame requests the preview teardown.
	RemoveFrame(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// ServiceDesc describes storyboard.v1.GestureEvents for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GestureEventsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RemoveFrame", Handler: removeFrameHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "storyboard/v1/events.proto",
}

var subscribeStreamDesc = &ServiceDesc.Streams[0]

// RegisterService registers srv with a gRPC server.
func RegisterService(r grpc.ServiceRegistrar, srv GestureEventsServer) {
	r.RegisterService(&ServiceDesc, srv)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(GestureEventsServer).Subscribe(req, stream)
}

func removeFrameHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GestureEventsServer).RemoveFrame(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: removeFrameMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GestureEventsServer).RemoveFrame(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Ensure Server implements the gRPC interface.
var _ GestureEventsServer = (*Server)(nil)

// Server implements GestureEventsServer on top of a Publisher.
type Server struct {
	publisher *Publisher
	onRemove  func()
}

// NewServer creates the service. onRemove is called for each RemoveFrame
// request; it may be nil.
func NewServer(publisher *Publisher, onRemove func()) *Server {
	return &Server{publisher: publisher, onRemove: onRemove}
}

// Subscribe registers the caller with the publisher and forwards events
// until the client goes away or the publisher stops.
func (s *Server) Subscribe(req *structpb.Struct, stream grpc.ServerStream) error {
	kinds, err := kindsFromRequest(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	client, err := s.publisher.addClient(kinds)
	if err != nil {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	defer s.publisher.removeClient(client.id)

	// Headers tell the client it is registered and will see every later event.
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.doneCh:
			return nil
		case ev := <-client.eventCh:
			msg, err := EventToStruct(ev)
			if err != nil {
				log.Printf("[gRPC] failed to encode %s event: %v", ev.Kind, err)
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// RemoveFrame triggers the preview teardown.
func (s *Server) RemoveFrame(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if s.onRemove == nil {
		return nil, status.Error(codes.Unimplemented, "remove frame not wired")
	}
	s.onRemove()
	return &emptypb.Empty{}, nil
}
