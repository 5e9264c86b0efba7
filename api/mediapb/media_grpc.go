// Package mediapb declares the vigilstream.v1.MediaService gRPC contract.
// Messages are the protobuf well-known types: objects and events travel as
// google.protobuf.Struct, so no generated message code is needed.
package mediapb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "vigilstream.v1.MediaService"

	GetObjectFullMethodName   = "/vigilstream.v1.MediaService/GetObject"
	ListObjectsFullMethodName = "/vigilstream.v1.MediaService/ListObjects"
	WatchFullMethodName       = "/vigilstream.v1.MediaService/Watch"
)

// MediaServiceClient is the client API for MediaService.
type MediaServiceClient interface {
	GetObject(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListObjects(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Watch(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (MediaService_WatchClient, error)
}

type mediaServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMediaServiceClient(cc grpc.ClientConnInterface) MediaServiceClient {
	return &mediaServiceClient{cc}
}

func (c *mediaServiceClient) GetObject(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetObjectFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *mediaServiceClient) ListObjects(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, ListObjectsFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *mediaServiceClient) Watch(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (MediaService_WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &MediaService_ServiceDesc.Streams[0], WatchFullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &mediaServiceWatchClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type MediaService_WatchClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type mediaServiceWatchClient struct {
	grpc.ClientStream
}

func (x *mediaServiceWatchClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// MediaServiceServer is the server API for MediaService.
type MediaServiceServer interface {
	GetObject(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListObjects(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	Watch(*wrapperspb.StringValue, MediaService_WatchServer) error
}

// UnimplementedMediaServiceServer can be embedded to have forward compatible implementations.
type UnimplementedMediaServiceServer struct{}

func (UnimplementedMediaServiceServer) GetObject(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetObject not implemented")
}

func (UnimplementedMediaServiceServer) ListObjects(context.Context, *structpb.Struct) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListObjects not implemented")
}

func (UnimplementedMediaServiceServer) Watch(*wrapperspb.StringValue, MediaService_WatchServer) error {
	return status.Errorf(codes.Unimplemented, "method Watch not implemented")
}

func RegisterMediaServiceServer(s grpc.ServiceRegistrar, srv MediaServiceServer) {
	s.RegisterService(&MediaService_ServiceDesc, srv)
}

func _MediaService_GetObject_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MediaServiceServer).GetObject(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetObjectFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MediaServiceServer).GetObject(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _MediaService_ListObjects_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MediaServiceServer).ListObjects(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListObjectsFullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MediaServiceServer).ListObjects(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _MediaService_Watch_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MediaServiceServer).Watch(m, &mediaServiceWatchServer{stream})
}

type MediaService_WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type mediaServiceWatchServer struct {
	grpc.ServerStream
}

func (x *mediaServiceWatchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// MediaService_ServiceDesc is the grpc.ServiceDesc for MediaService.
var MediaService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MediaServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetObject",
			Handler:    _MediaService_GetObject_Handler,
		},
		{
			MethodName: "ListObjects",
			Handler:    _MediaService_ListObjects_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       _MediaService_Watch_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "vigilstream/v1/media.proto",
}
