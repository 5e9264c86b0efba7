package adapters

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"vigilstream/internal/vigil/domain"
	"vigilstream/internal/vigil/mappers"
)

// StructSender is the send side of a server stream of Structs.
type StructSender interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

// GrpcStreamAdapter adapts a gRPC server stream to EventStreamer
type GrpcStreamAdapter struct {
	stream StructSender
}

func NewGrpcStreamAdapter(stream StructSender) EventStreamer {
	return &GrpcStreamAdapter{stream: stream}
}

func (a *GrpcStreamAdapter) SendEvent(ev domain.Event) error {
	s, err := mappers.EventToProtobuf(ev)
	if err != nil {
		return err
	}
	return a.stream.Send(s)
}

// SendKeepalive sends an empty Struct, which clients skip.
func (a *GrpcStreamAdapter) SendKeepalive() error {
	return a.stream.Send(&structpb.Struct{})
}

func (a *GrpcStreamAdapter) Context() context.Context {
	return a.stream.Context()
}
