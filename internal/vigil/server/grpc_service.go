package server

import (
	"context"
	stderrors "errors"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"vigilstream/api/mediapb"
	"vigilstream/internal/vigil/adapters"
	"vigilstream/internal/vigil/auth"
	"vigilstream/internal/vigil/catalog"
	"vigilstream/internal/vigil/domain"
	"vigilstream/internal/vigil/mappers"
	"vigilstream/internal/vigil/pubsub"
	"vigilstream/pkg/errors"
	"vigilstream/pkg/logger"
)

// MediaService is the part of service.Service the transports call.
type MediaService interface {
	Get(ctx context.Context, caller auth.Identity, id string) (*domain.MediaObject, error)
	List(ctx context.Context, caller auth.Identity, filter catalog.Filter) ([]*domain.MediaObject, error)
	Watch(ctx context.Context, caller auth.Identity, topic string) (*pubsub.Subscription, error)
}

type MediaServiceServer struct {
	mediapb.UnimplementedMediaServiceServer
	service   MediaService
	bus       adapters.Unsubscriber
	keepAlive time.Duration
	lifetime  context.Context
	logger    *logger.Logger
}

// NewMediaServiceServer builds the gRPC service. Open watch streams end when
// lifetime is cancelled.
func NewMediaServiceServer(lifetime context.Context, svc MediaService, bus adapters.Unsubscriber, keepAlive time.Duration) *MediaServiceServer {
	return &MediaServiceServer{
		service:   svc,
		bus:       bus,
		keepAlive: keepAlive,
		lifetime:  lifetime,
		logger:    logger.WithField("component", "grpc-service"),
	}
}

func caller(ctx context.Context) auth.Identity {
	id, _ := auth.FromContext(ctx)
	return id
}

func (s *MediaServiceServer) GetObject(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	log := s.logger.WithFields("operation", "GetObject", "objectId", req.GetValue())
	log.Debug("get object request received")

	obj, err := s.service.Get(ctx, caller(ctx), req.GetValue())
	if err != nil {
		log.Warn("get object failed", "error", err)
		return nil, toStatus(err)
	}
	return mappers.DomainToProtobuf(obj)
}

func (s *MediaServiceServer) ListObjects(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	filter := mappers.ProtobufToFilter(req)
	log := s.logger.WithFields("operation", "ListObjects", "safeOnly", filter.SafeOnly, "state", filter.State)
	log.Debug("list objects request received")

	objs, err := s.service.List(ctx, caller(ctx), filter)
	if err != nil {
		log.Warn("list objects failed", "error", err)
		return nil, toStatus(err)
	}

	log.Debug("objects listed", "count", len(objs))
	return mappers.DomainListToProtobuf(objs)
}

// Watch streams events of one topic. A per-object stream ends after the
// object's terminal event.
func (s *MediaServiceServer) Watch(req *wrapperspb.StringValue, stream mediapb.MediaService_WatchServer) error {
	ctx := stream.Context()
	topic := req.GetValue()
	log := s.logger.WithFields("operation", "Watch", "topic", topic)

	sub, err := s.service.Watch(ctx, caller(ctx), topic)
	if err != nil {
		log.Warn("watch rejected", "error", err)
		return toStatus(err)
	}
	log.Debug("watch stream opened", "subscriptionId", sub.ID())

	_, perObject := domain.ObjectIDFromTopic(sub.Topic())
	err = adapters.Pump(s.lifetime, s.bus, sub, adapters.NewGrpcStreamAdapter(stream), adapters.PumpOptions{
		KeepAlive:      s.keepAlive,
		StopOnTerminal: perObject,
	})

	switch {
	case err == nil, stderrors.Is(err, errors.ErrStreamCancelled):
		log.Debug("watch stream closed")
		return nil
	case stderrors.Is(err, context.Canceled):
		return toStatus(errors.ErrShuttingDown)
	default:
		log.Info("watch stream ended", "reason", err)
		return toStatus(err)
	}
}
