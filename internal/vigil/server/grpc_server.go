package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"vigilstream/api/mediapb"
	"vigilstream/internal/vigil/auth"
	"vigilstream/pkg/config"
	"vigilstream/pkg/logger"
)

const (
	maxRecvMsgSize    = 4 * 1024 * 1024
	maxSendMsgSize    = 4 * 1024 * 1024
	maxHeaderListSize = 1 * 1024 * 1024
)

// GRPCServer bundles the grpc server with its health service.
type GRPCServer struct {
	*grpc.Server
	Health *health.Server
}

// NewGRPCServer builds the gRPC listener side: options, identity
// interceptors, the media service and grpc.health.v1.
func NewGRPCServer(sec config.SecurityConfig, media mediapb.MediaServiceServer) (*GRPCServer, error) {
	serverLogger := logger.WithField("component", "grpc-server")

	grpcOptions := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxRecvMsgSize),
		grpc.MaxSendMsgSize(maxSendMsgSize),
		grpc.MaxHeaderListSize(uint32(maxHeaderListSize)),
		grpc.ChainUnaryInterceptor(unaryIdentityInterceptor),
		grpc.ChainStreamInterceptor(streamIdentityInterceptor),
	}

	if sec.EnableTLS {
		creds, err := serverCredentials(sec)
		if err != nil {
			serverLogger.Error("failed to load TLS credentials", "error", err)
			return nil, err
		}
		grpcOptions = append(grpcOptions, grpc.Creds(creds))
	}

	serverLogger.Debug("gRPC server options configured",
		"maxRecvMsgSize", maxRecvMsgSize,
		"maxSendMsgSize", maxSendMsgSize,
		"maxHeaderListSize", maxHeaderListSize,
		"tlsEnabled", sec.EnableTLS)

	grpcServer := grpc.NewServer(grpcOptions...)
	mediapb.RegisterMediaServiceServer(grpcServer, media)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(mediapb.ServiceName, healthpb.HealthCheckResponse_SERVING)

	serverLogger.Info("media service registered successfully")
	return &GRPCServer{Server: grpcServer, Health: healthServer}, nil
}

// Drain marks every service NOT_SERVING ahead of a graceful stop.
func (s *GRPCServer) Drain() {
	s.Health.Shutdown()
}

func serverCredentials(sec config.SecurityConfig) (credentials.TransportCredentials, error) {
	serverCert, err := tls.LoadX509KeyPair(sec.ServerCertPath, sec.ServerKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load server cert/key: %w", err)
	}

	caCert, err := os.ReadFile(sec.CACertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	if ok := certPool.AppendCertsFromPEM(caCert); !ok {
		return nil, fmt.Errorf("failed to add CA certificate to pool")
	}

	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientCAs:    certPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}), nil
}

func skipsIdentity(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/grpc.health.v1.Health/")
}

func unaryIdentityInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if skipsIdentity(info.FullMethod) {
		return handler(ctx, req)
	}
	id, err := auth.IdentityFromGRPC(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return handler(auth.WithIdentity(ctx, id), req)
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }

func streamIdentityInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if skipsIdentity(info.FullMethod) {
		return handler(srv, ss)
	}
	id, err := auth.IdentityFromGRPC(ss.Context())
	if err != nil {
		return toStatus(err)
	}
	return handler(srv, &identityStream{ServerStream: ss, ctx: auth.WithIdentity(ss.Context(), id)})
}
