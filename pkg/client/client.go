package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"vigilstream/api/mediapb"
	"vigilstream/internal/vigil/auth"
	"vigilstream/internal/vigil/catalog"
	"vigilstream/internal/vigil/domain"
	"vigilstream/internal/vigil/mappers"
)

// Options configures how the client reaches the server and who it acts as.
// Without TLS the identity travels as request metadata, which the server
// trusts only behind a gateway.
type Options struct {
	UserID string
	Role   string

	EnableTLS      bool
	CACertPath     string
	ClientCertPath string
	ClientKeyPath  string
	ServerName     string
}

type MediaClient struct {
	client mediapb.MediaServiceClient
	conn   *grpc.ClientConn
	md     metadata.MD
}

func NewMediaClient(serverAddr string, opts Options) (*MediaClient, error) {
	creds := insecure.NewCredentials()
	if opts.EnableTLS {
		tlsCreds, err := clientCredentials(opts)
		if err != nil {
			return nil, err
		}
		creds = tlsCreds
	}

	conn, err := grpc.NewClient(
		serverAddr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.WaitForReady(true)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	return newMediaClient(conn, opts), nil
}

func newMediaClient(conn *grpc.ClientConn, opts Options) *MediaClient {
	md := metadata.MD{}
	if opts.UserID != "" {
		md.Set(auth.UserIDHeader, opts.UserID)
		md.Set(auth.RoleHeader, opts.Role)
	}
	return &MediaClient{client: mediapb.NewMediaServiceClient(conn), conn: conn, md: md}
}

func clientCredentials(opts Options) (credentials.TransportCredentials, error) {
	clientCert, err := tls.LoadX509KeyPair(opts.ClientCertPath, opts.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert/key: %w", err)
	}

	caCert, err := os.ReadFile(opts.CACertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	if ok := certPool.AppendCertsFromPEM(caCert); !ok {
		return nil, fmt.Errorf("failed to add CA certificate to pool")
	}

	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      certPool,
		MinVersion:   tls.VersionTLS13,
		ServerName:   opts.ServerName,
	}), nil
}

func (c *MediaClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *MediaClient) outgoing(ctx context.Context) context.Context {
	if len(c.md) == 0 {
		return ctx
	}
	return metadata.NewOutgoingContext(ctx, c.md)
}

func (c *MediaClient) GetObject(ctx context.Context, id string) (*domain.MediaObject, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s, err := c.client.GetObject(c.outgoing(ctx), wrapperspb.String(id))
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.DeadlineExceeded {
			return nil, fmt.Errorf("timeout while fetching object %s", id)
		}
		return nil, err
	}
	return mappers.ProtobufToDomain(s)
}

func (c *MediaClient) ListObjects(ctx context.Context, filter catalog.Filter) ([]*domain.MediaObject, error) {
	list, err := c.client.ListObjects(c.outgoing(ctx), mappers.FilterToProtobuf(filter))
	if err != nil {
		return nil, err
	}

	objs := make([]*domain.MediaObject, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		obj, err := mappers.ProtobufToDomain(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// Watch calls fn for every event on topic until the server closes the
// stream, fn returns an error or ctx ends. Keepalives are skipped. An empty
// topic watches every object's terminal events.
func (c *MediaClient) Watch(ctx context.Context, topic string, fn func(domain.Event) error) error {
	stream, err := c.client.Watch(c.outgoing(ctx), wrapperspb.String(topic))
	if err != nil {
		return fmt.Errorf("failed to start watch stream: %w", err)
	}

	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(msg.GetFields()) == 0 {
			continue
		}

		ev, err := mappers.ProtobufToEvent(msg)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
