package auth

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"vigilstream/internal/vigil/domain"
	"vigilstream/pkg/errors"
)

const (
	UserIDHeader = "x-user-id"
	RoleHeader   = "x-user-role"
)

// Identity is the authenticated caller. Verification happens upstream.
type Identity struct {
	UserID string
	Role   domain.Role
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// NewIdentity validates raw header values.
func NewIdentity(userID, role string) (Identity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Identity{}, errors.ErrUnauthenticated
	}
	r, ok := domain.ParseRole(role)
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q", errors.ErrInvalidRole, role)
	}
	return Identity{UserID: userID, Role: r}, nil
}

// IdentityFromGRPC reads the caller from the client certificate when the
// connection uses mutual TLS (CN = user id, OU = role), falling back to
// request metadata set by a trusted gateway.
func IdentityFromGRPC(ctx context.Context) (Identity, error) {
	if p, ok := peer.FromContext(ctx); ok {
		if tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo); ok && len(tlsInfo.State.PeerCertificates) > 0 {
			cert := tlsInfo.State.PeerCertificates[0]
			for _, ou := range cert.Subject.OrganizationalUnit {
				if r, ok := domain.ParseRole(ou); ok {
					return NewIdentity(cert.Subject.CommonName, string(r))
				}
			}
			return Identity{}, fmt.Errorf("%w: client certificate carries no known role", errors.ErrInvalidRole)
		}
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Identity{}, errors.ErrUnauthenticated
	}
	return NewIdentity(first(md.Get(UserIDHeader)), first(md.Get(RoleHeader)))
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
