package server

import (
	"context"
	stderrors "errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vigilstream/internal/vigil/pubsub"
	"vigilstream/pkg/errors"
)

// grpcCode classifies a service error for the gRPC edge.
func grpcCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case stderrors.Is(err, errors.ErrObjectNotFound), stderrors.Is(err, errors.ErrUserNotFound):
		return codes.NotFound
	case stderrors.Is(err, errors.ErrForbidden):
		return codes.PermissionDenied
	case stderrors.Is(err, errors.ErrUnauthenticated):
		return codes.Unauthenticated
	case stderrors.Is(err, errors.ErrObjectExists), stderrors.Is(err, errors.ErrJobAlreadyRunning):
		return codes.AlreadyExists
	case stderrors.Is(err, errors.ErrInvalidState):
		return codes.FailedPrecondition
	case stderrors.Is(err, errors.ErrInvalidArgument), stderrors.Is(err, errors.ErrInvalidRole):
		return codes.InvalidArgument
	case stderrors.Is(err, errors.ErrShuttingDown), stderrors.Is(err, pubsub.ErrBusClosed):
		return codes.Unavailable
	case stderrors.Is(err, pubsub.ErrSubscriberEvicted):
		return codes.ResourceExhausted
	case stderrors.Is(err, context.Canceled):
		return codes.Canceled
	case stderrors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(grpcCode(err), err.Error())
}

// httpStatus classifies a service error for the HTTP edge.
func httpStatus(err error) int {
	switch grpcCode(err) {
	case codes.OK:
		return http.StatusOK
	case codes.NotFound:
		return http.StatusNotFound
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.AlreadyExists, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
