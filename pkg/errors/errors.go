package errors

import "errors"

var (
	ErrObjectNotFound    = errors.New("media object not found")
	ErrObjectExists      = errors.New("media object already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrJobAlreadyRunning = errors.New("processing job already running")
	ErrInvalidState      = errors.New("invalid lifecycle state")
	ErrForbidden         = errors.New("action not permitted")
	ErrUnauthenticated   = errors.New("caller identity missing")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrStreamCancelled   = errors.New("stream cancelled by client")
	ErrShuttingDown      = errors.New("service is shutting down")
)
