package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vigilstream/internal/vigil/auth"
	"vigilstream/internal/vigil/catalog"
	"vigilstream/internal/vigil/domain"
	"vigilstream/internal/vigil/objectstore"
	"vigilstream/internal/vigil/pubsub"
	"vigilstream/pkg/clock"
	"vigilstream/pkg/errors"
	"vigilstream/pkg/logger"
)

// Jobs is the part of the pipeline manager the service drives.
type Jobs interface {
	Start(ctx context.Context, objectID string) error
	Cancel(objectID string) bool
}

// Bus is the part of the event bus the service uses.
type Bus interface {
	Subscribe(topic string) *pubsub.Subscription
	Unsubscribe(sub *pubsub.Subscription)
	Publish(topic string, ev domain.Event) int
}

type UploadRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	ObjectRef   string `json:"objectRef"`
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	SizeBytes   int64  `json:"sizeBytes"`
	MimeType    string `json:"mimeType"`
}

// Service is the authorization-gated media workflow shared by every
// transport. A policy deny is returned as errors.ErrForbidden.
type Service struct {
	catalog catalog.Catalog
	users   catalog.Users
	store   objectstore.Store
	jobs    Jobs
	bus     Bus
	clock   clock.Clock
	newID   func() string
	logger  *logger.Logger
}

type Dependencies struct {
	Catalog catalog.Catalog
	Users   catalog.Users
	Store   objectstore.Store
	Jobs    Jobs
	Bus     Bus
	Clock   clock.Clock
}

func New(deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	return &Service{
		catalog: deps.Catalog,
		users:   deps.Users,
		store:   deps.Store,
		jobs:    deps.Jobs,
		bus:     deps.Bus,
		clock:   deps.Clock,
		newID:   uuid.NewString,
		logger:  logger.WithField("component", "media-service"),
	}
}

// authorize decides on the caller's stored role. A caller seen for the first
// time is registered with the role it presented, so that role changes made
// by an admin apply to every later request.
func (s *Service) authorize(ctx context.Context, caller auth.Identity, isOwner bool, action domain.Action) error {
	if caller.UserID == "" {
		return errors.ErrUnauthenticated
	}
	role, err := s.effectiveRole(ctx, caller)
	if err != nil {
		return err
	}
	if decision := auth.Decide(role, isOwner, action); decision != auth.Allow {
		s.logger.Debug("action denied", "userId", caller.UserID, "role", role, "action", action, "isOwner", isOwner)
		return fmt.Errorf("%w: %s may not %s", errors.ErrForbidden, role, action)
	}
	return nil
}

func (s *Service) effectiveRole(ctx context.Context, caller auth.Identity) (domain.Role, error) {
	if s.users == nil {
		return caller.Role, nil
	}
	u, err := s.users.GetUser(ctx, caller.UserID)
	if err == nil {
		return u.Role, nil
	}
	if !stderrors.Is(err, errors.ErrUserNotFound) {
		return "", fmt.Errorf("failed to resolve caller role: %w", err)
	}
	if _, ok := domain.ParseRole(string(caller.Role)); !ok {
		return caller.Role, nil
	}
	if err := s.users.Put(ctx, domain.User{ID: caller.UserID, Username: caller.UserID, Role: caller.Role}); err != nil {
		s.logger.Warn("failed to register user", "userId", caller.UserID, "error", err)
	} else {
		s.logger.Debug("user registered", "userId", caller.UserID, "role", caller.Role)
	}
	return caller.Role, nil
}

// Upload records an already stored object and starts its processing job.
func (s *Service) Upload(ctx context.Context, caller auth.Identity, req UploadRequest) (*domain.MediaObject, error) {
	if err := s.authorize(ctx, caller, true, domain.ActionUpload); err != nil {
		return nil, err
	}

	req.ObjectRef = strings.TrimSpace(req.ObjectRef)
	if req.ObjectRef == "" {
		return nil, fmt.Errorf("%w: objectRef is required", errors.ErrInvalidArgument)
	}
	if req.SizeBytes < 0 {
		return nil, fmt.Errorf("%w: sizeBytes must not be negative", errors.ErrInvalidArgument)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = req.Filename
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", errors.ErrInvalidArgument)
	}

	obj := domain.NewMediaObject(s.newID(), caller.UserID, title, s.clock.Now())
	obj.Description = req.Description
	if c := strings.TrimSpace(req.Category); c != "" {
		obj.Category = c
	}
	obj.ObjectRef = req.ObjectRef
	obj.URL = req.URL
	if obj.URL == "" && s.store != nil {
		obj.URL = s.store.URL(req.ObjectRef)
	}
	obj.Filename = req.Filename
	obj.SizeBytes = req.SizeBytes
	obj.MimeType = req.MimeType

	if err := s.catalog.Create(ctx, obj); err != nil {
		return nil, fmt.Errorf("failed to create media record: %w", err)
	}

	log := s.logger.WithFields("objectId", obj.ID, "ownerId", obj.OwnerID)
	if err := s.jobs.Start(ctx, obj.ID); err != nil {
		// the record stays processing and the supervisor retries it
		log.Warn("processing job not started", "error", err)
	} else {
		log.Info("media uploaded, processing started", "title", obj.Title)
	}
	return obj, nil
}

func (s *Service) List(ctx context.Context, caller auth.Identity, filter catalog.Filter) ([]*domain.MediaObject, error) {
	if err := s.authorize(ctx, caller, false, domain.ActionView); err != nil {
		return nil, err
	}
	if filter.State != "" && !filter.State.Valid() {
		return nil, fmt.Errorf("%w: unknown lifecycle state %q", errors.ErrInvalidArgument, filter.State)
	}
	return s.catalog.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, caller auth.Identity, id string) (*domain.MediaObject, error) {
	if caller.UserID == "" {
		return nil, errors.ErrUnauthenticated
	}
	obj, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caller, obj.IsOwnedBy(caller.UserID), domain.ActionView); err != nil {
		return nil, err
	}
	return obj, nil
}

// StreamURL is where playback of id is served from.
func (s *Service) StreamURL(ctx context.Context, caller auth.Identity, id string) (string, error) {
	obj, err := s.Get(ctx, caller, id)
	if err != nil {
		return "", err
	}
	if obj.URL == "" {
		return "", fmt.Errorf("%w: object %s has no playback url", errors.ErrObjectNotFound, id)
	}
	return obj.URL, nil
}

// Delete removes the object for its owner or an admin. The stored blob is
// removed before the record. A running job sees the record gone at its next
// checkpoint and exits without a terminal event.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id string) error {
	if caller.UserID == "" {
		return errors.ErrUnauthenticated
	}
	obj, err := s.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, caller, obj.IsOwnedBy(caller.UserID), domain.ActionDelete); err != nil {
		return err
	}

	log := s.logger.WithFields("objectId", id, "userId", caller.UserID)

	if s.store != nil && obj.ObjectRef != "" {
		if err := s.store.Delete(ctx, obj.ObjectRef); err != nil {
			return fmt.Errorf("failed to delete stored object: %w", err)
		}
	}

	if err := s.catalog.Delete(ctx, id); err != nil {
		return err
	}

	ev := domain.Event{
		ObjectID:        id,
		ProgressPercent: obj.ProgressPercent,
		LifecycleState:  obj.LifecycleState,
		Message:         "Deleted",
		Deleted:         true,
		Timestamp:       s.clock.Now(),
	}
	s.bus.Publish(domain.ObjectTopic(id), ev)
	s.bus.Publish(domain.GlobalTopic, ev)
	log.Info("media deleted")
	return nil
}

// CancelProcessing stops a running job; the object ends up failed. It needs
// the same permission as Delete.
func (s *Service) CancelProcessing(ctx context.Context, caller auth.Identity, id string) error {
	if caller.UserID == "" {
		return errors.ErrUnauthenticated
	}
	obj, err := s.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, caller, obj.IsOwnedBy(caller.UserID), domain.ActionDelete); err != nil {
		return err
	}
	if !s.jobs.Cancel(id) {
		return fmt.Errorf("%w: object %s has no running job", errors.ErrInvalidState, id)
	}
	s.logger.Info("processing cancelled", "objectId", id, "userId", caller.UserID)
	return nil
}

// ChangeRole is admin-only.
func (s *Service) ChangeRole(ctx context.Context, caller auth.Identity, userID, role string) (domain.User, error) {
	if err := s.authorize(ctx, caller, false, domain.ActionChangeRole); err != nil {
		return domain.User{}, err
	}
	r, ok := domain.ParseRole(role)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: %q", errors.ErrInvalidRole, role)
	}

	u, err := s.users.SetRole(ctx, userID, r)
	if err != nil {
		return domain.User{}, err
	}
	s.logger.Info("user role changed", "userId", userID, "role", r, "changedBy", caller.UserID)
	return u, nil
}

// ListUsers requires the same permission as ChangeRole.
func (s *Service) ListUsers(ctx context.Context, caller auth.Identity) ([]domain.User, error) {
	if err := s.authorize(ctx, caller, false, domain.ActionChangeRole); err != nil {
		return nil, err
	}
	return s.users.ListUsers(ctx)
}

// Watch subscribes the caller to a topic: a per-object topic or the global
// topic. The caller must Unsubscribe the returned subscription.
func (s *Service) Watch(ctx context.Context, caller auth.Identity, topic string) (*pubsub.Subscription, error) {
	if topic == "" {
		topic = domain.GlobalTopic
	}

	if id, ok := domain.ObjectIDFromTopic(topic); ok {
		if _, err := s.Get(ctx, caller, id); err != nil {
			return nil, err
		}
	} else if topic != domain.GlobalTopic {
		return nil, fmt.Errorf("%w: unknown topic %q", errors.ErrInvalidArgument, topic)
	} else if err := s.authorize(ctx, caller, false, domain.ActionView); err != nil {
		return nil, err
	}

	return s.bus.Subscribe(topic), nil
}
