package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vigilstream/internal/vigil/domain"
	"vigilstream/pkg/errors"
	"vigilstream/pkg/logger"
)

// Memory is an in-process Catalog and Users store. Records are copied on
// the way in and out so callers cannot mutate shared state.
type Memory struct {
	objects map[string]*domain.MediaObject
	users   map[string]domain.User
	mutex   sync.RWMutex
	now     func() time.Time
	logger  *logger.Logger
}

var (
	_ Catalog = (*Memory)(nil)
	_ Users   = (*Memory)(nil)
)

func NewMemory() *Memory {
	m := &Memory{
		objects: make(map[string]*domain.MediaObject),
		users:   make(map[string]domain.User),
		now:     time.Now,
		logger:  logger.WithField("component", "catalog-memory"),
	}
	m.logger.Debug("memory catalog initialized")
	return m
}

func (m *Memory) Create(_ context.Context, obj *domain.MediaObject) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.objects[obj.ID]; exists {
		m.logger.Warn("object already exists, not creating record", "objectId", obj.ID)
		return fmt.Errorf("%w: %s", errors.ErrObjectExists, obj.ID)
	}

	m.objects[obj.ID] = obj.DeepCopy()
	m.logger.Debug("object record created", "objectId", obj.ID, "totalObjects", len(m.objects))
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*domain.MediaObject, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	obj, exists := m.objects[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", errors.ErrObjectNotFound, id)
	}
	return obj.DeepCopy(), nil
}

func (m *Memory) Update(_ context.Context, id string, patch Patch) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	obj, exists := m.objects[id]
	if !exists {
		m.logger.Debug("attempted to update non-existent object", "objectId", id)
		return fmt.Errorf("%w: %s", errors.ErrObjectNotFound, id)
	}

	patch.Apply(obj, m.now())
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.objects[id]; !exists {
		return fmt.Errorf("%w: %s", errors.ErrObjectNotFound, id)
	}
	delete(m.objects, id)
	return nil
}

func (m *Memory) List(_ context.Context, filter Filter) ([]*domain.MediaObject, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]*domain.MediaObject, 0, len(m.objects))
	for _, obj := range m.objects {
		if filter.Matches(obj) {
			out = append(out, obj.DeepCopy())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Put(_ context.Context, user domain.User) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (domain.User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	u, exists := m.users[id]
	if !exists {
		return domain.User{}, fmt.Errorf("%w: %s", errors.ErrUserNotFound, id)
	}
	return u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetRole(_ context.Context, id string, role domain.Role) (domain.User, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	u, exists := m.users[id]
	if !exists {
		return domain.User{}, fmt.Errorf("%w: %s", errors.ErrUserNotFound, id)
	}
	u.Role = role
	m.users[id] = u
	return u, nil
}
