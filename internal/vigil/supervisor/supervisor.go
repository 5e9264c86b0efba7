package supervisor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"vigilstream/internal/vigil/catalog"
	"vigilstream/internal/vigil/domain"
	"vigilstream/pkg/errors"
	"vigilstream/pkg/logger"
)

const reconcileTimeout = 30 * time.Second

// Jobs is the part of the pipeline manager the supervisor drives.
type Jobs interface {
	Start(ctx context.Context, objectID string) error
	IsRunning(objectID string) bool
}

// Supervisor restarts processing jobs for records that are processing in
// the catalog but have no running job, typically after a restart.
type Supervisor struct {
	catalog  catalog.Catalog
	jobs     Jobs
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex // serializes reconcile passes
	logger   *logger.Logger
}

func New(cat catalog.Catalog, jobs Jobs, schedule string) (*Supervisor, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid supervisor schedule %q: %w", schedule, err)
	}
	return &Supervisor{
		catalog:  cat,
		jobs:     jobs,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.WithField("component", "supervisor"),
	}, nil
}

// Reconcile runs one pass and returns how many jobs it started.
func (s *Supervisor) Reconcile(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orphans, err := s.catalog.List(ctx, catalog.Filter{State: domain.StateProcessing})
	if err != nil {
		return 0, fmt.Errorf("failed to list processing objects: %w", err)
	}

	started := 0
	for _, obj := range orphans {
		if s.jobs.IsRunning(obj.ID) {
			continue
		}
		err := s.jobs.Start(ctx, obj.ID)
		switch {
		case err == nil:
			started++
			s.logger.Info("restarted orphaned processing job", "objectId", obj.ID, "progress", obj.ProgressPercent)
		case stderrors.Is(err, errors.ErrJobAlreadyRunning),
			stderrors.Is(err, errors.ErrInvalidState),
			stderrors.Is(err, errors.ErrObjectNotFound):
			// raced with an upload, completion or delete
		case stderrors.Is(err, errors.ErrShuttingDown):
			return started, err
		default:
			s.logger.Error("failed to restart processing job", "objectId", obj.ID, "error", err)
		}
	}

	if started > 0 {
		s.logger.Info("reconcile pass finished", "processing", len(orphans), "restarted", started)
	}
	return started, nil
}

// Start runs an immediate pass and then schedules further passes.
func (s *Supervisor) Start(ctx context.Context) error {
	if _, err := s.Reconcile(ctx); err != nil {
		s.logger.Warn("initial reconcile failed", "error", err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		rctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		if _, err := s.Reconcile(rctx); err != nil {
			s.logger.Warn("scheduled reconcile failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reconcile: %w", err)
	}

	s.cron.Start()
	s.logger.Info("supervisor started", "schedule", s.schedule)
	return nil
}

// Stop halts scheduling and waits for a running pass.
func (s *Supervisor) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
