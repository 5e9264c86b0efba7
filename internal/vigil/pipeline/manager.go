package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"vigilstream/internal/vigil/catalog"
	"vigilstream/internal/vigil/classifier"
	"vigilstream/internal/vigil/domain"
	"vigilstream/internal/vigil/objectstore"
	"vigilstream/pkg/clock"
	"vigilstream/pkg/errors"
	"vigilstream/pkg/logger"
)

const (
	DefaultStep            = 5
	DefaultInterval        = 500 * time.Millisecond
	DefaultPersistEvery    = 10
	DefaultMetadataTimeout = 5 * time.Second

	terminalWriteTimeout = 5 * time.Second
)

// UnclassifiedReason is written when a job fails before its verdict was
// computed. Such objects are flagged so they never surface in safe-only
// listings.
const UnclassifiedReason = "Processing failed before content analysis completed."

// Publisher is the part of the event bus the pipeline needs.
type Publisher interface {
	Publish(topic string, ev domain.Event) int
}

// MetadataFetcher is the part of the object store the pipeline needs.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, ref string) (objectstore.Metadata, error)
}

type Options struct {
	Step         int
	Interval     time.Duration
	PersistEvery int
	// MaxConcurrentJobs bounds running jobs; 0 means unbounded.
	MaxConcurrentJobs int
	MetadataTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Step <= 0 {
		o.Step = DefaultStep
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.PersistEvery <= 0 {
		o.PersistEvery = DefaultPersistEvery
	}
	if o.MetadataTimeout <= 0 {
		o.MetadataTimeout = DefaultMetadataTimeout
	}
	return o
}

type Dependencies struct {
	Catalog    catalog.Catalog
	Metadata   MetadataFetcher
	Classifier classifier.Classifier
	Publisher  Publisher
	Clock      clock.Clock
}

type job struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	verdict *domain.Classification
	logger  *logger.Logger

	// mu orders a cancellation request against the terminal commit
	mu        sync.Mutex
	cancelled bool
	finishing bool
}

// requestCancel marks the job cancelled unless its terminal state is
// already being committed.
func (j *job) requestCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finishing {
		return false
	}
	j.cancelled = true
	return true
}

func (j *job) isCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// beginFinish reports whether the job may commit its ready state. Once it
// returns true, requestCancel refuses.
func (j *job) beginFinish() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled {
		return false
	}
	j.finishing = true
	return true
}

// Manager runs at most one job per object id. Each job is a goroutine that
// advances a Machine on every tick of the injected clock.
type Manager struct {
	catalog    catalog.Catalog
	metadata   MetadataFetcher
	classifier classifier.Classifier
	publisher  Publisher
	clock      clock.Clock
	opts       Options
	sem        *semaphore.Weighted

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
	wg     sync.WaitGroup

	root       context.Context
	rootCancel context.CancelFunc
	logger     *logger.Logger
}

func NewManager(deps Dependencies, opts Options) *Manager {
	opts = opts.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.NewKeyword(classifier.DefaultDenylist)
	}

	root, cancel := context.WithCancel(context.Background())
	m := &Manager{
		catalog:    deps.Catalog,
		metadata:   deps.Metadata,
		classifier: deps.Classifier,
		publisher:  deps.Publisher,
		clock:      deps.Clock,
		opts:       opts,
		jobs:       make(map[string]*job),
		root:       root,
		rootCancel: cancel,
		logger:     logger.WithField("component", "pipeline"),
	}
	if opts.MaxConcurrentJobs > 0 {
		m.sem = semaphore.NewWeighted(int64(opts.MaxConcurrentJobs))
	}

	m.logger.Debug("pipeline manager initialized",
		"step", opts.Step,
		"interval", opts.Interval,
		"persistEvery", opts.PersistEvery,
		"maxConcurrentJobs", opts.MaxConcurrentJobs)
	return m
}

// Start launches the job for objectID. The record must exist and be
// processing; the job resumes from its persisted progress.
func (m *Manager) Start(ctx context.Context, objectID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	obj, err := m.catalog.Get(ctx, objectID)
	if err != nil {
		return err
	}
	if !obj.IsProcessing() {
		return fmt.Errorf("%w: object %s is %s", errors.ErrInvalidState, objectID, obj.LifecycleState)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.ErrShuttingDown
	}
	if _, running := m.jobs[objectID]; running {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", errors.ErrJobAlreadyRunning, objectID)
	}
	jobCtx, cancel := context.WithCancel(m.root)
	j := &job{
		id:     objectID,
		ctx:    jobCtx,
		cancel: cancel,
		logger: m.logger.WithField("objectId", objectID),
	}
	m.jobs[objectID] = j
	m.wg.Add(1)
	m.mu.Unlock()

	j.logger.Info("processing job started", "resumeFrom", obj.ProgressPercent)
	go m.run(j, obj.ProgressPercent)
	return nil
}

// Cancel asks the job for objectID to stop. The job transitions to failed
// on its next wake-up. Returns false when no job is running or the job is
// already committing its ready state.
func (m *Manager) Cancel(objectID string) bool {
	m.mu.Lock()
	j, ok := m.jobs[objectID]
	m.mu.Unlock()
	if !ok {
		return false
	}

	if !j.requestCancel() {
		j.logger.Debug("cancellation refused, job is completing")
		return false
	}
	j.cancel()
	j.logger.Info("processing job cancellation requested")
	return true
}

func (m *Manager) IsRunning(objectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[objectID]
	return ok
}

// Active returns the ids of registered jobs, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Shutdown stops every job without a terminal transition, leaving records
// processing, and waits for the goroutines to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	active := len(m.jobs)
	m.mu.Unlock()

	m.rootCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("pipeline stopped", "interruptedJobs", active)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline shutdown: %w", ctx.Err())
	}
}

func (m *Manager) remove(j *job) {
	m.mu.Lock()
	if m.jobs[j.id] == j {
		delete(m.jobs, j.id)
	}
	m.mu.Unlock()
	j.cancel()
}

func (m *Manager) run(j *job, start int) {
	defer m.wg.Done()
	defer m.remove(j)

	machine := NewMachine(start, m.opts.Step, m.opts.PersistEvery)

	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("processing job panicked", "panic", r, "progress", machine.Progress())
			m.fail(j, machine.Progress(), MessageFailed)
		}
	}()

	if m.sem != nil {
		if err := m.sem.Acquire(j.ctx, 1); err != nil {
			m.stopped(j, machine)
			return
		}
		defer m.sem.Release(1)
	}

	ticker := m.clock.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			m.stopped(j, machine)
			return
		case <-ticker.C:
		}

		if m.checkpoint(j, machine) {
			return
		}
	}
}

// stopped handles a cancelled job context: an explicit Cancel fails the
// object, a shutdown leaves it for the supervisor.
func (m *Manager) stopped(j *job, machine *Machine) {
	if j.isCancelled() {
		m.fail(j, machine.Progress(), MessageCancelled)
		return
	}
	j.logger.Debug("processing job interrupted by shutdown", "progress", machine.Progress())
}

// checkpoint performs one advance and reports whether the job is over.
func (m *Manager) checkpoint(j *job, machine *Machine) bool {
	obj, err := m.catalog.Get(j.ctx, j.id)
	if err != nil {
		return m.handleCatalogError(j, machine, err)
	}
	if !obj.IsProcessing() {
		j.logger.Warn("record left processing outside the job, stopping", "state", obj.LifecycleState)
		return true
	}

	cp := machine.Next()
	for _, ms := range cp.Milestones {
		switch ms {
		case MilestoneMetadata:
			m.extractMetadata(j, obj)
		case MilestoneClassify:
			v := m.classifier.Classify(obj.Title, obj.Description)
			j.verdict = &v
			j.logger.Debug("content classified", "status", v.Status, "score", v.Score)
		}
	}

	if cp.Terminal {
		return m.complete(j, obj)
	}

	if err := obj.AdvanceProgress(cp.Progress); err != nil {
		// someone else moved the record; this job no longer owns it
		j.logger.Warn("progress rejected by record, stopping", "error", err)
		return true
	}

	if cp.Persist {
		if err := m.catalog.Update(j.ctx, j.id, catalog.ProgressPatch(obj.ProgressPercent)); err != nil {
			return m.handleCatalogError(j, machine, err)
		}
		j.logger.Debug("progress persisted", "progress", cp.Progress)
	}

	m.publisher.Publish(domain.ObjectTopic(j.id), domain.Event{
		ObjectID:        j.id,
		ProgressPercent: cp.Progress,
		LifecycleState:  domain.StateProcessing,
		Message:         cp.Message,
		Timestamp:       m.clock.Now(),
	})
	return false
}

// handleCatalogError maps a catalog failure inside the loop to the job's
// outcome. It always ends the job.
func (m *Manager) handleCatalogError(j *job, machine *Machine, err error) bool {
	switch {
	case stderrors.Is(err, errors.ErrObjectNotFound):
		j.logger.Info("record removed during processing, treating as cancellation", "progress", machine.Progress())
	case j.ctx.Err() != nil:
		m.stopped(j, machine)
	default:
		j.logger.Error("catalog unavailable, failing job", "error", err, "progress", machine.Progress())
		m.fail(j, machine.Progress(), MessageFailed)
	}
	return true
}

func (m *Manager) extractMetadata(j *job, obj *domain.MediaObject) {
	if m.metadata == nil {
		return
	}

	ctx, cancel := context.WithTimeout(j.ctx, m.opts.MetadataTimeout)
	defer cancel()

	meta, err := m.metadata.FetchMetadata(ctx, obj.ObjectRef)
	if err != nil {
		j.logger.Warn("metadata extraction failed, continuing without it", "ref", obj.ObjectRef, "error", err)
		return
	}
	if meta.DurationSeconds == nil {
		return
	}
	if err := m.catalog.Update(ctx, j.id, catalog.DurationPatch(*meta.DurationSeconds)); err != nil {
		j.logger.Warn("failed to persist metadata", "error", err)
		return
	}
	j.logger.Debug("metadata persisted", "durationSeconds", *meta.DurationSeconds)
}

func (m *Manager) complete(j *job, obj *domain.MediaObject) bool {
	if j.verdict == nil {
		v := m.classifier.Classify(obj.Title, obj.Description)
		j.verdict = &v
	}
	if !j.beginFinish() {
		m.fail(j, obj.ProgressPercent, MessageCancelled)
		return true
	}
	if err := obj.MarkReady(*j.verdict); err != nil {
		j.logger.Error("terminal transition rejected", "error", err)
		m.fail(j, obj.ProgressPercent, MessageFailed)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	if err := m.catalog.Update(ctx, j.id, catalog.TerminalPatch(obj)); err != nil {
		if stderrors.Is(err, errors.ErrObjectNotFound) {
			j.logger.Info("record removed before completion, treating as cancellation")
			return true
		}
		j.logger.Error("failed to persist terminal state", "error", err)
		m.fail(j, 100, MessageFailed)
		return true
	}

	j.logger.Info("processing job completed", "sensitivity", obj.Classification.Status)
	m.emitTerminal(obj, MessageComplete)
	return true
}

// fail writes the failed state once, best effort, and emits the terminal
// failure event.
func (m *Manager) fail(j *job, progress int, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	obj, err := m.catalog.Get(ctx, j.id)
	if err != nil {
		if stderrors.Is(err, errors.ErrObjectNotFound) {
			j.logger.Info("record removed, skipping failure transition")
			return
		}
		j.logger.Error("failed to read record for failure transition", "error", err)
		obj = &domain.MediaObject{ID: j.id, LifecycleState: domain.StateProcessing}
	}
	if !obj.IsProcessing() {
		return
	}

	if progress > obj.ProgressPercent {
		obj.ProgressPercent = progress
	}
	if j.verdict != nil {
		obj.Classification = *j.verdict
	} else {
		obj.Classification = domain.Classification{
			Status: domain.SensitivityFlagged,
			Reason: UnclassifiedReason,
			Score:  classifier.FlaggedScore,
		}
	}
	_ = obj.MarkFailed()

	if err := m.catalog.Update(ctx, j.id, catalog.TerminalPatch(obj)); err != nil {
		j.logger.Error("failed to persist failed state", "error", err)
	}

	j.logger.Warn("processing job failed", "reason", message, "progress", obj.ProgressPercent)
	m.emitTerminal(obj, message)
}

func (m *Manager) emitTerminal(obj *domain.MediaObject, message string) {
	c := obj.Classification
	ev := domain.Event{
		ObjectID:        obj.ID,
		ProgressPercent: obj.ProgressPercent,
		LifecycleState:  obj.LifecycleState,
		Classification:  &c,
		Message:         message,
		Timestamp:       m.clock.Now(),
	}
	m.publisher.Publish(domain.ObjectTopic(obj.ID), ev)
	m.publisher.Publish(domain.GlobalTopic, ev)
}
