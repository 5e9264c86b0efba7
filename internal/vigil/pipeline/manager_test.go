package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigilstream/internal/vigil/catalog"
	"vigilstream/internal/vigil/classifier"
	"vigilstream/internal/vigil/domain"
	"vigilstream/internal/vigil/objectstore"
	"vigilstream/pkg/clock"
	"vigilstream/pkg/errors"
)

type published struct {
	topic string
	ev    domain.Event
}

type recorder struct {
	ch chan published
}

func (r *recorder) Publish(topic string, ev domain.Event) int {
	r.ch <- published{topic: topic, ev: ev}
	return 1
}

type spyCatalog struct {
	*catalog.Memory

	failGet atomic.Bool

	mu             sync.Mutex
	progressWrites []int
}

func (s *spyCatalog) Get(ctx context.Context, id string) (*domain.MediaObject, error) {
	if s.failGet.Load() {
		return nil, stderrors.New("connection refused")
	}
	return s.Memory.Get(ctx, id)
}

func (s *spyCatalog) Update(ctx context.Context, id string, p catalog.Patch) error {
	if p.ProgressPercent != nil && p.LifecycleState == nil {
		s.mu.Lock()
		s.progressWrites = append(s.progressWrites, *p.ProgressPercent)
		s.mu.Unlock()
	}
	return s.Memory.Update(ctx, id, p)
}

func (s *spyCatalog) writes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.progressWrites...)
}

type fakeMetadata struct {
	duration float64
	err      error
	calls    atomic.Int32
}

func (f *fakeMetadata) FetchMetadata(_ context.Context, _ string) (objectstore.Metadata, error) {
	f.calls.Add(1)
	if f.err != nil {
		return objectstore.Metadata{}, f.err
	}
	d := f.duration
	return objectstore.Metadata{DurationSeconds: &d}, nil
}

type panicClassifier struct{}

func (panicClassifier) Classify(string, string) domain.Classification {
	panic("classifier exploded")
}

// gatedClassifier blocks inside Classify until released.
type gatedClassifier struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedClassifier) Classify(string, string) domain.Classification {
	close(g.entered)
	<-g.release
	return domain.Classification{Status: domain.SensitivitySafe, Reason: "No flagged terms", Score: 0.95}
}

type harness struct {
	t    *testing.T
	clk  *clock.Fake
	cat  *spyCatalog
	pub  *recorder
	meta *fakeMetadata
	mgr  *Manager
	opts Options
}

func newHarness(t *testing.T, opts Options, cls classifier.Classifier) *harness {
	t.Helper()
	opts = opts.withDefaults()

	h := &harness{
		t:    t,
		clk:  clock.NewFake(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)),
		cat:  &spyCatalog{Memory: catalog.NewMemory()},
		pub:  &recorder{ch: make(chan published, 1024)},
		meta: &fakeMetadata{duration: 12.5},
		opts: opts,
	}
	if cls == nil {
		cls = classifier.NewKeyword(classifier.DefaultDenylist)
	}
	h.mgr = NewManager(Dependencies{
		Catalog:    h.cat,
		Metadata:   h.meta,
		Classifier: cls,
		Publisher:  h.pub,
		Clock:      h.clk,
	}, opts)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.mgr.Shutdown(ctx)
	})
	return h
}

func (h *harness) create(id, title string) *domain.MediaObject {
	h.t.Helper()
	obj := domain.NewMediaObject(id, "owner-1", title, h.clk.Now())
	obj.ObjectRef = id + ".mp4"
	require.NoError(h.t, h.cat.Create(context.Background(), obj))
	return obj
}

func (h *harness) record(id string) *domain.MediaObject {
	h.t.Helper()
	obj, err := h.cat.Memory.Get(context.Background(), id)
	require.NoError(h.t, err)
	return obj
}

func (h *harness) next() published {
	h.t.Helper()
	select {
	case p := <-h.pub.ch:
		return p
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for event")
		return published{}
	}
}

func (h *harness) tick() published {
	h.t.Helper()
	h.clk.Advance(h.opts.Interval)
	return h.next()
}

func (h *harness) assertNoEvents() {
	h.t.Helper()
	select {
	case p := <-h.pub.ch:
		h.t.Fatalf("unexpected event on %s: %+v", p.topic, p.ev)
	default:
	}
}

func (h *harness) waitStopped(id string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return !h.mgr.IsRunning(id) }, 2*time.Second, 5*time.Millisecond)
}

func TestManager_RunsToReady(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.create("obj-1", "Company Picnic")

	require.NoError(t, h.mgr.Start(context.Background(), "obj-1"))
	assert.True(t, h.mgr.IsRunning("obj-1"))
	assert.Equal(t, []string{"obj-1"}, h.mgr.Active())
	h.clk.WaitForTimers(1)

	for i := 1; i <= 19; i++ {
		p := h.tick()
		assert.Equal(t, domain.ObjectTopic("obj-1"), p.topic)
		assert.Equal(t, i*5, p.ev.ProgressPercent)
		assert.Equal(t, domain.StateProcessing, p.ev.LifecycleState)
		assert.Nil(t, p.ev.Classification)

		switch i * 5 {
		case 20:
			assert.Equal(t, "Extracting metadata...", p.ev.Message)
		case 30:
			assert.Equal(t, "Metadata extracted", p.ev.Message)
			assert.Equal(t, int32(1), h.meta.calls.Load())
			require.NotNil(t, h.record("obj-1").DurationSeconds)
		case 45:
			// durable state lags the live event
			assert.Equal(t, 0, h.record("obj-1").ProgressPercent)
		case 50:
			assert.Equal(t, 50, h.record("obj-1").ProgressPercent)
		case 60:
			assert.Equal(t, "Running sensitivity analysis...", p.ev.Message)
		}
	}

	final := h.tick()
	assert.Equal(t, domain.ObjectTopic("obj-1"), final.topic)
	assert.Equal(t, domain.StateReady, final.ev.LifecycleState)
	assert.Equal(t, 100, final.ev.ProgressPercent)
	assert.Equal(t, MessageComplete, final.ev.Message)
	require.NotNil(t, final.ev.Classification)
	assert.Equal(t, domain.SensitivitySafe, final.ev.Classification.Status)
	assert.Equal(t, classifier.SafeScore, final.ev.Classification.Score)

	global := h.next()
	assert.Equal(t, domain.GlobalTopic, global.topic)
	assert.Equal(t, final.ev, global.ev)

	h.waitStopped("obj-1")
	h.assertNoEvents()

	obj := h.record("obj-1")
	assert.Equal(t, domain.StateReady, obj.LifecycleState)
	assert.Equal(t, 100, obj.ProgressPercent)
	assert.Equal(t, domain.SensitivitySafe, obj.Classification.Status)
	require.NotNil(t, obj.DurationSeconds)
	assert.Equal(t, 12.5, *obj.DurationSeconds)
	assert.Equal(t, []int{50}, h.cat.writes())
}

func TestManager_FlagsSensitiveTitle(t *testing.T) {
	h := newHarness(t, Options{Step: 25}, nil)
	h.create("obj-2", "NSFW teaser")

	require.NoError(t, h.mgr.Start(context.Background(), "obj-2"))
	h.clk.WaitForTimers(1)

	for i := 0; i < 3; i++ {
		h.tick()
	}
	final := h.tick()
	require.True(t, final.ev.IsTerminal())
	assert.Equal(t, domain.SensitivityFlagged, final.ev.Classification.Status)
	assert.Equal(t, classifier.FlaggedScore, final.ev.Classification.Score)
	assert.Equal(t, classifier.FlaggedReason, final.ev.Classification.Reason)
	h.next()

	h.waitStopped("obj-2")
	assert.Equal(t, domain.SensitivityFlagged, h.record("obj-2").Classification.Status)
}

func TestManager_PersistCadence(t *testing.T) {
	h := newHarness(t, Options{PersistEvery: 2}, nil)
	h.create("obj-3", "clip")

	require.NoError(t, h.mgr.Start(context.Background(), "obj-3"))
	h.clk.WaitForTimers(1)
	for i := 0; i < 20; i++ {
		h.tick()
	}
	h.next()
	h.waitStopped("obj-3")

	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90}, h.cat.writes())
}

func TestManager_MetadataFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, Options{Step: 10}, nil)
	h.meta.err = stderrors.New("ffprobe: no such file")
	h.create("obj-4", "clip")

	require.NoError(t, h.mgr.Start(context.Background(), "obj-4"))
	h.clk.WaitForTimers(1)
	for i := 0; i < 9; i++ {
		h.tick()
	}
	final := h.tick()
	assert.Equal(t, domain.StateReady, final.ev.LifecycleState)
	h.next()
	h.waitStopped("obj-4")

	obj := h.record("obj-4")
	assert.Equal(t, domain.StateReady, obj.LifecycleState)
	assert.Nil(t, obj.DurationSeconds)
	assert.Equal(t, int32(1), h.meta.calls.Load())
}

func TestManager_DeletedRecordStopsQuietly(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.create("obj-5", "clip")

	require.NoError(t, h.mgr.Start(context.Background(), "obj-5"))
	h.clk.WaitForTimers(1)
	h.tick()
	h.tick()

	require.NoError(t, h.cat.Delete(context.Background(), "obj-5"))
	h.clk.Advance(h.opts.Interval)

	h.waitStopped("obj-5")
	h.assertNoEvents()
}

func TestManager_StopsWhenRecordProgressIsAhead(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.create("obj-12", "clip")

	require.NoError(t, h.mgr.Start(context.Background(), "obj-12"))
	h.clk.WaitForTimers(1)
	assert.Equal(t, 5, h.tick().ev.ProgressPercent)

	require.NoError(t, h.cat.Memory.Update(context.Background(), "obj-12", catalog.ProgressPatch(80)))
	h.clk.Advance(h.opts.Interval)

	h.waitStopped("obj-12")
	h.assertNoEvents()
	rec := h.record("obj-12")
	assert.Equal(t, domain.StateProcessing, rec.LifecycleState)
	assert.Equal(t, 80, rec.ProgressPercent)
}

func TestManager_CatalogOutageFailsJob(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.create("obj-6", "clip")

	require.NoError(t, h.mgr.Start(context.Background(), "obj-6"))
	h.clk.WaitForTimers(1)
	h.tick()
	h.tick()

	h.cat.failGet.Store(true)
	h.clk.Advance(h.opts.Interval)

	failed := h.next()
	assert.Equal(t, domain.ObjectTopic("obj-6"), failed.topic)
	assert.Equal(t, domain.StateFailed, failed.ev.LifecycleState)
	assert.Equal(t, MessageFailed, failed.ev.Message)
	assert.Equal(t, domain.GlobalTopic, h.next().topic)

	h.waitStopped("obj-6")
	h.assertNoEvents()

	obj := h.record("obj-6")
	assert.Equal(t, domain.StateFailed, obj.LifecycleState)
	assert.Equal(t, 10, obj.ProgressPercent)
	assert.Equal(t, domain.SensitivityFlagged, obj.Classification.Status)
	assert.Equal(t, UnclassifiedReason, obj.Classification.Reason)
}

func TestManager_Cancel(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.create("obj-7", "clip")

	require.NoError(t, h.mgr.Start(context.Background(), "obj-7"))
	h.clk.WaitForTimers(1)
	h.tick()
	h.tick()

	assert.True(t, h.mgr.Cancel("obj-7"))

	failed := h.next()
	assert.Equal(t, domain.StateFailed, failed.ev.LifecycleState)
	assert.Equal(t, MessageCancelled, failed.ev.Message)
	assert.Equal(t, 10, failed.ev.ProgressPercent)
	assert.Equal(t, domain.GlobalTopic, h.next().topic)

	h.waitStopped("obj-7")
	assert.Equal(t, domain.StateFailed, h.record("obj-7").LifecycleState)
	assert.False(t, h.mgr.Cancel("obj-7"))
}

func TestManager_CancelDuringFinalCheckpoint(t *testing.T) {
	gate := &gatedClassifier{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, Options{}, gate)
	h.create("obj-8", "clip")
	require.NoError(t, h.cat.Update(context.Background(), "obj-8", catalog.ProgressPatch(95)))

	require.NoError(t, h.mgr.Start(context.Background(), "obj-8"))
	h.clk.WaitForTimers(1)
	h.clk.Advance(h.opts.Interval)

	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("final checkpoint never classified")
	}
	assert.True(t, h.mgr.Cancel("obj-8"))
	close(gate.release)

	final := h.next()
	assert.Equal(t, domain.StateFailed, final.ev.LifecycleState)
	assert.Equal(t, MessageCancelled, final.ev.Message)
	assert.Equal(t, domain.GlobalTopic, h.next().topic)

	h.waitStopped("obj-8")
	assert.Equal(t, domain.StateFailed, h.record("obj-8").LifecycleState)
}

func TestJob_CancelRefusedOnceFinishing(t *testing.T) {
	j := &job{}
	assert.True(t, j.beginFinish())
	assert.False(t, j.requestCancel())
	assert.False(t, j.isCancelled())

	j = &job{}
	assert.True(t, j.requestCancel())
	assert.False(t, j.beginFinish())
}

func TestManager_PanicFailsJob(t *testing.T) {
	h := newHarness(t, Options{Step: 20}, panicClassifier{})
	h.create("obj-8", "clip")

	require.NoError(t, h.mgr.Start(context.Background(), "obj-8"))
	h.clk.WaitForTimers(1)
	h.tick() // 20
	h.tick() // 40

	// 60 runs the classifier
	h.clk.Advance(h.opts.Interval)
	failed := h.next()
	assert.Equal(t, domain.StateFailed, failed.ev.LifecycleState)
	assert.Equal(t, 60, failed.ev.ProgressPercent)
	assert.Equal(t, domain.GlobalTopic, h.next().topic)

	h.waitStopped("obj-8")
	h.assertNoEvents()
	assert.Equal(t, domain.StateFailed, h.record("obj-8").LifecycleState)
}

func TestManager_StartPreconditions(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.create("obj-9", "clip")

	require.NoError(t, h.mgr.Start(context.Background(), "obj-9"))
	err := h.mgr.Start(context.Background(), "obj-9")
	assert.ErrorIs(t, err, errors.ErrJobAlreadyRunning)
	assert.Len(t, h.mgr.Active(), 1)

	assert.ErrorIs(t, h.mgr.Start(context.Background(), "missing"), errors.ErrObjectNotFound)

	done := h.create("obj-10", "clip")
	require.NoError(t, done.MarkReady(domain.Classification{Status: domain.SensitivitySafe}))
	require.NoError(t, h.cat.Update(context.Background(), "obj-10", catalog.TerminalPatch(done)))
	assert.ErrorIs(t, h.mgr.Start(context.Background(), "obj-10"), errors.ErrInvalidState)
}

func TestManager_ResumesFromPersistedProgress(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.create("obj-11", "clip")
	require.NoError(t, h.cat.Update(context.Background(), "obj-11", catalog.ProgressPatch(50)))

	require.NoError(t, h.mgr.Start(context.Background(), "obj-11"))
	h.clk.WaitForTimers(1)

	assert.Equal(t, 55, h.tick().ev.ProgressPercent)
	for i := 0; i < 8; i++ {
		h.tick()
	}
	final := h.tick()
	assert.Equal(t, domain.StateReady, final.ev.LifecycleState)
	h.next()
	h.waitStopped("obj-11")

	// metadata milestone was already behind the resume point
	assert.Equal(t, int32(0), h.meta.calls.Load())
}

func TestManager_ShutdownLeavesRecordProcessing(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.create("obj-12", "clip")

	require.NoError(t, h.mgr.Start(context.Background(), "obj-12"))
	h.clk.WaitForTimers(1)
	h.tick()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.mgr.Shutdown(ctx))

	assert.Empty(t, h.mgr.Active())
	h.assertNoEvents()
	assert.Equal(t, domain.StateProcessing, h.record("obj-12").LifecycleState)
	assert.ErrorIs(t, h.mgr.Start(context.Background(), "obj-12"), errors.ErrShuttingDown)
}

func TestManager_AdmissionControl(t *testing.T) {
	h := newHarness(t, Options{Step: 50, MaxConcurrentJobs: 1}, nil)
	h.create("a", "clip")
	h.create("b", "clip")

	require.NoError(t, h.mgr.Start(context.Background(), "a"))
	require.NoError(t, h.mgr.Start(context.Background(), "b"))
	// both registered, one waiting for a slot
	assert.Equal(t, []string{"a", "b"}, h.mgr.Active())

	h.clk.WaitForTimers(1)
	assert.Equal(t, 1, h.clk.Pending())

	first := h.tick().ev.ObjectID
	final := h.tick()
	assert.Equal(t, first, final.ev.ObjectID)
	assert.True(t, final.ev.IsTerminal())
	h.next()
	h.waitStopped(first)

	second := "a"
	if first == "a" {
		second = "b"
	}
	assert.True(t, h.mgr.IsRunning(second))

	h.clk.WaitForTimers(1)
	assert.Equal(t, second, h.tick().ev.ObjectID)
	assert.True(t, h.tick().ev.IsTerminal())
	h.next()
	h.waitStopped(second)
}
