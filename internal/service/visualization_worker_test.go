package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/beatviz/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/beatviz/internal/adapter/renderer/mock"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/logger"
	"github.com/tejashwikalptaru/beatviz/internal/queue"
	"github.com/tejashwikalptaru/beatviz/internal/testutil"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

type workerFixture struct {
	worker    *VisualizationWorker
	renderer  *mock.Renderer
	cache     *PresetCache
	source    *fakePresetSource
	bus       *eventbus.SyncEventBus
	snapshots *queue.SPSC[domain.AnalysisSnapshot]
	playlist  *PresetPlaylist
	cpu       *fakeCPU

	mu     sync.Mutex
	events []domain.Event
}

func newWorkerFixture(t *testing.T, mutate func(*WorkerConfig)) *workerFixture {
	t.Helper()

	f := &workerFixture{
		renderer:  mock.NewRenderer(),
		source:    newFakePresetSource(),
		bus:       eventbus.NewSyncEventBus(),
		snapshots: queue.MustNew[domain.AnalysisSnapshot](64),
		cpu:       &fakeCPU{},
	}
	log := logger.NewTestLogger()
	f.cache = NewPresetCache(log, f.source)
	f.playlist = NewPresetPlaylist(log)
	f.bus.SubscribeAll(func(e domain.Event) {
		f.mu.Lock()
		f.events = append(f.events, e)
		f.mu.Unlock()
	})

	cfg := DefaultWorkerConfig()
	cfg.TargetFPS = 240
	cfg.PerfInterval = time.Hour
	cfg.Width, cfg.Height = 64, 36
	if mutate != nil {
		mutate(&cfg)
	}

	f.worker = NewVisualizationWorker(log, cfg, WorkerDeps{
		Renderer:  f.renderer,
		Cache:     f.cache,
		Quality:   NewQualityController(DefaultQualityConfig()),
		Bus:       f.bus,
		CPU:       f.cpu,
		Playlist:  f.playlist,
		Snapshots: f.snapshots,
	})
	t.Cleanup(func() {
		_ = f.worker.Stop()
		_ = f.bus.Close()
	})
	return f
}

// stop is deferred after the leak check so the worker goroutine is gone before it runs.
func (f *workerFixture) stop() {
	_ = f.worker.Stop()
}

func (f *workerFixture) eventsOfType(typ domain.EventType) []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, e := range f.events {
		if e.Type() == typ {
			out = append(out, e)
		}
	}
	return out
}

func (f *workerFixture) addPresets(paths ...string) {
	for _, p := range paths {
		f.source.set(p, t0)
	}
}

func (f *workerFixture) waitFrames(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.renderer.Frames() >= n }, waitFor, tick)
}

func TestVisualizationWorker_StartStopIdempotent(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, nil)
	defer f.stop()
	w := f.worker
	assert.Equal(t, WorkerStopped, w.State())
	assert.NoError(t, w.Stop(), "stop before start is a no-op")

	w.Start()
	w.Start()
	assert.Equal(t, WorkerRunning, w.State())
	f.waitFrames(t, 3)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.Equal(t, WorkerStopped, w.State())

	assert.Equal(t, 1, f.renderer.InitCalls())
	assert.Equal(t, 1, f.renderer.Shutdowns())
	assert.Len(t, f.eventsOfType(domain.EventWorkerStarted), 1)
	require.Len(t, f.eventsOfType(domain.EventWorkerStopped), 1)

	stopped := f.eventsOfType(domain.EventWorkerStopped)[0].(domain.WorkerStoppedEvent)
	assert.Equal(t, w.InstanceID(), stopped.InstanceID)
	assert.Equal(t, w.Stats().FramesRendered, stopped.FramesRendered)

	// Restart after a clean stop
	w.Start()
	f.waitFrames(t, int(stopped.FramesRendered)+1)
	require.NoError(t, w.Stop())
	assert.Equal(t, 2, f.renderer.InitCalls())
}

func TestVisualizationWorker_ConsumesLatestSnapshot(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, nil)
	defer f.stop()
	f.worker.Start()

	for i := 0; i < 20; i++ {
		f.snapshots.TryPush(domain.AnalysisSnapshot{
			SamplePosition:  uint64(i) * domain.WindowSize,
			ShortTimeEnergy: 1,
		})
	}
	require.Eventually(t, func() bool { return f.worker.Stats().SnapshotsConsumed == 20 }, waitFor, tick)

	frames := f.renderer.Frames()
	f.waitFrames(t, frames+2)
	in := f.renderer.LastInput()
	assert.True(t, in.HaveSnapshot)
	assert.Equal(t, uint64(19*domain.WindowSize), in.Snapshot.SamplePosition)

	for i := 20; i < 40; i++ {
		f.snapshots.TryPush(domain.AnalysisSnapshot{SamplePosition: uint64(i) * domain.WindowSize})
	}
	require.Eventually(t, func() bool { return f.worker.Stats().SnapshotsConsumed == 40 }, waitFor, tick)
}

func TestVisualizationWorker_AppliesParametersInOrder(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, nil)
	defer f.stop()
	w := f.worker

	require.True(t, w.PostParameterChange(domain.ParamBeatSensitivity, 0.5))
	require.True(t, w.PostParameterChange(domain.ParamBeatSensitivity, 1.5))
	require.True(t, w.PostParameterChange(domain.ParamTransitionDurationSeconds, 100))
	require.True(t, w.PostParameterChange(domain.ParamShuffle, 1))
	require.True(t, w.PostParameterChange(domain.ParamTransitionStyle, 2))
	w.Start()

	require.Eventually(t, func() bool { return w.Params().Shuffle }, waitFor, tick)
	p := w.Params()
	assert.Equal(t, float32(1.5), p.BeatSensitivity, "last change wins")
	assert.Equal(t, 30*time.Second, p.TransitionDuration, "clamped to range")
	assert.Equal(t, domain.TransitionZoom, p.TransitionStyle)

	f.waitFrames(t, f.renderer.Frames()+1)
	assert.Equal(t, float32(1.5), f.renderer.LastInput().Params.BeatSensitivity)
}

func TestVisualizationWorker_PostParameterChangeRejects(t *testing.T) {
	f := newWorkerFixture(t, nil)
	w := f.worker

	assert.False(t, w.PostParameterChange(domain.ParamID(99), 1))

	for i := 0; i < ParamChannelCapacity; i++ {
		require.True(t, w.PostParameterChange(domain.ParamBeatSensitivity, 1))
	}
	assert.False(t, w.PostParameterChange(domain.ParamBeatSensitivity, 1))
	assert.Equal(t, uint64(1), w.Stats().DroppedParams)
}

func TestVisualizationWorker_QualityOverrideParam(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, func(c *WorkerConfig) { c.PerfInterval = 10 * time.Millisecond })
	defer f.stop()
	w := f.worker
	require.True(t, w.PostParameterChange(domain.ParamQualityOverride, float32(domain.QualityLow)))
	w.Start()

	require.Eventually(t, func() bool {
		width, height := w.FrameSize()
		return width == 32 && height == 18
	}, waitFor, tick)
	assert.Equal(t, 0.5, w.Decision().Scale)

	changed := f.eventsOfType(domain.EventQualityChanged)
	require.NotEmpty(t, changed)
	ev := changed[0].(domain.QualityChangedEvent)
	assert.Equal(t, 1.0, ev.Previous)
	assert.Equal(t, 0.5, ev.Decision.Scale)
	assert.Equal(t, 32, ev.Width)

	require.Eventually(t, func() bool {
		return f.renderer.LastBounds().Dx() == 32
	}, waitFor, tick)

	require.NoError(t, w.Stop())
	assert.NotEmpty(t, f.eventsOfType(domain.EventDiagnostics))
}

func TestVisualizationWorker_PresetRequestsCoalesce(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, nil)
	defer f.stop()
	f.addPresets("/p/a.milk", "/p/b.milk", "/p/c.milk")
	w := f.worker

	require.True(t, w.PostLoadPreset("/p/a.milk"))
	require.True(t, w.PostLoadPreset("/p/b.milk"))
	require.True(t, w.PostLoadPreset("/p/c.milk"))
	w.Start()

	require.Eventually(t, func() bool { return w.CurrentPresetPath() == "/p/c.milk" }, waitFor, tick)
	assert.Equal(t, []string{"/p/c.milk"}, f.renderer.Loaded())

	_, ok := f.cache.Lookup("/p/a.milk")
	assert.False(t, ok, "superseded requests are never resolved")
	meta, ok := f.cache.Lookup("/p/c.milk")
	require.True(t, ok)
	assert.Equal(t, 1, meta.RefCount)

	p := w.Params()
	assert.Equal(t, "c", p.PresetName)
	assert.Equal(t, PaletteIndex("c"), p.PaletteIndex)

	// Re-requesting the active preset is skipped
	require.True(t, w.PostLoadPreset("/p/c.milk"))
	f.waitFrames(t, f.renderer.Frames()+3)
	assert.Len(t, f.renderer.Loaded(), 1)

	require.NoError(t, w.Stop())
	_, ok = f.cache.Lookup("/p/c.milk")
	assert.False(t, ok, "stop releases the active preset")
	assert.Len(t, f.eventsOfType(domain.EventPresetLoaded), 1)
}

func TestVisualizationWorker_SwitchReleasesPrevious(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, nil)
	defer f.stop()
	f.addPresets("/p/a.milk", "/p/b.milk")
	w := f.worker
	w.Start()

	w.PostLoadPreset("/p/a.milk")
	require.Eventually(t, func() bool { return w.CurrentPresetPath() == "/p/a.milk" }, waitFor, tick)

	w.PostLoadPreset("/p/b.milk")
	require.Eventually(t, func() bool { return w.CurrentPresetPath() == "/p/b.milk" }, waitFor, tick)

	_, ok := f.cache.Lookup("/p/a.milk")
	assert.False(t, ok)
	assert.Equal(t, 1, f.cache.Len())
}

func TestVisualizationWorker_BadPresetKeepsPrevious(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, nil)
	defer f.stop()
	f.addPresets("/p/good.milk", "/p/broken.milk")
	f.renderer.SetFailPath("/p/broken.milk", true)
	w := f.worker
	w.Start()

	w.PostLoadPreset("/p/good.milk")
	require.Eventually(t, func() bool { return w.CurrentPresetPath() == "/p/good.milk" }, waitFor, tick)

	// Renderer rejects the preset
	w.PostLoadPreset("/p/broken.milk")
	require.Eventually(t, func() bool { return len(f.eventsOfType(domain.EventPresetLoadFailed)) == 1 }, waitFor, tick)
	assert.Equal(t, "/p/good.milk", w.CurrentPresetPath())
	_, ok := f.cache.Lookup("/p/broken.milk")
	assert.False(t, ok, "reference taken for the failed preset is released")

	// Source cannot be read
	w.PostLoadPreset("/p/missing.milk")
	require.Eventually(t, func() bool { return len(f.eventsOfType(domain.EventPresetLoadFailed)) == 2 }, waitFor, tick)
	failed := f.eventsOfType(domain.EventPresetLoadFailed)[1].(domain.PresetLoadFailedEvent)
	assert.Equal(t, "/p/missing.milk", failed.Path)
	assert.ErrorIs(t, failed.Error, domain.ErrInvalidPresetSource)

	assert.Equal(t, "/p/good.milk", w.CurrentPresetPath())
	frames := f.renderer.Frames()
	f.waitFrames(t, frames+2)
}

func TestVisualizationWorker_SharedCacheAcrossWorkers(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, nil)
	defer f.stop()
	f.addPresets("/p/shared.milk")

	second := NewVisualizationWorker(logger.NewTestLogger(), DefaultWorkerConfig(), WorkerDeps{
		Renderer:  mock.NewRenderer(),
		Cache:     f.cache,
		Snapshots: queue.MustNew[domain.AnalysisSnapshot](4),
	})
	assert.NotEqual(t, f.worker.InstanceID(), second.InstanceID())

	f.worker.PostLoadPreset("/p/shared.milk")
	second.PostLoadPreset("/p/shared.milk")
	f.worker.Start()
	second.Start()

	require.Eventually(t, func() bool {
		meta, ok := f.cache.Lookup("/p/shared.milk")
		return ok && meta.RefCount == 2
	}, waitFor, tick)

	require.NoError(t, second.Stop())
	meta, ok := f.cache.Lookup("/p/shared.milk")
	require.True(t, ok)
	assert.Equal(t, 1, meta.RefCount)

	require.NoError(t, f.worker.Stop())
	_, ok = f.cache.Lookup("/p/shared.milk")
	assert.False(t, ok)
}

func TestVisualizationWorker_PresetIndexFollowsPlaylist(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, nil)
	defer f.stop()
	paths := []string{"/p/a.milk", "/p/b.milk", "/p/c.milk"}
	f.addPresets(paths...)
	f.playlist.SetPaths(paths)
	w := f.worker
	w.Start()

	w.PostParameterChange(domain.ParamPresetIndex, 2)
	require.Eventually(t, func() bool { return w.CurrentPresetPath() == "/p/c.milk" }, waitFor, tick)
	assert.Equal(t, 2, w.Params().PresetIndex)

	// Locked: index changes do not switch presets
	w.PostParameterChange(domain.ParamLockCurrentPreset, 1)
	w.PostParameterChange(domain.ParamPresetIndex, 0)
	require.Eventually(t, func() bool { return w.Params().PresetIndex == 0 }, waitFor, tick)
	f.waitFrames(t, f.renderer.Frames()+3)
	assert.Equal(t, "/p/c.milk", w.CurrentPresetPath())

	// Explicit loads ignore the lock
	w.PostLoadPreset("/p/b.milk")
	require.Eventually(t, func() bool { return w.CurrentPresetPath() == "/p/b.milk" }, waitFor, tick)
	assert.Equal(t, 1, w.Params().PresetIndex)
}

func TestVisualizationWorker_DwellAdvancesPlaylist(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, func(c *WorkerConfig) { c.PresetDwell = 15 * time.Millisecond })
	defer f.stop()
	paths := []string{"/p/a.milk", "/p/b.milk", "/p/c.milk"}
	f.addPresets(paths...)
	f.playlist.SetPaths(paths)
	w := f.worker

	w.PostLoadPreset("/p/a.milk")
	w.Start()

	require.Eventually(t, func() bool { return len(f.renderer.Loaded()) >= 3 }, waitFor, tick)
	assert.Equal(t, paths, f.renderer.Loaded()[:3])

	// Locking stops the rotation
	w.PostParameterChange(domain.ParamLockCurrentPreset, 1)
	require.Eventually(t, func() bool { return w.Params().LockCurrentPreset }, waitFor, tick)
	n := len(f.renderer.Loaded())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, len(f.renderer.Loaded()))
}

func TestVisualizationWorker_PCMWindow(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, nil)
	defer f.stop()
	w := f.worker
	assert.Empty(t, w.LatestPCMWindow(16))

	left := []float32{0, 2, 4, 6, 8, 10, 12, 14}
	right := []float32{0, 0, 0, 0, 0, 0, 0, 0}
	w.PostAudioBlock([][]float32{left, right}, len(left), 48000)
	assert.Equal(t, 48000, w.SampleRate())

	w.Start()
	require.Eventually(t, func() bool { return len(w.LatestPCMWindow(100)) == 8 }, waitFor, tick)
	assert.Equal(t, []float32{5, 6, 7}, w.LatestPCMWindow(3))

	f.waitFrames(t, f.renderer.Frames()+2)
	pcm := f.renderer.LastInput().PCM
	require.Len(t, pcm, domain.WindowSize)
	assert.Equal(t, float32(7), pcm[len(pcm)-1])
	assert.Equal(t, float32(0), pcm[0], "zero padded before the first sample")
}

func TestVisualizationWorker_PostAudioBlockDropsWhenFull(t *testing.T) {
	f := newWorkerFixture(t, nil)
	w := f.worker

	block := make([]float32, PCMChannelCapacity+10)
	w.PostAudioBlock([][]float32{block}, len(block), 44100)
	assert.Equal(t, uint64(10), w.Stats().DroppedPCM)

	// Empty and mismatched input is ignored
	w.PostAudioBlock(nil, 10, 44100)
	w.PostAudioBlock([][]float32{{1}}, 0, 44100)
	assert.Equal(t, uint64(10), w.Stats().DroppedPCM)
}

func TestVisualizationWorker_FrameSnapshotIsCopy(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, nil)
	defer f.stop()
	w := f.worker
	assert.Nil(t, w.FrameSnapshot())

	w.Start()
	f.waitFrames(t, 2)

	img := w.FrameSnapshot()
	require.NotNil(t, img)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 36, img.Bounds().Dy())

	img.Pix[0] = 42
	other := w.FrameSnapshot()
	require.NotNil(t, other)
	assert.NotSame(t, &img.Pix[0], &other.Pix[0])
}

func TestVisualizationWorker_StopTimeout(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, func(c *WorkerConfig) { c.StopTimeout = 5 * time.Millisecond })
	defer f.stop()
	f.renderer.SetRenderDelay(150 * time.Millisecond)
	w := f.worker
	w.Start()
	// Frames are counted when rendering begins, so this lands early in the second slow frame
	f.waitFrames(t, 2)

	err := w.Stop()
	assert.ErrorIs(t, err, domain.ErrThreadJoinTimeout)
	assert.Equal(t, WorkerStopping, w.State())

	// Start is ignored while the old loop is still exiting
	w.Start()

	require.Eventually(t, func() bool { return w.Stop() == nil }, waitFor, 20*time.Millisecond)
	assert.Equal(t, WorkerStopped, w.State())
	assert.Equal(t, 1, f.renderer.InitCalls())
}

func TestVisualizationWorker_InitializeFailure(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newWorkerFixture(t, nil)
	defer f.stop()
	f.renderer.SetFailInitialize(true)
	w := f.worker
	w.Start()

	require.Eventually(t, func() bool { return w.State() == WorkerStopped }, waitFor, tick)
	assert.NoError(t, w.Stop())
	assert.Equal(t, 0, f.renderer.Frames())
	assert.Empty(t, f.eventsOfType(domain.EventWorkerStarted))
}

func TestVisualizationWorker_TargetFPS(t *testing.T) {
	f := newWorkerFixture(t, nil)
	w := f.worker

	w.SetTargetFPS(1000)
	assert.Equal(t, 240.0, w.TargetFPS())
	w.SetTargetFPS(0)
	assert.Equal(t, 1.0, w.TargetFPS())
	w.SetTargetFPS(30)
	assert.Equal(t, 30.0, w.TargetFPS())
}

func TestNextFrameDue(t *testing.T) {
	period := 10 * time.Millisecond
	base := time.Unix(1000, 0)

	// On time: advance by one period
	assert.Equal(t, base.Add(period), nextFrameDue(base, base, period))

	// Slightly behind: keep stepping so the schedule catches up without drift
	now := base.Add(30 * time.Millisecond)
	assert.Equal(t, base.Add(period), nextFrameDue(base, now, period))

	// Exactly five periods behind the advanced schedule still steps
	now = base.Add(period + 5*period)
	assert.Equal(t, base.Add(period), nextFrameDue(base, now, period))

	// More than five periods behind: resync to now + period
	now = base.Add(period + 5*period + time.Millisecond)
	assert.Equal(t, now.Add(period), nextFrameDue(base, now, period))
}

func TestScaledSize(t *testing.T) {
	w, h := scaledSize(640, 360, 0.5)
	assert.Equal(t, 320, w)
	assert.Equal(t, 180, h)

	w, h = scaledSize(640, 360, 0.75)
	assert.Equal(t, 480, w)
	assert.Equal(t, 270, h)

	w, h = scaledSize(1, 1, 0.5)
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
}

func TestWorkerStateString(t *testing.T) {
	assert.Equal(t, "stopped", WorkerStopped.String())
	assert.Equal(t, "running", WorkerRunning.String())
	assert.Equal(t, "stopping", WorkerStopping.String())
	assert.Equal(t, "unknown", WorkerState(9).String())
}
