package service

import (
	"image"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
	"github.com/tejashwikalptaru/beatviz/internal/queue"
	"golang.org/x/image/draw"
)

// Channel capacities owned by the worker.
const (
	ParamChannelCapacity  = 256
	PresetChannelCapacity = 16
	PCMChannelCapacity    = 16384

	pcmHistorySize = 8192
	pcmRenderSize  = domain.WindowSize

	emaAlpha       = 0.1
	backlogPeriods = 5
	resizeEpsilon  = 0.01
)

// WorkerState is the lifecycle state of a VisualizationWorker.
type WorkerState int32

const (
	WorkerStopped WorkerState = iota
	WorkerRunning
	WorkerStopping
)

// String returns a human-readable representation of the state.
func (s WorkerState) String() string {
	switch s {
	case WorkerStopped:
		return "stopped"
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// WorkerConfig configures a VisualizationWorker.
type WorkerConfig struct {
	// Width and Height are the frame size at scale 1.0
	Width  int
	Height int

	TargetFPS    float64
	PerfInterval time.Duration
	IdleSleep    time.Duration
	StopTimeout  time.Duration

	// PresetDwell advances to the next playlist entry after this long. Zero disables it.
	PresetDwell time.Duration
}

// DefaultWorkerConfig returns a 640x360 worker targeting 60 FPS.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Width:        640,
		Height:       360,
		TargetFPS:    60,
		PerfInterval: 2 * time.Second,
		IdleSleep:    time.Millisecond,
		StopTimeout:  2 * time.Second,
	}
}

// WorkerDeps are the collaborators a worker needs. Renderer, Cache and Snapshots are
// required; the rest may be nil.
type WorkerDeps struct {
	Renderer  ports.Renderer
	Cache     *PresetCache
	Quality   *QualityController
	Bus       ports.EventBus
	CPU       ports.CPUSampler
	Playlist  *PresetPlaylist
	Snapshots *queue.SPSC[domain.AnalysisSnapshot]
}

// WorkerStats are cumulative counters since construction.
type WorkerStats struct {
	SnapshotsConsumed uint64
	FramesRendered    uint64
	DroppedParams     uint64
	DroppedPresets    uint64
	DroppedPCM        uint64
}

// VisualizationWorker renders frames on its own goroutine at a target rate, driven by
// the latest analysis snapshot, live parameters and recent PCM.
//
// Post* methods, FrameSnapshot and LatestPCMWindow never block. PostAudioBlock is meant
// for the audio callback and must be called from one goroutine. Stop is the only
// blocking call.
type VisualizationWorker struct {
	logger *slog.Logger
	id     string
	cfg    WorkerConfig

	renderer  ports.Renderer
	cache     *PresetCache
	quality   *QualityController
	bus       ports.EventBus
	cpu       ports.CPUSampler
	playlist  *PresetPlaylist
	snapshots *queue.SPSC[domain.AnalysisSnapshot]

	params  *queue.SPSC[domain.ParameterChange]
	presets *queue.SPSC[domain.PresetLoadRequest]
	pcm     *queue.SPSC[float32]

	// producer side of params/presets may be used from any goroutine
	postMu  sync.Mutex
	nextSeq uint64

	lifeMu sync.Mutex
	state  atomic.Int32
	done   chan struct{}

	targetFPS  atomic.Uint64 // float64 bits
	sampleRate atomic.Int64

	frameMu sync.Mutex
	front   *image.RGBA

	pcmMu     sync.Mutex
	pcmHist   []float32
	pcmPos    int
	pcmFilled int

	stateMu    sync.RWMutex
	live       domain.RenderParams
	perf       domain.PerformanceSample
	decision   domain.QualityDecision
	activePath string

	snapshotsConsumed atomic.Uint64
	framesRendered    atomic.Uint64
	droppedParams     atomic.Uint64
	droppedPresets    atomic.Uint64
	droppedPCM        atomic.Uint64
}

// NewVisualizationWorker creates a stopped worker.
func NewVisualizationWorker(logger *slog.Logger, cfg WorkerConfig, deps WorkerDeps) *VisualizationWorker {
	def := DefaultWorkerConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.PerfInterval <= 0 {
		cfg.PerfInterval = def.PerfInterval
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = def.IdleSleep
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.TargetFPS == 0 {
		cfg.TargetFPS = def.TargetFPS
	}
	if deps.Quality == nil {
		deps.Quality = NewQualityController(DefaultQualityConfig())
	}

	id := xid.New().String()
	w := &VisualizationWorker{
		logger:    logger.With(slog.String("component", "visualization_worker"), slog.String("instance", id)),
		id:        id,
		cfg:       cfg,
		renderer:  deps.Renderer,
		cache:     deps.Cache,
		quality:   deps.Quality,
		bus:       deps.Bus,
		cpu:       deps.CPU,
		playlist:  deps.Playlist,
		snapshots: deps.Snapshots,
		params:    queue.MustNew[domain.ParameterChange](ParamChannelCapacity),
		presets:   queue.MustNew[domain.PresetLoadRequest](PresetChannelCapacity),
		pcm:       queue.MustNew[float32](PCMChannelCapacity),
		pcmHist:   make([]float32, pcmHistorySize),
		live:      domain.DefaultRenderParams(),
		decision:  deps.Quality.Current(),
	}
	w.SetTargetFPS(cfg.TargetFPS)
	w.live.QualityOverride = deps.Quality.Mode()

	w.logger.Debug("visualization worker created",
		slog.Int("width", cfg.Width),
		slog.Int("height", cfg.Height),
		slog.Float64("target_fps", w.TargetFPS()))
	return w
}

// InstanceID returns the worker's unique ID.
func (w *VisualizationWorker) InstanceID() string {
	return w.id
}

// State returns the lifecycle state.
func (w *VisualizationWorker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Start launches the render goroutine. Calling Start on a running worker does nothing.
func (w *VisualizationWorker) Start() {
	w.lifeMu.Lock()
	defer w.lifeMu.Unlock()

	if !w.state.CompareAndSwap(int32(WorkerStopped), int32(WorkerRunning)) {
		return
	}
	w.done = make(chan struct{})
	go w.run(w.done)
}

// Stop asks the render goroutine to exit and waits up to StopTimeout for it.
// Calling Stop on a stopped worker returns nil. On timeout it returns
// domain.ErrThreadJoinTimeout and a later Stop waits again.
func (w *VisualizationWorker) Stop() error {
	w.lifeMu.Lock()
	defer w.lifeMu.Unlock()

	if w.done == nil {
		return nil
	}
	w.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerStopping))

	timer := time.NewTimer(w.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-w.done:
		w.done = nil
		return nil
	case <-timer.C:
		w.logger.Error("worker did not stop in time", slog.Duration("timeout", w.cfg.StopTimeout))
		return domain.ErrThreadJoinTimeout
	}
}

// SetTargetFPS sets the render rate, clamped to [1, 240].
func (w *VisualizationWorker) SetTargetFPS(fps float64) {
	fps = clampFloat(fps, 1, 240)
	w.targetFPS.Store(math.Float64bits(fps))
	w.quality.SetTargetFPS(fps)
}

// TargetFPS returns the render rate.
func (w *VisualizationWorker) TargetFPS() float64 {
	return math.Float64frombits(w.targetFPS.Load())
}

// PostParameterChange queues a parameter update. Returns false when the id is unknown or
// the channel is full.
func (w *VisualizationWorker) PostParameterChange(id domain.ParamID, value float32) bool {
	if !id.Valid() {
		return false
	}

	w.postMu.Lock()
	defer w.postMu.Unlock()

	change := domain.ParameterChange{ID: id, Value: value, Sequence: w.nextSeq}
	if !w.params.TryPush(change) {
		w.droppedParams.Add(1)
		return false
	}
	w.nextSeq++
	return true
}

// PostLoadPreset queues a preset switch. Only the latest pending request is applied.
// Explicit requests are honoured even when the current preset is locked.
func (w *VisualizationWorker) PostLoadPreset(path string) bool {
	w.postMu.Lock()
	defer w.postMu.Unlock()

	if !w.presets.TryPush(domain.PresetLoadRequest{Path: path}) {
		w.droppedPresets.Add(1)
		return false
	}
	return true
}

// PostAudioBlock feeds a mono downmix of the block into the PCM channel.
// Samples that do not fit are dropped. Safe to call from the audio callback.
func (w *VisualizationWorker) PostAudioBlock(channels [][]float32, frames, sampleRate int) {
	nch := len(channels)
	if nch == 0 || frames <= 0 {
		return
	}
	if nch > 2 {
		nch = 2
	}
	for c := 0; c < nch; c++ {
		if len(channels[c]) < frames {
			frames = len(channels[c])
		}
	}
	if sampleRate > 0 {
		w.sampleRate.Store(int64(sampleRate))
	}

	for i := 0; i < frames; i++ {
		s := channels[0][i]
		if nch == 2 {
			s = 0.5 * (s + channels[1][i])
		}
		if !w.pcm.TryPush(s) {
			w.droppedPCM.Add(uint64(frames - i))
			return
		}
	}
}

// FrameSnapshot returns a copy of the most recent frame, or nil before the first frame.
func (w *VisualizationWorker) FrameSnapshot() *image.RGBA {
	w.frameMu.Lock()
	defer w.frameMu.Unlock()

	if w.front == nil {
		return nil
	}
	img := image.NewRGBA(w.front.Rect)
	copy(img.Pix, w.front.Pix)
	return img
}

// FrameSize returns the size of the current output frame.
func (w *VisualizationWorker) FrameSize() (int, int) {
	w.frameMu.Lock()
	defer w.frameMu.Unlock()

	if w.front == nil {
		return 0, 0
	}
	b := w.front.Bounds()
	return b.Dx(), b.Dy()
}

// LatestPCMWindow returns up to n of the newest mono samples, oldest first.
func (w *VisualizationWorker) LatestPCMWindow(n int) []float32 {
	w.pcmMu.Lock()
	defer w.pcmMu.Unlock()

	if n > w.pcmFilled {
		n = w.pcmFilled
	}
	if n <= 0 {
		return []float32{}
	}
	out := make([]float32, n)
	w.copyPCMLocked(out)
	return out
}

// SampleRate returns the rate of the last audio block, or 0.
func (w *VisualizationWorker) SampleRate() int {
	return int(w.sampleRate.Load())
}

// Params returns a copy of the live render parameters.
func (w *VisualizationWorker) Params() domain.RenderParams {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.live
}

// Performance returns the latest timing figures.
func (w *VisualizationWorker) Performance() domain.PerformanceSample {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.perf
}

// Decision returns the latest quality decision.
func (w *VisualizationWorker) Decision() domain.QualityDecision {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.decision
}

// CurrentPresetPath returns the path of the active preset, or "".
func (w *VisualizationWorker) CurrentPresetPath() string {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.activePath
}

// Stats returns cumulative counters.
func (w *VisualizationWorker) Stats() WorkerStats {
	return WorkerStats{
		SnapshotsConsumed: w.snapshotsConsumed.Load(),
		FramesRendered:    w.framesRendered.Load(),
		DroppedParams:     w.droppedParams.Load(),
		DroppedPresets:    w.droppedPresets.Load(),
		DroppedPCM:        w.droppedPCM.Load(),
	}
}

// loopState is owned by the render goroutine.
type loopState struct {
	params domain.RenderParams

	latest     domain.AnalysisSnapshot
	haveLatest bool

	pendingPreset string
	lastApplied   string
	activePreset  string
	presetSince   time.Time

	started   time.Time
	nextDue   time.Time
	lastFrame time.Time
	nextPerf  time.Time

	back     *image.RGBA
	scale    float64
	pcmFrame []float32

	frameTimeEMA float64 // seconds
	fpsEMA       float64
	perf         domain.PerformanceSample
}

func (w *VisualizationWorker) run(done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)
	defer w.state.Store(int32(WorkerStopped))

	now := time.Now()
	w.stateMu.RLock()
	params := w.live
	w.stateMu.RUnlock()

	ls := &loopState{
		params:      params,
		started:     now,
		nextDue:     now,
		nextPerf:    now.Add(w.cfg.PerfInterval),
		presetSince: now,
		scale:       w.quality.CurrentScale(),
		pcmFrame:    make([]float32, pcmRenderSize),
	}
	width, height := scaledSize(w.cfg.Width, w.cfg.Height, ls.scale)

	if err := w.renderer.Initialize(width, height); err != nil {
		w.logger.Error("renderer initialization failed",
			slog.String("renderer", w.renderer.Name()),
			slog.Any("error", err))
		return
	}
	ls.back = image.NewRGBA(image.Rect(0, 0, width, height))
	w.frameMu.Lock()
	w.front = image.NewRGBA(image.Rect(0, 0, width, height))
	w.frameMu.Unlock()
	if w.cpu != nil {
		w.cpu.Sample()
	}

	w.logger.Info("visualization worker started",
		slog.String("renderer", w.renderer.Name()),
		slog.Int("width", width),
		slog.Int("height", height))
	w.publish(domain.NewWorkerStartedEvent(w.id, width, height))

	for WorkerState(w.state.Load()) == WorkerRunning {
		w.iterate(ls, time.Now())
		time.Sleep(w.cfg.IdleSleep)
	}

	w.shutdown(ls)
}

// iterate runs one pass of the loop body.
func (w *VisualizationWorker) iterate(ls *loopState, now time.Time) {
	w.drainSnapshots(ls)
	w.drainPCM()
	w.applyParameters(ls)
	w.advancePlaylist(ls, now)
	w.applyPresetRequests(ls, now)

	period := framePeriod(w.TargetFPS())
	if !now.Before(ls.nextDue) {
		w.renderFrame(ls, now)
		ls.nextDue = nextFrameDue(ls.nextDue, now, period)
	}

	if !now.Before(ls.nextPerf) {
		w.evaluatePerformance(ls)
		ls.nextPerf = now.Add(w.cfg.PerfInterval)
	}
}

func (w *VisualizationWorker) drainSnapshots(ls *loopState) {
	if w.snapshots == nil {
		return
	}
	var s domain.AnalysisSnapshot
	for w.snapshots.TryPop(&s) {
		ls.latest = s
		ls.haveLatest = true
		w.snapshotsConsumed.Add(1)
	}
}

func (w *VisualizationWorker) drainPCM() {
	if w.pcm.NumAvailable() == 0 {
		return
	}
	w.pcmMu.Lock()
	defer w.pcmMu.Unlock()

	var s float32
	for w.pcm.TryPop(&s) {
		w.pcmHist[w.pcmPos] = s
		w.pcmPos = (w.pcmPos + 1) % len(w.pcmHist)
		if w.pcmFilled < len(w.pcmHist) {
			w.pcmFilled++
		}
	}
}

// copyPCMLocked fills dst with the newest len(dst) samples, oldest first, zero-padding
// at the front when fewer are available. Caller holds pcmMu.
func (w *VisualizationWorker) copyPCMLocked(dst []float32) {
	n := len(dst)
	avail := min(n, w.pcmFilled)
	pad := n - avail
	clear(dst[:pad])

	start := (w.pcmPos - avail + len(w.pcmHist)) % len(w.pcmHist)
	for i := 0; i < avail; i++ {
		dst[pad+i] = w.pcmHist[(start+i)%len(w.pcmHist)]
	}
}

func (w *VisualizationWorker) applyParameters(ls *loopState) {
	var c domain.ParameterChange
	applied := false
	for w.params.TryPop(&c) {
		w.applyParameter(ls, c)
		applied = true
	}
	if applied {
		w.stateMu.Lock()
		w.live = ls.params
		w.stateMu.Unlock()
	}
}

func (w *VisualizationWorker) applyParameter(ls *loopState, c domain.ParameterChange) {
	v := c.ID.Clamp(c.Value)
	p := &ls.params

	switch c.ID {
	case domain.ParamBeatSensitivity:
		p.BeatSensitivity = v
	case domain.ParamTransitionDurationSeconds:
		p.TransitionDuration = time.Duration(float64(v) * float64(time.Second))
	case domain.ParamShuffle:
		p.Shuffle = v >= 0.5
	case domain.ParamLockCurrentPreset:
		p.LockCurrentPreset = v >= 0.5
	case domain.ParamPresetIndex:
		p.PresetIndex = int(v)
		if !p.LockCurrentPreset && w.playlist != nil {
			if path, ok := w.playlist.PathAt(p.PresetIndex); ok {
				ls.pendingPreset = path
			}
		}
	case domain.ParamTransitionStyle:
		p.TransitionStyle = domain.TransitionStyle(int(v))
	case domain.ParamQualityOverride:
		p.QualityOverride = domain.QualityMode(int(v))
		w.quality.SetMode(p.QualityOverride)
	}

	w.logger.Debug("parameter applied",
		slog.String("param", c.ID.String()),
		slog.Float64("value", float64(v)),
		slog.Uint64("sequence", c.Sequence))
}

func (w *VisualizationWorker) advancePlaylist(ls *loopState, now time.Time) {
	if w.cfg.PresetDwell <= 0 || w.playlist == nil || ls.params.LockCurrentPreset {
		return
	}
	if now.Sub(ls.presetSince) < w.cfg.PresetDwell {
		return
	}
	ls.presetSince = now

	next := w.playlist.Next(w.playlist.IndexOf(ls.activePreset), ls.params.Shuffle)
	if path, ok := w.playlist.PathAt(next); ok {
		ls.pendingPreset = path
	}
}

func (w *VisualizationWorker) applyPresetRequests(ls *loopState, now time.Time) {
	path := ls.pendingPreset
	ls.pendingPreset = ""

	var req domain.PresetLoadRequest
	for w.presets.TryPop(&req) {
		path = req.Path
	}
	if path == "" || path == ls.lastApplied {
		return
	}
	w.loadPreset(ls, path, now)
}

func (w *VisualizationWorker) loadPreset(ls *loopState, path string, now time.Time) {
	meta, err := w.cache.AddRef(path)
	if err != nil {
		w.presetFailed(path, err)
		return
	}
	if err := w.renderer.LoadResource(path); err != nil {
		w.cache.Release(path)
		w.presetFailed(path, err)
		return
	}

	if ls.activePreset != "" {
		w.cache.Release(ls.activePreset)
	}
	ls.activePreset = path
	ls.lastApplied = path
	ls.presetSince = now

	ls.params.PresetPath = path
	ls.params.PresetName = meta.Name
	ls.params.PaletteIndex = meta.PaletteIndex
	if w.playlist != nil {
		if i := w.playlist.IndexOf(path); i >= 0 {
			ls.params.PresetIndex = i
		}
	}

	w.stateMu.Lock()
	w.live = ls.params
	w.activePath = path
	w.stateMu.Unlock()

	w.logger.Info("preset loaded",
		slog.String("path", path),
		slog.String("name", meta.Name),
		slog.Int("palette", meta.PaletteIndex),
		slog.Int("refcount", meta.RefCount))
	w.publish(domain.NewPresetLoadedEvent(w.id, path, meta))
}

func (w *VisualizationWorker) presetFailed(path string, err error) {
	w.logger.Warn("preset load failed, keeping current preset",
		slog.String("path", path),
		slog.Any("error", err))
	w.publish(domain.NewPresetLoadFailedEvent(w.id, path, err))
}

func (w *VisualizationWorker) renderFrame(ls *loopState, now time.Time) {
	w.pcmMu.Lock()
	w.copyPCMLocked(ls.pcmFrame)
	w.pcmMu.Unlock()

	in := domain.RenderInput{
		Snapshot:     ls.latest,
		HaveSnapshot: ls.haveLatest,
		Params:       ls.params,
		PCM:          ls.pcmFrame,
		Elapsed:      now.Sub(ls.started),
		Decision:     w.Decision(),
	}

	start := time.Now()
	if err := w.renderer.RenderFrame(ls.back, in); err != nil {
		w.logger.Warn("render failed", slog.Any("error", err))
		return
	}
	frameTime := time.Since(start)

	w.frameMu.Lock()
	w.front, ls.back = ls.back, w.front
	w.frameMu.Unlock()
	w.framesRendered.Add(1)

	ls.frameTimeEMA = ema(ls.frameTimeEMA, frameTime.Seconds())
	ls.perf.FrameTime = frameTime
	ls.perf.FrameTimeEMA = time.Duration(ls.frameTimeEMA * float64(time.Second))

	if !ls.lastFrame.IsZero() {
		if interval := now.Sub(ls.lastFrame); interval > 0 {
			fps := 1 / interval.Seconds()
			ls.fpsEMA = ema(ls.fpsEMA, fps)
			ls.perf.FPS = fps
			ls.perf.FPSEMA = ls.fpsEMA
		}
	}
	ls.lastFrame = now

	w.stateMu.Lock()
	cpu := w.perf.CPUPercent
	w.perf = ls.perf
	w.perf.CPUPercent = cpu
	w.stateMu.Unlock()
}

func (w *VisualizationWorker) evaluatePerformance(ls *loopState) {
	if w.cpu != nil {
		ls.perf.CPUPercent = w.cpu.Sample()
	}
	decision := w.quality.Evaluate(ls.perf)

	w.stateMu.Lock()
	w.perf = ls.perf
	w.decision = decision
	w.stateMu.Unlock()

	hitRate := 0.0
	if w.cache != nil {
		hitRate = w.cache.HitRate()
	}
	w.logger.Info("worker diagnostics",
		slog.Float64("fps", round2(ls.perf.FPSEMA)),
		slog.Float64("frame_ms", round2(ls.frameTimeEMA*1000)),
		slog.Float64("cpu_pct", round2(ls.perf.CPUPercent)),
		slog.Float64("cache_hit_rate", round2(hitRate)),
		slog.Float64("scale", decision.Scale),
		slog.String("reason", decision.Reason))
	if w.bus != nil && w.bus.HasSubscribers(domain.EventDiagnostics) {
		w.bus.Publish(domain.NewDiagnosticsEvent(w.id, ls.perf, hitRate, decision))
	}

	if math.Abs(decision.Scale-ls.scale) > resizeEpsilon {
		previous := ls.scale
		width, height := w.resize(ls, decision.Scale)
		w.logger.Info("render scale changed",
			slog.Float64("from", previous),
			slog.Float64("to", decision.Scale),
			slog.Int("width", width),
			slog.Int("height", height))
		w.publish(domain.NewQualityChangedEvent(w.id, previous, decision, width, height))
	}
}

// resize swaps in buffers for the new scale. The last frame is rescaled into the new
// front buffer so readers never see an empty image.
func (w *VisualizationWorker) resize(ls *loopState, scale float64) (int, int) {
	width, height := scaledSize(w.cfg.Width, w.cfg.Height, scale)
	rect := image.Rect(0, 0, width, height)

	front := image.NewRGBA(rect)
	w.frameMu.Lock()
	if w.front != nil {
		draw.ApproxBiLinear.Scale(front, rect, w.front, w.front.Bounds(), draw.Src, nil)
	}
	w.front = front
	w.frameMu.Unlock()

	ls.back = image.NewRGBA(rect)
	ls.scale = scale
	return width, height
}

func (w *VisualizationWorker) shutdown(ls *loopState) {
	if ls.activePreset != "" {
		w.cache.Release(ls.activePreset)
		ls.activePreset = ""
	}
	w.stateMu.Lock()
	w.activePath = ""
	w.stateMu.Unlock()

	if err := w.renderer.Shutdown(); err != nil {
		w.logger.Warn("renderer shutdown failed", slog.Any("error", err))
	}

	frames := w.framesRendered.Load()
	w.logger.Info("visualization worker stopped", slog.Uint64("frames", frames))
	w.publish(domain.NewWorkerStoppedEvent(w.id, frames))
}

func (w *VisualizationWorker) publish(event domain.Event) {
	if w.bus != nil {
		w.bus.Publish(event)
	}
}

// nextFrameDue advances the schedule by one period. When the schedule has fallen more
// than backlogPeriods behind now, it restarts one period from now instead of bursting.
func nextFrameDue(due, now time.Time, period time.Duration) time.Time {
	due = due.Add(period)
	if now.Sub(due) > backlogPeriods*period {
		return now.Add(period)
	}
	return due
}

func framePeriod(fps float64) time.Duration {
	return time.Duration(float64(time.Second) / clampFloat(fps, 1, 240))
}

func scaledSize(width, height int, scale float64) (int, int) {
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	return max(w, 1), max(h, 1)
}

func ema(prev, x float64) float64 {
	if prev == 0 {
		return x
	}
	return emaAlpha*x + (1-emaAlpha)*prev
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
