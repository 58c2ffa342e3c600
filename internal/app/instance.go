package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/beatviz/internal/adapter/cpu"
	"github.com/tejashwikalptaru/beatviz/internal/adapter/renderer/raster"
	"github.com/tejashwikalptaru/beatviz/internal/adapter/renderer/script"
	"github.com/tejashwikalptaru/beatviz/internal/analysis"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
	"github.com/tejashwikalptaru/beatviz/internal/queue"
	"github.com/tejashwikalptaru/beatviz/internal/service"
)

// SnapshotCapacity is the number of analysis snapshots buffered between the audio
// callback and the worker.
const SnapshotCapacity = 64

type rendererFactory func(logger *slog.Logger, cfg Config) ports.Renderer

var rendererFactories = map[string]rendererFactory{
	"raster": func(logger *slog.Logger, _ Config) ports.Renderer {
		return raster.NewRenderer(logger)
	},
	"script": func(logger *slog.Logger, cfg Config) ports.Renderer {
		return script.NewRenderer(logger, cfg.ScriptBudget)
	},
}

// Instance is one visualization pipeline: an analysis producer fed by the audio
// callback, a render worker and a message bridge for host parameter changes.
type Instance struct {
	logger *slog.Logger
	app    *Application

	producer *analysis.Producer
	worker   *service.VisualizationWorker
	bridge   *service.MessageBridge
	renderer ports.Renderer
	listener service.ListenerID

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newInstance(a *Application, index int) (*Instance, error) {
	cfg := a.config
	mode, err := domain.ParseQualityMode(cfg.Quality)
	if err != nil {
		return nil, err
	}

	snapshots, err := queue.New[domain.AnalysisSnapshot](SnapshotCapacity)
	if err != nil {
		return nil, err
	}

	quality := service.NewQualityController(service.DefaultQualityConfig())
	quality.SetTargetFPS(cfg.TargetFPS)

	inst := &Instance{
		app:      a,
		producer: analysis.NewProducer(snapshots),
	}

	workerCfg := service.DefaultWorkerConfig()
	workerCfg.Width = cfg.Width
	workerCfg.Height = cfg.Height
	workerCfg.TargetFPS = cfg.TargetFPS
	workerCfg.PresetDwell = cfg.PresetDwell

	factory := rendererFactories[cfg.Renderer]
	if factory == nil {
		return nil, domain.NewValidationError("renderer", cfg.Renderer, "unknown renderer")
	}

	base := a.logger.With(slog.Int("instance", index))
	inst.renderer = factory(base.With(slog.String("component", "renderer")), cfg)
	inst.worker = service.NewVisualizationWorker(base, workerCfg, service.WorkerDeps{
		Renderer:  inst.renderer,
		Cache:     a.cache,
		Quality:   quality,
		Bus:       a.eventBus,
		CPU:       cpu.NewSampler(),
		Playlist:  a.playlist,
		Snapshots: snapshots,
	})
	inst.logger = base.With(slog.String("instance_id", inst.worker.InstanceID()))

	inst.bridge = service.NewMessageBridge(inst.logger)

	if mode != domain.QualityAuto {
		inst.worker.PostParameterChange(domain.ParamQualityOverride, float32(mode))
	}

	inst.logger.Info("instance created",
		slog.String("renderer", inst.renderer.Name()),
		slog.Int("width", cfg.Width),
		slog.Int("height", cfg.Height))
	return inst, nil
}

// relay forwards a host parameter change to the worker and announces it.
func (i *Instance) relay(change domain.ParameterChange) {
	if !i.worker.PostParameterChange(change.ID, change.Value) {
		i.logger.Warn("parameter change dropped",
			slog.String("param", change.ID.String()),
			slog.Uint64("sequence", change.Sequence))
		return
	}
	i.app.eventBus.Publish(domain.NewParameterChangedEvent(change))
}

// ID returns the worker's instance ID.
func (i *Instance) ID() string {
	return i.worker.InstanceID()
}

// ProcessBlock is the audio callback: it analyzes the block and feeds the worker's PCM
// history. It never blocks or allocates. Call it from one goroutine only.
func (i *Instance) ProcessBlock(channels [][]float32, frames, sampleRate int) {
	i.producer.Process(channels, frames)
	i.worker.PostAudioBlock(channels, frames, sampleRate)
}

// SetParameter posts a host parameter change from the audio thread. The change reaches
// the worker through the message bridge. It returns domain.ErrChannelFull when the bridge
// is full and the change was dropped.
func (i *Instance) SetParameter(id domain.ParamID, value float32) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidParameter, id)
	}
	if !i.bridge.PostFromAudioToMessage(id, value) {
		return domain.ErrChannelFull
	}
	return nil
}

// LoadPreset asks the worker to switch presets.
func (i *Instance) LoadPreset(path string) bool {
	return i.worker.PostLoadPreset(path)
}

// Start starts the worker and the bridge drain loop. Calling Start on a started
// instance has no effect.
func (i *Instance) Start() {
	i.lifeMu.Lock()
	defer i.lifeMu.Unlock()

	if i.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	i.cancel, i.done = cancel, done
	i.listener = i.bridge.AddListener(i.relay)

	i.worker.Start()
	go func() {
		defer close(done)
		i.bridge.Run(ctx, i.app.config.BridgeInterval)
	}()
}

// Stop drains the bridge, stops the drain loop and stops the worker.
func (i *Instance) Stop() error {
	i.lifeMu.Lock()
	cancel, done := i.cancel, i.done
	i.cancel, i.done = nil, nil
	i.lifeMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		i.bridge.RemoveListener(i.listener)
	}
	return i.worker.Stop()
}

// Worker returns the render worker.
func (i *Instance) Worker() *service.VisualizationWorker {
	return i.worker
}

// Bridge returns the message bridge.
func (i *Instance) Bridge() *service.MessageBridge {
	return i.bridge
}

// Producer returns the analysis producer.
func (i *Instance) Producer() *analysis.Producer {
	return i.producer
}

// Renderer returns the renderer driven by the worker.
func (i *Instance) Renderer() ports.Renderer {
	return i.renderer
}

// Diagnostics summarizes the instance for status output.
type Diagnostics struct {
	InstanceID   string
	Preset       string
	Performance  domain.PerformanceSample
	Decision     domain.QualityDecision
	Worker       service.WorkerStats
	Emitted      uint64
	Dropped      uint64
	BridgeDrops  uint64
	CacheHitRate float64
}

// Diagnostics returns a point-in-time summary.
func (i *Instance) Diagnostics() Diagnostics {
	return Diagnostics{
		InstanceID:   i.ID(),
		Preset:       i.worker.CurrentPresetPath(),
		Performance:  i.worker.Performance(),
		Decision:     i.worker.Decision(),
		Worker:       i.worker.Stats(),
		Emitted:      i.producer.Emitted(),
		Dropped:      i.producer.Dropped(),
		BridgeDrops:  i.bridge.Dropped(),
		CacheHitRate: i.app.cache.HitRate(),
	}
}
