// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"github.com/tejashwikalptaru/beatviz/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/beatviz/internal/adapter/presetsource/filesystem"
	"github.com/tejashwikalptaru/beatviz/internal/adapter/repository/memory"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/logger"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
	"github.com/tejashwikalptaru/beatviz/internal/service"
)

// Application is the root application structure that holds all dependencies.
// It follows the Dependency Injection pattern with constructor-based injection.
//
// The Application struct is responsible for:
// - Creating and wiring process-wide services (event bus, preset cache, state)
// - Creating visualization instances that share those services
// - Managing the lifecycle (startup, shutdown)
type Application struct {
	// Core dependencies
	logger  *slog.Logger
	fyneApp fyne.App
	config  Config

	// Infrastructure
	eventBus     *eventbus.SyncEventBus
	presetSource ports.PresetSource

	// Shared services
	cache    *service.PresetCache
	playlist *service.PresetPlaylist
	state    *service.StateService

	mu        sync.Mutex
	instances []*Instance
	started   bool
	closed    bool
}

// Config holds application configuration.
type Config struct {
	// AppID is the unique application identifier, used for the preferences store
	AppID string

	// AppName is the display name
	AppName string

	// Width and Height are the full-quality frame size
	Width  int
	Height int

	// TargetFPS is the initial render rate of each instance
	TargetFPS float64

	// Renderer selects the renderer variant: "raster" or "script"
	Renderer string

	// Quality is the initial quality mode: "auto", "low", "medium" or "high"
	Quality string

	// Preset is loaded on start instead of the saved preset when set
	Preset string

	// PlaylistFolder replaces the saved playlist folder when set
	PlaylistFolder string

	// PresetDwell advances the playlist after this long; zero disables it
	PresetDwell time.Duration

	// ScriptBudget bounds each call into a Lua preset
	ScriptBudget time.Duration

	// BridgeInterval is how often the message bridge is drained
	BridgeInterval time.Duration

	// LogLevel controls logging verbosity
	LogLevel slog.Level

	// LogFormat is "text", "json" or "auto"
	LogFormat string

	// TestFyneApp allows injecting a test Fyne app for testing (nil for production)
	TestFyneApp fyne.App
}

// DefaultConfig returns the default application configuration.
// BEATVIZ_WIDTH, BEATVIZ_HEIGHT, BEATVIZ_TARGET_FPS, BEATVIZ_RENDERER and
// BEATVIZ_QUALITY override the defaults; malformed values are ignored.
func DefaultConfig() Config {
	loggerCfg := logger.DefaultConfig()
	worker := service.DefaultWorkerConfig()

	cfg := Config{
		AppID:          "com.beatviz.app",
		AppName:        "beatviz",
		Width:          worker.Width,
		Height:         worker.Height,
		TargetFPS:      worker.TargetFPS,
		Renderer:       "script",
		Quality:        domain.QualityAuto.String(),
		PresetDwell:    0,
		ScriptBudget:   20 * time.Millisecond,
		BridgeInterval: 10 * time.Millisecond,
		LogLevel:       loggerCfg.Level,
		LogFormat:      loggerCfg.Format,
	}

	if v, ok := envInt("BEATVIZ_WIDTH"); ok && v > 0 {
		cfg.Width = v
	}
	if v, ok := envInt("BEATVIZ_HEIGHT"); ok && v > 0 {
		cfg.Height = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv("BEATVIZ_TARGET_FPS")), 64); err == nil && v > 0 {
		cfg.TargetFPS = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("BEATVIZ_RENDERER"))); v != "" {
		cfg.Renderer = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("BEATVIZ_QUALITY"))); v != "" {
		cfg.Quality = v
	}
	return cfg
}

func envInt(key string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	return v, err == nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return domain.NewValidationError("size", fmt.Sprintf("%dx%d", c.Width, c.Height), "must be positive")
	}
	if c.TargetFPS <= 0 {
		return domain.NewValidationError("target_fps", c.TargetFPS, "must be positive")
	}
	if _, ok := rendererFactories[c.Renderer]; !ok {
		return domain.NewValidationError("renderer", c.Renderer, "unknown renderer")
	}
	if _, err := domain.ParseQualityMode(c.Quality); err != nil {
		return err
	}
	return nil
}

// NewApplication creates a new application with all shared dependencies wired.
// Instances are added with NewInstance.
func NewApplication(config Config) (*Application, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{config: config}

	// Step 1: Create logger
	app.logger = logger.NewLogger(logger.Config{
		Level:  config.LogLevel,
		Format: config.LogFormat,
	})
	app.logger.Info("initializing application",
		slog.String("app_id", config.AppID),
		slog.String("version", GetVersionInfo().FullString()))

	// Step 2: Create Fyne application (preferences store only)
	if config.TestFyneApp != nil {
		app.fyneApp = config.TestFyneApp
	} else {
		app.fyneApp = fyneapp.NewWithID(config.AppID)
	}

	// Step 3: Create an event bus
	syncBus := eventbus.NewSyncEventBus()
	syncBus.SetLogger(app.logger.With(slog.String("component", "eventbus")))
	app.eventBus = syncBus

	// Step 4: Create shared services
	app.presetSource = filesystem.New()
	app.cache = service.NewPresetCache(app.logger.With(slog.String("service", "preset_cache")), app.presetSource)
	app.playlist = service.NewPresetPlaylist(app.logger.With(slog.String("service", "playlist")))

	// Step 5: Persisted state
	app.state = service.NewStateService(
		app.logger.With(slog.String("service", "state")),
		memory.NewStateRepository(app.fyneApp.Preferences()),
	)

	return app, nil
}

// NewInstance creates a visualization instance that shares this application's cache,
// playlist and event bus. Instances created after Start are started immediately.
func (a *Application) NewInstance() (*Instance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, domain.NewServiceError("Application", "NewInstance", "application is shut down", nil)
	}

	inst, err := newInstance(a, len(a.instances))
	if err != nil {
		return nil, err
	}
	a.instances = append(a.instances, inst)

	if a.started {
		inst.Start()
	}
	return inst, nil
}

// Start restores persisted state and starts every instance.
// Explicit Preset and PlaylistFolder settings take precedence over the saved values.
func (a *Application) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return domain.NewServiceError("Application", "Start", "application is shut down", nil)
	}
	if a.started {
		return nil
	}
	if len(a.instances) == 0 {
		return domain.NewServiceError("Application", "Start", "no instances", nil)
	}
	a.started = true

	// Only the first instance's preset is persisted.
	first := a.instances[0].worker
	a.state.Restore(first, a.playlist)
	a.state.TrackInstance(a.eventBus, first.InstanceID())

	if dir := a.config.PlaylistFolder; dir != "" {
		if err := a.playlist.LoadFolder(dir); err != nil {
			a.logger.Warn("playlist folder unavailable", slog.String("folder", dir), slog.Any("error", err))
		} else if err := a.state.SetPlaylistFolder(dir); err != nil {
			a.logger.Warn("failed to persist playlist folder", slog.Any("error", err))
		}
	}

	for _, inst := range a.instances {
		preset := a.config.Preset
		if preset == "" && inst.worker != first && a.playlist.Len() > 0 {
			preset, _ = a.playlist.PathAt(0)
		}
		if preset != "" {
			inst.LoadPreset(preset)
		}
		inst.Start()
	}

	a.logger.Info("application started", slog.Int("instances", len(a.instances)))
	return nil
}

// Run starts the application and blocks until ctx is done, then shuts down.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return a.Shutdown()
}

// Shutdown saves state, stops every instance and closes the event bus.
// Safe to call more than once.
func (a *Application) Shutdown() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	instances := a.instances
	a.mu.Unlock()

	a.logger.Info("shutting down application")

	// Save the current state while presets are still active
	if len(instances) > 0 {
		if err := a.state.Capture(instances[0].worker, a.playlist); err != nil {
			a.logger.Warn("failed to save state", slog.Any("error", err))
		}
	}
	a.state.Untrack()

	var errs []error
	for i := len(instances) - 1; i >= 0; i-- {
		if err := instances[i].Stop(); err != nil {
			a.logger.Warn("failed to stop instance",
				slog.String("instance", instances[i].ID()),
				slog.Any("error", err))
			errs = append(errs, err)
		}
	}

	if err := a.eventBus.Close(); err != nil {
		a.logger.Warn("failed to close event bus", slog.Any("error", err))
	}

	stats := a.cache.Stats()
	a.logger.Info("application shutdown complete",
		slog.Uint64("cache_hits", stats.Hits),
		slog.Uint64("cache_misses", stats.Misses),
		slog.Int("cache_entries", stats.Entries))

	if len(errs) > 0 {
		return domain.NewServiceError("Application", "Shutdown", "instances did not stop cleanly", errs[0])
	}
	return nil
}

// Instances returns the instances in creation order.
func (a *Application) Instances() []*Instance {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Instance(nil), a.instances...)
}

// Logger returns the application logger.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// EventBus returns the application event bus.
func (a *Application) EventBus() ports.EventBus {
	return a.eventBus
}

// Cache returns the process-wide preset cache.
func (a *Application) Cache() *service.PresetCache {
	return a.cache
}

// Playlist returns the shared preset playlist.
func (a *Application) Playlist() *service.PresetPlaylist {
	return a.playlist
}

// State returns the persisted state service.
func (a *Application) State() *service.StateService {
	return a.state
}

// Config returns the configuration the application was created with.
func (a *Application) Config() Config {
	return a.config
}
