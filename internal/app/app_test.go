package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/beatviz/internal/adapter/audio/synth"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/logger"
	"github.com/tejashwikalptaru/beatviz/internal/testutil"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

func testConfig(fyneApp fyne.App) Config {
	cfg := DefaultConfig()
	cfg.Width = 64
	cfg.Height = 36
	cfg.Renderer = "raster"
	cfg.LogLevel = slog.LevelWarn
	cfg.LogFormat = "text"
	cfg.TestFyneApp = fyneApp
	return cfg
}

func writePreset(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("preset"), 0o600))
	return path
}

// feed pushes n synthesized blocks through the instance's audio callback.
func feed(inst *Instance, n int) {
	src := synth.New(logger.NewTestLogger(), synth.Config{BPM: 120, Realtime: false})
	bufs := [][]float32{make([]float32, 512), make([]float32, 512)}
	for range n {
		src.Fill(bufs, 512)
		inst.ProcessBlock(bufs, 512, src.SampleRate())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "com.beatviz.app", cfg.AppID)
	assert.Equal(t, "beatviz", cfg.AppName)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 360, cfg.Height)
	assert.Equal(t, 60.0, cfg.TargetFPS)
	assert.Equal(t, "script", cfg.Renderer)
	assert.Equal(t, "auto", cfg.Quality)
	assert.Equal(t, 20*time.Millisecond, cfg.ScriptBudget)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv("BEATVIZ_WIDTH", "320")
	t.Setenv("BEATVIZ_HEIGHT", "bogus")
	t.Setenv("BEATVIZ_TARGET_FPS", "30")
	t.Setenv("BEATVIZ_RENDERER", " RASTER ")
	t.Setenv("BEATVIZ_QUALITY", "low")

	cfg := DefaultConfig()
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 360, cfg.Height, "malformed values are ignored")
	assert.Equal(t, 30.0, cfg.TargetFPS)
	assert.Equal(t, "raster", cfg.Renderer)
	assert.Equal(t, "low", cfg.Quality)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"zero width", func(c *Config) { c.Width = 0 }, "size"},
		{"negative fps", func(c *Config) { c.TargetFPS = -1 }, "target_fps"},
		{"unknown renderer", func(c *Config) { c.Renderer = "vulkan" }, "renderer"},
		{"unknown quality", func(c *Config) { c.Quality = "ultra" }, "quality"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			_, err = NewApplication(cfg)
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestApplication_RendersFromAudio(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreFyneGoroutines()...)

	app, err := NewApplication(testConfig(test.NewApp()))
	require.NoError(t, err)
	defer app.Shutdown()

	inst, err := app.NewInstance()
	require.NoError(t, err)
	assert.NotEmpty(t, inst.ID())
	assert.Equal(t, "raster", inst.Renderer().Name())

	assert.Error(t, (&Application{}).Start(), "no instances")
	require.NoError(t, app.Start())
	require.NoError(t, app.Start(), "second start is a no-op")

	feed(inst, 200)

	w := inst.Worker()
	require.Eventually(t, func() bool {
		s := w.Stats()
		return s.FramesRendered > 0 && s.SnapshotsConsumed > 0
	}, waitFor, tick)

	frame := w.FrameSnapshot()
	require.NotNil(t, frame)
	assert.Positive(t, frame.Bounds().Dx())
	assert.LessOrEqual(t, frame.Bounds().Dx(), 64)
	assert.Positive(t, inst.Producer().Emitted())
	require.Eventually(t, func() bool {
		return len(w.LatestPCMWindow(domain.WindowSize)) == domain.WindowSize
	}, waitFor, tick)

	d := inst.Diagnostics()
	assert.Equal(t, inst.ID(), d.InstanceID)
	assert.Positive(t, d.Emitted)

	require.NoError(t, app.Shutdown())
}

func TestApplication_ParameterThroughBridge(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreFyneGoroutines()...)

	app, err := NewApplication(testConfig(test.NewApp()))
	require.NoError(t, err)
	defer app.Shutdown()

	var (
		mu      sync.Mutex
		changes []domain.ParameterChange
	)
	app.EventBus().Subscribe(domain.EventParameterChanged, func(e domain.Event) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, e.(domain.ParameterChangedEvent).Change)
	})

	inst, err := app.NewInstance()
	require.NoError(t, err)
	require.NoError(t, app.Start())

	assert.ErrorIs(t, inst.SetParameter(domain.ParamID(99), 1), domain.ErrInvalidParameter)
	require.NoError(t, inst.SetParameter(domain.ParamBeatSensitivity, 1.5))
	require.NoError(t, inst.SetParameter(domain.ParamShuffle, 1))

	require.Eventually(t, func() bool {
		p := inst.Worker().Params()
		return p.BeatSensitivity == 1.5 && p.Shuffle
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 2
	}, waitFor, tick)

	mu.Lock()
	assert.Equal(t, domain.ParamBeatSensitivity, changes[0].ID)
	assert.Equal(t, domain.ParamShuffle, changes[1].ID)
	assert.Less(t, changes[0].Sequence, changes[1].Sequence)
	mu.Unlock()
}

func TestApplication_QualityConfigApplied(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreFyneGoroutines()...)

	cfg := testConfig(test.NewApp())
	cfg.Quality = "low"
	app, err := NewApplication(cfg)
	require.NoError(t, err)
	defer app.Shutdown()

	inst, err := app.NewInstance()
	require.NoError(t, err)
	require.NoError(t, app.Start())

	require.Eventually(t, func() bool {
		return inst.Worker().Params().QualityOverride == domain.QualityLow
	}, waitFor, tick)
}

func TestApplication_PresetPersistedAcrossRuns(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreFyneGoroutines()...)

	fyneApp := test.NewApp()
	path := writePreset(t, t.TempDir(), "Aurora.milk")

	cfg := testConfig(fyneApp)
	cfg.Preset = path
	app, err := NewApplication(cfg)
	require.NoError(t, err)

	inst, err := app.NewInstance()
	require.NoError(t, err)
	require.NoError(t, app.Start())

	require.Eventually(t, func() bool {
		return inst.Worker().CurrentPresetPath() == path
	}, waitFor, tick)
	require.NoError(t, app.Shutdown())
	assert.Equal(t, path, app.State().PresetPath())

	// A second run over the same preferences restores the preset.
	next, err := NewApplication(testConfig(fyneApp))
	require.NoError(t, err)
	defer next.Shutdown()

	restored, err := next.NewInstance()
	require.NoError(t, err)
	require.NoError(t, next.Start())

	require.Eventually(t, func() bool {
		return restored.Worker().CurrentPresetPath() == path
	}, waitFor, tick)
}

func TestApplication_InstancesShareCache(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreFyneGoroutines()...)

	dir := t.TempDir()
	first := writePreset(t, dir, "a.milk")
	writePreset(t, dir, "b.milk")

	cfg := testConfig(test.NewApp())
	cfg.PlaylistFolder = dir
	app, err := NewApplication(cfg)
	require.NoError(t, err)
	defer app.Shutdown()

	a, err := app.NewInstance()
	require.NoError(t, err)
	b, err := app.NewInstance()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	require.NoError(t, app.Start())
	assert.Equal(t, 2, app.Playlist().Len())
	assert.Equal(t, dir, app.State().PlaylistFolder())

	// The first instance has no saved preset, so only the second loads the first entry.
	require.Eventually(t, func() bool {
		return b.Worker().CurrentPresetPath() == first
	}, waitFor, tick)
	assert.True(t, a.LoadPreset(first))

	require.Eventually(t, func() bool {
		meta, ok := app.Cache().Lookup(first)
		return ok && meta.RefCount == 2
	}, waitFor, tick)

	meta, _ := app.Cache().Lookup(first)
	assert.Equal(t, "a", meta.Name)

	require.NoError(t, app.Shutdown())
	meta, _ = app.Cache().Lookup(first)
	assert.Zero(t, meta.RefCount, "stopped workers release their presets")
}

func TestApplication_LateInstanceStarts(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreFyneGoroutines()...)

	app, err := NewApplication(testConfig(test.NewApp()))
	require.NoError(t, err)
	defer app.Shutdown()

	_, err = app.NewInstance()
	require.NoError(t, err)
	require.NoError(t, app.Start())

	late, err := app.NewInstance()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return late.Worker().Stats().FramesRendered > 0
	}, waitFor, tick)
	assert.Len(t, app.Instances(), 2)
}

func TestApplication_ShutdownIdempotent(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreFyneGoroutines()...)

	app, err := NewApplication(testConfig(test.NewApp()))
	require.NoError(t, err)
	_, err = app.NewInstance()
	require.NoError(t, err)
	require.NoError(t, app.Start())

	require.NoError(t, app.Shutdown())
	require.NoError(t, app.Shutdown())

	_, err = app.NewInstance()
	assert.Error(t, err)
	assert.Error(t, app.Start())
}

func TestVersionInfo(t *testing.T) {
	v := GetVersionInfo()
	assert.Contains(t, v.FullString(), "beatviz")

	v.GitTag = "v1.2.3"
	assert.Contains(t, v.FullString(), "v1.2.3")
}
