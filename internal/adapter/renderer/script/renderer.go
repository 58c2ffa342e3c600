// Package script provides a renderer whose presets are Lua programs.
//
// A preset script defines a global function frame(ctx) that is called once per frame
// with the current analysis values and returns a table of warp parameters (hue, zoom,
// speed, contrast). Drawing is delegated to the raster renderer. Presets that are not
// Lua files are passed straight to the raster renderer.
package script

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tejashwikalptaru/beatviz/internal/adapter/renderer/raster"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
	lua "github.com/yuin/gopher-lua"
)

// DefaultBudget bounds a single call into a preset script.
const DefaultBudget = 20 * time.Millisecond

// Extension marks preset files handled as Lua programs.
const Extension = ".lua"

// Renderer implements ports.Renderer on top of the raster renderer.
//
// RenderFrame, LoadResource and Shutdown are called from the worker goroutine. The
// inspection methods may be called from anywhere.
type Renderer struct {
	logger *slog.Logger
	engine *raster.Renderer
	budget time.Duration

	mu     sync.Mutex
	state  *lua.LState
	frame  *lua.LFunction
	script string
	failed string
	frames uint64
}

// NewRenderer creates a script renderer. A non-positive budget uses DefaultBudget.
func NewRenderer(logger *slog.Logger, budget time.Duration) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Renderer{
		logger: logger,
		engine: raster.NewRenderer(logger),
		budget: budget,
	}
}

// Name returns the renderer variant.
func (r *Renderer) Name() string {
	return "script"
}

// Initialize prepares the underlying raster renderer.
func (r *Renderer) Initialize(width, height int) error {
	if err := r.engine.Initialize(width, height); err != nil {
		return domain.NewRendererError(r.Name(), "initialize", "", err)
	}
	return nil
}

// LoadResource loads a preset. Lua presets are compiled and run into a fresh
// interpreter; when that fails the previous script stays active. Other presets clear
// the active script and go to the raster renderer.
func (r *Renderer) LoadResource(path string) error {
	if !strings.EqualFold(filepath.Ext(path), Extension) {
		if err := r.engine.LoadResource(path); err != nil {
			return err
		}
		r.mu.Lock()
		r.closeLocked()
		r.mu.Unlock()
		r.engine.SetWarp(raster.DefaultWarp())
		return nil
	}

	state, frame, err := r.compile(path)
	if err != nil {
		return domain.NewRendererError(r.Name(), "load", path, err)
	}
	if err := r.engine.LoadResource(path); err != nil {
		state.Close()
		return err
	}

	r.mu.Lock()
	r.closeLocked()
	r.state = state
	r.frame = frame
	r.script = path
	r.failed = ""
	r.mu.Unlock()

	r.logger.Info("preset script loaded", slog.String("path", path))
	return nil
}

// RenderFrame runs the preset script, if any, and draws the frame. A script that fails
// at runtime is disabled and the frame is drawn with the neutral warp.
func (r *Renderer) RenderFrame(dst *image.RGBA, in domain.RenderInput) error {
	r.mu.Lock()
	if r.state != nil {
		warp, err := r.callFrame(dst, in)
		if err != nil {
			r.logger.Warn("preset script failed, disabling",
				slog.String("path", r.script),
				slog.Any("error", err))
			r.failed = r.script
			r.closeLocked()
			warp = raster.DefaultWarp()
		}
		r.engine.SetWarp(warp)
	}
	r.frames++
	r.mu.Unlock()

	if err := r.engine.RenderFrame(dst, in); err != nil {
		return domain.NewRendererError(r.Name(), "render", "", err)
	}
	return nil
}

// Shutdown closes the interpreter and the raster renderer.
func (r *Renderer) Shutdown() error {
	r.mu.Lock()
	r.closeLocked()
	r.mu.Unlock()
	return r.engine.Shutdown()
}

// Script returns the path of the active preset script, or "" when none is active.
func (r *Renderer) Script() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.script
}

// Failed returns the path of the last script disabled by a runtime error.
func (r *Renderer) Failed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Warp returns the warp applied to the last frame.
func (r *Renderer) Warp() raster.Warp {
	return r.engine.Warp()
}

func (r *Renderer) compile(path string) (*lua.LState, *lua.LFunction, error) {
	state := newSandbox(r.logger.With(slog.String("script", filepath.Base(path))))

	ctx, cancel := context.WithTimeout(context.Background(), r.budget)
	defer cancel()
	state.SetContext(ctx)
	defer state.RemoveContext()

	if err := state.DoFile(path); err != nil {
		state.Close()
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrInvalidPresetSource, err)
	}

	fn, ok := state.GetGlobal("frame").(*lua.LFunction)
	if !ok {
		state.Close()
		return nil, nil, fmt.Errorf("%w: script does not define a frame function", domain.ErrInvalidPresetSource)
	}
	return state, fn, nil
}

func (r *Renderer) callFrame(dst *image.RGBA, in domain.RenderInput) (raster.Warp, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.budget)
	defer cancel()
	r.state.SetContext(ctx)
	defer r.state.RemoveContext()

	arg := frameContext(r.state, dst, in, r.frames)
	if err := r.state.CallByParam(lua.P{Fn: r.frame, NRet: 1, Protect: true}, arg); err != nil {
		return raster.Warp{}, err
	}
	ret := r.state.Get(-1)
	r.state.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		if ret == lua.LNil {
			return raster.DefaultWarp(), nil
		}
		return raster.Warp{}, fmt.Errorf("frame returned %s, want table", ret.Type())
	}
	return raster.Warp{
		Hue:      number(tbl, "hue"),
		Zoom:     number(tbl, "zoom"),
		Speed:    number(tbl, "speed"),
		Contrast: number(tbl, "contrast"),
	}, nil
}

func (r *Renderer) closeLocked() {
	if r.state != nil {
		r.state.Close()
	}
	r.state = nil
	r.frame = nil
	r.script = ""
}

// frameContext builds the table passed to frame(ctx).
func frameContext(L *lua.LState, dst *image.RGBA, in domain.RenderInput, frame uint64) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("time", lua.LNumber(in.Elapsed.Seconds()))
	t.RawSetString("frame", lua.LNumber(frame))
	t.RawSetString("energy", lua.LNumber(in.Snapshot.ShortTimeEnergy))
	t.RawSetString("beat", lua.LBool(in.HaveSnapshot && in.Snapshot.BeatDetected))
	t.RawSetString("sensitivity", lua.LNumber(in.Params.BeatSensitivity))
	t.RawSetString("palette", lua.LNumber(in.Params.PaletteIndex))
	t.RawSetString("preset", lua.LString(in.Params.PresetName))
	t.RawSetString("high_detail", lua.LBool(in.Decision.HighDetail))

	if dst != nil {
		t.RawSetString("width", lua.LNumber(dst.Bounds().Dx()))
		t.RawSetString("height", lua.LNumber(dst.Bounds().Dy()))
	}

	if in.HaveSnapshot && in.Snapshot.HasSpectrum {
		bass, mid, treble := raster.Bands(in.Snapshot.Spectrum[:])
		t.RawSetString("bass", lua.LNumber(bass))
		t.RawSetString("mid", lua.LNumber(mid))
		t.RawSetString("treble", lua.LNumber(treble))
	}
	return t
}

func number(t *lua.LTable, key string) float64 {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return float64(n)
	}
	return 0
}

var _ ports.Renderer = (*Renderer)(nil)
