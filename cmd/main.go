// Package main runs beatviz headless: an audio source drives one or more visualization
// instances until the input ends, the duration elapses or the process is interrupted.
//
// Build:
//
//	go build -o build/beatviz ./cmd
//	go build -tags portaudio -o build/beatviz ./cmd
//
// Run:
//
//	./build/beatviz -input wav -file song.wav -folder ~/presets -snapshot last.png
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tejashwikalptaru/beatviz/internal/adapter/audio/synth"
	"github.com/tejashwikalptaru/beatviz/internal/adapter/audio/wavfile"
	"github.com/tejashwikalptaru/beatviz/internal/app"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/logger"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

const (
	successExitCode = 0
	errorExitCode   = 1
)

type inputOptions struct {
	file      string
	blockSize int
	loop      bool
}

type inputOpener func(log *slog.Logger, opts inputOptions) (ports.AudioSource, error)

var inputs = map[string]inputOpener{
	"synth": func(log *slog.Logger, opts inputOptions) (ports.AudioSource, error) {
		cfg := synth.DefaultConfig()
		cfg.BlockSize = opts.blockSize
		return synth.New(log, cfg), nil
	},
	"wav": func(log *slog.Logger, opts inputOptions) (ports.AudioSource, error) {
		if opts.file == "" {
			return nil, errors.New("-file is required for wav input")
		}
		return wavfile.Open(log, opts.file, wavfile.Options{
			BlockSize: opts.blockSize,
			Realtime:  true,
			Loop:      opts.loop,
		})
	},
}

func inputNames() []string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// paramFlag collects repeated -param name=value settings.
type paramFlag []paramSetting

type paramSetting struct {
	id    domain.ParamID
	value float32
}

func (p *paramFlag) String() string {
	parts := make([]string, 0, len(*p))
	for _, s := range *p {
		parts = append(parts, fmt.Sprintf("%s=%g", s.id, s.value))
	}
	return strings.Join(parts, ",")
}

func (p *paramFlag) Set(v string) error {
	name, raw, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("want name=value, got %q", v)
	}
	id, err := domain.ParseParamID(strings.TrimSpace(name))
	if err != nil {
		return err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*p = append(*p, paramSetting{id: id, value: float32(value)})
	return nil
}

type options struct {
	params    paramFlag
	input     inputOptions
	inputName string
	instances int
	duration  time.Duration
	status    time.Duration
	snapshot  string
	logLevel  string
}

func parseFlags(args []string, cfg *app.Config) (options, error) {
	opts := options{inputName: "synth", instances: 1, input: inputOptions{blockSize: 512}}

	fs := flag.NewFlagSet("beatviz", flag.ContinueOnError)
	fs.StringVar(&opts.inputName, "input", opts.inputName, fmt.Sprintf("audio input %v", inputNames()))
	fs.StringVar(&opts.input.file, "file", "", "WAV file for -input wav")
	fs.BoolVar(&opts.input.loop, "loop", false, "loop the WAV file")
	fs.IntVar(&opts.input.blockSize, "block", opts.input.blockSize, "frames per audio block")
	fs.IntVar(&opts.instances, "instances", opts.instances, "number of visualization instances")
	fs.DurationVar(&opts.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	fs.DurationVar(&opts.status, "status", 5*time.Second, "diagnostics log interval (0 disables)")
	fs.StringVar(&opts.snapshot, "snapshot", "", "write the last frame of the first instance to this PNG file")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	fs.Var(&opts.params, "param", "set a parameter on every instance, name=value (repeatable)")

	fs.StringVar(&cfg.Preset, "preset", cfg.Preset, "preset to load on start")
	fs.StringVar(&cfg.PlaylistFolder, "folder", cfg.PlaylistFolder, "preset folder to play through")
	fs.DurationVar(&cfg.PresetDwell, "dwell", cfg.PresetDwell, "advance the playlist after this long")
	fs.Float64Var(&cfg.TargetFPS, "fps", cfg.TargetFPS, "target frame rate")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "frame width")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "frame height")
	fs.StringVar(&cfg.Renderer, "renderer", cfg.Renderer, "renderer: raster or script")
	fs.StringVar(&cfg.Quality, "quality", cfg.Quality, "quality: auto, low, medium or high")
	fs.DurationVar(&cfg.ScriptBudget, "script-budget", cfg.ScriptBudget, "time limit per Lua preset call")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = logger.ParseLevel(opts.logLevel, cfg.LogLevel)
	}
	if _, ok := inputs[opts.inputName]; !ok {
		return opts, fmt.Errorf("unknown input %q, want one of %v", opts.inputName, inputNames())
	}
	if opts.instances < 1 {
		return opts, fmt.Errorf("-instances must be at least 1")
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := app.DefaultConfig()
	opts, err := parseFlags(args, &cfg)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return successExitCode
		}
		fmt.Fprintln(os.Stderr, err)
		return errorExitCode
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		return errorExitCode
	}
	log := application.Logger()

	// Ensure a graceful shutdown
	defer func() {
		if err := application.Shutdown(); err != nil {
			log.Error("shutdown error", slog.Any("error", err))
		}
	}()

	instances := make([]*app.Instance, 0, opts.instances)
	for range opts.instances {
		inst, err := application.NewInstance()
		if err != nil {
			log.Error("failed to create instance", slog.Any("error", err))
			return errorExitCode
		}
		instances = append(instances, inst)
	}

	source, err := inputs[opts.inputName](log.With(slog.String("component", "input")), opts.input)
	if err != nil {
		log.Error("failed to open input", slog.String("input", opts.inputName), slog.Any("error", err))
		return errorExitCode
	}
	defer source.Close()

	if err := application.Start(); err != nil {
		log.Error("failed to start", slog.Any("error", err))
		return errorExitCode
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	for _, inst := range instances {
		for _, p := range opts.params {
			if err := inst.SetParameter(p.id, p.value); err != nil {
				log.Warn("parameter not applied", slog.String("param", p.id.String()), slog.Any("error", err))
			}
		}
	}

	if opts.status > 0 {
		go reportStatus(ctx, log, instances, opts.status)
	}

	log.Info("running",
		slog.String("input", source.Name()),
		slog.Int("sample_rate", source.SampleRate()),
		slog.Int("channels", source.Channels()),
		slog.Int("instances", len(instances)))

	err = source.Run(ctx, func(channels [][]float32, frames, sampleRate int) {
		for _, inst := range instances {
			inst.ProcessBlock(channels, frames, sampleRate)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("input failed", slog.Any("error", err))
		return errorExitCode
	}

	if opts.snapshot != "" {
		if err := writeSnapshot(instances[0], opts.snapshot); err != nil {
			log.Error("failed to write snapshot", slog.String("path", opts.snapshot), slog.Any("error", err))
			return errorExitCode
		}
		log.Info("snapshot written", slog.String("path", opts.snapshot))
	}
	return successExitCode
}

func reportStatus(ctx context.Context, log *slog.Logger, instances []*app.Instance, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, inst := range instances {
				d := inst.Diagnostics()
				log.Info("status",
					slog.String("instance", d.InstanceID),
					slog.String("preset", d.Preset),
					slog.Float64("fps", d.Performance.FPSEMA),
					slog.Float64("cpu_pct", d.Performance.CPUPercent),
					slog.Float64("scale", d.Decision.Scale),
					slog.Uint64("frames", d.Worker.FramesRendered),
					slog.Uint64("snapshots_dropped", d.Dropped),
					slog.Float64("cache_hit_rate", d.CacheHitRate))
			}
		}
	}
}

func writeSnapshot(inst *app.Instance, path string) error {
	frame := inst.Worker().FrameSnapshot()
	if frame == nil {
		return errors.New("no frame rendered yet")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, frame); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
