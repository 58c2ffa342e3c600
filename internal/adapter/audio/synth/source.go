// Package synth provides a deterministic test signal as an audio source.
//
// The signal is a soft sine pad with a decaying low kick on every beat, which gives the
// beat detector clear energy spikes to find.
package synth

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

const (
	kickFrequency = 55.0 // Hz
	kickDecay     = 30.0 // per second
	kickLength    = 0.15 // seconds
)

// Config holds synthesizer settings.
type Config struct {
	SampleRate int
	Channels   int
	BlockSize  int

	// Tone is the pad frequency in Hz
	Tone float64

	// BPM sets the kick rate; zero disables the kick
	BPM float64

	// Amplitude of the pad, kicks peak at three times this value
	Amplitude float64

	// Duration stops the source after this much audio; zero runs until cancelled
	Duration time.Duration

	// Realtime paces blocks at the sample rate; otherwise blocks are produced as fast as possible
	Realtime bool
}

// DefaultConfig returns a 120 BPM stereo signal at 44.1 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate: 44100,
		Channels:   2,
		BlockSize:  512,
		Tone:       220,
		BPM:        120,
		Amplitude:  0.1,
		Realtime:   true,
	}
}

// Source implements ports.AudioSource.
type Source struct {
	logger *slog.Logger
	cfg    Config
	pos    uint64
	bufs   [][]float32
	closed atomic.Bool
}

// New creates a synthesizer. Invalid settings are replaced by their defaults.
func New(logger *slog.Logger, cfg Config) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels <= 0 || cfg.Channels > 2 {
		cfg.Channels = def.Channels
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = def.BlockSize
	}
	if cfg.Tone <= 0 {
		cfg.Tone = def.Tone
	}
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = def.Amplitude
	}
	if cfg.BPM < 0 {
		cfg.BPM = 0
	}

	bufs := make([][]float32, cfg.Channels)
	for i := range bufs {
		bufs[i] = make([]float32, cfg.BlockSize)
	}
	return &Source{logger: logger, cfg: cfg, bufs: bufs}
}

// Name returns "synth".
func (s *Source) Name() string {
	return "synth"
}

// SampleRate returns the configured sample rate.
func (s *Source) SampleRate() int {
	return s.cfg.SampleRate
}

// Channels returns the configured channel count.
func (s *Source) Channels() int {
	return s.cfg.Channels
}

// Fill writes the next frames into every channel of dst and advances the signal.
func (s *Source) Fill(dst [][]float32, frames int) {
	rate := float64(s.cfg.SampleRate)
	beatPeriod := 0.0
	if s.cfg.BPM > 0 {
		beatPeriod = 60 / s.cfg.BPM
	}

	for i := 0; i < frames; i++ {
		t := float64(s.pos) / rate
		v := s.cfg.Amplitude * math.Sin(2*math.Pi*s.cfg.Tone*t)

		if beatPeriod > 0 {
			since := math.Mod(t, beatPeriod)
			if since < kickLength {
				env := math.Exp(-kickDecay * since)
				v += 3 * s.cfg.Amplitude * env * math.Sin(2*math.Pi*kickFrequency*since)
			}
		}

		for _, ch := range dst {
			if i < len(ch) {
				ch[i] = float32(v)
			}
		}
		s.pos++
	}
}

// Position returns the number of frames generated so far.
func (s *Source) Position() uint64 {
	return s.pos
}

// Run generates blocks until ctx is cancelled, the configured duration is reached or
// the source is closed.
func (s *Source) Run(ctx context.Context, handler ports.BlockHandler) error {
	if s.closed.Load() {
		return domain.ErrNotRunning
	}

	var limit uint64
	if s.cfg.Duration > 0 {
		limit = uint64(s.cfg.Duration.Seconds() * float64(s.cfg.SampleRate))
	}

	var tick <-chan time.Time
	if s.cfg.Realtime {
		period := time.Duration(float64(s.cfg.BlockSize) / float64(s.cfg.SampleRate) * float64(time.Second))
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.logger.Debug("synth started",
		slog.Int("sample_rate", s.cfg.SampleRate),
		slog.Float64("bpm", s.cfg.BPM))

	for !s.closed.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if limit > 0 && s.pos >= limit {
			return nil
		}

		frames := s.cfg.BlockSize
		if limit > 0 && s.pos+uint64(frames) > limit {
			frames = int(limit - s.pos)
		}
		s.Fill(s.bufs, frames)
		handler(s.bufs, frames, s.cfg.SampleRate)

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
	}
	return nil
}

// Close stops a running Run at the next block.
func (s *Source) Close() error {
	s.closed.Store(true)
	return nil
}

var _ ports.AudioSource = (*Source)(nil)
