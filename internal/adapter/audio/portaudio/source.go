//go:build portaudio

// Package portaudio captures the default input device as an audio source.
// Build with -tags portaudio; the PortAudio C library must be installed.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

// Options selects the capture format.
type Options struct {
	SampleRate int // 0 uses the device default
	Channels   int // 1 or 2, default 2
	BlockSize  int // frames per callback, default 512
}

// Source implements ports.AudioSource for the default input device.
type Source struct {
	logger     *slog.Logger
	device     string
	sampleRate int
	channels   int
	blockSize  int

	mu     sync.Mutex
	closed bool
	bufs   [][]float32
}

// Open initializes PortAudio and resolves the default input device.
func Open(logger *slog.Logger, opts Options) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Channels <= 0 || opts.Channels > 2 {
		opts.Channels = 2
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 512
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio default input: %w", err)
	}
	if dev.MaxInputChannels < opts.Channels {
		opts.Channels = dev.MaxInputChannels
	}
	if opts.Channels <= 0 {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %s has no input channels", domain.ErrUnsupportedFormat, dev.Name)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = int(dev.DefaultSampleRate)
	}

	s := &Source{
		logger:     logger,
		device:     dev.Name,
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
		blockSize:  opts.BlockSize,
		bufs:       make([][]float32, opts.Channels),
	}
	for i := range s.bufs {
		s.bufs[i] = make([]float32, opts.BlockSize)
	}

	logger.Info("portaudio input opened",
		slog.String("device", dev.Name),
		slog.Int("sample_rate", s.sampleRate),
		slog.Int("channels", s.channels))
	return s, nil
}

// Name returns the input device name.
func (s *Source) Name() string {
	return s.device
}

// SampleRate returns the capture rate.
func (s *Source) SampleRate() int {
	return s.sampleRate
}

// Channels returns the capture channel count.
func (s *Source) Channels() int {
	return s.channels
}

// Run captures until ctx is cancelled. handler is called from the PortAudio callback
// thread with de-interleaved blocks.
func (s *Source) Run(ctx context.Context, handler ports.BlockHandler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	s.mu.Unlock()

	stream, err := portaudio.OpenDefaultStream(s.channels, 0, float64(s.sampleRate), s.blockSize,
		func(in []float32) {
			frames := len(in) / s.channels
			if frames > s.blockSize {
				frames = s.blockSize
			}
			for i := 0; i < frames; i++ {
				for c := 0; c < s.channels; c++ {
					s.bufs[c][i] = in[i*s.channels+c]
				}
			}
			handler(s.bufs, frames, s.sampleRate)
		})
	if err != nil {
		return fmt.Errorf("portaudio open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("portaudio start: %w", err)
	}

	<-ctx.Done()

	if err := stream.Stop(); err != nil {
		s.logger.Warn("portaudio stop failed", slog.Any("error", err))
	}
	if err := stream.Close(); err != nil {
		s.logger.Warn("portaudio close failed", slog.Any("error", err))
	}
	return ctx.Err()
}

// Close terminates PortAudio. Run must have returned.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return portaudio.Terminate()
}

var _ ports.AudioSource = (*Source)(nil)
