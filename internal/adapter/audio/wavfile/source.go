// Package wavfile plays WAV files as an audio source.
package wavfile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

// Options controls playback.
type Options struct {
	// BlockSize is the number of frames per block (default 512)
	BlockSize int

	// Realtime paces blocks at the file's sample rate
	Realtime bool

	// Loop restarts the file when it ends
	Loop bool
}

// Source implements ports.AudioSource for an integer PCM WAV file.
// This component cannot be reused after Close.
type Source struct {
	logger *slog.Logger
	path   string
	title  string
	opts   Options

	file       *os.File
	decoder    *wav.Decoder
	sampleRate int
	channels   int
	scale      float32

	ib     *audio.IntBuffer
	bufs   [][]float32
	closed atomic.Bool
}

// Open validates the file and reads its tags. Only 16, 24 and 32 bit integer PCM is
// supported.
func Open(logger *slog.Logger, path string, opts Options) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 512
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	title := readTitle(file, path)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("rewind %s: %w", path, err)
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", domain.ErrUnsupportedFormat, path)
	}
	if decoder.WavAudioFormat != 1 {
		_ = file.Close()
		return nil, fmt.Errorf("%w: WAV encoding %d", domain.ErrUnsupportedFormat, decoder.WavAudioFormat)
	}
	switch decoder.BitDepth {
	case 16, 24, 32:
	default:
		_ = file.Close()
		return nil, fmt.Errorf("%w: %d bit samples", domain.ErrUnsupportedFormat, decoder.BitDepth)
	}

	channels := int(decoder.NumChans)
	s := &Source{
		logger:     logger,
		path:       path,
		title:      title,
		opts:       opts,
		file:       file,
		decoder:    decoder,
		sampleRate: int(decoder.SampleRate),
		channels:   channels,
		scale:      1 / float32(int64(1)<<(decoder.BitDepth-1)),
		ib: &audio.IntBuffer{
			Format:         decoder.Format(),
			Data:           make([]int, opts.BlockSize*channels),
			SourceBitDepth: int(decoder.BitDepth),
		},
		bufs: make([][]float32, channels),
	}
	for i := range s.bufs {
		s.bufs[i] = make([]float32, opts.BlockSize)
	}

	logger.Info("wav file opened",
		slog.String("path", path),
		slog.String("title", title),
		slog.Int("sample_rate", s.sampleRate),
		slog.Int("channels", channels),
		slog.Int("bit_depth", int(decoder.BitDepth)))
	return s, nil
}

// readTitle returns "Artist - Title" from the file's tags, or the file name without
// extension when the file carries no usable tags.
func readTitle(r io.ReadSeeker, path string) string {
	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	metadata, err := tag.ReadFrom(r)
	if err != nil || metadata == nil {
		return fallback
	}
	title := strings.TrimSpace(metadata.Title())
	if title == "" {
		return fallback
	}
	if artist := strings.TrimSpace(metadata.Artist()); artist != "" {
		return artist + " - " + title
	}
	return title
}

// Name returns the display title.
func (s *Source) Name() string {
	return s.title
}

// SampleRate returns the file's sample rate.
func (s *Source) SampleRate() int {
	return s.sampleRate
}

// Channels returns the file's channel count.
func (s *Source) Channels() int {
	return s.channels
}

// Run decodes the file block by block. It returns nil at the end of the file unless
// looping, and ctx.Err() on cancellation.
func (s *Source) Run(ctx context.Context, handler ports.BlockHandler) error {
	if s.closed.Load() {
		return domain.ErrNotRunning
	}

	var tick <-chan time.Time
	if s.opts.Realtime {
		period := time.Duration(float64(s.opts.BlockSize) / float64(s.sampleRate) * float64(time.Second))
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for !s.closed.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}

		frames, err := s.readBlock()
		if err != nil {
			return err
		}
		if frames == 0 {
			if !s.opts.Loop {
				s.logger.Debug("wav file finished", slog.String("path", s.path))
				return nil
			}
			if err := s.rewind(); err != nil {
				return err
			}
			continue
		}

		handler(s.bufs, frames, s.sampleRate)

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

// readBlock decodes up to one block and de-interleaves it into s.bufs.
func (s *Source) readBlock() (int, error) {
	n, err := s.decoder.PCMBuffer(s.ib)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", s.path, err)
	}

	frames := n / s.channels
	for i := 0; i < frames; i++ {
		for c := 0; c < s.channels; c++ {
			s.bufs[c][i] = float32(s.ib.Data[i*s.channels+c]) * s.scale
		}
	}
	return frames, nil
}

func (s *Source) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", s.path, err)
	}
	s.decoder = wav.NewDecoder(s.file)
	if !s.decoder.IsValidFile() {
		return fmt.Errorf("rewind %s: %w", s.path, domain.ErrUnsupportedFormat)
	}
	return nil
}

// Close stops a running Run and closes the file.
func (s *Source) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.file.Close()
}

var _ ports.AudioSource = (*Source)(nil)
