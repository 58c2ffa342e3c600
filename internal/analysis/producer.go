// Package analysis turns PCM blocks from the real-time audio callback into analysis snapshots.
//
// Everything in this package runs on the audio thread: it never blocks, never logs and
// does not allocate once constructed.
package analysis

import (
	"math/cmplx"
	"sync/atomic"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Analysis defaults.
const (
	DefaultHistoryLength   = 43  // ~1s of windows at 44.1kHz
	DefaultBeatThreshold   = 1.3 // energy must exceed average by 30%
	DefaultCooldownWindows = 10  // debounce after a beat

	defaultWarmup = 2
)

// Sink receives snapshots. The snapshot channel satisfies it.
type Sink interface {
	TryPush(domain.AnalysisSnapshot) bool
}

// Option configures a Producer.
type Option func(*Producer)

// WithBeatThreshold sets the energy/average ratio that counts as a beat.
func WithBeatThreshold(threshold float32) Option {
	return func(p *Producer) { p.threshold = threshold }
}

// WithHistoryLength sets how many windows the rolling average covers.
func WithHistoryLength(windows int) Option {
	return func(p *Producer) { p.historyLen = windows }
}

// WithCooldown sets how many windows are skipped after a beat.
func WithCooldown(windows int) Option {
	return func(p *Producer) { p.cooldown = windows }
}

// WithSpectrum enables or disables the FFT magnitude stage.
func WithSpectrum(enabled bool) Option {
	return func(p *Producer) { p.spectrum = enabled }
}

// Producer accumulates mono samples into fixed windows and emits one snapshot per window.
// Process must be called from a single goroutine.
type Producer struct {
	out Sink

	threshold  float32
	historyLen int
	cooldown   int
	spectrum   bool

	mono        [domain.WindowSize]float64
	fill        int
	consumed    uint64
	windowStart uint64

	fft     *fourier.FFT
	seq     []float64
	coeffs  []complex128
	beats   *BeatDetector
	pending domain.AnalysisSnapshot

	emitted atomic.Uint64
	dropped atomic.Uint64
}

// NewProducer creates a producer that pushes snapshots into out.
func NewProducer(out Sink, opts ...Option) *Producer {
	p := &Producer{
		out:        out,
		threshold:  DefaultBeatThreshold,
		historyLen: DefaultHistoryLength,
		cooldown:   DefaultCooldownWindows,
		spectrum:   true,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.beats = NewBeatDetector(p.historyLen, p.threshold, p.cooldown)
	if p.spectrum {
		p.fft = fourier.NewFFT(domain.WindowSize)
		p.seq = make([]float64, domain.WindowSize)
		p.coeffs = make([]complex128, domain.WindowSize/2+1)
	}
	return p
}

// Process consumes one audio block. channels holds up to two planar channels; extra
// channels are ignored and stereo is averaged to mono. frames is clamped to the
// shortest channel used.
func (p *Producer) Process(channels [][]float32, frames int) {
	if frames <= 0 || len(channels) == 0 {
		return
	}

	left := channels[0]
	var right []float32
	if len(channels) > 1 {
		right = channels[1]
	}
	n := min(frames, len(left))
	if right != nil {
		n = min(n, len(right))
	}

	for i := 0; i < n; i++ {
		s := left[i]
		if right != nil {
			s = (s + right[i]) * 0.5
		}
		if p.fill == 0 {
			p.windowStart = p.consumed
		}
		p.mono[p.fill] = float64(s)
		p.fill++
		p.consumed++

		if p.fill == domain.WindowSize {
			p.analyze()
			p.fill = 0
		}
	}
}

// analyze builds and emits the snapshot for the completed window.
func (p *Producer) analyze() {
	var sum float64
	for _, s := range p.mono {
		sum += s * s
	}
	energy := float32(sum / domain.WindowSize)

	snap := &p.pending
	snap.SamplePosition = p.windowStart
	snap.ShortTimeEnergy = energy
	snap.HasSpectrum = p.spectrum
	if p.spectrum {
		copy(p.seq, p.mono[:])
		window.Hann(p.seq)
		p.fft.Coefficients(p.coeffs, p.seq)

		const norm = 2.0 / domain.WindowSize
		for k := 0; k < domain.SpectrumBins; k++ {
			snap.Spectrum[k] = float32(cmplx.Abs(p.coeffs[k]) * norm)
		}
	}
	snap.BeatDetected = p.beats.Observe(energy)

	if p.out.TryPush(*snap) {
		p.emitted.Add(1)
	} else {
		p.dropped.Add(1)
	}
}

// SamplesProcessed returns the number of mono samples consumed so far.
// Only meaningful on the producer goroutine.
func (p *Producer) SamplesProcessed() uint64 {
	return p.consumed
}

// Emitted returns the number of snapshots accepted by the sink. Safe from any goroutine.
func (p *Producer) Emitted() uint64 {
	return p.emitted.Load()
}

// Dropped returns the number of snapshots the sink rejected. Safe from any goroutine.
func (p *Producer) Dropped() uint64 {
	return p.dropped.Load()
}
