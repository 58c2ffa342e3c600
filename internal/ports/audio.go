// Package ports define interfaces for dependency inversion.
// These interfaces keep the pipeline independent of audio devices, renderers and storage.
package ports

import "context"

// BlockHandler receives one block of de-interleaved PCM samples.
// It plays the role of the host audio callback: it must not block.
type BlockHandler func(channels [][]float32, frames int, sampleRate int)

// AudioSource produces PCM blocks at real-time pace.
//
// Implementations own the block buffers; handlers must copy anything they keep.
type AudioSource interface {
	// Name describes the source for logs (device name, file title, "synth").
	Name() string

	// SampleRate returns the rate in Hz of the produced blocks.
	SampleRate() int

	// Channels returns the number of channels per block.
	Channels() int

	// Run delivers blocks to handler until ctx is cancelled or the source is exhausted.
	// Returns nil on exhaustion and ctx.Err() on cancellation.
	Run(ctx context.Context, handler BlockHandler) error

	// Close releases the source.
	Close() error
}
