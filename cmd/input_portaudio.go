//go:build portaudio

package main

import (
	"log/slog"

	"github.com/tejashwikalptaru/beatviz/internal/adapter/audio/portaudio"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

func init() {
	inputs["portaudio"] = func(log *slog.Logger, opts inputOptions) (ports.AudioSource, error) {
		return portaudio.Open(log, portaudio.Options{BlockSize: opts.blockSize})
	}
}
