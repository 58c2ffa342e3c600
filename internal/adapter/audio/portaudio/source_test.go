//go:build portaudio

package portaudio

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/logger"
)

func TestSource_Capture(t *testing.T) {
	s, err := Open(logger.NewTestLogger(), Options{BlockSize: 256})
	if err != nil {
		t.Skipf("no input device: %v", err)
	}

	assert.NotEmpty(t, s.Name())
	assert.Positive(t, s.SampleRate())
	assert.LessOrEqual(t, s.Channels(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var blocks atomic.Int64
	err = s.Run(ctx, func(ch [][]float32, n, rate int) {
		if len(ch) == s.Channels() && n <= 256 && rate == s.SampleRate() {
			blocks.Add(1)
		}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, blocks.Load())

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Run(context.Background(), nil), domain.ErrNotRunning)
}
