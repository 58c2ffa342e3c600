// Package cpu samples CPU time consumed by the calling thread.
package cpu

import (
	"time"

	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

// Sampler implements ports.CPUSampler. It must be used from a single goroutine,
// and that goroutine should be locked to its OS thread for per-thread figures.
type Sampler struct {
	now     func() time.Time
	cpuTime func() (time.Duration, bool)

	lastWall time.Time
	lastCPU  time.Duration
	primed   bool
}

// NewSampler creates a sampler reading the platform's thread CPU clock.
func NewSampler() *Sampler {
	return &Sampler{now: time.Now, cpuTime: threadCPUTime}
}

// Sample returns the percent of one core used since the previous call, in [0, 100].
// The first call returns 0. Platforms without a CPU clock always report 0.
func (s *Sampler) Sample() float64 {
	cpu, ok := s.cpuTime()
	if !ok {
		return 0
	}
	wall := s.now()

	if !s.primed {
		s.lastWall, s.lastCPU, s.primed = wall, cpu, true
		return 0
	}

	dWall := wall.Sub(s.lastWall)
	dCPU := cpu - s.lastCPU
	s.lastWall, s.lastCPU = wall, cpu

	if dWall <= 0 || dCPU < 0 {
		return 0
	}
	pct := 100 * float64(dCPU) / float64(dWall)
	if pct > 100 {
		pct = 100
	}
	return pct
}

var _ ports.CPUSampler = (*Sampler)(nil)
