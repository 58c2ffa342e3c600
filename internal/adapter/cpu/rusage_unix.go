//go:build unix && !linux

package cpu

import (
	"time"

	"golang.org/x/sys/unix"
)

// Per-thread usage is not exposed here; the process figure is the closest available.
func threadCPUTime() (time.Duration, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	return rusageTotal(&ru), true
}
