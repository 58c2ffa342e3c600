package cpu

import (
	"time"

	"golang.org/x/sys/unix"
)

func threadCPUTime() (time.Duration, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_THREAD, &ru); err != nil {
		return 0, false
	}
	return rusageTotal(&ru), true
}
