//go:build unix

package cpu

import (
	"time"

	"golang.org/x/sys/unix"
)

func rusageTotal(ru *unix.Rusage) time.Duration {
	return time.Duration(unix.TimevalToNsec(ru.Utime) + unix.TimevalToNsec(ru.Stime))
}
