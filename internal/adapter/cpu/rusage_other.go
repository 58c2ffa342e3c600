//go:build !unix

package cpu

import "time"

func threadCPUTime() (time.Duration, bool) {
	return 0, false
}
