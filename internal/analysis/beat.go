package analysis

// BeatDetector flags energy spikes against a rolling average with a debounce cooldown.
// It is owned by a single goroutine and keeps its counters as plain fields.
type BeatDetector struct {
	history []float32
	next    int
	filled  int
	sum     float64

	threshold       float32
	cooldownWindows int
	cooldown        int
	warmup          int
}

// NewBeatDetector creates a detector averaging over historyLen windows.
// A beat fires when energy exceeds average*threshold and no beat fired in the
// previous cooldownWindows windows.
func NewBeatDetector(historyLen int, threshold float32, cooldownWindows int) *BeatDetector {
	if historyLen < 1 {
		historyLen = 1
	}
	if cooldownWindows < 0 {
		cooldownWindows = 0
	}
	return &BeatDetector{
		history:         make([]float32, historyLen),
		threshold:       threshold,
		cooldownWindows: cooldownWindows,
		warmup:          min(defaultWarmup, historyLen),
	}
}

// Observe feeds the energy of one window and reports whether it is a beat.
// The comparison uses the average of the previous windows; the current energy joins
// the history afterwards.
func (d *BeatDetector) Observe(energy float32) bool {
	beat := false
	if d.filled >= d.warmup && float64(energy) > d.Average()*float64(d.threshold) && d.cooldown == 0 {
		beat = true
		d.cooldown = d.cooldownWindows
	} else if d.cooldown > 0 {
		d.cooldown--
	}

	if d.filled == len(d.history) {
		d.sum -= float64(d.history[d.next])
	} else {
		d.filled++
	}
	d.history[d.next] = energy
	d.sum += float64(energy)
	if d.sum < 0 {
		// subtract-oldest rounding
		d.sum = 0
	}
	d.next++
	if d.next == len(d.history) {
		d.next = 0
	}

	return beat
}

// Average returns the running average over the filled part of the history.
func (d *BeatDetector) Average() float64 {
	if d.filled == 0 {
		return 0
	}
	return d.sum / float64(d.filled)
}

// Cooldown returns the number of windows left before another beat may fire.
func (d *BeatDetector) Cooldown() int {
	return d.cooldown
}

// Reset clears history and cooldown.
func (d *BeatDetector) Reset() {
	for i := range d.history {
		d.history[i] = 0
	}
	d.next, d.filled, d.sum, d.cooldown = 0, 0, 0, 0
}
