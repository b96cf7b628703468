package room

import "time"

// latencyWindow keeps the most recent clock-delta samples for one device.
// Deltas are serverTime - clientTime in milliseconds; their absolute value is
// meaningless (the clocks are unsynchronized) but their spread bounds the
// one-way jitter the device sees.
type latencyWindow struct {
	samples []int64
	next    int
	filled  bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]int64, size)}
}

func (w *latencyWindow) observe(delta int64) {
	w.samples[w.next] = delta
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
}

// jitterBound returns the spread between the largest and smallest delta in
// the window. With fewer than two samples there is nothing to compare and the
// bound is zero.
func (w *latencyWindow) jitterBound() time.Duration {
	n := w.next
	if w.filled {
		n = len(w.samples)
	}
	if n < 2 {
		return 0
	}
	min, max := w.samples[0], w.samples[0]
	for _, s := range w.samples[1:n] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return time.Duration(max-min) * time.Millisecond
}
