package compositor

import "time"

// spinThreshold is how far ahead of the target instant the coarse
// OS-sleep stops and the monotonic-clock spin takes over. The OS
// sleep covers the bulk of the wait without burning a core; the spin
// absorbs the scheduler's wake-up jitter.
const spinThreshold = 2 * time.Millisecond

// Sleep blocks until time.Now() is at or past target, holding wake-up
// error well under frame-pacing tolerances (≤250µs): a coarse
// time.Sleep for the bulk of the wait, then a monotonic-clock spin for
// the last couple milliseconds.
func Sleep(target time.Time) {
	for {
		remaining := time.Until(target)
		if remaining <= 0 {
			return
		}
		if remaining > spinThreshold {
			time.Sleep(remaining - spinThreshold)
			continue
		}
		break
	}
	for time.Now().Before(target) {
		// monotonic-clock spin
	}
}
