package usage

import "time"

// CleanupInterval spaces retention sweeps of the journal store.
const CleanupInterval = time.Hour

// RunCleanupLoop invokes sweep immediately, then once per CleanupInterval,
// until stop closes. Stores start it on their own goroutine when a retention
// window is configured.
func RunCleanupLoop(stop <-chan struct{}, sweep func()) {
	sweep()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep()
		case <-stop:
			return
		}
	}
}
