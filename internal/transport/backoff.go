package transport

import "time"

// Reconnect policy defaults. Fatal escalation triggers when transient
// failures pile up inside the sliding window even without an explicit
// logout signal.
const (
	defaultBackoffFloor   = time.Second
	defaultBackoffCeiling = 30 * time.Second
	defaultFailureWindow  = 60 * time.Second
	defaultJitterMax      = 250 * time.Millisecond
	fatalAfterFailures    = 3
)

// retryState tracks consecutive transient failures inside a sliding window
// and the current exponential backoff.
type retryState struct {
	attempts int
	firstAt  time.Time
	backoff  time.Duration

	floor   time.Duration
	ceiling time.Duration
	window  time.Duration
}

func newRetryState(floor, ceiling, window time.Duration) retryState {
	return retryState{floor: floor, ceiling: ceiling, window: window, backoff: floor}
}

// reset returns the state to the backoff floor and restarts the window.
// Called when a session reaches open, and implicitly when the window
// elapses without new failures.
func (r *retryState) reset(now time.Time) {
	r.attempts = 0
	r.firstAt = now
	r.backoff = r.floor
}

// observeFailure records a failure at the given time, restarting the window
// first if it has elapsed. Returns the failure count inside the window.
func (r *retryState) observeFailure(now time.Time) int {
	if r.attempts == 0 || now.Sub(r.firstAt) > r.window {
		r.reset(now)
	}
	r.attempts++
	return r.attempts
}

// nextDelay returns the reconnect delay min(backoff, ceiling) + jitter and
// doubles the backoff for the next failure.
func (r *retryState) nextDelay(jitter time.Duration) time.Duration {
	delay := min(r.backoff, r.ceiling) + jitter
	r.backoff = min(r.backoff*2, r.ceiling)
	return delay
}
