package worker

import "time"

// RetryPolicy decides whether a failed job is put back in the queue
// automatically. The pipeline's default is no automatic retry: failed jobs
// wait for an explicit reset from the UI or the next foreground trigger.
// The policy is pluggable so a production deployment can opt into backoff
// without touching the loop.
type RetryPolicy interface {
	// NextDelay reports whether a job that has failed retryCount times
	// should be rescheduled, and how long after its last attempt.
	NextDelay(retryCount int) (time.Duration, bool)
}

// NoRetry never reschedules. Matches the original behavior.
type NoRetry struct{}

func (NoRetry) NextDelay(int) (time.Duration, bool) { return 0, false }

// ExponentialBackoff reschedules after Base * 2^(retryCount-1), capped at
// Max. Zero-valued fields get sensible defaults.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) NextDelay(retryCount int) (time.Duration, bool) {
	if retryCount <= 0 {
		return 0, false
	}
	base := b.Base
	if base <= 0 {
		base = 30 * time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Minute
	}
	delay := base << (retryCount - 1)
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay, true
}
