package shmem

import "time"

// RetryPolicy bounds every semaphore wait. Each attempt blocks for at most
// Timeout; interrupted attempts (EINTR) are retried up to Attempts times,
// then the wait surfaces as ErrLockTimeout. This bounded waiting is the
// only deadlock-avoidance mechanism; there is no detector.
type RetryPolicy struct {
	Timeout  time.Duration
	Attempts uint64
}

// DefaultRetryPolicy matches the protocol's established bounds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Timeout: 5 * time.Second, Attempts: 3}
}
