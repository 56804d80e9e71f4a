package queue

import (
	"errors"
	"math/rand"
	"time"

	"ticket-settlement/internal/status"
)

// RetryManager decides whether a failed job goes around again and how long
// to wait. Backoff is exponential with +/-25% jitter, capped at 16x the base
// delay.
type RetryManager struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewRetryManager(maxRetries int, baseDelay time.Duration) *RetryManager {
	return &RetryManager{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   baseDelay * 16,
	}
}

func (r *RetryManager) ShouldRetry(job *Job, err error) (bool, time.Duration) {
	if job.Attempts >= r.maxRetriesFor(job) {
		return false, 0
	}
	if !isRetryable(err) {
		return false, 0
	}
	return true, r.backoff(job.Attempts)
}

func (r *RetryManager) maxRetriesFor(job *Job) int {
	if job.MaxRetries > 0 {
		return job.MaxRetries
	}
	return r.maxRetries
}

// nonRetryable errors describe payloads that cannot succeed on a second
// attempt with the same content. They go straight to the dead letter queue.
var nonRetryable = []error{
	status.ErrTierNotFound,
	status.ErrEventNotFound,
	status.ErrTransactionNotFound,
	status.ErrRetryKeyExpired,
	status.ErrMalformedPayload,
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, e := range nonRetryable {
		if errors.Is(err, e) {
			return false
		}
	}
	return true
}

func (r *RetryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return r.baseDelay
	}

	delay := r.baseDelay * time.Duration(1<<(attempt-1))

	jitter := time.Duration(rand.Int63n(int64(delay / 2)))
	if rand.Intn(2) == 0 {
		delay += jitter
	} else {
		delay -= jitter
	}

	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}
