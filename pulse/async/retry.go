package async

import (
	"github.com/teranos/nightshift/errors"
)

// MaxFailureAttempts caps the retries of any single remote step.
const MaxFailureAttempts = 5

// RetryCounter counts failures of one step against MaxFailureAttempts.
type RetryCounter struct {
	name  string
	count int
	max   int
}

// NewRetryCounter returns a counter for the named step.
func NewRetryCounter(name string) *RetryCounter {
	return &RetryCounter{name: name, max: MaxFailureAttempts}
}

// Next records a failure and reports whether another attempt is allowed.
// The failure is counted even when the cap has been reached.
func (r *RetryCounter) Next() bool {
	ok := r.count < r.max
	r.count++
	return ok
}

// Count returns the failures recorded since the last reset.
func (r *RetryCounter) Count() int { return r.count }

// Name returns the step the counter belongs to.
func (r *RetryCounter) Name() string { return r.name }

// Reset clears the failure count.
func (r *RetryCounter) Reset() { r.count = 0 }

// Exhausted reports whether the cap has been reached.
func (r *RetryCounter) Exhausted() bool { return r.count >= r.max }

// Err returns an ErrRetryExhausted error naming the step.
func (r *RetryCounter) Err() error {
	return errors.Wrapf(errors.ErrRetryExhausted, "%s failed %d times", r.name, r.count)
}
