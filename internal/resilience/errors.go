package resilience

import (
	"errors"
	"fmt"
	"time"
)

// CircuitOpenError is returned when the breaker for an operation context is
// open and the cool-down window has not elapsed. The call that produced it
// never invoked the operation.
type CircuitOpenError struct {
	Context    string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %q, retry after %s", e.Context, e.RetryAfter)
}

// Retryable marks the error non-retryable; the caller has to wait out the
// cool-down window first.
func (e *CircuitOpenError) Retryable() bool {
	return false
}

// MaxRetriesExceededError wraps the last underlying error after every attempt
// allowed by the policy has failed.
type MaxRetriesExceededError struct {
	Context  string
	Attempts int
	Err      error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("%q failed after %d attempts: %v", e.Context, e.Attempts, e.Err)
}

func (e *MaxRetriesExceededError) Unwrap() error {
	return e.Err
}

// retryable is implemented by collaborator errors that carry their own
// retryability classification, e.g. an HTTP client mapping 4xx vs 5xx.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether another attempt may be made for err. Errors
// that do not classify themselves are treated as retryable transient
// failures.
func IsRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
