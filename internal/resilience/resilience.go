/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package resilience wraps calls to unreliable upstream dependencies with
// retry-with-backoff and a per-context circuit breaker. Breaker state is keyed
// by an operation context string (one per upstream capability, not per
// request) and lives only in process memory.
package resilience

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Default retry policy values, applied when a policy field is left zero.
const (
	DefaultMaxRetries      = 3
	DefaultBaseDelay       = 1000 * time.Millisecond
	DefaultMaxDelay        = 10000 * time.Millisecond
	DefaultExponentialBase = 2.0
)

// Breaker defaults: five consecutive failures open the circuit for a fixed
// cool-down window, after which a single probe is allowed through.
const (
	DefaultFailureThreshold = 5
	DefaultCooldownPeriod   = 30 * time.Second

	// jitterFactor bounds the additional random delay applied on top of the
	// computed backoff when jitter is enabled.
	jitterFactor = 0.3
)

// RetryPolicy is immutable configuration for one Execute call.
type RetryPolicy struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	JitterEnabled   bool
}

// DefaultPolicy returns the standard policy: 3 retries, 1s base delay, 10s
// cap, exponential base 2, jitter on.
func DefaultPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:      DefaultMaxRetries,
		BaseDelay:       DefaultBaseDelay,
		MaxDelay:        DefaultMaxDelay,
		ExponentialBase: DefaultExponentialBase,
		JitterEnabled:   true,
	}
}

func (p *RetryPolicy) withDefaults() *RetryPolicy {
	out := *p
	if out.MaxRetries == 0 {
		out.MaxRetries = DefaultMaxRetries
	}
	if out.BaseDelay == 0 {
		out.BaseDelay = DefaultBaseDelay
	}
	if out.MaxDelay == 0 {
		out.MaxDelay = DefaultMaxDelay
	}
	if out.ExponentialBase == 0 {
		out.ExponentialBase = DefaultExponentialBase
	}
	return &out
}

// Settings configures the breaker shared by all calls through one Executor.
type Settings struct {
	FailureThreshold int
	CooldownPeriod   time.Duration
}

// breakerState is the per-context circuit breaker record. It is created
// lazily on first failure and deleted on any success.
type breakerState struct {
	isOpen          bool
	failureCount    int
	lastFailureTime time.Time
	nextAttemptTime time.Time
}

// Executor owns the circuit breaker registry. One long-lived instance is
// shared by all callers; concurrent failures for the same context are
// serialized by a single mutex. The retry sleep never holds the lock.
type Executor struct {
	mu       sync.Mutex
	breakers map[string]*breakerState
	settings Settings
}

// NewExecutor creates an Executor with the default breaker settings.
func NewExecutor() *Executor {
	return NewExecutorWithSettings(Settings{})
}

// NewExecutorWithSettings creates an Executor with explicit breaker settings.
// Zero fields fall back to the defaults.
func NewExecutorWithSettings(settings Settings) *Executor {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = DefaultFailureThreshold
	}
	if settings.CooldownPeriod == 0 {
		settings.CooldownPeriod = DefaultCooldownPeriod
	}
	return &Executor{
		breakers: make(map[string]*breakerState),
		settings: settings,
	}
}

// Execute runs op under the retry policy, consulting the circuit breaker for
// opContext before every attempt. A short-circuited call does not count as an
// attempt. On success the breaker for opContext resets fully; every failure
// increments its failure count. After exhausting retries the last error is
// returned wrapped in MaxRetriesExceededError. Errors the collaborator marks
// non-retryable (see IsRetryable) pass through unchanged without consuming
// further attempts.
func (ex *Executor) Execute(ctx context.Context, opContext string, policy *RetryPolicy, op func(context.Context) error) error {
	if policy == nil {
		policy = DefaultPolicy()
	} else {
		policy = policy.withDefaults()
	}

	delays := newBackOff(policy)

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ex.checkBreaker(opContext); err != nil {
			return err
		}

		if attempt > 0 {
			delay := delays.NextBackOff()
			if policy.JitterEnabled {
				delay += time.Duration(rand.Float64() * jitterFactor * float64(delay))
			}
			if err := sleepContext(ctx, delay); err != nil {
				return err
			}
		}

		err := op(ctx)
		if err == nil {
			ex.recordSuccess(opContext)
			return nil
		}
		lastErr = err
		ex.recordFailure(opContext)

		logrus.WithFields(logrus.Fields{
			"operation_context": opContext,
			"attempt":           attempt + 1,
			"max_attempts":      policy.MaxRetries + 1,
		}).Warnf("operation failed: %v", err)

		if !IsRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return &MaxRetriesExceededError{
		Context:  opContext,
		Attempts: policy.MaxRetries + 1,
		Err:      lastErr,
	}
}

// Run executes op through the executor and returns its result. It exists so
// callers returning a value do not have to thread it out of the closure
// themselves.
func Run[T any](ctx context.Context, ex *Executor, opContext string, policy *RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := ex.Execute(ctx, opContext, policy, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// BreakerState reports whether the breaker for opContext is currently open
// and its accumulated failure count. Used for operational monitoring.
func (ex *Executor) BreakerState(opContext string) (open bool, failures int) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	st, ok := ex.breakers[opContext]
	if !ok {
		return false, 0
	}
	return st.isOpen && time.Now().Before(st.nextAttemptTime), st.failureCount
}

// checkBreaker returns a CircuitOpenError if the breaker for opContext is
// open and the cool-down window has not elapsed. Once the window elapses the
// next call is allowed through as a half-open probe.
func (ex *Executor) checkBreaker(opContext string) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	st, ok := ex.breakers[opContext]
	if !ok || !st.isOpen {
		return nil
	}
	now := time.Now()
	if now.Before(st.nextAttemptTime) {
		return &CircuitOpenError{
			Context:    opContext,
			RetryAfter: st.nextAttemptTime.Sub(now),
		}
	}
	// Cool-down elapsed, let the probe through.
	return nil
}

func (ex *Executor) recordFailure(opContext string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	st, ok := ex.breakers[opContext]
	if !ok {
		st = &breakerState{}
		ex.breakers[opContext] = st
	}
	now := time.Now()
	st.failureCount++
	st.lastFailureTime = now

	if st.isOpen {
		// A failed half-open probe re-opens with a fresh cool-down.
		st.nextAttemptTime = now.Add(ex.settings.CooldownPeriod)
		logrus.WithField("operation_context", opContext).Warn("half-open probe failed, circuit re-opened")
		return
	}
	if st.failureCount >= ex.settings.FailureThreshold {
		st.isOpen = true
		st.nextAttemptTime = now.Add(ex.settings.CooldownPeriod)
		logrus.WithFields(logrus.Fields{
			"operation_context": opContext,
			"failure_count":     st.failureCount,
		}).Warn("failure threshold reached, circuit opened")
	}
}

func (ex *Executor) recordSuccess(opContext string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	delete(ex.breakers, opContext)
}

// newBackOff builds the deterministic delay sequence
// min(baseDelay*exponentialBase^attempt, maxDelay). Jitter is layered on top
// by the caller, so randomization stays off here.
func newBackOff(policy *RetryPolicy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.BaseDelay
	b.MaxInterval = policy.MaxDelay
	b.Multiplier = policy.ExponentialBase
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// sleepContext waits for the duration or until the context is done, whichever
// comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
