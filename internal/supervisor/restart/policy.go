// Package restart implements the Restart Policy: Fixed,
// Linear and Exponential backoff strategies sharing (initial_delay,
// max_retries, last_retry_interval), with a rolling-window retry counter
// and interruptible sleeps.
package restart

import (
	"time"

	"github.com/jpillora/backoff"
)

// Strategy selects the delay formula for the nth retry.
type Strategy int

const (
	Fixed Strategy = iota
	Linear
	Exponential
)

// Policy is a restart/backoff policy instance. It is not safe for
// concurrent use by multiple goroutines; each on-host executable's
// monitor loop owns its own Policy.
type Policy struct {
	strategy          Strategy
	initialDelay      time.Duration
	maxRetries        int // 0 means unbounded
	lastRetryInterval time.Duration

	retries     int
	lastRetryAt time.Time
	nowFunc     func() time.Time
}

// New constructs a Policy. maxRetries of 0 means unbounded retries.
func New(strategy Strategy, initialDelay time.Duration, maxRetries int, lastRetryInterval time.Duration) *Policy {
	return &Policy{
		strategy:          strategy,
		initialDelay:      initialDelay,
		maxRetries:        maxRetries,
		lastRetryInterval: lastRetryInterval,
		nowFunc:           time.Now,
	}
}

// ShouldRetry reports whether another retry is permitted. It is true
// while the retry budget is not exhausted, or while the last retry was
// longer ago than lastRetryInterval — in which case the retry counter
// resets to zero, a rolling window.
func (p *Policy) ShouldRetry() bool {
	if !p.lastRetryAt.IsZero() && p.lastRetryInterval > 0 {
		if p.nowFunc().Sub(p.lastRetryAt) > p.lastRetryInterval {
			p.retries = 0
		}
	}
	if p.maxRetries == 0 {
		return true
	}
	return p.retries < p.maxRetries
}

// Backoff sleeps for the nth retry's delay, where n is the 1-based retry
// number within the current window. It returns early (interrupted=true)
// if cancel fires during the sleep.
func (p *Policy) Backoff(cancel <-chan struct{}) (interrupted bool) {
	p.retries++
	delay := p.delayFor(p.retries)
	p.lastRetryAt = p.nowFunc()

	if delay <= 0 {
		select {
		case <-cancel:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-cancel:
		return true
	case <-timer.C:
		return false
	}
}

// Reset clears the retry counter and window, used when a supervisor
// replaces the policy's owning process with a fresh configuration.
func (p *Policy) Reset() {
	p.retries = 0
	p.lastRetryAt = time.Time{}
}

// Retries reports the current retry count within the active window,
// exposed for tests and metrics.
func (p *Policy) Retries() int { return p.retries }

// unboundedMax is large enough that it never clamps a realistic restart
// delay; jpillora/backoff.ForAttempt treats a <=0 Max as "default to 10s",
// which would silently cap long exponential backoffs, so an explicit
// large Max is supplied instead.
const unboundedMax = 24 * time.Hour

func (p *Policy) delayFor(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	switch p.strategy {
	case Fixed:
		b := &backoff.Backoff{Min: p.initialDelay, Max: unboundedMax, Factor: 1}
		return b.ForAttempt(0)
	case Linear:
		return time.Duration(n) * p.initialDelay
	case Exponential:
		b := &backoff.Backoff{Min: p.initialDelay, Max: unboundedMax, Factor: 2}
		return b.ForAttempt(float64(n - 1))
	default:
		return p.initialDelay
	}
}
