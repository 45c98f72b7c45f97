package resilience

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is one of closed, open, half-open.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

// ErrBreakerOpen is returned by Allow when the breaker is tripped.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Breaker is a simple consecutive-failure circuit breaker: after
// FailureThreshold consecutive failures it opens for ResetTimeout, then
// goes half-open and lets calls through until the next recorded outcome
// closes it (success) or reopens it (failure).
type Breaker struct {
	FailureThreshold int
	ResetTimeout     time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
}

// NewBreaker builds a Breaker with sane defaults if threshold/timeout are
// left zero.
func NewBreaker(threshold int, reset time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if reset <= 0 {
		reset = 30 * time.Second
	}
	return &Breaker{FailureThreshold: threshold, ResetTimeout: reset}
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// once ResetTimeout has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) >= b.ResetTimeout {
			b.state = StateHalfOpen
			return nil
		}
		return ErrBreakerOpen
	default:
		return nil
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
}

// RecordFailure increments the failure count, opening the breaker once the
// threshold is reached (or immediately, if the probe itself failed).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = time.Now()
		return
	}
	b.failures++
	if b.failures >= b.FailureThreshold {
		b.state = StateOpen
		b.openedAt = time.Now()
	}
}

// State reports the current breaker state, for tests and metrics.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
