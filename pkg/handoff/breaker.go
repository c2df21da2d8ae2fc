package handoff

import (
	"sync"
	"time"
)

// BreakerState is the state of the desk circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// breaker stops notification attempts after repeated desk failures and
// lets a single probe through once resetAfter has passed.
type breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	threshold   int
	resetAfter  time.Duration
	lastFailure time.Time
	probing     bool
	now         func() time.Time
}

func newBreaker(threshold int, resetAfter time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &breaker{
		state:      BreakerClosed,
		threshold:  threshold,
		resetAfter: resetAfter,
		now:        time.Now,
	}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) < b.resetAfter {
			return false
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return true
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	b.state = BreakerClosed
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	b.probing = false
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
	}
}

func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
