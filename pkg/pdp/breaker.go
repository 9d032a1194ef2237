//
//  Copyright © Manetu Inc. All rights reserved.
//

package pdp

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

// Circuit breaker states. Transitions:
//
//	CLOSED --consecutive failures >= threshold--> OPEN
//	OPEN --open duration elapsed--> HALF_OPEN (single probe admitted)
//	HALF_OPEN --probe success--> CLOSED
//	HALF_OPEN --probe failure or stalled probe--> OPEN
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the symbolic name of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// breaker is an explicit circuit-breaker state machine. It is the only
// state shared across concurrent requests; the mutex is held only for the
// check-and-maybe-flip critical section, never across a network call.
type breaker struct {
	mu sync.Mutex

	threshold    int
	openDuration time.Duration
	halfOpenWait time.Duration
	now          func() time.Time

	state        State
	failures     int
	openedAt     time.Time
	probeStarted time.Time
}

func newBreaker(threshold int, openDuration, halfOpenWait time.Duration) *breaker {
	return &breaker{
		threshold:    threshold,
		openDuration: openDuration,
		halfOpenWait: halfOpenWait,
		now:          time.Now,
		state:        StateClosed,
	}
}

// allow reports whether a call to the engine may proceed, advancing the
// state machine as a side effect. While OPEN it short-circuits until the
// open duration has elapsed, then admits exactly one HALF_OPEN probe.
// Further calls during an unresolved probe are rejected; a probe that has
// not resolved within halfOpenWait counts as a failure and reopens.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.openDuration {
			return false
		}
		b.state = StateHalfOpen
		b.probeStarted = b.now()
		return true
	default: // StateHalfOpen
		if b.now().Sub(b.probeStarted) >= b.halfOpenWait {
			// the probe stalled; treat as failure
			b.state = StateOpen
			b.openedAt = b.now()
		}
		return false
	}
}

// onSuccess resets the failure tally and closes the circuit after a
// successful HALF_OPEN probe.
func (b *breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
	}
}

// onFailure records a failed engine attempt. Every attempt counts, so a
// single decision call with retries can advance the tally by more than one.
func (b *breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
	case StateOpen:
		// late failures from in-flight calls do not extend the open window
	}
}

// currentState returns the state without advancing the machine.
func (b *breaker) currentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
