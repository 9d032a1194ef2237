//
//  Copyright © Manetu Inc. All rights reserved.
//

package pdp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock drives the breaker's notion of time deterministically
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestBreaker(threshold int, openDuration, halfOpenWait time.Duration) (*breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := newBreaker(threshold, openDuration, halfOpenWait)
	b.now = clock.now
	return b, clock
}

func TestBreakerInitialState(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second, time.Second)

	assert.Equal(t, StateClosed, b.currentState())
	assert.True(t, b.allow())
}

func TestBreakerTripsAfterExactlyThresholdFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second, time.Second)

	b.onFailure()
	b.onFailure()
	assert.Equal(t, StateClosed, b.currentState())
	assert.True(t, b.allow())

	b.onFailure()
	assert.Equal(t, StateOpen, b.currentState())
	assert.False(t, b.allow())
}

func TestBreakerSuccessResetsTally(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second, time.Second)

	b.onFailure()
	b.onFailure()
	b.onSuccess()

	// tally restarts; two more failures must not trip
	b.onFailure()
	b.onFailure()
	assert.Equal(t, StateClosed, b.currentState())
}

func TestBreakerHalfOpenAfterOpenDuration(t *testing.T) {
	b, clock := newTestBreaker(1, 10*time.Second, 5*time.Second)

	b.onFailure()
	assert.Equal(t, StateOpen, b.currentState())

	clock.advance(9 * time.Second)
	assert.False(t, b.allow())

	clock.advance(time.Second)
	assert.True(t, b.allow())
	assert.Equal(t, StateHalfOpen, b.currentState())
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	b, clock := newTestBreaker(1, 10*time.Second, 5*time.Second)

	b.onFailure()
	clock.advance(10 * time.Second)

	assert.True(t, b.allow())
	assert.False(t, b.allow(), "second call during an unresolved probe must be rejected")
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(1, 10*time.Second, 5*time.Second)

	b.onFailure()
	clock.advance(10 * time.Second)
	assert.True(t, b.allow())

	b.onSuccess()
	assert.Equal(t, StateClosed, b.currentState())
	assert.True(t, b.allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(1, 10*time.Second, 5*time.Second)

	b.onFailure()
	clock.advance(10 * time.Second)
	assert.True(t, b.allow())

	b.onFailure()
	assert.Equal(t, StateOpen, b.currentState())
	assert.False(t, b.allow())

	// and the open window restarts from the reopen
	clock.advance(9 * time.Second)
	assert.False(t, b.allow())
	clock.advance(time.Second)
	assert.True(t, b.allow())
}

func TestBreakerStalledProbeReopens(t *testing.T) {
	b, clock := newTestBreaker(1, 10*time.Second, 5*time.Second)

	b.onFailure()
	clock.advance(10 * time.Second)
	assert.True(t, b.allow())

	// probe never resolves
	clock.advance(5 * time.Second)
	assert.False(t, b.allow())
	assert.Equal(t, StateOpen, b.currentState())
}

func TestBreakerLateFailureWhileOpenKeepsWindow(t *testing.T) {
	b, clock := newTestBreaker(1, 10*time.Second, 5*time.Second)

	b.onFailure()
	clock.advance(5 * time.Second)

	// a straggler from an in-flight call must not extend the window
	b.onFailure()
	clock.advance(5 * time.Second)
	assert.True(t, b.allow())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
