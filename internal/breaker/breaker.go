package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow when the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	// StateClosed indicates normal operation.
	StateClosed State = iota
	// StateOpen indicates calls short-circuit without reaching the endpoint.
	StateOpen
	// StateHalfOpen indicates a single trial call is permitted.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config controls the state transition thresholds.
type Config struct {
	FailureThreshold int           // consecutive failures before closed -> open
	SuccessThreshold int           // half-open successes before -> closed
	OpenDuration     time.Duration // how long open rejects before a trial
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = 60 * time.Second
	}
	return c
}

// Breaker guards one logical endpoint. All workers share the instance, so
// every field is protected by the single mutex.
//
// Callers pair each Allow with exactly one of Success, Failure or Discard.
// Discard is for well-formed client-fault responses: they are not evidence
// of endpoint unhealthiness and must not move the state machine, but they do
// release the half-open trial slot.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	halfOpenSuccesses   int
	lastFailureAt       time.Time
	openedAt            time.Time
	trialInFlight       bool
}

func New(cfg Config) *Breaker {
	return &Breaker{
		cfg: cfg.withDefaults(),
		now: time.Now,
	}
}

// Allow reports whether a call may proceed. In the open state it transitions
// to half-open once OpenDuration has elapsed and reserves the trial slot for
// the caller; concurrent callers while a trial is outstanding get ErrOpen.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenDuration {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.halfOpenSuccesses = 0
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return ErrOpen
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// Success records a healthy call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state == StateHalfOpen {
		b.trialInFlight = false
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.halfOpenSuccesses = 0
		}
	}
}

// Failure records an unhealthy call: network errors, timeouts, non-2xx
// responses and malformed bodies.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.lastFailureAt = b.now()

	switch b.state {
	case StateHalfOpen:
		b.trialInFlight = false
		b.halfOpenSuccesses = 0
		b.state = StateOpen
		b.openedAt = b.now()
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
}

// Discard releases the call slot without recording an outcome.
func (b *Breaker) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.trialInFlight = false
	}
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}
