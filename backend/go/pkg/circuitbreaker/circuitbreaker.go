package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed lets every call through and counts consecutive failures.
	Closed State = iota
	// Open rejects every call until the timeout elapses.
	Open
	// HalfOpen lets trial calls through; enough successes close the circuit again.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to a dependency that may be failing.
type CircuitBreaker interface {
	// Execute runs fn unless the circuit is open. A non-nil error from fn counts as a failure.
	Execute(fn func() error) error
	// State returns the current state of the circuit breaker.
	State() State
}

// Settings configures a Breaker.
type Settings struct {
	// Name identifies the guarded dependency in state change callbacks.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32
	// SuccessThreshold is the number of consecutive half-open successes that closes it.
	SuccessThreshold uint32
	// Timeout is how long the circuit stays open before allowing a trial call.
	Timeout time.Duration
	// IsSuccessful decides whether an error counts against the circuit. Defaults to err == nil.
	IsSuccessful func(err error) bool
	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(name string, from, to State)
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	settings Settings
	now      func() time.Time

	mutex                sync.Mutex
	state                State
	consecutiveFailures  uint32
	consecutiveSuccesses uint32
	openedAt             time.Time
}

// New creates a Breaker. Zero thresholds default to 1.
func New(s Settings) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 1
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = 1
	}
	if s.IsSuccessful == nil {
		s.IsSuccessful = func(err error) bool { return err == nil }
	}
	return &Breaker{settings: s, now: time.Now, state: Closed}
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	state, _ := b.currentState()
	return state
}

// Execute runs fn with circuit breaker protection.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(b.settings.IsSuccessful(err))
	return err
}

// Do runs fn through b and returns its result.
func Do[T any](b CircuitBreaker, fn func() (T, error)) (T, error) {
	var res T
	if b == nil {
		return fn()
	}
	err := b.Execute(func() error {
		var err error
		res, err = fn()
		return err
	})
	return res, err
}

func (b *Breaker) before() error {
	b.mutex.Lock()
	state, changed := b.currentState()
	b.mutex.Unlock()
	if changed {
		b.notify(Open, HalfOpen)
	}
	if state == Open {
		return ErrCircuitOpen
	}
	return nil
}

func (b *Breaker) after(success bool) {
	b.mutex.Lock()
	from := b.state
	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
	to := b.state
	b.mutex.Unlock()
	if from != to {
		b.notify(from, to)
	}
}

// currentState moves Open to HalfOpen once the timeout has passed. Caller holds the lock.
func (b *Breaker) currentState() (State, bool) {
	if b.state == Open && b.now().Sub(b.openedAt) > b.settings.Timeout {
		b.state = HalfOpen
		b.consecutiveSuccesses = 0
		return b.state, true
	}
	return b.state, false
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case HalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.settings.SuccessThreshold {
			b.state = Closed
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	case Closed:
		b.consecutiveFailures = 0
	}
}

func (b *Breaker) onFailure() {
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.settings.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
}

func (b *Breaker) notify(from, to State) {
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}
