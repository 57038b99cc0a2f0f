package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling the operation while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
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

type Settings struct {
	FailureThreshold int           // consecutive failures that open the breaker
	OpenTimeout      time.Duration // how long to stay open before probing
}

func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Breaker stops calling a failing dependency for a while. After OpenTimeout
// one probe is let through: success closes the breaker, failure reopens it.
type Breaker struct {
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	onChange func(from, to State)
}

func New(settings Settings) *Breaker {
	if settings.FailureThreshold < 1 {
		settings.FailureThreshold = 1
	}
	return &Breaker{settings: settings, now: time.Now}
}

// OnStateChange registers fn to be called after every transition. fn runs
// on the caller's goroutine with no lock held.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Do runs fn unless the breaker is open and records its outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	notify := b.transition(StateClosed)
	b.mu.Unlock()
	notify()
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.settings.OpenTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		notify := b.transition(StateHalfOpen)
		b.probing = true
		b.mu.Unlock()
		notify()
		return nil
	case StateHalfOpen:
		defer b.mu.Unlock()
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	default:
		b.mu.Unlock()
		return nil
	}
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	notify := func() {}
	switch {
	case ok:
		b.failures = 0
		if b.state == StateHalfOpen {
			notify = b.transition(StateClosed)
		}
	case b.state == StateHalfOpen:
		notify = b.transition(StateOpen)
	default:
		b.failures++
		if b.state == StateClosed && b.failures >= b.settings.FailureThreshold {
			notify = b.transition(StateOpen)
		}
	}
	b.mu.Unlock()
	notify()
}

// transition must be called with mu held. The returned func fires the
// callback and must be called after unlocking.
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.probing = false
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if to == StateClosed {
		b.failures = 0
	}
	if from == to {
		return func() {}
	}
	b.state = to
	fn := b.onChange
	if fn == nil {
		return func() {}
	}
	return func() { fn(from, to) }
}
