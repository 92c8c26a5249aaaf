// Package resilience guards calls to flaky upstream data sources.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State string

const (
	StateClosed   State = "CLOSED"    // Normal operation
	StateOpen     State = "OPEN"      // Failing, rejecting calls
	StateHalfOpen State = "HALF_OPEN" // Probing whether the source recovered
)

// ErrOpen is returned without calling through while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it again.
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// IsFailure decides which errors count against the source. Nil counts all.
	IsFailure func(error) bool
	// OnStateChange, if set, is called outside the lock on every transition.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a breaker that opens after 5 straight failures and
// probes again after 30 seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
	}
}

// Breaker implements the circuit breaker pattern. It is safe for concurrent use.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	stats     Stats
}

// Stats holds circuit breaker counters.
type Stats struct {
	State       State
	Calls       int64
	Failures    int64
	Rejected    int64
	LastOpen    time.Time
	Transitions int64
}

// New creates a closed breaker.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
}

// Do calls fn unless the circuit is open. The call runs on the caller's
// goroutine, so fn should honour its own context.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}

	v, err := fn()
	if err != nil && b.countsAsFailure(err) {
		b.record(false)
		return zero, err
	}
	b.record(true)
	return v, err
}

func (b *Breaker) countsAsFailure(err error) bool {
	if b.cfg.IsFailure == nil {
		return true
	}
	return b.cfg.IsFailure(err)
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.stats.Rejected++
			b.mu.Unlock()
			return ErrOpen
		}
		from := b.transition(StateHalfOpen)
		b.stats.Calls++
		b.mu.Unlock()
		b.notify(from, StateHalfOpen)
		return nil
	}
	b.stats.Calls++
	b.mu.Unlock()
	return nil
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	var from, to State
	if ok {
		switch b.state {
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				from, to = b.transition(StateClosed), StateClosed
			}
		case StateClosed:
			b.failures = 0
		}
	} else {
		b.stats.Failures++
		switch b.state {
		case StateClosed:
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				from, to = b.transition(StateOpen), StateOpen
			}
		case StateHalfOpen:
			from, to = b.transition(StateOpen), StateOpen
		}
	}
	b.mu.Unlock()

	if to != "" {
		b.notify(from, to)
	}
}

// transition must be called with mu held. It returns the previous state.
func (b *Breaker) transition(to State) State {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	b.stats.Transitions++
	if to == StateOpen {
		b.openedAt = b.now()
		b.stats.LastOpen = b.openedAt
	}
	return from
}

func (b *Breaker) notify(from, to State) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// State returns the current circuit state. An open circuit whose cooldown has
// passed still reports open until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Stats returns a snapshot of the counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.State = b.state
	return s
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	if from != StateClosed {
		b.transition(StateClosed)
	}
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}
